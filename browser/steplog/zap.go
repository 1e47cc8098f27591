package steplog

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/testflow/internal/ctxkeys"
)

// ZapLogger writes step events as structured log lines.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger creates a zap-backed step logger.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger.With(zap.String("component", "steps"))}
}

func (z *ZapLogger) StartStep(ctx context.Context, step Step) {
	z.logger.Info("step started", stepFields(step)...)
}

func (z *ZapLogger) EndStep(ctx context.Context, step Step) {
	fields := append(stepFields(step), zap.Duration("duration", step.Duration()))
	if step.Outcome == OutcomeFailed {
		z.logger.Error("step failed", append(fields, zap.String("error", step.Error))...)
		return
	}
	z.logger.Info("step passed", fields...)
}

func (z *ZapLogger) File(ctx context.Context, path string, kind LogType) {
	fields := []zap.Field{zap.String("path", path), zap.String("type", string(kind))}
	if id, ok := ctxkeys.StepID(ctx); ok {
		fields = append(fields, zap.String("step_id", id))
	}
	z.logger.Info("step file attached", fields...)
}

func stepFields(step Step) []zap.Field {
	fields := []zap.Field{
		zap.String("step_id", step.ID),
		zap.String("action", step.Action),
		zap.String("message", step.Message),
	}
	if step.SessionID != "" {
		fields = append(fields, zap.String("session_id", step.SessionID))
	}
	return fields
}
