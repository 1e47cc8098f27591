package steplog

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/testflow/internal/ctxkeys"
	"github.com/BaSui01/testflow/internal/database"
)

// writeRetries bounds retries of a history write on transient database errors
// (locked sqlite file, deadlock, dropped connection).
const writeRetries = 3

// StepRecord is the persisted form of a step.
type StepRecord struct {
	ID         string `gorm:"primaryKey;size:36"`
	SessionID  string `gorm:"index;size:64"`
	Action     string `gorm:"size:128"`
	Message    string
	Outcome    string `gorm:"size:16;index"`
	Error      string
	StartedAt  time.Time
	EndedAt    *time.Time
	DurationMS int64
}

// TableName 指定表名
func (StepRecord) TableName() string { return "testflow_steps" }

// StepFile is a file attached while a step was open.
type StepFile struct {
	ID        uint   `gorm:"primaryKey"`
	StepID    string `gorm:"index;size:36"`
	SessionID string `gorm:"size:64"`
	Path      string
	Type      string `gorm:"size:32"`
	CreatedAt time.Time
}

// TableName 指定表名
func (StepFile) TableName() string { return "testflow_step_files" }

// HistorySink persists steps to a relational database through gorm. Every
// write runs in its own transaction and is retried on transient failures.
type HistorySink struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

// NewHistorySink migrates the history tables and returns the sink.
func NewHistorySink(pool *database.PoolManager, logger *zap.Logger) (*HistorySink, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.DB().AutoMigrate(&StepRecord{}, &StepFile{}); err != nil {
		return nil, fmt.Errorf("failed to migrate step history: %w", err)
	}
	return &HistorySink{
		pool:   pool,
		logger: logger.With(zap.String("component", "steplog_history")),
	}, nil
}

func (h *HistorySink) write(ctx context.Context, fn database.TransactionFunc) error {
	return h.pool.WithTransactionRetry(ctx, writeRetries, fn)
}

func (h *HistorySink) StartStep(ctx context.Context, step Step) {
	rec := StepRecord{
		ID:        step.ID,
		SessionID: step.SessionID,
		Action:    step.Action,
		Message:   step.Message,
		Outcome:   string(OutcomeRunning),
		StartedAt: step.StartedAt,
	}
	err := h.write(ctx, func(tx *gorm.DB) error {
		return tx.Create(&rec).Error
	})
	if err != nil {
		h.logger.Warn("failed to record step start", zap.String("step_id", step.ID), zap.Error(err))
	}
}

func (h *HistorySink) EndStep(ctx context.Context, step Step) {
	ended := step.EndedAt
	err := h.write(ctx, func(tx *gorm.DB) error {
		return tx.Model(&StepRecord{}).
			Where("id = ?", step.ID).
			Updates(map[string]any{
				"outcome":     string(step.Outcome),
				"error":       step.Error,
				"ended_at":    &ended,
				"duration_ms": step.Duration().Milliseconds(),
			}).Error
	})
	if err != nil {
		h.logger.Warn("failed to record step end", zap.String("step_id", step.ID), zap.Error(err))
	}
}

func (h *HistorySink) File(ctx context.Context, path string, kind LogType) {
	stepID, _ := ctxkeys.StepID(ctx)
	sessionID, _ := ctxkeys.SessionID(ctx)
	rec := StepFile{StepID: stepID, SessionID: sessionID, Path: path, Type: string(kind)}
	err := h.write(ctx, func(tx *gorm.DB) error {
		return tx.Create(&rec).Error
	})
	if err != nil {
		h.logger.Warn("failed to record step file", zap.String("path", path), zap.Error(err))
	}
}

// Steps returns the recorded steps of a session, oldest first.
func (h *HistorySink) Steps(ctx context.Context, sessionID string) ([]StepRecord, error) {
	var out []StepRecord
	err := h.pool.DB().WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("started_at ASC").
		Find(&out).Error
	return out, err
}

// Files returns the files attached to a step.
func (h *HistorySink) Files(ctx context.Context, stepID string) ([]StepFile, error) {
	var out []StepFile
	err := h.pool.DB().WithContext(ctx).Where("step_id = ?", stepID).Order("id ASC").Find(&out).Error
	return out, err
}
