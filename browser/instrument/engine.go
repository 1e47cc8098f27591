// Package instrument wraps browser actions with step logging, breakpoints,
// error-message interception and screenshot capture.
//
// Every instrumented call on a session goes through its Engine. A call made
// while another call of the same session is running is nested: it inherits
// the open step and skips breakpoints and framing.
package instrument

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/testflow/browser/breakpoint"
	"github.com/BaSui01/testflow/browser/screenshot"
	"github.com/BaSui01/testflow/browser/steplog"
	"github.com/BaSui01/testflow/internal/ctxkeys"
	"github.com/BaSui01/testflow/internal/metrics"
	"github.com/BaSui01/testflow/types"
)

const tracerName = "github.com/BaSui01/testflow/browser/instrument"

// Breakpoints is the suspension boundary awaited around top-level actions.
type Breakpoints interface {
	AwaitBefore(ctx context.Context, onState breakpoint.StateFunc) error
	AwaitAfter(ctx context.Context, onState breakpoint.StateFunc) error
}

// Capturer takes lifecycle screenshots.
type Capturer interface {
	ShouldCapture(trigger screenshot.Trigger) bool
	Capture(ctx context.Context, trigger screenshot.Trigger, hint string) (string, error)
}

// SuspendFunc observes breakpoint suspensions together with the step message.
type SuspendFunc func(s breakpoint.Suspension, message string)

// Engine instruments the actions of one session.
type Engine struct {
	sessionID   string
	exec        *ExecContext
	registry    *Registry
	steps       steplog.Logger
	breakpoints Breakpoints
	capturer    Capturer
	metrics     *metrics.Collector
	tracer      trace.Tracer
	onSuspend   SuspendFunc
	now         func() time.Time
	logger      *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSessionID tags steps and spans with the session id.
func WithSessionID(id string) Option {
	return func(e *Engine) { e.sessionID = id }
}

// WithStepLogger sets the step sink.
func WithStepLogger(l steplog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.steps = l
		}
	}
}

// WithBreakpoints sets the breakpoint boundary. Defaults to breakpoint.Default().
func WithBreakpoints(b Breakpoints) Option {
	return func(e *Engine) {
		if b != nil {
			e.breakpoints = b
		}
	}
}

// WithCapturer enables lifecycle screenshots.
func WithCapturer(c Capturer) Option {
	return func(e *Engine) { e.capturer = c }
}

// WithMetrics records action metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithSuspendObserver is notified whenever a call suspends at a breakpoint.
func WithSuspendObserver(fn SuspendFunc) Option {
	return func(e *Engine) { e.onSuspend = fn }
}

// WithClock overrides time.Now for step timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine with its own ExecContext and Registry.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		exec:        &ExecContext{},
		registry:    NewRegistry(),
		steps:       steplog.Nop{},
		breakpoints: breakpoint.Default(),
		tracer:      otel.Tracer(tracerName),
		now:         time.Now,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "instrument"))
	if e.sessionID != "" {
		e.logger = e.logger.With(zap.String("session_id", e.sessionID))
	}
	return e
}

// Registry returns the action registry.
func (e *Engine) Registry() *Registry { return e.registry }

// ExecContext returns the reentrancy guard.
func (e *Engine) ExecContext() *ExecContext { return e.exec }

// SessionID returns the session id given at construction.
func (e *Engine) SessionID() string { return e.sessionID }

func invoke[T any](e *Engine, ctx context.Context, a Action[T], args []any) *Pending[T] {
	message, err := e.render(a.Name, a.Message, args)
	if err != nil {
		e.logger.Warn("failed to render step message", zap.String("action", a.Name), zap.Error(err))
		return rejected[T](a.Name, err, e.logger)
	}

	p := newPending[T](a.Name, args, a.ErrorMessage, e.logger)
	if !e.exec.tryAcquire() {
		go runNested(e, ctx, a, args, p)
		return p
	}
	go runTopLevel(e, ctx, a, args, message, p)
	return p
}

func runNested[T any](e *Engine, ctx context.Context, a Action[T], args []any, p *Pending[T]) {
	e.metrics.RecordNestedAction(a.Name)
	value, err := callOrigin(ctx, a, args)
	p.complete(p.seal(value, err))
}

func runTopLevel[T any](e *Engine, ctx context.Context, a Action[T], args []any, message string, p *Pending[T]) {
	if err := e.await(ctx, breakpoint.PhaseBefore, message); err != nil {
		e.exec.release()
		var zero T
		p.complete(p.seal(zero, err))
		return
	}

	value, err := runStep(e, ctx, a, args, message, p)
	e.exec.release()

	if bpErr := e.await(ctx, breakpoint.PhaseAfter, message); bpErr != nil && err == nil {
		var zero T
		value, err = zero, bpErr
	}
	p.complete(value, err)
}

// runStep opens the step, runs the origin and always closes the step.
func runStep[T any](e *Engine, ctx context.Context, a Action[T], args []any, message string, p *Pending[T]) (value T, err error) {
	step := steplog.Step{
		ID:        uuid.NewString(),
		SessionID: e.sessionID,
		Action:    a.Name,
		Message:   message,
		StartedAt: e.now(),
		Outcome:   steplog.OutcomeRunning,
	}

	stepCtx := ctxkeys.WithStepID(ctx, step.ID)
	stepCtx = ctxkeys.WithAction(stepCtx, a.Name)
	if e.sessionID != "" {
		stepCtx = ctxkeys.WithSessionID(stepCtx, e.sessionID)
	}
	stepCtx, span := e.tracer.Start(stepCtx, a.Name,
		trace.WithAttributes(
			attribute.String("testflow.action", a.Name),
			attribute.String("testflow.step_id", step.ID),
			attribute.String("testflow.session_id", e.sessionID),
			attribute.String("testflow.message", message),
		),
	)

	e.steps.StartStep(stepCtx, step)
	e.metrics.StepOpened()

	defer func() {
		step.EndedAt = e.now()
		value, err = p.seal(value, err)
		if err != nil {
			step.Outcome = steplog.OutcomeFailed
			step.Error = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, step.Error)
		} else {
			step.Outcome = steplog.OutcomePassed
			span.SetStatus(codes.Ok, "")
		}
		e.steps.EndStep(stepCtx, step)
		e.metrics.StepClosed()
		e.metrics.RecordAction(a.Name, string(step.Outcome), step.Duration())
		span.End()
	}()

	value, err = callOrigin(stepCtx, a, args)
	if err != nil {
		e.capture(stepCtx, screenshot.TriggerFailure, message)
		return value, err
	}
	e.capture(stepCtx, screenshot.TriggerSuccess, message)
	return value, nil
}

// callOrigin converts panics into errors whose message is the panic text.
// The ACTION_PANICKED code and any panicked error stay reachable via Unwrap.
func callOrigin[T any](ctx context.Context, a Action[T], args []any) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			value = zero
			perr := types.NewError(types.ErrActionPanicked, fmt.Sprint(r))
			if cause, ok := r.(error); ok {
				perr = perr.WithCause(cause)
			}
			err = &ActionError{Action: a.Name, Message: fmt.Sprint(r), Err: perr}
		}
	}()
	return a.Origin(ctx, args)
}

func (e *Engine) render(action string, message func([]any) string, args []any) (out string, err error) {
	if message == nil {
		return action, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = types.NewError(types.ErrRenderFailed,
				fmt.Sprintf("failed to render message of %q: %v", action, r))
		}
	}()
	return message(args), nil
}

// capture takes a best-effort screenshot. Failures never change the outcome.
func (e *Engine) capture(ctx context.Context, trigger screenshot.Trigger, message string) {
	if e.capturer == nil || !e.capturer.ShouldCapture(trigger) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("screenshot panicked", zap.String("trigger", string(trigger)), zap.Any("panic", r))
		}
	}()
	if _, err := e.capturer.Capture(ctx, trigger, message); err != nil && !errors.Is(err, screenshot.ErrThrottled) {
		e.logger.Warn("screenshot failed", zap.String("trigger", string(trigger)), zap.Error(err))
	}
}

func (e *Engine) await(ctx context.Context, phase breakpoint.Phase, message string) error {
	var suspendedAt time.Time
	onState := func(s breakpoint.Suspension) {
		suspendedAt = time.Now()
		e.logger.Info("paused at breakpoint",
			zap.String("phase", string(phase)),
			zap.String("suspension_id", s.ID),
			zap.String("message", message),
		)
		if e.onSuspend != nil {
			e.onSuspend(s, message)
		}
	}

	var err error
	if phase == breakpoint.PhaseBefore {
		err = e.breakpoints.AwaitBefore(ctx, onState)
	} else {
		err = e.breakpoints.AwaitAfter(ctx, onState)
	}
	if !suspendedAt.IsZero() {
		e.metrics.RecordBreakpoint(string(phase), time.Since(suspendedAt))
	}
	return err
}
