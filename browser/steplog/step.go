// Package steplog defines the step lifecycle boundary of the action engine and
// its sinks: zap, redis streams, a gorm-backed history table and an in-memory
// recorder for tests.
package steplog

import (
	"context"
	"time"
)

// Outcome is the result of a closed step.
type Outcome string

const (
	OutcomeRunning Outcome = "running"
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
)

// LogType classifies files attached to a step.
type LogType string

const (
	LogTypeScreenshot LogType = "screenshot"
	LogTypeText       LogType = "text"
)

// Step is one execution of an instrumented action.
type Step struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	Action    string    `json:"action"`
	Message   string    `json:"message"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Error     string    `json:"error,omitempty"`
}

// Duration returns the elapsed time of a closed step, zero while open.
func (s Step) Duration() time.Duration {
	if s.EndedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Logger receives step lifecycle events. Implementations must not block for
// long and must absorb their own failures.
type Logger interface {
	StartStep(ctx context.Context, step Step)
	EndStep(ctx context.Context, step Step)
	File(ctx context.Context, path string, kind LogType)
}

// Nop discards everything.
type Nop struct{}

func (Nop) StartStep(context.Context, Step)       {}
func (Nop) EndStep(context.Context, Step)         {}
func (Nop) File(context.Context, string, LogType) {}

type multi []Logger

// Multi fans events out to every non-nil logger in order.
func Multi(loggers ...Logger) Logger {
	out := make(multi, 0, len(loggers))
	for _, l := range loggers {
		if l == nil {
			continue
		}
		if m, ok := l.(multi); ok {
			out = append(out, m...)
			continue
		}
		out = append(out, l)
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (m multi) StartStep(ctx context.Context, step Step) {
	for _, l := range m {
		l.StartStep(ctx, step)
	}
}

func (m multi) EndStep(ctx context.Context, step Step) {
	for _, l := range m {
		l.EndStep(ctx, step)
	}
}

func (m multi) File(ctx context.Context, path string, kind LogType) {
	for _, l := range m {
		l.File(ctx, path, kind)
	}
}
