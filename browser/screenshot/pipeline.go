// Package screenshot captures browser screenshots around instrumented actions
// and persists them through a Writer.
package screenshot

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/testflow/browser/driver"
	"github.com/BaSui01/testflow/browser/steplog"
	"github.com/BaSui01/testflow/internal/metrics"
)

// Trigger says why a screenshot is taken.
type Trigger string

const (
	TriggerSuccess Trigger = "success"
	TriggerFailure Trigger = "failure"
	TriggerManual  Trigger = "manual"
)

// ErrThrottled is returned when automatic captures exceed the configured rate.
var ErrThrottled = errors.New("screenshot throttled")

// ErrDisabled is returned when the trigger is not enabled.
var ErrDisabled = errors.New("screenshots disabled")

// Config gates automatic capture.
type Config struct {
	Enabled      bool
	OnSuccess    bool
	OnFailure    bool
	MaxPerSecond float64
	Burst        int
}

// DefaultConfig captures on failure only, at most two per second.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		OnSuccess:    false,
		OnFailure:    true,
		MaxPerSecond: 2,
		Burst:        4,
	}
}

// Pipeline takes a screenshot from the driver, decodes it, writes it and
// attaches the resulting file to the current step.
type Pipeline struct {
	source  driver.Screenshotter
	writer  Writer
	config  Config
	limiter *rate.Limiter
	steps   steplog.Logger
	metrics *metrics.Collector
	logger  *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStepLogger attaches saved files to steps.
func WithStepLogger(l steplog.Logger) Option {
	return func(p *Pipeline) { p.steps = l }
}

// WithMetrics records capture outcomes.
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Pipeline) { p.metrics = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline creates a pipeline. Success captures share one token bucket;
// MaxPerSecond <= 0 disables throttling.
func NewPipeline(source driver.Screenshotter, writer Writer, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		source: source,
		writer: writer,
		config: cfg,
		steps:  steplog.Nop{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("component", "screenshots"))

	if cfg.MaxPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.MaxPerSecond), burst)
	}
	return p
}

// Config returns the gating configuration.
func (p *Pipeline) Config() Config { return p.config }

// ShouldCapture reports whether the trigger is enabled.
func (p *Pipeline) ShouldCapture(trigger Trigger) bool {
	switch trigger {
	case TriggerManual:
		return true
	case TriggerSuccess:
		return p.config.Enabled && p.config.OnSuccess
	case TriggerFailure:
		return p.config.Enabled && p.config.OnFailure
	default:
		return false
	}
}

// Capture takes one screenshot. Manual captures ignore gating; only success
// captures are throttled, so every failing step keeps its diagnostic image.
func (p *Pipeline) Capture(ctx context.Context, trigger Trigger, hint string) (string, error) {
	if !p.ShouldCapture(trigger) {
		return "", ErrDisabled
	}
	if trigger == TriggerSuccess && p.limiter != nil && !p.limiter.Allow() {
		p.metrics.RecordScreenshot(string(trigger), "throttled")
		p.logger.Debug("screenshot throttled", zap.String("trigger", string(trigger)))
		return "", ErrThrottled
	}

	path, err := p.capture(ctx, hint)
	if err != nil {
		p.metrics.RecordScreenshot(string(trigger), "failed")
		return "", err
	}

	p.metrics.RecordScreenshot(string(trigger), "saved")
	p.steps.File(ctx, path, steplog.LogTypeScreenshot)
	p.logger.Debug("screenshot saved",
		zap.String("trigger", string(trigger)),
		zap.String("path", path),
	)
	return path, nil
}

func (p *Pipeline) capture(ctx context.Context, hint string) (string, error) {
	encoded, err := p.source.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to take screenshot: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode screenshot: %w", err)
	}
	path, err := p.writer.Write(ctx, data, hint)
	if err != nil {
		return "", err
	}
	return path, nil
}
