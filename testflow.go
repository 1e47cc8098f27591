// Package testflow assembles instrumented browser sessions from a loaded
// configuration.
//
// Usage:
//
//	cfg, _ := config.NewLoader().WithConfigPath("testflow.yaml").Load()
//	rt, err := testflow.New(ctx, cfg, testflow.WithLogger(logger))
//	defer rt.Close(context.Background())
//
//	s, _ := rt.Session(ctx, "checkout")
//	_, err = s.OpenPage(ctx, "https://example.com", 0).Wait()
//
// A Runtime owns the process-wide pieces (step sinks, metrics registry,
// tracer, breakpoint controller, devtool connection) and hands every session
// the same wiring.
package testflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/testflow/browser"
	"github.com/BaSui01/testflow/browser/breakpoint"
	"github.com/BaSui01/testflow/browser/devtool"
	"github.com/BaSui01/testflow/browser/driver"
	"github.com/BaSui01/testflow/browser/instrument"
	"github.com/BaSui01/testflow/browser/screenshot"
	"github.com/BaSui01/testflow/browser/steplog"
	"github.com/BaSui01/testflow/config"
	"github.com/BaSui01/testflow/internal/cache"
	"github.com/BaSui01/testflow/internal/database"
	"github.com/BaSui01/testflow/internal/metrics"
	"github.com/BaSui01/testflow/internal/telemetry"
)

// Option configures New.
type Option func(*options)

type options struct {
	logger      *zap.Logger
	factory     browser.DriverFactory
	registry    *prometheus.Registry
	breakpoints *breakpoint.Controller
	exporter    sdktrace.SpanExporter
}

// WithLogger sets the root logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDriverFactory replaces the chromedp factory, e.g. with a mock driver.
func WithDriverFactory(f browser.DriverFactory) Option {
	return func(o *options) { o.factory = f }
}

// WithRegistry registers collectors on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithBreakpointController uses c instead of breakpoint.Default().
func WithBreakpointController(c *breakpoint.Controller) Option {
	return func(o *options) { o.breakpoints = c }
}

// WithSpanExporter sends action spans to exporter synchronously, bypassing
// the OTLP settings of the telemetry section.
func WithSpanExporter(exporter sdktrace.SpanExporter) Option {
	return func(o *options) { o.exporter = exporter }
}

// Runtime 持有所有会话共享的组件
type Runtime struct {
	config      *config.Config
	logger      *zap.Logger
	registry    *prometheus.Registry
	metrics     *metrics.Collector
	telemetry   *telemetry.Providers
	breakpoints *breakpoint.Controller
	devtool     *devtool.Client
	cache       *cache.Manager
	db          *database.PoolManager
	history     *steplog.HistorySink
	events      *steplog.RedisSink
	steps       steplog.Logger
	manager     *browser.Manager
}

// New builds a runtime. Redis and database sinks are required once enabled;
// an unreachable devtool panel is logged and skipped.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (rt *Runtime, err error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}
	if o.breakpoints == nil {
		o.breakpoints = breakpoint.Default()
	}

	rt = &Runtime{
		config:      cfg,
		logger:      o.logger,
		registry:    o.registry,
		breakpoints: o.breakpoints,
	}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
			rt = nil
		}
	}()

	if cfg.Metrics.Enabled {
		rt.metrics = metrics.NewCollectorWithRegistry(cfg.Metrics.Namespace, rt.registry, rt.logger)
	}

	if o.exporter != nil {
		rt.telemetry, err = telemetry.InitWithExporter(cfg.Telemetry, o.exporter, rt.logger)
	} else {
		rt.telemetry, err = telemetry.Init(cfg.Telemetry, rt.logger)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to init telemetry: %w", err)
	}

	rt.ApplyBreakpoints(cfg.Breakpoints)

	sinks := []steplog.Logger{steplog.NewZapLogger(rt.logger)}

	if cfg.Redis.Enabled {
		rt.cache, err = cache.NewManager(cache.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			StreamMaxLen: cfg.Redis.StreamMaxLen,
			TLS:          cfg.Redis.TLS,
			DefaultTTL:   cache.DefaultConfig().DefaultTTL,
		}, rt.logger)
		if err != nil {
			return nil, err
		}
		rt.events = steplog.NewRedisSink(rt.cache, cfg.Redis.StreamPrefix, rt.logger)
		sinks = append(sinks, rt.events)
	}

	if cfg.Database.Enabled {
		rt.db, err = database.Open(cfg.Database.Driver, cfg.Database.DSN(), database.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}, rt.logger)
		if err != nil {
			return nil, err
		}
		rt.history, err = steplog.NewHistorySink(rt.db, rt.logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, rt.history)
	}

	if cfg.Devtool.URL != "" {
		client, dialErr := devtool.Dial(ctx, cfg.Devtool.URL, cfg.Devtool.HandshakeTimeout,
			devtool.WithBreakpoints(rt.breakpoints),
			devtool.WithMetrics(rt.metrics),
			devtool.WithLogger(rt.logger),
			devtool.WithWriteTimeout(cfg.Devtool.WriteTimeout),
		)
		if dialErr != nil {
			rt.logger.Warn("devtool unavailable, continuing without it",
				zap.String("url", cfg.Devtool.URL), zap.Error(dialErr))
		} else {
			rt.devtool = client
			sinks = append(sinks, client)
		}
	}
	rt.steps = steplog.Multi(sinks...)

	factory := o.factory
	if factory == nil {
		factory = browser.NewChromeDPFactory(DriverConfig(cfg.Browser), rt.logger)
	}
	rt.manager = browser.NewManager(factory, SessionConfig(cfg.Browser), rt.sessionOptions, rt.logger)

	rt.logger.Info("testflow runtime ready",
		zap.Bool("metrics", rt.metrics != nil),
		zap.Bool("telemetry", rt.telemetry.Enabled()),
		zap.Bool("redis", rt.cache != nil),
		zap.Bool("database", rt.db != nil),
		zap.Bool("devtool", rt.devtool != nil),
		zap.Bool("screenshots", cfg.Screenshots.Enabled),
	)
	return rt, nil
}

// sessionOptions wires one session to the shared sinks. The screenshot
// pipeline is bound to the session's own driver.
func (rt *Runtime) sessionOptions(id string, d driver.Driver) ([]browser.SessionOption, error) {
	writer, err := screenshot.NewFileWriter(rt.config.Screenshots.Path)
	if err != nil {
		return nil, err
	}
	pipeline := screenshot.NewPipeline(d, writer, ScreenshotConfig(rt.config.Screenshots),
		screenshot.WithStepLogger(rt.steps),
		screenshot.WithMetrics(rt.metrics),
		screenshot.WithLogger(rt.logger),
	)

	engineOpts := []instrument.Option{
		instrument.WithStepLogger(rt.steps),
		instrument.WithBreakpoints(rt.breakpoints),
		instrument.WithTracer(rt.telemetry.Tracer()),
	}
	opts := []browser.SessionOption{
		browser.WithScreenshots(pipeline),
		browser.WithMetrics(rt.metrics),
	}
	if rt.devtool != nil {
		engineOpts = append(engineOpts, instrument.WithSuspendObserver(rt.devtool.NotifySuspended))
		opts = append(opts, browser.WithDevtool(rt.devtool))
	}
	return append(opts, browser.WithEngineOptions(engineOpts...)), nil
}

// Session returns the session with the given id, launching a browser for it
// on first use.
func (rt *Runtime) Session(ctx context.Context, id string) (*browser.Session, error) {
	return rt.manager.GetOrCreate(ctx, id)
}

// Sessions returns the session manager.
func (rt *Runtime) Sessions() *browser.Manager { return rt.manager }

// Breakpoints returns the controller shared by all sessions.
func (rt *Runtime) Breakpoints() *breakpoint.Controller { return rt.breakpoints }

// ApplyBreakpoints switches both breakpoint phases to the configured values.
func (rt *Runtime) ApplyBreakpoints(c config.BreakpointConfig) {
	if rt.breakpoints.Enabled(breakpoint.PhaseBefore) != c.Before {
		rt.breakpoints.SetBefore(c.Before)
	}
	if rt.breakpoints.Enabled(breakpoint.PhaseAfter) != c.After {
		rt.breakpoints.SetAfter(c.After)
	}
}

// WatchConfig starts a reloader that applies breakpoint changes from path
// while the runtime is running. The caller stops it.
func (rt *Runtime) WatchConfig(ctx context.Context, path string, opts ...config.ReloaderOption) (*config.Reloader, error) {
	r, err := config.NewReloader(nil, path, rt.config,
		append([]config.ReloaderOption{config.WithReloaderLogger(rt.logger)}, opts...)...)
	if err != nil {
		return nil, err
	}
	r.OnReload(func(_, next *config.Config) {
		rt.ApplyBreakpoints(next.Breakpoints)
	})
	if err := r.Start(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Gatherer exposes the metrics registry.
func (rt *Runtime) Gatherer() prometheus.Gatherer { return rt.registry }

// History returns the step history sink, nil unless the database is enabled.
func (rt *Runtime) History() *steplog.HistorySink { return rt.history }

// Events returns the redis step stream sink, nil unless redis is enabled.
func (rt *Runtime) Events() *steplog.RedisSink { return rt.events }

// Close closes every session and then the shared connections.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.manager != nil {
		if err := rt.manager.CloseAll(); err != nil {
			errs = append(errs, fmt.Errorf("close sessions: %w", err))
		}
	}
	if rt.devtool != nil {
		if err := rt.devtool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close devtool: %w", err))
		}
	}
	if rt.cache != nil {
		if err := rt.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if err := rt.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// =============================================================================
// 配置转换
// =============================================================================

// DriverConfig maps the browser section onto the chromedp driver config.
func DriverConfig(c config.BrowserConfig) driver.Config {
	return driver.Config{
		Headless:       c.Headless,
		ViewportWidth:  c.ViewportWidth,
		ViewportHeight: c.ViewportHeight,
		UserAgent:      c.UserAgent,
		ProxyURL:       c.ProxyURL,
		StartTimeout:   c.StartTimeout,
	}
}

// SessionConfig maps the browser section onto session timeouts.
func SessionConfig(c config.BrowserConfig) browser.SessionConfig {
	return browser.SessionConfig{
		DefaultTimeout:  c.DefaultTimeout,
		PageLoadTimeout: c.PageLoadTimeout,
		PollTick:        c.PollTick,
	}
}

// ScreenshotConfig maps the screenshots section onto the capture pipeline.
func ScreenshotConfig(c config.ScreenshotConfig) screenshot.Config {
	return screenshot.Config{
		Enabled:      c.Enabled,
		OnSuccess:    c.OnSuccess,
		OnFailure:    c.OnFailure,
		MaxPerSecond: c.MaxPerSecond,
		Burst:        c.Burst,
	}
}
