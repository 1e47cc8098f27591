package browser

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/testflow/browser/driver"
	"github.com/BaSui01/testflow/browser/instrument"
	"github.com/BaSui01/testflow/browser/poll"
	"github.com/BaSui01/testflow/browser/screenshot"
	"github.com/BaSui01/testflow/browser/selector"
	"github.com/BaSui01/testflow/browser/steplog"
	"github.com/BaSui01/testflow/browser/tabs"
	"github.com/BaSui01/testflow/internal/metrics"
	"github.com/BaSui01/testflow/types"
)

// Void is the result type of actions that return nothing.
type Void = struct{}

// SessionConfig 会话级超时配置
type SessionConfig struct {
	// DefaultTimeout 元素操作隐式等待可见的时长
	DefaultTimeout time.Duration `yaml:"default_timeout" json:"default_timeout"`
	// PageLoadTimeout OpenPage 未指定超时时使用
	PageLoadTimeout time.Duration `yaml:"page_load_timeout" json:"page_load_timeout"`
	// PollTick 轮询间隔
	PollTick time.Duration `yaml:"poll_tick" json:"poll_tick"`
}

// DefaultSessionConfig 返回默认会话配置
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		DefaultTimeout:  10 * time.Second,
		PageLoadTimeout: 30 * time.Second,
		PollTick:        poll.DefaultTick,
	}
}

// Highlighter 接收尽力而为的元素高亮请求（devtool 通道）
type Highlighter interface {
	Highlight(ctx context.Context, sessionID, selector string) error
}

// Session 单个浏览器会话
type Session struct {
	id      string
	driver  driver.Driver
	engine  *instrument.Engine
	tracker *tabs.Tracker
	shots   *screenshot.Pipeline
	devtool Highlighter
	poller  *poll.Poller
	config  SessionConfig
	metrics *metrics.Collector
	now     func() time.Time
	logger  *zap.Logger

	engineOpts []instrument.Option
	ended      atomic.Bool
	closed     atomic.Bool

	acts actions
}

// SessionOption 会话选项
type SessionOption func(*Session)

// WithSessionID 指定会话 ID，默认生成 uuid
func WithSessionID(id string) SessionOption {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// WithScreenshots 启用截图管线
func WithScreenshots(p *screenshot.Pipeline) SessionOption {
	return func(s *Session) { s.shots = p }
}

// WithDevtool 启用元素高亮
func WithDevtool(h Highlighter) SessionOption {
	return func(s *Session) { s.devtool = h }
}

// WithMetrics 记录会话与动作指标
func WithMetrics(m *metrics.Collector) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// WithClock 注入时钟，同时驱动轮询与剩余预算计算
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) SessionOption {
	return func(s *Session) {
		if now != nil {
			s.now = now
			s.poller = poll.NewWithClock(now, sleep)
		}
	}
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEngineOptions 透传动作引擎选项（步骤日志、断点、追踪等）
func WithEngineOptions(opts ...instrument.Option) SessionOption {
	return func(s *Session) { s.engineOpts = append(s.engineOpts, opts...) }
}

// NewSession 创建会话并注册全部动作
func NewSession(d driver.Driver, config SessionConfig, opts ...SessionOption) (*Session, error) {
	if d == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "driver is required")
	}
	defaults := DefaultSessionConfig()
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = defaults.DefaultTimeout
	}
	if config.PageLoadTimeout <= 0 {
		config.PageLoadTimeout = defaults.PageLoadTimeout
	}
	if config.PollTick <= 0 {
		config.PollTick = defaults.PollTick
	}

	s := &Session{
		id:     uuid.NewString(),
		driver: d,
		config: config,
		poller: poll.New(),
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "session"), zap.String("session_id", s.id))
	s.tracker = tabs.NewTracker(d, s.logger)

	engineOpts := []instrument.Option{
		instrument.WithSessionID(s.id),
		instrument.WithMetrics(s.metrics),
		instrument.WithClock(s.now),
		instrument.WithLogger(s.logger),
	}
	if s.shots != nil {
		engineOpts = append(engineOpts, instrument.WithCapturer(s.shots))
	}
	s.engine = instrument.NewEngine(append(engineOpts, s.engineOpts...)...)

	if err := s.register(); err != nil {
		return nil, fmt.Errorf("failed to register session actions: %w", err)
	}
	s.metrics.SessionStarted()
	s.logger.Info("session opened", zap.String("driver_session", d.SessionID()))
	return s, nil
}

// ID 返回会话 ID
func (s *Session) ID() string { return s.id }

// Engine 返回动作引擎
func (s *Session) Engine() *instrument.Engine { return s.engine }

// Driver 返回底层驱动
func (s *Session) Driver() driver.Driver { return s.driver }

// Tabs 返回主标签页跟踪器
func (s *Session) Tabs() *tabs.Tracker { return s.tracker }

// Ended 报告会话是否因最后一个标签页关闭而结束
func (s *Session) Ended() bool { return s.ended.Load() }

// Close 关闭底层驱动
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.metrics.SessionEnded()
	s.logger.Info("session closed")
	return s.driver.Close()
}

// alive rejects operations on a session whose last tab was closed.
func (s *Session) alive() error {
	if s.ended.Load() {
		return types.NewError(types.ErrSessionEnded, fmt.Sprintf("session %s has no open tabs", s.id))
	}
	return nil
}

// highlight 尽力而为地通知 devtool 高亮元素
func (s *Session) highlight(ctx context.Context, sel string) {
	if s.devtool == nil {
		return
	}
	if err := s.devtool.Highlight(ctx, s.id, sel); err != nil {
		s.logger.Debug("highlight failed", zap.String("selector", sel), zap.Error(err))
	}
}

// prepare waits (nested) for the element to be visible and highlights it.
func (s *Session) prepare(ctx context.Context, loc selector.Locator) (string, error) {
	if err := s.alive(); err != nil {
		return "", err
	}
	if _, err := s.acts.waitForVisible(ctx, loc, s.config.DefaultTimeout).Wait(); err != nil {
		return "", err
	}
	sel := selector.Normalize(loc, false)
	s.highlight(ctx, sel)
	return sel, nil
}

// pollVisible 可见性谓词，驱动错误交给轮询策略处理
func (s *Session) pollVisible(sel string) poll.Predicate {
	return func(ctx context.Context) (bool, error) {
		return s.driver.IsVisible(ctx, sel)
	}
}

// =============================================================================
// 参数提取
// =============================================================================

func argLocator(args []any, i int) selector.Locator {
	if i >= len(args) || args[i] == nil {
		return nil
	}
	switch v := args[i].(type) {
	case selector.Locator:
		return v
	case string:
		return selector.CSS(v)
	default:
		panic(fmt.Sprintf("argument %d: expected locator, got %T", i, args[i]))
	}
}

func argString(args []any, i int) string {
	if i >= len(args) || args[i] == nil {
		return ""
	}
	return args[i].(string)
}

func argDuration(args []any, i int) time.Duration {
	if i >= len(args) || args[i] == nil {
		return 0
	}
	return args[i].(time.Duration)
}

func argRest(args []any, i int) []any {
	if i >= len(args) {
		return nil
	}
	if rest, ok := args[i].([]any); ok {
		return rest
	}
	return args[i:]
}

// =============================================================================
// 步骤消息
// =============================================================================

func describe(args []any, i int) string {
	return selector.Describe(argLocator(args, i))
}

func withLoc(verb string) func([]any) string {
	return func(args []any) string {
		return fmt.Sprintf("%s %s", verb, describe(args, 0))
	}
}

// StepLoggers fans step events out to every given sink.
func StepLoggers(loggers ...steplog.Logger) instrument.Option {
	return instrument.WithStepLogger(steplog.Multi(loggers...))
}
