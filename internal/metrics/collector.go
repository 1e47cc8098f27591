// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。所有 Record 方法对 nil 接收者安全。
type Collector struct {
	// 动作指标
	actionsTotal   *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	nestedActions  *prometheus.CounterVec
	stepsOpen      prometheus.Gauge

	// 截图指标
	screenshotsTotal *prometheus.CounterVec

	// 断点指标
	breakpointSuspensions *prometheus.CounterVec
	breakpointWait        *prometheus.HistogramVec

	// 会话指标
	sessionsActive prometheus.Gauge

	// devtool 指标
	devtoolMessages *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 在默认注册表上创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegistry 在指定注册表上创建指标收集器
func NewCollectorWithRegistry(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.actionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Total number of top-level instrumented actions",
		},
		[]string{"action", "outcome"},
	)

	c.actionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Duration of top-level instrumented actions in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"action"},
	)

	c.nestedActions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nested_actions_total",
			Help:      "Total number of actions executed inside an open step",
		},
		[]string{"action"},
	)

	c.stepsOpen = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "steps_open",
			Help:      "Number of steps currently open",
		},
	)

	c.screenshotsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "screenshots_total",
			Help:      "Total number of screenshot attempts",
		},
		[]string{"trigger", "status"},
	)

	c.breakpointSuspensions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breakpoint_suspensions_total",
			Help:      "Total number of breakpoint suspensions",
		},
		[]string{"phase"},
	)

	c.breakpointWait = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "breakpoint_wait_seconds",
			Help:      "Time spent suspended at breakpoints in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		},
		[]string{"phase"},
	)

	c.sessionsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of open browser sessions",
		},
	)

	c.devtoolMessages = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "devtool_messages_total",
			Help:      "Total number of devtool channel messages",
		},
		[]string{"direction", "type"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 动作指标记录
// =============================================================================

// RecordAction 记录一次顶层动作
func (c *Collector) RecordAction(action, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.actionsTotal.WithLabelValues(action, outcome).Inc()
	c.actionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordNestedAction 记录一次嵌套动作
func (c *Collector) RecordNestedAction(action string) {
	if c == nil {
		return
	}
	c.nestedActions.WithLabelValues(action).Inc()
}

// StepOpened 步骤打开
func (c *Collector) StepOpened() {
	if c == nil {
		return
	}
	c.stepsOpen.Inc()
}

// StepClosed 步骤关闭
func (c *Collector) StepClosed() {
	if c == nil {
		return
	}
	c.stepsOpen.Dec()
}

// =============================================================================
// 📸 截图指标记录
// =============================================================================

// RecordScreenshot 记录截图尝试，status: saved, failed, throttled
func (c *Collector) RecordScreenshot(trigger, status string) {
	if c == nil {
		return
	}
	c.screenshotsTotal.WithLabelValues(trigger, status).Inc()
}

// =============================================================================
// ⏸️ 断点指标记录
// =============================================================================

// RecordBreakpoint 记录一次断点挂起及其等待时长
func (c *Collector) RecordBreakpoint(phase string, waited time.Duration) {
	if c == nil {
		return
	}
	c.breakpointSuspensions.WithLabelValues(phase).Inc()
	c.breakpointWait.WithLabelValues(phase).Observe(waited.Seconds())
}

// =============================================================================
// 🌐 会话与 devtool 指标记录
// =============================================================================

// SessionStarted 会话打开
func (c *Collector) SessionStarted() {
	if c == nil {
		return
	}
	c.sessionsActive.Inc()
}

// SessionEnded 会话关闭
func (c *Collector) SessionEnded() {
	if c == nil {
		return
	}
	c.sessionsActive.Dec()
}

// RecordDevtoolMessage 记录 devtool 消息，direction: in, out
func (c *Collector) RecordDevtoolMessage(direction, msgType string) {
	if c == nil {
		return
	}
	c.devtoolMessages.WithLabelValues(direction, msgType).Inc()
}
