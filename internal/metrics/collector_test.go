package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.actionsTotal)
	assert.NotNil(t, collector.actionDuration)
	assert.NotNil(t, collector.stepsOpen)
	assert.NotNil(t, collector.screenshotsTotal)
	assert.NotNil(t, collector.breakpointSuspensions)
}

func TestCollector_RecordAction(t *testing.T) {
	collector := NewCollectorWithRegistry("tf", prometheus.NewRegistry(), nil)

	collector.RecordAction("click", "passed", 100*time.Millisecond)
	collector.RecordAction("click", "passed", 50*time.Millisecond)
	collector.RecordAction("click", "failed", 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.actionsTotal.WithLabelValues("click", "passed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.actionsTotal.WithLabelValues("click", "failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.actionDuration))

	collector.RecordNestedAction("waitForExist")
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.nestedActions.WithLabelValues("waitForExist")))
}

func TestCollector_StepsOpenGauge(t *testing.T) {
	collector := NewCollectorWithRegistry("tf", prometheus.NewRegistry(), zap.NewNop())

	collector.StepOpened()
	collector.StepOpened()
	collector.StepClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.stepsOpen))

	collector.StepClosed()
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.stepsOpen))
}

func TestCollector_ScreenshotsAndBreakpoints(t *testing.T) {
	collector := NewCollectorWithRegistry("tf", prometheus.NewRegistry(), zap.NewNop())

	collector.RecordScreenshot("failure", "saved")
	collector.RecordScreenshot("success", "throttled")
	collector.RecordBreakpoint("before", 2*time.Second)
	collector.RecordDevtoolMessage("out", "highlight")
	collector.SessionStarted()

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.screenshotsTotal.WithLabelValues("failure", "saved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.screenshotsTotal.WithLabelValues("success", "throttled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.breakpointSuspensions.WithLabelValues("before")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.devtoolMessages.WithLabelValues("out", "highlight")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.sessionsActive))

	collector.SessionEnded()
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.sessionsActive))
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordAction("a", "passed", time.Second)
		c.RecordNestedAction("a")
		c.StepOpened()
		c.StepClosed()
		c.RecordScreenshot("manual", "saved")
		c.RecordBreakpoint("after", time.Second)
		c.SessionStarted()
		c.SessionEnded()
		c.RecordDevtoolMessage("in", "release")
	})
}

func TestCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollectorWithRegistry("dup", reg, nil)
	assert.Panics(t, func() {
		NewCollectorWithRegistry("dup", reg, nil)
	})
}
