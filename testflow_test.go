package testflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/testflow/browser"
	"github.com/BaSui01/testflow/browser/breakpoint"
	"github.com/BaSui01/testflow/browser/driver"
	"github.com/BaSui01/testflow/browser/selector"
	"github.com/BaSui01/testflow/browser/steplog"
	"github.com/BaSui01/testflow/config"
	"github.com/BaSui01/testflow/testutil"
	"github.com/BaSui01/testflow/testutil/mocks"
	"github.com/BaSui01/testflow/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Browser.DefaultTimeout = 200 * time.Millisecond
	cfg.Browser.PageLoadTimeout = time.Second
	cfg.Browser.PollTick = 5 * time.Millisecond
	cfg.Screenshots.Path = t.TempDir()
	cfg.Metrics.Namespace = "tf"
	return cfg
}

func mockFactory(d *mocks.MockDriver) browser.DriverFactory {
	return browser.DriverFactoryFunc(func(context.Context) (driver.Driver, error) { return d, nil })
}

func TestNew_WiresEverySink(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Screenshots.Enabled = true
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()
	cfg.Database.Enabled = true
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = "file::memory:"
	cfg.Database.MaxOpenConns = 1
	cfg.Database.MaxIdleConns = 1
	cfg.Telemetry.SampleRate = 1

	d := mocks.NewMockDriver().WithElement("#go", mocks.Element{Visible: true})
	reg := prometheus.NewRegistry()
	exporter := tracetest.NewInMemoryExporter()

	rt, err := New(ctx, cfg,
		WithLogger(zaptest.NewLogger(t)),
		WithDriverFactory(mockFactory(d)),
		WithRegistry(reg),
		WithBreakpointController(breakpoint.NewController(nil)),
		WithSpanExporter(exporter),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	require.NotNil(t, rt.History())
	require.NotNil(t, rt.Events())

	s, err := rt.Session(ctx, "checkout")
	require.NoError(t, err)
	assert.Equal(t, "checkout", s.ID())

	_, err = s.Click(ctx, selector.CSS("#go")).Wait()
	require.NoError(t, err)

	_, err = s.WaitForVisible(ctx, selector.CSS("#missing"), 0).Wait()
	require.Error(t, err)
	testutil.AssertErrorCode(t, err, types.ErrTimeout)

	// history
	steps, err := rt.History().Steps(ctx, "checkout")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	byAction := map[string]steplog.StepRecord{}
	for _, st := range steps {
		byAction[st.Action] = st
	}
	assert.Equal(t, string(steplog.OutcomePassed), byAction["click"].Outcome)
	failed := byAction["waitForVisible"]
	assert.Equal(t, string(steplog.OutcomeFailed), failed.Outcome)

	files, err := rt.History().Files(ctx, failed.ID)
	require.NoError(t, err)
	require.Len(t, files, 1, "failure screenshot attached to the failing step")
	_, statErr := os.Stat(files[0].Path)
	assert.NoError(t, statErr)
	assert.Equal(t, cfg.Screenshots.Path, filepath.Dir(filepath.Dir(files[0].Path)))

	// redis
	assert.True(t, mr.Exists(rt.Events().StreamKey("checkout")))
	assert.True(t, mr.Exists(rt.Events().LatestKey("checkout")))
	latest, ok, err := rt.Events().Latest(ctx, "checkout")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "waitForVisible", latest.Action)
	assert.Equal(t, steplog.OutcomeFailed, latest.Outcome)
	count, err := rt.Events().Count(ctx, "checkout")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, int64(4))

	// spans
	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "click", spans[0].Name)

	// metrics
	n, err := promtestutil.GatherAndCount(reg, "tf_actions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = promtestutil.GatherAndCount(reg, "tf_sessions_active")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNew_MinimalConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = false

	d := mocks.NewMockDriver().WithElement("#title", mocks.Element{Visible: true, Text: "Hello"})
	rt, err := New(context.Background(), cfg,
		WithDriverFactory(mockFactory(d)),
		WithBreakpointController(breakpoint.NewController(nil)),
	)
	require.NoError(t, err)
	defer rt.Close(context.Background())

	assert.Nil(t, rt.History())
	assert.Nil(t, rt.Events())

	s, err := rt.Session(context.Background(), "s1")
	require.NoError(t, err)
	text, err := s.GetText(context.Background(), selector.CSS("#title")).Wait()
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)

	// Manual screenshots work even with automatic capture disabled.
	path, err := s.TakeScreenshot(context.Background(), "home").Wait()
	require.NoError(t, err)
	assert.FileExists(t, path)

	families, err := rt.Gatherer().Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}

func TestNew_Errors(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		_, err := New(context.Background(), nil)
		assert.Error(t, err)
	})

	t.Run("redis unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		cfg := testConfig(t)
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = addr
		_, err := New(context.Background(), cfg,
			WithDriverFactory(mockFactory(mocks.NewMockDriver())),
			WithBreakpointController(breakpoint.NewController(nil)),
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis")
	})

	t.Run("unsupported database", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Database.Enabled = true
		cfg.Database.Driver = "oracle"
		_, err := New(context.Background(), cfg,
			WithDriverFactory(mockFactory(mocks.NewMockDriver())),
			WithBreakpointController(breakpoint.NewController(nil)),
		)
		assert.Error(t, err)
	})
}

func TestNew_UnreachableDevtoolIsSkipped(t *testing.T) {
	cfg := testConfig(t)
	cfg.Devtool.URL = "ws://127.0.0.1:1/panel"
	cfg.Devtool.HandshakeTimeout = 500 * time.Millisecond

	rt, err := New(context.Background(), cfg,
		WithDriverFactory(mockFactory(mocks.NewMockDriver())),
		WithBreakpointController(breakpoint.NewController(nil)),
	)
	require.NoError(t, err)
	defer rt.Close(context.Background())
	assert.Nil(t, rt.devtool)
}

func TestRuntime_ApplyBreakpoints(t *testing.T) {
	cfg := testConfig(t)
	cfg.Breakpoints.Before = true

	ctrl := breakpoint.NewController(nil)
	rt, err := New(context.Background(), cfg,
		WithDriverFactory(mockFactory(mocks.NewMockDriver())),
		WithBreakpointController(ctrl),
	)
	require.NoError(t, err)
	defer rt.Close(context.Background())

	assert.Same(t, ctrl, rt.Breakpoints())
	assert.True(t, ctrl.Enabled(breakpoint.PhaseBefore))
	assert.False(t, ctrl.Enabled(breakpoint.PhaseAfter))

	rt.ApplyBreakpoints(config.BreakpointConfig{After: true})
	assert.False(t, ctrl.Enabled(breakpoint.PhaseBefore))
	assert.True(t, ctrl.Enabled(breakpoint.PhaseAfter))
}

func TestRuntime_WatchConfigTogglesBreakpoints(t *testing.T) {
	path := testutil.WriteConfig(t, "breakpoints:\n  after: false\n")

	cfg := testConfig(t)
	ctrl := breakpoint.NewController(nil)
	rt, err := New(context.Background(), cfg,
		WithDriverFactory(mockFactory(mocks.NewMockDriver())),
		WithBreakpointController(ctrl),
	)
	require.NoError(t, err)
	defer rt.Close(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r, err := rt.WatchConfig(ctx, path, config.WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)
	defer r.Stop()

	testutil.RewriteConfig(t, path, "breakpoints:\n  after: true\n")

	testutil.AssertEventuallyTrue(t, func() bool {
		return ctrl.Enabled(breakpoint.PhaseAfter)
	}, 2*time.Second)
}

func TestConfigConversions(t *testing.T) {
	b := config.DefaultBrowserConfig()
	b.UserAgent = "probe/1.0"

	dc := DriverConfig(b)
	assert.Equal(t, b.Headless, dc.Headless)
	assert.Equal(t, b.ViewportWidth, dc.ViewportWidth)
	assert.Equal(t, "probe/1.0", dc.UserAgent)
	assert.Equal(t, b.StartTimeout, dc.StartTimeout)

	sc := SessionConfig(b)
	assert.Equal(t, b.DefaultTimeout, sc.DefaultTimeout)
	assert.Equal(t, b.PageLoadTimeout, sc.PageLoadTimeout)
	assert.Equal(t, b.PollTick, sc.PollTick)

	shots := config.DefaultScreenshotConfig()
	shots.Enabled = true
	pc := ScreenshotConfig(shots)
	assert.True(t, pc.Enabled)
	assert.True(t, pc.OnFailure)
	assert.Equal(t, shots.MaxPerSecond, pc.MaxPerSecond)
	assert.Equal(t, shots.Burst, pc.Burst)
}
