package screenshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/testflow/browser/steplog"
	"github.com/BaSui01/testflow/internal/metrics"
	"github.com/BaSui01/testflow/testutil/mocks"
)

func newTestPipeline(t *testing.T, cfg Config, opts ...Option) (*Pipeline, *mocks.MockDriver, *FileWriter) {
	t.Helper()
	d := mocks.NewMockDriver()
	w, err := NewFileWriter(t.TempDir())
	require.NoError(t, err)
	return NewPipeline(d, w, cfg, opts...), d, w
}

func TestShouldCapture(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		trigger Trigger
		want    bool
	}{
		{"manual always", Config{}, TriggerManual, true},
		{"disabled globally", Config{Enabled: false, OnFailure: true}, TriggerFailure, false},
		{"failure on", Config{Enabled: true, OnFailure: true}, TriggerFailure, true},
		{"success off", Config{Enabled: true, OnFailure: true}, TriggerSuccess, false},
		{"success on", Config{Enabled: true, OnSuccess: true}, TriggerSuccess, true},
		{"unknown", Config{Enabled: true, OnSuccess: true, OnFailure: true}, Trigger("other"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(nil, nil, tt.cfg)
			assert.Equal(t, tt.want, p.ShouldCapture(tt.trigger))
		})
	}
}

func TestCapture_WritesFileAndAttachesToStep(t *testing.T) {
	rec := steplog.NewRecorder()
	p, d, w := newTestPipeline(t, DefaultConfig(), WithStepLogger(rec))

	path, err := p.Capture(context.Background(), TriggerFailure, "Click on #login")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(path, w.BasePath()))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "click-on-login-"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG mock"), data)

	assert.Equal(t, []string{path}, rec.Files())
	assert.Equal(t, 1, d.CallCount("Screenshot"))
}

func TestCapture_DisabledTrigger(t *testing.T) {
	p, d, _ := newTestPipeline(t, Config{Enabled: true, OnFailure: true})

	_, err := p.Capture(context.Background(), TriggerSuccess, "x")
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Zero(t, d.CallCount("Screenshot"))
}

func TestCapture_DriverAndDecodeErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCollectorWithRegistry("shots", reg, nil)
	p, d, _ := newTestPipeline(t, DefaultConfig(), WithMetrics(m))

	d.WithError("Screenshot", errors.New("target crashed"))
	_, err := p.Capture(context.Background(), TriggerFailure, "x")
	assert.ErrorContains(t, err, "target crashed")

	d.WithError("Screenshot", nil)
	d.ScreenshotFn = func(context.Context) (string, error) { return "%%%not-base64", nil }
	_, err = p.Capture(context.Background(), TriggerFailure, "x")
	assert.ErrorContains(t, err, "decode")
}

func TestCapture_ThrottlesSuccessOnly(t *testing.T) {
	cfg := Config{Enabled: true, OnSuccess: true, OnFailure: true, MaxPerSecond: 0.001, Burst: 1}
	p, d, _ := newTestPipeline(t, cfg)
	ctx := context.Background()

	_, err := p.Capture(ctx, TriggerSuccess, "first")
	require.NoError(t, err)

	_, err = p.Capture(ctx, TriggerSuccess, "second")
	assert.ErrorIs(t, err, ErrThrottled)

	_, err = p.Capture(ctx, TriggerManual, "manual")
	assert.NoError(t, err)
	assert.Equal(t, 2, d.CallCount("Screenshot"))
}

func TestCapture_FailureBypassesThrottle(t *testing.T) {
	cfg := Config{Enabled: true, OnSuccess: true, OnFailure: true, MaxPerSecond: 0.001, Burst: 1}
	rec := steplog.NewRecorder()
	p, d, _ := newTestPipeline(t, cfg, WithStepLogger(rec))
	ctx := context.Background()

	_, err := p.Capture(ctx, TriggerSuccess, "drains the bucket")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = p.Capture(ctx, TriggerFailure, "failing step")
		require.NoError(t, err)
	}
	assert.Equal(t, 4, d.CallCount("Screenshot"))
	assert.Len(t, rec.Files(), 4)
}

func TestFileWriter(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "shots")
	w, err := NewFileWriter(base)
	require.NoError(t, err)
	w.now = func() time.Time { return time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC) }

	path, err := w.Write(context.Background(), []byte("png"), "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "2024-03-09"), filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "screenshot-"))

	_, err = w.Write(context.Background(), nil, "x")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.Write(ctx, []byte("png"), "x")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = NewFileWriter("")
	assert.Error(t, err)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "click-on-login", slug("  Click on #login "))
	assert.Equal(t, "screenshot", slug("###"))
	assert.Equal(t, "a_b-c", slug("a_b/c"))
	assert.Equal(t, "wait-for", slug("wait for ✓"))
	assert.LessOrEqual(t, len(slug(strings.Repeat("a", 200))), 60)
}
