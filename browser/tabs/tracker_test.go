package tabs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/testflow/testutil/mocks"
)

func TestMainTabID_LazyInitQueriesOnce(t *testing.T) {
	ctx := context.Background()
	d := mocks.NewMockDriver().WithTabs("A", "A")
	tr := NewTracker(d, nil)

	assert.False(t, tr.Initialized())

	id, err := tr.MainTabID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", id)

	id, err = tr.MainTabID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", id)
	assert.Equal(t, 1, d.CallCount("CurrentTab"))
	assert.True(t, tr.Initialized())
}

func TestMainTabID_ConcurrentCallersShareQuery(t *testing.T) {
	d := mocks.NewMockDriver().WithTabs("A", "A", "B")
	tr := NewTracker(d, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := tr.MainTabID(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "A", id)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, d.CallCount("CurrentTab"))
}

func TestMainTabID_DriverError(t *testing.T) {
	d := mocks.NewMockDriver().WithError("CurrentTab", errors.New("disconnected"))
	tr := NewTracker(d, nil)

	_, err := tr.MainTabID(context.Background())
	assert.ErrorContains(t, err, "disconnected")
	assert.False(t, tr.Initialized())
}

func TestCloseCurrentTab_OnlyMainTabReinitializesAfterwards(t *testing.T) {
	ctx := context.Background()
	d := mocks.NewMockDriver().WithTabs("A", "A")
	tr := NewTracker(d, nil)

	remaining, err := tr.CloseCurrentTab(ctx)
	require.NoError(t, err)
	assert.False(t, remaining)
	assert.False(t, tr.Initialized())

	// A new window appears; the tracker must pick it up instead of the closed id.
	d.WithTabs("B", "B")
	id, err := tr.MainTabID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "B", id)
	assert.NotEqual(t, "A", id)
}

func TestCloseCurrentTab_NonMainSwitchesBackToMain(t *testing.T) {
	ctx := context.Background()
	d := mocks.NewMockDriver().WithTabs("A", "A")
	tr := NewTracker(d, nil)

	_, err := tr.MainTabID(ctx)
	require.NoError(t, err)

	d.OpenTab("B")
	require.NoError(t, tr.SwitchTo(ctx, "B"))

	remaining, err := tr.CloseCurrentTab(ctx)
	require.NoError(t, err)
	assert.True(t, remaining)

	current, err := d.CurrentTab(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", current)

	main, err := tr.MainTabID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", main)
}

func TestCloseCurrentTab_MainPromotesFirstRemaining(t *testing.T) {
	ctx := context.Background()
	d := mocks.NewMockDriver().WithTabs("A", "A", "B", "C")
	tr := NewTracker(d, nil)

	remaining, err := tr.CloseCurrentTab(ctx)
	require.NoError(t, err)
	assert.True(t, remaining)

	main, err := tr.MainTabID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "B", main)

	current, err := d.CurrentTab(ctx)
	require.NoError(t, err)
	assert.Equal(t, "B", current)
}

func TestCloseTab(t *testing.T) {
	ctx := context.Background()

	t.Run("only tab resets before closing", func(t *testing.T) {
		d := mocks.NewMockDriver().WithTabs("A", "A")
		tr := NewTracker(d, nil)
		_, err := tr.MainTabID(ctx)
		require.NoError(t, err)

		require.NoError(t, tr.CloseTab(ctx, "A"))
		assert.False(t, tr.Initialized())
	})

	t.Run("main with siblings promotes first sibling", func(t *testing.T) {
		d := mocks.NewMockDriver().WithTabs("A", "A", "B")
		tr := NewTracker(d, nil)
		_, err := tr.MainTabID(ctx)
		require.NoError(t, err)

		require.NoError(t, tr.CloseTab(ctx, "A"))
		main, err := tr.MainTabID(ctx)
		require.NoError(t, err)
		assert.Equal(t, "B", main)
	})

	t.Run("non-main leaves main untouched", func(t *testing.T) {
		d := mocks.NewMockDriver().WithTabs("A", "A", "B")
		tr := NewTracker(d, nil)
		_, err := tr.MainTabID(ctx)
		require.NoError(t, err)

		require.NoError(t, tr.CloseTab(ctx, "B"))
		main, err := tr.MainTabID(ctx)
		require.NoError(t, err)
		assert.Equal(t, "A", main)
	})

	t.Run("failed close keeps main", func(t *testing.T) {
		d := mocks.NewMockDriver().WithTabs("A", "A", "B")
		tr := NewTracker(d, nil)
		_, err := tr.MainTabID(ctx)
		require.NoError(t, err)

		d.WithError("CloseTab", errors.New("driver down"))
		assert.EqualError(t, tr.CloseTab(ctx, "A"), "driver down")
		main, err := tr.MainTabID(ctx)
		require.NoError(t, err)
		assert.Equal(t, "A", main)
		assert.Equal(t, 1, d.CallCount("CurrentTab"), "main is still cached")
	})

	t.Run("driver error propagates", func(t *testing.T) {
		d := mocks.NewMockDriver().WithError("Tabs", errors.New("gone"))
		tr := NewTracker(d, nil)
		assert.Error(t, tr.CloseTab(ctx, "A"))
	})
}

func TestSwitchToMainSibling(t *testing.T) {
	ctx := context.Background()

	t.Run("main still open", func(t *testing.T) {
		d := mocks.NewMockDriver().WithTabs("A", "A", "B")
		tr := NewTracker(d, nil)
		_, err := tr.MainTabID(ctx)
		require.NoError(t, err)
		require.NoError(t, tr.SwitchTo(ctx, "B"))

		ok, err := tr.SwitchToMainSibling(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		current, _ := d.CurrentTab(ctx)
		assert.Equal(t, "A", current)
	})

	t.Run("main gone promotes first", func(t *testing.T) {
		d := mocks.NewMockDriver().WithTabs("A", "A", "B", "C")
		tr := NewTracker(d, nil)
		_, err := tr.MainTabID(ctx)
		require.NoError(t, err)
		require.NoError(t, d.CloseTab(ctx, "A"))

		ok, err := tr.SwitchToMainSibling(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		main, _ := tr.MainTabID(ctx)
		assert.Equal(t, "B", main)
	})

	t.Run("no tabs", func(t *testing.T) {
		d := mocks.NewMockDriver().WithTabs("")
		tr := NewTracker(d, nil)

		ok, err := tr.SwitchToMainSibling(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, tr.Initialized())
	})
}

// After any closing operation the main id is either unset or an open tab.
func TestProperty_MainNeverReferencesClosedTab(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("main tab is unset or open after every operation", prop.ForAll(
		func(ops []int) bool {
			ctx := context.Background()
			d := mocks.NewMockDriver().WithTabs("t0", "t0")
			tr := NewTracker(d, nil)
			next := 1

			for _, op := range ops {
				switch op {
				case 0:
					d.OpenTab(fmt.Sprintf("t%d", next))
					next++
				case 1:
					if _, err := d.CurrentTab(ctx); err == nil {
						_, _ = tr.CloseCurrentTab(ctx)
					}
				case 2:
					ids, _ := d.Tabs(ctx)
					if len(ids) > 0 {
						_ = tr.CloseTab(ctx, ids[len(ids)-1])
					}
				case 3:
					_, _ = tr.SwitchToMainSibling(ctx)
				}

				main := tr.cached()
				ids, _ := d.Tabs(ctx)
				if main != "" && !slices.Contains(ids, main) {
					t.Logf("main %q not among open tabs %v", main, ids)
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}
