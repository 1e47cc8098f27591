// Package tabs tracks the main tab of a browser session across open, close
// and switch operations.
package tabs

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/testflow/browser/driver"
)

// Tracker keeps the lazily initialized identity of the main tab.
// States: uninitialized (mainID == "") and tracking(mainID).
// All writes to mainID go through Tracker methods.
type Tracker struct {
	driver driver.TabDriver
	logger *zap.Logger

	mu     sync.Mutex
	mainID string
	group  singleflight.Group
}

// NewTracker creates an uninitialized tracker.
func NewTracker(d driver.TabDriver, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		driver: d,
		logger: logger.With(zap.String("component", "tab_tracker")),
	}
}

// MainTabID returns the main tab id, querying the driver for the current tab
// on first use. Concurrent first callers share a single driver query.
func (t *Tracker) MainTabID(ctx context.Context) (string, error) {
	if id := t.cached(); id != "" {
		return id, nil
	}

	v, err, _ := t.group.Do("main", func() (any, error) {
		if id := t.cached(); id != "" {
			return id, nil
		}
		id, err := t.driver.CurrentTab(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to resolve main tab: %w", err)
		}
		t.setMain(id)
		t.logger.Debug("main tab initialized", zap.String("tab", id))
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Initialized reports whether a main tab is being tracked.
func (t *Tracker) Initialized() bool {
	return t.cached() != ""
}

// Reset forces the tracker back to uninitialized.
func (t *Tracker) Reset() {
	t.setMain("")
	t.logger.Debug("main tab reset")
}

// Tabs lists the open tabs.
func (t *Tracker) Tabs(ctx context.Context) ([]string, error) {
	return t.driver.Tabs(ctx)
}

// SwitchTo activates the given tab without changing the main tab.
func (t *Tracker) SwitchTo(ctx context.Context, id string) error {
	return t.driver.SwitchTab(ctx, id)
}

// CloseTab closes targetID. When it is the main tab, the tracker is reset if
// it was the only tab, otherwise the first remaining tab becomes main once the
// driver confirms the close.
func (t *Tracker) CloseTab(ctx context.Context, targetID string) error {
	ids, err := t.driver.Tabs(ctx)
	if err != nil {
		return err
	}
	main := t.cached()
	rest := without(ids, targetID)

	if targetID == main && len(rest) == 0 {
		t.Reset()
	}
	if err := t.driver.CloseTab(ctx, targetID); err != nil {
		return err
	}
	if targetID == main && len(rest) > 0 {
		t.setMain(rest[0])
	}
	t.logger.Debug("tab closed", zap.String("tab", targetID), zap.String("main", t.cached()))
	return nil
}

// CloseCurrentTab closes the active tab. If it was the main tab, the first
// remaining tab is promoted and activated; if none remain the tracker resets
// and remaining is false. Otherwise the main tab (or its sibling, see
// SwitchToMainSibling) is re-activated.
func (t *Tracker) CloseCurrentTab(ctx context.Context) (remaining bool, err error) {
	main, err := t.MainTabID(ctx)
	if err != nil {
		return false, err
	}
	current, err := t.driver.CurrentTab(ctx)
	if err != nil {
		return false, err
	}
	if err := t.driver.CloseTab(ctx, current); err != nil {
		return false, err
	}

	if current != main {
		return t.SwitchToMainSibling(ctx)
	}

	ids, err := t.driver.Tabs(ctx)
	if err != nil {
		t.Reset()
		return false, err
	}
	if len(ids) == 0 {
		t.Reset()
		t.logger.Info("last tab closed, session has no open tabs")
		return false, nil
	}
	t.setMain(ids[0])
	if err := t.driver.SwitchTab(ctx, ids[0]); err != nil {
		return false, err
	}
	t.logger.Debug("main tab promoted", zap.String("tab", ids[0]))
	return true, nil
}

// SwitchToMainSibling activates the main tab if it is still open; otherwise
// promotes the first open tab. Reports false when no tabs are open.
func (t *Tracker) SwitchToMainSibling(ctx context.Context) (bool, error) {
	ids, err := t.driver.Tabs(ctx)
	if err != nil {
		return false, err
	}
	main := t.cached()

	if main != "" && slices.Contains(ids, main) {
		if err := t.driver.SwitchTab(ctx, main); err != nil {
			return false, err
		}
		return true, nil
	}
	if len(ids) == 0 {
		t.Reset()
		return false, nil
	}
	t.setMain(ids[0])
	if err := t.driver.SwitchTab(ctx, ids[0]); err != nil {
		return false, err
	}
	return true, nil
}

func (t *Tracker) cached() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mainID
}

func (t *Tracker) setMain(id string) {
	t.mu.Lock()
	t.mainID = id
	t.mu.Unlock()
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
