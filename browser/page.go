package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/testflow/browser/instrument"
	"github.com/BaSui01/testflow/browser/poll"
	"github.com/BaSui01/testflow/browser/screenshot"
	"github.com/BaSui01/testflow/types"
)

// =============================================================================
// 页面、弹窗与脚本（公开 API）
// =============================================================================

// OpenPage 导航到 url。导航与计时器竞争，超时后取消导航并返回 TIMEOUT。
// timeout 为 0 时使用 PageLoadTimeout。
func (s *Session) OpenPage(ctx context.Context, url string, timeout time.Duration) *instrument.Pending[Void] {
	if timeout == 0 {
		timeout = s.config.PageLoadTimeout
	}
	return s.acts.openPage(ctx, url, timeout)
}

// WaitForAlert 轮询直到出现 JavaScript 弹窗，返回弹窗文本
func (s *Session) WaitForAlert(ctx context.Context, timeout time.Duration) *instrument.Pending[string] {
	return s.acts.waitForAlert(ctx, s.timeout(timeout))
}

// AcceptAlert 确认当前弹窗
func (s *Session) AcceptAlert(ctx context.Context) *instrument.Pending[Void] {
	return s.acts.acceptAlert(ctx)
}

// DismissAlert 取消当前弹窗
func (s *Session) DismissAlert(ctx context.Context) *instrument.Pending[Void] {
	return s.acts.dismissAlert(ctx)
}

// GetAlertText 读取当前弹窗文本
func (s *Session) GetAlertText(ctx context.Context) *instrument.Pending[string] {
	return s.acts.getAlertText(ctx)
}

// Execute 在页面中同步执行脚本
func (s *Session) Execute(ctx context.Context, script string, args ...any) *instrument.Pending[any] {
	return s.acts.execute(ctx, script, args)
}

// ExecuteAsync 在页面中执行回调式脚本
func (s *Session) ExecuteAsync(ctx context.Context, script string, args ...any) *instrument.Pending[any] {
	return s.acts.executeAsync(ctx, script, args)
}

// TakeScreenshot 手动截图，不受自动截图开关与限流影响，返回文件路径
func (s *Session) TakeScreenshot(ctx context.Context, name string) *instrument.Pending[string] {
	return s.acts.screenshot(ctx, name)
}

// Pause 暂停 d，可被 ctx 取消
func (s *Session) Pause(ctx context.Context, d time.Duration) *instrument.Pending[Void] {
	return s.acts.pause(ctx, d)
}

// =============================================================================
// Origins
// =============================================================================

func (s *Session) openPage(ctx context.Context, args []any) (Void, error) {
	if err := s.alive(); err != nil {
		return Void{}, err
	}
	url := argString(args, 0)
	timeout := argDuration(args, 1)

	navCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.driver.Navigate(navCtx, url) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return Void{}, fmt.Errorf("failed to open %s: %w", url, err)
		}
	case <-timer.C:
		cancel()
		return Void{}, types.NewTimeoutError("openPage", url, "page did not load within %s", timeout)
	case <-ctx.Done():
		return Void{}, ctx.Err()
	}

	// 首次导航后确定主标签页
	if _, err := s.tracker.MainTabID(ctx); err != nil {
		s.logger.Warn("failed to resolve main tab after navigation", zap.Error(err))
	}
	return Void{}, nil
}

func (s *Session) waitForAlert(ctx context.Context, args []any) (string, error) {
	if err := s.alive(); err != nil {
		return "", err
	}
	timeout := argDuration(args, 0)

	var text string
	probe := func(ctx context.Context) error {
		t, err := s.driver.AlertText(ctx)
		if err != nil {
			return err
		}
		text = t
		return nil
	}
	ok, err := s.poller.Until(ctx, poll.NoError(probe), timeout, s.config.PollTick, poll.TolerateErrors)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", types.NewTimeoutError("waitForAlert", "alert", "no alert opened within %s", timeout)
	}
	return text, nil
}

func (s *Session) acceptAlert(ctx context.Context, _ []any) (Void, error) {
	if err := s.alive(); err != nil {
		return Void{}, err
	}
	return Void{}, s.driver.AcceptAlert(ctx)
}

func (s *Session) dismissAlert(ctx context.Context, _ []any) (Void, error) {
	if err := s.alive(); err != nil {
		return Void{}, err
	}
	return Void{}, s.driver.DismissAlert(ctx)
}

func (s *Session) getAlertText(ctx context.Context, _ []any) (string, error) {
	if err := s.alive(); err != nil {
		return "", err
	}
	return s.driver.AlertText(ctx)
}

func (s *Session) execute(ctx context.Context, args []any) (any, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	return s.driver.Execute(ctx, argString(args, 0), argRest(args, 1)...)
}

func (s *Session) executeAsync(ctx context.Context, args []any) (any, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	return s.driver.ExecuteAsync(ctx, argString(args, 0), argRest(args, 1)...)
}

func (s *Session) takeScreenshot(ctx context.Context, args []any) (string, error) {
	if s.shots == nil {
		return "", types.NewError(types.ErrInvalidConfig, "screenshots are not configured for this session")
	}
	return s.shots.Capture(ctx, screenshot.TriggerManual, argString(args, 0))
}

func (s *Session) pause(ctx context.Context, args []any) (Void, error) {
	d := argDuration(args, 0)
	if d <= 0 {
		return Void{}, nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return Void{}, nil
	case <-ctx.Done():
		return Void{}, ctx.Err()
	}
}

// =============================================================================
// 标签页
// =============================================================================

// MainTabID 返回主标签页 ID，首次调用时向驱动查询
func (s *Session) MainTabID(ctx context.Context) *instrument.Pending[string] {
	return s.acts.mainTabID(ctx)
}

// ListTabs 列出打开的标签页
func (s *Session) ListTabs(ctx context.Context) *instrument.Pending[[]string] {
	return s.acts.listTabs(ctx)
}

// SwitchToTab 切换到指定标签页，不改变主标签页
func (s *Session) SwitchToTab(ctx context.Context, id string) *instrument.Pending[Void] {
	return s.acts.switchToTab(ctx, id)
}

// CloseTab 关闭指定标签页
func (s *Session) CloseTab(ctx context.Context, id string) *instrument.Pending[Void] {
	return s.acts.closeTab(ctx, id)
}

// CloseCurrentTab 关闭当前标签页。没有剩余标签页时返回 false，会话随之结束。
func (s *Session) CloseCurrentTab(ctx context.Context) *instrument.Pending[bool] {
	return s.acts.closeCurrent(ctx)
}

// SwitchToMainTab 切换回主标签页，主标签页已关闭时提升第一个标签页。
func (s *Session) SwitchToMainTab(ctx context.Context) *instrument.Pending[bool] {
	return s.acts.switchToMain(ctx)
}

func (s *Session) mainTabID(ctx context.Context, _ []any) (string, error) {
	if err := s.alive(); err != nil {
		return "", err
	}
	return s.tracker.MainTabID(ctx)
}

func (s *Session) listTabs(ctx context.Context, _ []any) ([]string, error) {
	return s.tracker.Tabs(ctx)
}

func (s *Session) switchToTab(ctx context.Context, args []any) (Void, error) {
	id := argString(args, 0)
	if id == "" {
		return Void{}, errors.New("tab id is required")
	}
	return Void{}, s.tracker.SwitchTo(ctx, id)
}

func (s *Session) closeTab(ctx context.Context, args []any) (Void, error) {
	id := argString(args, 0)
	if id == "" {
		return Void{}, errors.New("tab id is required")
	}
	return Void{}, s.tracker.CloseTab(ctx, id)
}

func (s *Session) closeCurrentTab(ctx context.Context, _ []any) (bool, error) {
	if err := s.alive(); err != nil {
		return false, err
	}
	remaining, err := s.tracker.CloseCurrentTab(ctx)
	if err != nil {
		return false, err
	}
	if !remaining {
		s.markEnded()
	}
	return remaining, nil
}

func (s *Session) switchToMainTab(ctx context.Context, _ []any) (bool, error) {
	ok, err := s.tracker.SwitchToMainSibling(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		s.markEnded()
	} else {
		s.ended.Store(false)
	}
	return ok, nil
}

func (s *Session) markEnded() {
	if s.ended.CompareAndSwap(false, true) {
		s.logger.Info("session has no open tabs left")
	}
}
