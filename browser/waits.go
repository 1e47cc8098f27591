package browser

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/testflow/browser/instrument"
	"github.com/BaSui01/testflow/browser/poll"
	"github.com/BaSui01/testflow/browser/selector"
	"github.com/BaSui01/testflow/types"
)

// =============================================================================
// 等待操作（公开 API）
// =============================================================================

// WaitForExist 等待元素出现在 DOM 中，随后尽力滚动到元素并移动指针。
// timeout 为 0 时使用会话默认超时。
func (s *Session) WaitForExist(ctx context.Context, loc selector.Locator, timeout time.Duration) *instrument.Pending[Void] {
	return s.acts.waitForExist(ctx, loc, s.timeout(timeout))
}

// WaitForVisible 先等待存在，再用剩余预算等待可见。剩余预算耗尽时直接
// 返回 TIMEOUT，不会发起可见性等待。
func (s *Session) WaitForVisible(ctx context.Context, loc selector.Locator, timeout time.Duration) *instrument.Pending[Void] {
	return s.acts.waitForVisible(ctx, loc, s.timeout(timeout))
}

// WaitForNotVisible 轮询直到元素不可见。要求根作用域已存在。
func (s *Session) WaitForNotVisible(ctx context.Context, loc selector.Locator, timeout time.Duration) *instrument.Pending[Void] {
	return s.acts.waitForNotVisible(ctx, loc, s.timeout(timeout))
}

// WaitToBecomeHidden 等待元素先可见再消失。
func (s *Session) WaitToBecomeHidden(ctx context.Context, loc selector.Locator, timeout time.Duration) *instrument.Pending[Void] {
	return s.acts.waitToBecomeHidden(ctx, loc, s.timeout(timeout))
}

// IsBecomeVisible 在超时内元素变为可见时返回 true，否则 false。
func (s *Session) IsBecomeVisible(ctx context.Context, loc selector.Locator, timeout time.Duration) *instrument.Pending[bool] {
	return s.acts.isBecomeVisible(ctx, loc, s.timeout(timeout))
}

// IsBecomeHidden 在超时内元素变为不可见时返回 true，否则 false。
func (s *Session) IsBecomeHidden(ctx context.Context, loc selector.Locator, timeout time.Duration) *instrument.Pending[bool] {
	return s.acts.isBecomeHidden(ctx, loc, s.timeout(timeout))
}

func (s *Session) timeout(d time.Duration) time.Duration {
	if d == 0 {
		return s.config.DefaultTimeout
	}
	return d
}

// =============================================================================
// Origins
// =============================================================================

func (s *Session) waitForExist(ctx context.Context, args []any) (Void, error) {
	if err := s.alive(); err != nil {
		return Void{}, err
	}
	sel := selector.Normalize(argLocator(args, 0), false)
	timeout := argDuration(args, 1)

	if err := s.driver.WaitForExist(ctx, sel, timeout); err != nil {
		return Void{}, existTimeout(sel, timeout, err)
	}

	// 纯展示用途，失败不影响结果
	if err := s.driver.ScrollIntoView(ctx, sel); err != nil {
		s.logger.Debug("scroll into view failed", zap.String("selector", sel), zap.Error(err))
	}
	if err := s.driver.MoveTo(ctx, sel); err != nil {
		s.logger.Debug("move pointer failed", zap.String("selector", sel), zap.Error(err))
	}
	return Void{}, nil
}

func (s *Session) waitForVisible(ctx context.Context, args []any) (Void, error) {
	loc := argLocator(args, 0)
	sel := selector.Normalize(loc, false)
	timeout := argDuration(args, 1)

	start := s.now()
	if _, err := s.acts.waitForExist(ctx, loc, timeout).Wait(); err != nil {
		return Void{}, err
	}

	remaining := timeout - s.now().Sub(start)
	if remaining <= 0 {
		return Void{}, types.NewTimeoutError("waitForVisible", sel,
			"existence wait used the whole %s budget, no time left to wait for visibility", timeout)
	}
	if err := s.driver.WaitForVisible(ctx, sel, remaining); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Void{}, types.NewTimeoutError("waitForVisible", sel,
				"element still not visible after %s", timeout).WithCause(err)
		}
		return Void{}, err
	}
	return Void{}, nil
}

func (s *Session) waitForNotVisible(ctx context.Context, args []any) (Void, error) {
	sel := selector.Normalize(argLocator(args, 0), false)
	timeout := argDuration(args, 1)
	if err := s.requireRoot(ctx); err != nil {
		return Void{}, err
	}
	if err := s.untilHidden(ctx, "waitForNotVisible", sel, timeout); err != nil {
		return Void{}, err
	}
	return Void{}, nil
}

func (s *Session) waitToBecomeHidden(ctx context.Context, args []any) (Void, error) {
	loc := argLocator(args, 0)
	sel := selector.Normalize(loc, false)
	timeout := argDuration(args, 1)

	start := s.now()
	if _, err := s.acts.waitForVisible(ctx, loc, timeout).Wait(); err != nil {
		return Void{}, err
	}
	remaining := timeout - s.now().Sub(start)
	if remaining <= 0 {
		return Void{}, types.NewTimeoutError("waitToBecomeHidden", sel,
			"element became visible but no time is left to wait for it to disappear")
	}
	return Void{}, s.untilHidden(ctx, "waitToBecomeHidden", sel, remaining)
}

func (s *Session) isBecomeVisible(ctx context.Context, args []any) (bool, error) {
	if err := s.alive(); err != nil {
		return false, err
	}
	sel := selector.Normalize(argLocator(args, 0), false)
	return s.poller.Until(ctx, s.pollVisible(sel), argDuration(args, 1), s.config.PollTick, poll.TolerateErrors)
}

func (s *Session) isBecomeHidden(ctx context.Context, args []any) (bool, error) {
	if err := s.alive(); err != nil {
		return false, err
	}
	sel := selector.Normalize(argLocator(args, 0), false)
	return s.poller.Until(ctx, poll.Not(s.pollVisible(sel)), argDuration(args, 1), s.config.PollTick, poll.TolerateErrors)
}

// untilHidden turns a soft poll deadline into a TIMEOUT naming the selector.
func (s *Session) untilHidden(ctx context.Context, op, sel string, timeout time.Duration) error {
	ok, err := s.poller.Until(ctx, poll.Not(s.pollVisible(sel)), timeout, s.config.PollTick, poll.TolerateErrors)
	if err != nil {
		return err
	}
	if !ok {
		return types.NewTimeoutError(op, sel, "element still visible after %s", timeout)
	}
	return nil
}

// requireRoot fails fast when the document root is missing.
func (s *Session) requireRoot(ctx context.Context) error {
	if err := s.alive(); err != nil {
		return err
	}
	ok, err := s.driver.IsExisting(ctx, selector.Root)
	if err != nil {
		return types.NewError(types.ErrRootNotFound, "failed to query document root").WithCause(err)
	}
	if !ok {
		return types.NewError(types.ErrRootNotFound, "document root "+selector.Root+" does not exist").
			WithSelector(selector.Root)
	}
	return nil
}

// existTimeout maps a driver deadline into a TIMEOUT; other errors pass through.
func existTimeout(sel string, timeout time.Duration, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewTimeoutError("waitForExist", sel,
			"element did not appear within %s", timeout).WithCause(err)
	}
	return err
}
