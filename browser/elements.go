package browser

import (
	"context"

	"github.com/BaSui01/testflow/browser/instrument"
	"github.com/BaSui01/testflow/browser/selector"
)

// =============================================================================
// 元素操作（公开 API）
// =============================================================================

// Click 等待元素可见后点击
func (s *Session) Click(ctx context.Context, loc selector.Locator) *instrument.Pending[Void] {
	return s.acts.click(ctx, loc)
}

// DoubleClick 等待元素可见后双击
func (s *Session) DoubleClick(ctx context.Context, loc selector.Locator) *instrument.Pending[Void] {
	return s.acts.doubleClick(ctx, loc)
}

// GetValue 读取输入框的值
func (s *Session) GetValue(ctx context.Context, loc selector.Locator) *instrument.Pending[string] {
	return s.acts.getValue(ctx, loc)
}

// SetValue 替换输入框的值
func (s *Session) SetValue(ctx context.Context, loc selector.Locator, value string) *instrument.Pending[Void] {
	return s.acts.setValue(ctx, loc, value)
}

// ClearValue 清空输入框
func (s *Session) ClearValue(ctx context.Context, loc selector.Locator) *instrument.Pending[Void] {
	return s.acts.clearValue(ctx, loc)
}

// GetText 读取元素可见文本
func (s *Session) GetText(ctx context.Context, loc selector.Locator) *instrument.Pending[string] {
	return s.acts.getText(ctx, loc)
}

// GetAttribute 读取元素属性
func (s *Session) GetAttribute(ctx context.Context, loc selector.Locator, name string) *instrument.Pending[string] {
	return s.acts.getAttribute(ctx, loc, name)
}

// GetCSS 读取计算样式
func (s *Session) GetCSS(ctx context.Context, loc selector.Locator, property string) *instrument.Pending[string] {
	return s.acts.getCSS(ctx, loc, property)
}

// GetTagName 读取标签名
func (s *Session) GetTagName(ctx context.Context, loc selector.Locator) *instrument.Pending[string] {
	return s.acts.getTagName(ctx, loc)
}

// CountElements 统计匹配元素数量，不等待可见
func (s *Session) CountElements(ctx context.Context, loc selector.Locator) *instrument.Pending[int] {
	return s.acts.countElements(ctx, loc)
}

// MoveTo 将指针移动到元素上
func (s *Session) MoveTo(ctx context.Context, loc selector.Locator) *instrument.Pending[Void] {
	return s.acts.moveTo(ctx, loc)
}

// ScrollIntoView 滚动到元素，只要求元素存在
func (s *Session) ScrollIntoView(ctx context.Context, loc selector.Locator) *instrument.Pending[Void] {
	return s.acts.scrollIntoView(ctx, loc)
}

// =============================================================================
// Origins
// =============================================================================

func (s *Session) click(ctx context.Context, args []any) (Void, error) {
	sel, err := s.prepare(ctx, argLocator(args, 0))
	if err != nil {
		return Void{}, err
	}
	return Void{}, s.driver.Click(ctx, sel)
}

func (s *Session) doubleClick(ctx context.Context, args []any) (Void, error) {
	sel, err := s.prepare(ctx, argLocator(args, 0))
	if err != nil {
		return Void{}, err
	}
	return Void{}, s.driver.DoubleClick(ctx, sel)
}

func (s *Session) getValue(ctx context.Context, args []any) (string, error) {
	sel, err := s.prepare(ctx, argLocator(args, 0))
	if err != nil {
		return "", err
	}
	return s.driver.GetValue(ctx, sel)
}

func (s *Session) setValue(ctx context.Context, args []any) (Void, error) {
	sel, err := s.prepare(ctx, argLocator(args, 0))
	if err != nil {
		return Void{}, err
	}
	return Void{}, s.driver.SetValue(ctx, sel, argString(args, 1))
}

func (s *Session) clearValue(ctx context.Context, args []any) (Void, error) {
	sel, err := s.prepare(ctx, argLocator(args, 0))
	if err != nil {
		return Void{}, err
	}
	return Void{}, s.driver.ClearValue(ctx, sel)
}

func (s *Session) getText(ctx context.Context, args []any) (string, error) {
	sel, err := s.prepare(ctx, argLocator(args, 0))
	if err != nil {
		return "", err
	}
	return s.driver.GetText(ctx, sel)
}

func (s *Session) getAttribute(ctx context.Context, args []any) (string, error) {
	sel, err := s.prepare(ctx, argLocator(args, 0))
	if err != nil {
		return "", err
	}
	return s.driver.GetAttribute(ctx, sel, argString(args, 1))
}

func (s *Session) getCSS(ctx context.Context, args []any) (string, error) {
	sel, err := s.prepare(ctx, argLocator(args, 0))
	if err != nil {
		return "", err
	}
	return s.driver.GetCSS(ctx, sel, argString(args, 1))
}

func (s *Session) getTagName(ctx context.Context, args []any) (string, error) {
	sel, err := s.prepare(ctx, argLocator(args, 0))
	if err != nil {
		return "", err
	}
	return s.driver.GetTagName(ctx, sel)
}

func (s *Session) countElements(ctx context.Context, args []any) (int, error) {
	if err := s.alive(); err != nil {
		return 0, err
	}
	return s.driver.CountElements(ctx, selector.Normalize(argLocator(args, 0), true))
}

func (s *Session) moveTo(ctx context.Context, args []any) (Void, error) {
	sel, err := s.prepare(ctx, argLocator(args, 0))
	if err != nil {
		return Void{}, err
	}
	return Void{}, s.driver.MoveTo(ctx, sel)
}

func (s *Session) scrollIntoView(ctx context.Context, args []any) (Void, error) {
	if err := s.alive(); err != nil {
		return Void{}, err
	}
	loc := argLocator(args, 0)
	sel := selector.Normalize(loc, false)
	if err := s.driver.WaitForExist(ctx, sel, s.config.DefaultTimeout); err != nil {
		return Void{}, existTimeout(sel, s.config.DefaultTimeout, err)
	}
	s.highlight(ctx, sel)
	return Void{}, s.driver.ScrollIntoView(ctx, sel)
}
