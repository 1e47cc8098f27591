// MockDriver 的浏览器驱动测试模拟实现。
//
// 内存中维护标签页、元素与弹窗状态，支持错误注入、回调覆盖与调用记录。
package mocks

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoAlert 无弹窗时 AlertText 返回的错误
var ErrNoAlert = errors.New("no alert open")

// Element 模拟的页面元素
type Element struct {
	Visible bool
	Value   string
	Text    string
	Tag     string
	Attrs   map[string]string
	CSS     map[string]string
	Count   int
}

// DriverCall 记录单次驱动调用
type DriverCall struct {
	Method   string
	Selector string
	Args     []any
}

// MockDriver 是 driver.Driver 的内存实现
type MockDriver struct {
	mu sync.Mutex

	id       string
	url      string
	elements map[string]*Element
	tabs     []string
	current  string
	alert    *string

	screenshot    []byte
	errors        map[string]error
	scriptResults map[string]any

	// 回调覆盖，设置后优先于内存状态
	WaitForExistFn   func(ctx context.Context, selector string, timeout time.Duration) error
	WaitForVisibleFn func(ctx context.Context, selector string, timeout time.Duration) error
	IsVisibleFn      func(ctx context.Context, selector string) (bool, error)
	NavigateFn       func(ctx context.Context, url string) error
	ScreenshotFn     func(ctx context.Context) (string, error)

	calls []DriverCall
}

// --- 构造函数和 Builder 方法 ---

// NewMockDriver 创建带单个标签页 "tab-1" 的 MockDriver
func NewMockDriver() *MockDriver {
	return &MockDriver{
		id:            "mock-session",
		elements:      make(map[string]*Element),
		tabs:          []string{"tab-1"},
		current:       "tab-1",
		screenshot:    []byte("\x89PNG mock"),
		errors:        make(map[string]error),
		scriptResults: make(map[string]any),
	}
}

// WithElement 注册元素
func (m *MockDriver) WithElement(selector string, el Element) *MockDriver {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el.Count == 0 {
		el.Count = 1
	}
	m.elements[selector] = &el
	return m
}

// WithTabs 设置标签页列表，current 为当前标签页
func (m *MockDriver) WithTabs(current string, tabs ...string) *MockDriver {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tabs = append([]string(nil), tabs...)
	m.current = current
	return m
}

// WithAlert 打开一个弹窗
func (m *MockDriver) WithAlert(text string) *MockDriver {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alert = &text
	return m
}

// WithError 为指定方法注入错误
func (m *MockDriver) WithError(method string, err error) *MockDriver {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[method] = err
	return m
}

// WithScriptResult 设置脚本返回值
func (m *MockDriver) WithScriptResult(script string, result any) *MockDriver {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scriptResults[script] = result
	return m
}

// SetVisible 修改元素可见性
func (m *MockDriver) SetVisible(selector string, visible bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.elements[selector]; ok {
		el.Visible = visible
	}
}

// RemoveElement 删除元素
func (m *MockDriver) RemoveElement(selector string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.elements, selector)
}

// OpenAlert 在运行过程中打开弹窗
func (m *MockDriver) OpenAlert(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alert = &text
}

// --- 查询方法 ---

// Calls 返回调用记录副本
func (m *MockDriver) Calls() []DriverCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DriverCall(nil), m.calls...)
}

// CallCount 统计指定方法的调用次数
func (m *MockDriver) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Value 返回元素当前值
func (m *MockDriver) Value(selector string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.elements[selector]; ok {
		return el.Value
	}
	return ""
}

// CurrentURL 返回最近导航的 URL
func (m *MockDriver) CurrentURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.url
}

// --- driver.Driver 实现 ---

func (m *MockDriver) SessionID() string { return m.id }
func (m *MockDriver) Close() error      { return nil }

func (m *MockDriver) Navigate(ctx context.Context, url string) error {
	if err := m.record("Navigate", "", url); err != nil {
		return err
	}
	if m.NavigateFn != nil {
		if err := m.NavigateFn(ctx, url); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.url = url
	m.mu.Unlock()
	return nil
}

func (m *MockDriver) URL(ctx context.Context) (string, error) {
	if err := m.record("URL", ""); err != nil {
		return "", err
	}
	return m.CurrentURL(), nil
}

func (m *MockDriver) WaitForExist(ctx context.Context, selector string, timeout time.Duration) error {
	if err := m.record("WaitForExist", selector, timeout); err != nil {
		return err
	}
	if m.WaitForExistFn != nil {
		return m.WaitForExistFn(ctx, selector, timeout)
	}
	if _, err := m.element(selector); err != nil {
		return context.DeadlineExceeded
	}
	return nil
}

func (m *MockDriver) WaitForVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := m.record("WaitForVisible", selector, timeout); err != nil {
		return err
	}
	if m.WaitForVisibleFn != nil {
		return m.WaitForVisibleFn(ctx, selector, timeout)
	}
	el, err := m.element(selector)
	if err != nil || !el.Visible {
		return context.DeadlineExceeded
	}
	return nil
}

func (m *MockDriver) IsExisting(ctx context.Context, selector string) (bool, error) {
	if err := m.record("IsExisting", selector); err != nil {
		return false, err
	}
	_, err := m.element(selector)
	return err == nil, nil
}

func (m *MockDriver) IsVisible(ctx context.Context, selector string) (bool, error) {
	if err := m.record("IsVisible", selector); err != nil {
		return false, err
	}
	if m.IsVisibleFn != nil {
		return m.IsVisibleFn(ctx, selector)
	}
	el, err := m.element(selector)
	if err != nil {
		return false, nil
	}
	return el.Visible, nil
}

func (m *MockDriver) MoveTo(ctx context.Context, selector string) error {
	if err := m.record("MoveTo", selector); err != nil {
		return err
	}
	_, err := m.element(selector)
	return err
}

func (m *MockDriver) ScrollIntoView(ctx context.Context, selector string) error {
	if err := m.record("ScrollIntoView", selector); err != nil {
		return err
	}
	_, err := m.element(selector)
	return err
}

func (m *MockDriver) Click(ctx context.Context, selector string) error {
	if err := m.record("Click", selector); err != nil {
		return err
	}
	_, err := m.element(selector)
	return err
}

func (m *MockDriver) DoubleClick(ctx context.Context, selector string) error {
	if err := m.record("DoubleClick", selector); err != nil {
		return err
	}
	_, err := m.element(selector)
	return err
}

func (m *MockDriver) GetValue(ctx context.Context, selector string) (string, error) {
	if err := m.record("GetValue", selector); err != nil {
		return "", err
	}
	el, err := m.element(selector)
	if err != nil {
		return "", err
	}
	return el.Value, nil
}

func (m *MockDriver) SetValue(ctx context.Context, selector, value string) error {
	if err := m.record("SetValue", selector, value); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.elements[selector]
	if !ok {
		return fmt.Errorf("no element %q", selector)
	}
	el.Value = value
	return nil
}

func (m *MockDriver) ClearValue(ctx context.Context, selector string) error {
	return m.SetValue(ctx, selector, "")
}

func (m *MockDriver) GetAttribute(ctx context.Context, selector, name string) (string, error) {
	if err := m.record("GetAttribute", selector, name); err != nil {
		return "", err
	}
	el, err := m.element(selector)
	if err != nil {
		return "", err
	}
	return el.Attrs[name], nil
}

func (m *MockDriver) GetCSS(ctx context.Context, selector, property string) (string, error) {
	if err := m.record("GetCSS", selector, property); err != nil {
		return "", err
	}
	el, err := m.element(selector)
	if err != nil {
		return "", err
	}
	return el.CSS[property], nil
}

func (m *MockDriver) GetTagName(ctx context.Context, selector string) (string, error) {
	if err := m.record("GetTagName", selector); err != nil {
		return "", err
	}
	el, err := m.element(selector)
	if err != nil {
		return "", err
	}
	return el.Tag, nil
}

func (m *MockDriver) GetText(ctx context.Context, selector string) (string, error) {
	if err := m.record("GetText", selector); err != nil {
		return "", err
	}
	el, err := m.element(selector)
	if err != nil {
		return "", err
	}
	return el.Text, nil
}

func (m *MockDriver) CountElements(ctx context.Context, selector string) (int, error) {
	if err := m.record("CountElements", selector); err != nil {
		return 0, err
	}
	el, err := m.element(selector)
	if err != nil {
		return 0, nil
	}
	return el.Count, nil
}

func (m *MockDriver) CurrentTab(ctx context.Context) (string, error) {
	if err := m.record("CurrentTab", ""); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == "" {
		return "", errors.New("no active tab")
	}
	return m.current, nil
}

func (m *MockDriver) Tabs(ctx context.Context) ([]string, error) {
	if err := m.record("Tabs", ""); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.tabs...), nil
}

func (m *MockDriver) SwitchTab(ctx context.Context, id string) error {
	if err := m.record("SwitchTab", "", id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tabs {
		if t == id {
			m.current = id
			return nil
		}
	}
	return fmt.Errorf("no such tab %q", id)
}

func (m *MockDriver) CloseTab(ctx context.Context, id string) error {
	if err := m.record("CloseTab", "", id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.tabs {
		if t == id {
			m.tabs = append(m.tabs[:i:i], m.tabs[i+1:]...)
			if m.current == id {
				m.current = ""
			}
			return nil
		}
	}
	return fmt.Errorf("no such tab %q", id)
}

// OpenTab 模拟页面打开新标签页（不切换）
func (m *MockDriver) OpenTab(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tabs = append(m.tabs, id)
}

func (m *MockDriver) AlertText(ctx context.Context) (string, error) {
	if err := m.record("AlertText", ""); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.alert == nil {
		return "", ErrNoAlert
	}
	return *m.alert, nil
}

func (m *MockDriver) AcceptAlert(ctx context.Context) error {
	return m.closeAlert("AcceptAlert")
}

func (m *MockDriver) DismissAlert(ctx context.Context) error {
	return m.closeAlert("DismissAlert")
}

func (m *MockDriver) Execute(ctx context.Context, script string, args ...any) (any, error) {
	if err := m.record("Execute", "", append([]any{script}, args...)...); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scriptResults[script], nil
}

func (m *MockDriver) ExecuteAsync(ctx context.Context, script string, args ...any) (any, error) {
	if err := m.record("ExecuteAsync", "", append([]any{script}, args...)...); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scriptResults[script], nil
}

func (m *MockDriver) Screenshot(ctx context.Context) (string, error) {
	if err := m.record("Screenshot", ""); err != nil {
		return "", err
	}
	if m.ScreenshotFn != nil {
		return m.ScreenshotFn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return base64.StdEncoding.EncodeToString(m.screenshot), nil
}

// --- 内部方法 ---

func (m *MockDriver) record(method, selector string, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, DriverCall{Method: method, Selector: selector, Args: args})
	return m.errors[method]
}

func (m *MockDriver) element(selector string) (*Element, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.elements[selector]
	if !ok {
		return nil, fmt.Errorf("no element %q", selector)
	}
	return el, nil
}

func (m *MockDriver) closeAlert(method string) error {
	if err := m.record(method, ""); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.alert == nil {
		return ErrNoAlert
	}
	m.alert = nil
	return nil
}
