package driver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/css"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNoAlert is returned by AlertText when no JavaScript dialog is open.
var ErrNoAlert = errors.New("no alert open")

// ErrNoActiveTab is returned when the active tab was closed and no switch happened since.
var ErrNoActiveTab = errors.New("no active tab")

// Config configures the chromedp browser.
type Config struct {
	Headless       bool          `yaml:"headless" env:"HEADLESS"`
	ViewportWidth  int           `yaml:"viewport_width" env:"VIEWPORT_WIDTH"`
	ViewportHeight int           `yaml:"viewport_height" env:"VIEWPORT_HEIGHT"`
	UserAgent      string        `yaml:"user_agent" env:"USER_AGENT"`
	ProxyURL       string        `yaml:"proxy_url" env:"PROXY_URL"`
	StartTimeout   time.Duration `yaml:"start_timeout" env:"START_TIMEOUT"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:       true,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		StartTimeout:   30 * time.Second,
	}
}

// ChromeDPDriver 基于 chromedp 的 Driver 实现
type ChromeDPDriver struct {
	id          string
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
	config      Config
	logger      *zap.Logger

	mu      sync.Mutex
	tabs    map[target.ID]*tabContext
	current target.ID
}

type tabContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	dialog *page.EventJavascriptDialogOpening
}

// NewChromeDPDriver 创建 chromedp 驱动并启动浏览器
func NewChromeDPDriver(config Config, logger *zap.Logger) (*ChromeDPDriver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.WindowSize(config.ViewportWidth, config.ViewportHeight),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(config.UserAgent))
	}
	if config.ProxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(config.ProxyURL))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	d := &ChromeDPDriver{
		id:          uuid.NewString(),
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		cancel:      cancel,
		config:      config,
		logger:      logger.With(zap.String("component", "chromedp_driver")),
		tabs:        make(map[target.ID]*tabContext),
	}

	startCtx := browserCtx
	if config.StartTimeout > 0 {
		var startCancel context.CancelFunc
		startCtx, startCancel = context.WithTimeout(browserCtx, config.StartTimeout)
		defer startCancel()
	}
	// 启动浏览器
	if err := chromedp.Run(startCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	first := chromedp.FromContext(browserCtx).Target.TargetID
	d.tabs[first] = d.watch(&tabContext{ctx: browserCtx, cancel: func() {}})
	d.current = first

	d.logger.Info("chromedp browser started",
		zap.String("session_id", d.id),
		zap.Bool("headless", config.Headless),
		zap.Int("viewport_w", config.ViewportWidth),
		zap.Int("viewport_h", config.ViewportHeight))

	return d, nil
}

// SessionID returns the identifier of this browser session.
func (d *ChromeDPDriver) SessionID() string { return d.id }

// Close 关闭浏览器
func (d *ChromeDPDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.logger.Info("closing chromedp browser", zap.String("session_id", d.id))
	for id, tab := range d.tabs {
		tab.cancel()
		delete(d.tabs, id)
	}
	d.cancel()
	d.allocCancel()
	return nil
}

// --- navigation ---

// Navigate 导航到 URL
func (d *ChromeDPDriver) Navigate(ctx context.Context, url string) error {
	d.logger.Debug("navigating", zap.String("url", url))
	return d.run(ctx, chromedp.Navigate(url))
}

// URL 获取当前 URL
func (d *ChromeDPDriver) URL(ctx context.Context) (string, error) {
	var url string
	if err := d.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to get URL: %w", err)
	}
	return url, nil
}

// --- elements ---

// WaitForExist waits until selector matches a node in the DOM.
func (d *ChromeDPDriver) WaitForExist(ctx context.Context, selector string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.run(ctx, chromedp.WaitReady(selector, chromedp.BySearch))
}

// WaitForVisible waits until selector is visible.
func (d *ChromeDPDriver) WaitForVisible(ctx context.Context, selector string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.run(ctx, chromedp.WaitVisible(selector, chromedp.BySearch))
}

// IsExisting reports whether selector matches at least one node right now.
func (d *ChromeDPDriver) IsExisting(ctx context.Context, selector string) (bool, error) {
	n, err := d.CountElements(ctx, selector)
	return n > 0, err
}

// IsVisible reports whether the first match of selector is rendered and not hidden.
func (d *ChromeDPDriver) IsVisible(ctx context.Context, selector string) (bool, error) {
	var visible bool
	if err := d.run(ctx, chromedp.Evaluate(callExpression(visibilityScript, selector), &visible)); err != nil {
		return false, err
	}
	return visible, nil
}

// MoveTo moves the pointer to the center of the element.
func (d *ChromeDPDriver) MoveTo(ctx context.Context, selector string) error {
	return d.run(ctx, chromedp.QueryAfter(selector, func(ctx context.Context, _ runtime.ExecutionContextID, nodes ...*cdp.Node) error {
		if len(nodes) == 0 {
			return fmt.Errorf("selector %q matched no nodes", selector)
		}
		box, err := dom.GetBoxModel().WithNodeID(nodes[0].NodeID).Do(ctx)
		if err != nil {
			return err
		}
		x, y := quadCenter(box.Content)
		return chromedp.MouseEvent(input.MouseMoved, x, y).Do(ctx)
	}, chromedp.BySearch))
}

// ScrollIntoView scrolls the element into the viewport.
func (d *ChromeDPDriver) ScrollIntoView(ctx context.Context, selector string) error {
	return d.run(ctx, chromedp.ScrollIntoView(selector, chromedp.BySearch))
}

// Click 点击元素
func (d *ChromeDPDriver) Click(ctx context.Context, selector string) error {
	return d.run(ctx, chromedp.Click(selector, chromedp.BySearch))
}

// DoubleClick 双击元素
func (d *ChromeDPDriver) DoubleClick(ctx context.Context, selector string) error {
	return d.run(ctx, chromedp.DoubleClick(selector, chromedp.BySearch))
}

// GetValue returns the value property of a form element.
func (d *ChromeDPDriver) GetValue(ctx context.Context, selector string) (string, error) {
	var value string
	err := d.run(ctx, chromedp.Value(selector, &value, chromedp.BySearch))
	return value, err
}

// SetValue clears the element and types value into it.
func (d *ChromeDPDriver) SetValue(ctx context.Context, selector, value string) error {
	return d.run(ctx,
		chromedp.Clear(selector, chromedp.BySearch),
		chromedp.SendKeys(selector, value, chromedp.BySearch),
	)
}

// ClearValue empties a form element.
func (d *ChromeDPDriver) ClearValue(ctx context.Context, selector string) error {
	return d.run(ctx, chromedp.Clear(selector, chromedp.BySearch))
}

// GetAttribute returns an attribute value, or "" when absent.
func (d *ChromeDPDriver) GetAttribute(ctx context.Context, selector, name string) (string, error) {
	var (
		value string
		ok    bool
	)
	err := d.run(ctx, chromedp.AttributeValue(selector, name, &value, &ok, chromedp.BySearch))
	return value, err
}

// GetCSS returns the computed value of a CSS property.
func (d *ChromeDPDriver) GetCSS(ctx context.Context, selector, property string) (string, error) {
	var styles []*css.ComputedStyleProperty
	if err := d.run(ctx, chromedp.ComputedStyle(selector, &styles, chromedp.BySearch)); err != nil {
		return "", err
	}
	return lookupStyle(styles, property), nil
}

// GetTagName returns the lower-case tag name of the first match.
func (d *ChromeDPDriver) GetTagName(ctx context.Context, selector string) (string, error) {
	var nodes []*cdp.Node
	if err := d.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.BySearch)); err != nil {
		return "", err
	}
	if len(nodes) == 0 {
		return "", fmt.Errorf("selector %q matched no nodes", selector)
	}
	return strings.ToLower(nodes[0].NodeName), nil
}

// GetText returns the visible text of the first match.
func (d *ChromeDPDriver) GetText(ctx context.Context, selector string) (string, error) {
	var text string
	err := d.run(ctx, chromedp.Text(selector, &text, chromedp.BySearch))
	return text, err
}

// CountElements returns how many nodes selector matches without waiting.
func (d *ChromeDPDriver) CountElements(ctx context.Context, selector string) (int, error) {
	var nodes []*cdp.Node
	if err := d.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return 0, err
	}
	return len(nodes), nil
}

// --- tabs ---

// CurrentTab returns the id of the active tab.
func (d *ChromeDPDriver) CurrentTab(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == "" {
		return "", ErrNoActiveTab
	}
	return string(d.current), nil
}

// Tabs lists page targets in browser order.
func (d *ChromeDPDriver) Tabs(ctx context.Context) ([]string, error) {
	infos, err := chromedp.Targets(d.browserCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	return pageTargetIDs(infos), nil
}

// SwitchTab attaches to the tab (once) and brings it to front.
func (d *ChromeDPDriver) SwitchTab(ctx context.Context, id string) error {
	tid := target.ID(id)

	d.mu.Lock()
	tab, ok := d.tabs[tid]
	if !ok {
		tctx, cancel := chromedp.NewContext(d.browserCtx, chromedp.WithTargetID(tid))
		tab = d.watch(&tabContext{ctx: tctx, cancel: cancel})
		d.tabs[tid] = tab
	}
	d.mu.Unlock()

	if err := chromedp.Run(tab.ctx); err != nil {
		return fmt.Errorf("failed to attach to tab %s: %w", id, err)
	}
	if err := target.ActivateTarget(tid).Do(d.browserExecutor(ctx)); err != nil {
		return fmt.Errorf("failed to switch to tab %s: %w", id, err)
	}

	d.mu.Lock()
	d.current = tid
	d.mu.Unlock()
	d.logger.Debug("switched tab", zap.String("tab", id))
	return nil
}

// CloseTab closes the given tab. Closing the active tab leaves no active tab
// until the next SwitchTab.
func (d *ChromeDPDriver) CloseTab(ctx context.Context, id string) error {
	tid := target.ID(id)
	err := target.CloseTarget(tid).Do(d.browserExecutor(ctx))
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close tab %s: %w", id, err)
	}

	d.mu.Lock()
	if tab, ok := d.tabs[tid]; ok {
		tab.cancel()
		delete(d.tabs, tid)
	}
	if d.current == tid {
		d.current = ""
	}
	d.mu.Unlock()
	return nil
}

// --- alerts ---

// AlertText returns the message of the open dialog.
func (d *ChromeDPDriver) AlertText(ctx context.Context) (string, error) {
	tab, err := d.activeTab()
	if err != nil {
		return "", err
	}
	tab.mu.Lock()
	defer tab.mu.Unlock()
	if tab.dialog == nil {
		return "", ErrNoAlert
	}
	return tab.dialog.Message, nil
}

// AcceptAlert accepts the open dialog.
func (d *ChromeDPDriver) AcceptAlert(ctx context.Context) error {
	return d.handleDialog(ctx, true)
}

// DismissAlert dismisses the open dialog.
func (d *ChromeDPDriver) DismissAlert(ctx context.Context) error {
	return d.handleDialog(ctx, false)
}

func (d *ChromeDPDriver) handleDialog(ctx context.Context, accept bool) error {
	tab, err := d.activeTab()
	if err != nil {
		return err
	}
	tab.mu.Lock()
	open := tab.dialog != nil
	tab.mu.Unlock()
	if !open {
		return ErrNoAlert
	}
	if err := d.runOn(ctx, tab.ctx, page.HandleJavaScriptDialog(accept)); err != nil {
		return err
	}
	tab.mu.Lock()
	tab.dialog = nil
	tab.mu.Unlock()
	return nil
}

// watch records dialogs opened in the tab.
func (d *ChromeDPDriver) watch(tab *tabContext) *tabContext {
	chromedp.ListenTarget(tab.ctx, func(ev any) {
		switch e := ev.(type) {
		case *page.EventJavascriptDialogOpening:
			tab.mu.Lock()
			tab.dialog = e
			tab.mu.Unlock()
		case *page.EventJavascriptDialogClosed:
			tab.mu.Lock()
			tab.dialog = nil
			tab.mu.Unlock()
		}
	})
	return tab
}

// --- scripts ---

// Execute evaluates script as a function body called with args.
func (d *ChromeDPDriver) Execute(ctx context.Context, script string, args ...any) (any, error) {
	expr, err := functionCall(script, args, false)
	if err != nil {
		return nil, err
	}
	var result any
	if err := d.run(ctx, chromedp.Evaluate(expr, &result)); err != nil {
		return nil, err
	}
	return result, nil
}

// ExecuteAsync evaluates script with a trailing done callback and awaits it.
func (d *ChromeDPDriver) ExecuteAsync(ctx context.Context, script string, args ...any) (any, error) {
	expr, err := functionCall(script, args, true)
	if err != nil {
		return nil, err
	}
	var result any
	err = d.run(ctx, chromedp.Evaluate(expr, &result, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// --- screenshots ---

// Screenshot 截取当前视口截图
func (d *ChromeDPDriver) Screenshot(ctx context.Context) (string, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return "", fmt.Errorf("screenshot failed: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// --- plumbing ---

func (d *ChromeDPDriver) activeTab() (*tabContext, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tab, ok := d.tabs[d.current]
	if !ok {
		return nil, ErrNoActiveTab
	}
	return tab, nil
}

// browserExecutor routes target-domain commands through the browser
// connection so they work even after the first tab is gone.
func (d *ChromeDPDriver) browserExecutor(ctx context.Context) context.Context {
	return cdp.WithExecutor(ctx, chromedp.FromContext(d.browserCtx).Browser)
}

func (d *ChromeDPDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	tab, err := d.activeTab()
	if err != nil {
		return err
	}
	return d.runOn(ctx, tab.ctx, actions...)
}

// runOn executes actions on a chromedp context while honouring the caller's
// cancellation and deadline.
func (d *ChromeDPDriver) runOn(ctx, chromeCtx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(chromeCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var dlCancel context.CancelFunc
		runCtx, dlCancel = context.WithDeadline(runCtx, deadline)
		defer dlCancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func pageTargetIDs(infos []*target.Info) []string {
	ids := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.Type == "page" {
			ids = append(ids, string(info.TargetID))
		}
	}
	return ids
}

func lookupStyle(styles []*css.ComputedStyleProperty, property string) string {
	for _, s := range styles {
		if s.Name == property {
			return s.Value
		}
	}
	return ""
}

// quadCenter returns the center of a DOM quad (x1,y1,...,x4,y4).
func quadCenter(q dom.Quad) (float64, float64) {
	if len(q) < 8 {
		return 0, 0
	}
	var x, y float64
	for i := 0; i < 8; i += 2 {
		x += q[i]
		y += q[i+1]
	}
	return x / 4, y / 4
}

// functionCall wraps script in a function invoked with JSON-encoded args.
// Async scripts receive a done callback as their last argument.
func functionCall(script string, args []any, async bool) (string, error) {
	if args == nil {
		args = []any{}
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to encode script arguments: %w", err)
	}
	fn := "(function(){" + script + "\n})"
	if !async {
		return fn + ".apply(null, " + string(encoded) + ")", nil
	}
	return "new Promise(function(done){" + fn + ".apply(null, " + string(encoded) + ".concat([done]));})", nil
}

func callExpression(script, selector string) string {
	encoded, _ := json.Marshal(selector)
	return "(" + script + ")(" + string(encoded) + ")"
}

const visibilityScript = `function(sel) {
  var el = (sel.charAt(0) === '/' || sel.charAt(0) === '(')
    ? document.evaluate(sel, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue
    : document.querySelector(sel);
  if (!el) { return false; }
  var style = window.getComputedStyle(el);
  if (style.visibility === 'hidden' || style.display === 'none' || style.opacity === '0') { return false; }
  return !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);
}`
