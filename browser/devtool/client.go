// Package devtool 实现到调试面板的 WebSocket 旁路通道。
//
// 客户端向面板推送元素高亮、步骤生命周期与断点挂起通知，
// 并接收面板下发的断点开关与释放命令。所有推送均为尽力而为，
// 通道故障不会影响动作执行结果。
package devtool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/testflow/browser/breakpoint"
	"github.com/BaSui01/testflow/browser/steplog"
	"github.com/BaSui01/testflow/internal/ctxkeys"
	"github.com/BaSui01/testflow/internal/metrics"
	"github.com/BaSui01/testflow/internal/tlsutil"
)

// ErrClosed 通道已关闭
var ErrClosed = errors.New("devtool connection closed")

// BreakpointControl 是远程断点命令作用的对象，通常为 *breakpoint.Controller。
type BreakpointControl interface {
	SetBefore(enabled bool)
	SetAfter(enabled bool)
	Release(id string) error
	ReleaseAll() int
}

// Client devtool WebSocket 客户端
type Client struct {
	conn         *websocket.Conn
	breakpoints  BreakpointControl
	metrics      *metrics.Collector
	logger       *zap.Logger
	writeTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex // 保护写操作
	closed bool
}

// Option 客户端选项
type Option func(*Client)

// WithBreakpoints 接收远程断点命令
func WithBreakpoints(b BreakpointControl) Option {
	return func(c *Client) { c.breakpoints = b }
}

// WithMetrics 统计收发消息
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithWriteTimeout 单次推送的超时，默认 2s
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// Dial 连接 devtool 面板并启动命令读取循环。
// handshakeTimeout <= 0 时仅受 ctx 约束。
func Dial(ctx context.Context, url string, handshakeTimeout time.Duration, opts ...Option) (*Client, error) {
	if handshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, handshakeTimeout)
		defer cancel()
	}
	var dialOpts *websocket.DialOptions
	if strings.HasPrefix(url, "wss://") {
		dialOpts = &websocket.DialOptions{HTTPClient: tlsutil.WebSocketHTTPClient()}
	}
	conn, _, err := websocket.Dial(ctx, url, dialOpts)
	if err != nil {
		return nil, fmt.Errorf("devtool dial: %w", err)
	}
	c := newClient(conn, opts...)
	c.logger.Info("devtool connected", zap.String("url", url))
	return c, nil
}

func newClient(conn *websocket.Conn, opts ...Option) *Client {
	c := &Client{
		conn:         conn,
		logger:       zap.NewNop(),
		writeTimeout: 2 * time.Second,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "devtool"))
	c.ctx, c.cancel = context.WithCancel(context.Background())
	go c.readLoop()
	return c
}

// Done 在读取循环退出时关闭（面板断开或 Close）。
func (c *Client) Done() <-chan struct{} { return c.done }

// Highlight 请求面板高亮选择器对应的元素。
func (c *Client) Highlight(ctx context.Context, sessionID, selector string) error {
	return c.send(ctx, Message{Type: TypeHighlight, SessionID: sessionID, Selector: selector})
}

// NotifySuspended 通知面板有调用停在断点上，签名与 instrument.SuspendFunc 一致。
func (c *Client) NotifySuspended(s breakpoint.Suspension, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()
	err := c.send(ctx, Message{
		Type:       TypeSuspended,
		ID:         s.ID,
		Phase:      s.Phase,
		Message:    message,
		Suspension: &s,
	})
	if err != nil {
		c.logger.Debug("suspension notify failed", zap.Error(err))
	}
}

// StartStep 实现 steplog.Logger
func (c *Client) StartStep(ctx context.Context, step steplog.Step) {
	c.sendStep(ctx, TypeStepStart, step)
}

// EndStep 实现 steplog.Logger
func (c *Client) EndStep(ctx context.Context, step steplog.Step) {
	c.sendStep(ctx, TypeStepEnd, step)
}

// File 实现 steplog.Logger
func (c *Client) File(ctx context.Context, path string, kind steplog.LogType) {
	msg := Message{Type: TypeStepFile, Path: path, LogType: kind}
	msg.ID, _ = ctxkeys.StepID(ctx)
	msg.SessionID, _ = ctxkeys.SessionID(ctx)
	if err := c.send(ctx, msg); err != nil {
		c.logger.Debug("step file push failed", zap.Error(err))
	}
}

func (c *Client) sendStep(ctx context.Context, t MessageType, step steplog.Step) {
	err := c.send(ctx, Message{Type: t, SessionID: step.SessionID, ID: step.ID, Step: &step})
	if err != nil {
		c.logger.Debug("step push failed", zap.String("type", string(t)), zap.Error(err))
	}
}

func (c *Client) send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal devtool message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("devtool write: %w", err)
	}
	c.metrics.RecordDevtoolMessage("out", string(msg.Type))
	return nil
}

// =============================================================================
// 命令处理
// =============================================================================

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			if !c.isClosed() {
				c.logger.Warn("devtool connection lost", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("invalid devtool message", zap.Error(err))
			continue
		}
		c.metrics.RecordDevtoolMessage("in", string(msg.Type))
		c.handle(msg)
	}
}

func (c *Client) handle(msg Message) {
	switch msg.Type {
	case TypePing:
		ctx, cancel := context.WithTimeout(c.ctx, c.writeTimeout)
		defer cancel()
		if err := c.send(ctx, Message{Type: TypePong, ID: msg.ID}); err != nil {
			c.logger.Debug("pong failed", zap.Error(err))
		}

	case TypeBreakpointSet:
		if c.breakpoints == nil || msg.Enabled == nil {
			return
		}
		switch msg.Phase {
		case breakpoint.PhaseBefore:
			c.breakpoints.SetBefore(*msg.Enabled)
		case breakpoint.PhaseAfter:
			c.breakpoints.SetAfter(*msg.Enabled)
		default:
			c.logger.Warn("unknown breakpoint phase", zap.String("phase", string(msg.Phase)))
		}

	case TypeBreakpointRelease:
		if c.breakpoints == nil {
			return
		}
		if msg.ID == "" {
			c.breakpoints.ReleaseAll()
			return
		}
		if err := c.breakpoints.Release(msg.ID); err != nil {
			c.logger.Warn("remote release failed", zap.Error(err))
		}

	default:
		c.logger.Debug("ignoring devtool message", zap.String("type", string(msg.Type)))
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close 关闭连接并等待读取循环退出。
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.conn.Close(websocket.StatusNormalClosure, "closing")
	c.cancel()
	<-c.done
	c.logger.Info("devtool disconnected")
	return err
}
