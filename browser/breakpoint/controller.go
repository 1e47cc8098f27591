// Package breakpoint 提供进程级的动作前/后断点控制。
//
// 断点开启后，每个顶层动作都会在执行前或执行后挂起，直到被外部释放
// （Release/ReleaseAll、关闭对应开关）或调用方 context 被取消。
// 断点状态刻意在所有会话间共享，用于交互式调试时统一暂停。
package breakpoint

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Phase 断点所处阶段
type Phase string

const (
	PhaseBefore Phase = "before"
	PhaseAfter  Phase = "after"
)

// Suspension 描述一次正在挂起的调用
type Suspension struct {
	ID    string    `json:"id"`
	Phase Phase     `json:"phase"`
	Since time.Time `json:"since"`
}

// StateFunc 在挂起开始时被调用一次
type StateFunc func(s Suspension)

// Controller 保存 before/after 开关以及当前挂起的调用。
type Controller struct {
	logger *zap.Logger

	mu      sync.RWMutex
	before  bool
	after   bool
	pending map[string]*pendingSuspension
}

type pendingSuspension struct {
	info    Suspension
	release chan struct{}
	once    sync.Once
}

func (p *pendingSuspension) resume() {
	p.once.Do(func() { close(p.release) })
}

// NewController 创建新的断点控制器，初始两个开关均关闭。
func NewController(logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		logger:  logger.With(zap.String("component", "breakpoints")),
		pending: make(map[string]*pendingSuspension),
	}
}

var (
	defaultOnce       sync.Once
	defaultController *Controller
)

// Default 返回进程级共享控制器
func Default() *Controller {
	defaultOnce.Do(func() {
		defaultController = NewController(nil)
	})
	return defaultController
}

// SetBefore 开关动作前断点。关闭时释放所有处于 before 阶段的挂起调用。
func (c *Controller) SetBefore(enabled bool) {
	c.mu.Lock()
	c.before = enabled
	c.mu.Unlock()
	if !enabled {
		c.releasePhase(PhaseBefore)
	}
	c.logger.Info("before breakpoint toggled", zap.Bool("enabled", enabled))
}

// SetAfter 开关动作后断点。关闭时释放所有处于 after 阶段的挂起调用。
func (c *Controller) SetAfter(enabled bool) {
	c.mu.Lock()
	c.after = enabled
	c.mu.Unlock()
	if !enabled {
		c.releasePhase(PhaseAfter)
	}
	c.logger.Info("after breakpoint toggled", zap.Bool("enabled", enabled))
}

// Enabled 返回指定阶段的开关状态
func (c *Controller) Enabled(phase Phase) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch phase {
	case PhaseBefore:
		return c.before
	case PhaseAfter:
		return c.after
	default:
		return false
	}
}

// AwaitBefore 在 before 开关开启时挂起，直到被释放。
func (c *Controller) AwaitBefore(ctx context.Context, onState StateFunc) error {
	return c.await(ctx, PhaseBefore, onState)
}

// AwaitAfter 在 after 开关开启时挂起，直到被释放。
func (c *Controller) AwaitAfter(ctx context.Context, onState StateFunc) error {
	return c.await(ctx, PhaseAfter, onState)
}

func (c *Controller) await(ctx context.Context, phase Phase, onState StateFunc) error {
	c.mu.Lock()
	enabled := (phase == PhaseBefore && c.before) || (phase == PhaseAfter && c.after)
	if !enabled {
		c.mu.Unlock()
		return nil
	}
	p := &pendingSuspension{
		info: Suspension{
			ID:    uuid.NewString(),
			Phase: phase,
			Since: time.Now(),
		},
		release: make(chan struct{}),
	}
	c.pending[p.info.ID] = p
	c.mu.Unlock()

	c.logger.Debug("suspended at breakpoint",
		zap.String("id", p.info.ID),
		zap.String("phase", string(phase)),
	)
	if onState != nil {
		onState(p.info)
	}

	select {
	case <-p.release:
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, p.info.ID)
		c.mu.Unlock()
		return fmt.Errorf("%s breakpoint: %w", phase, ctx.Err())
	}
}

// Release 释放指定挂起调用
func (c *Controller) Release(id string) error {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("suspension not found or already released: %s", id)
	}
	p.resume()
	c.logger.Debug("suspension released", zap.String("id", id))
	return nil
}

// ReleaseAll 释放全部挂起调用，返回释放数量
func (c *Controller) ReleaseAll() int {
	return c.releaseMatching(func(Phase) bool { return true })
}

func (c *Controller) releasePhase(phase Phase) int {
	return c.releaseMatching(func(p Phase) bool { return p == phase })
}

func (c *Controller) releaseMatching(match func(Phase) bool) int {
	c.mu.Lock()
	var released []*pendingSuspension
	for id, p := range c.pending {
		if match(p.info.Phase) {
			released = append(released, p)
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()

	for _, p := range released {
		p.resume()
	}
	if len(released) > 0 {
		c.logger.Info("suspensions released", zap.Int("count", len(released)))
	}
	return len(released)
}

// Suspended 返回当前挂起的调用，按挂起时间排序
func (c *Controller) Suspended() []Suspension {
	c.mu.RLock()
	out := make([]Suspension, 0, len(c.pending))
	for _, p := range c.pending {
		out = append(out, p.info)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Since.Before(out[j].Since)
	})
	return out
}
