package browser

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/testflow/browser/driver"
)

// DriverFactory creates a driver for a new session.
type DriverFactory interface {
	Create(ctx context.Context) (driver.Driver, error)
}

// DriverFactoryFunc adapts a function to DriverFactory.
type DriverFactoryFunc func(ctx context.Context) (driver.Driver, error)

// Create implements DriverFactory.
func (f DriverFactoryFunc) Create(ctx context.Context) (driver.Driver, error) { return f(ctx) }

// ChromeDPFactory 为每个会话启动一个独立的 chromedp 浏览器
type ChromeDPFactory struct {
	config driver.Config
	logger *zap.Logger
}

// NewChromeDPFactory 创建工厂
func NewChromeDPFactory(config driver.Config, logger *zap.Logger) *ChromeDPFactory {
	return &ChromeDPFactory{config: config, logger: logger}
}

// Create 启动浏览器
func (f *ChromeDPFactory) Create(ctx context.Context) (driver.Driver, error) {
	return driver.NewChromeDPDriver(f.config, f.logger)
}

// SessionOptionsFunc builds per-session options, e.g. a screenshot pipeline
// bound to the session's own driver.
type SessionOptionsFunc func(id string, d driver.Driver) ([]SessionOption, error)

// Manager 按 ID 管理多个会话
type Manager struct {
	sessions map[string]*Session
	factory  DriverFactory
	config   SessionConfig
	options  SessionOptionsFunc
	mu       sync.Mutex
	logger   *zap.Logger
}

// NewManager 创建会话管理器。options 可为 nil。
func NewManager(factory DriverFactory, config SessionConfig, options SessionOptionsFunc, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		factory:  factory,
		config:   config,
		options:  options,
		logger:   logger.With(zap.String("component", "session_manager")),
	}
}

// GetOrCreate 返回已有会话或创建新会话
func (m *Manager) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s, nil
	}

	d, err := m.factory.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}

	opts := []SessionOption{WithSessionID(id), WithLogger(m.logger)}
	if m.options != nil {
		extra, err := m.options(id, d)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("failed to build session options: %w", err)
		}
		opts = append(opts, extra...)
	}

	s, err := NewSession(d, m.config, opts...)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	m.sessions[s.ID()] = s
	return s, nil
}

// Get 返回已有会话
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// IDs 返回全部会话 ID，已排序
func (m *Manager) IDs() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// CloseSession 关闭指定会话
func (m *Manager) CloseSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		delete(m.sessions, id)
		return s.Close()
	}
	return nil
}

// CloseAll 关闭全部会话
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lastErr error
	for id, s := range m.sessions {
		if err := s.Close(); err != nil {
			lastErr = err
			m.logger.Error("failed to close session", zap.String("id", id), zap.Error(err))
		}
		delete(m.sessions, id)
	}
	return lastErr
}
