// 配置文件热重载实现。
//
// 通过轮询文件修改时间触发重新加载，新配置校验失败时保留旧配置。
package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// --- 类型定义 ---

// ReloadCallback 在配置成功重载后调用
type ReloadCallback func(oldConfig, newConfig *Config)

// Reloader watches one config file and reloads it through a Loader.
type Reloader struct {
	mu sync.RWMutex

	loader   *Loader
	path     string
	interval time.Duration
	logger   *zap.Logger

	current   *Config
	lastMod   time.Time
	callbacks []ReloadCallback

	running bool
	stop    chan struct{}
	done    chan struct{}
}

// ReloaderOption configures the Reloader
type ReloaderOption func(*Reloader)

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) ReloaderOption {
	return func(r *Reloader) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithReloaderLogger sets the logger for the reloader
func WithReloaderLogger(logger *zap.Logger) ReloaderOption {
	return func(r *Reloader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// --- 实现 ---

// NewReloader creates a reloader for path starting from the already loaded
// initial config. loader may be nil, in which case NewLoader() is used.
func NewReloader(loader *Loader, path string, initial *Config, opts ...ReloaderOption) (*Reloader, error) {
	if path == "" {
		return nil, fmt.Errorf("reloader requires a config path")
	}
	if initial == nil {
		return nil, fmt.Errorf("reloader requires an initial config")
	}
	if loader == nil {
		loader = NewLoader()
	}

	r := &Reloader{
		loader:   loader,
		path:     path,
		interval: time.Second,
		logger:   zap.NewNop(),
		current:  initial,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "config_reloader"))

	if info, err := os.Stat(path); err == nil {
		r.lastMod = info.ModTime()
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat path %s: %w", path, err)
	} else {
		r.logger.Warn("config file does not exist, will watch for creation", zap.String("path", path))
	}
	return r, nil
}

// OnReload registers a callback invoked after every successful reload
func (r *Reloader) OnReload(callback ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, callback)
}

// Current returns the last successfully loaded config
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Check polls the file once. It reports whether a new config was applied.
// A file that fails to load or validate leaves the current config in place.
func (r *Reloader) Check() (bool, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	r.mu.Lock()
	if !info.ModTime().After(r.lastMod) {
		r.mu.Unlock()
		return false, nil
	}
	r.lastMod = info.ModTime()
	r.mu.Unlock()

	next, err := r.loader.WithConfigPath(r.path).Load()
	if err != nil {
		r.logger.Warn("config reload rejected, keeping previous config",
			zap.String("path", r.path), zap.Error(err))
		return false, err
	}

	r.mu.Lock()
	prev := r.current
	r.current = next
	callbacks := make([]ReloadCallback, len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.Unlock()

	r.logger.Info("config reloaded", zap.String("path", r.path))
	for _, cb := range callbacks {
		cb(prev, next)
	}
	return true, nil
}

// Start begins polling in the background until ctx is done or Stop is called.
func (r *Reloader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reloader already running")
	}
	r.running = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	stop, done := r.stop, r.done
	r.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				_, _ = r.Check()
			}
		}
	}()

	r.logger.Info("config reloader started",
		zap.String("path", r.path),
		zap.Duration("interval", r.interval))
	return nil
}

// Stop stops polling and waits for the loop to exit
func (r *Reloader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stop)
	done := r.done
	r.mu.Unlock()

	<-done
	r.logger.Info("config reloader stopped")
}

// IsRunning returns whether the poll loop is active
func (r *Reloader) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}
