// Package cache provides the redis-backed step event stream.
// This package is internal and should not be imported by external projects.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/testflow/internal/tlsutil"
)

// =============================================================================
// 💾 Redis 管理器
// =============================================================================

// Manager 管理 Redis 连接，提供事件流追加/读取与键值快照
type Manager struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
}

// Config Redis 配置
type Config struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr" env:"ADDR"`

	// 密码
	Password string `yaml:"password" json:"password" env:"PASSWORD"`

	// 数据库编号
	DB int `yaml:"db" json:"db" env:"DB"`

	// 快照默认过期时间
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl" env:"DEFAULT_TTL"`

	// 单个事件流保留的最大条目数（近似裁剪），0 表示不裁剪
	StreamMaxLen int64 `yaml:"stream_max_len" json:"stream_max_len" env:"STREAM_MAX_LEN"`

	// 最大重试次数
	MaxRetries int `yaml:"max_retries" json:"max_retries" env:"MAX_RETRIES"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size" env:"POOL_SIZE"`

	// 健康检查间隔
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`

	// 启用 TLS（TLS 1.2+）
	TLS bool `yaml:"tls" json:"tls" env:"TLS"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		DefaultTTL:          24 * time.Hour,
		StreamMaxLen:        10000,
		MaxRetries:          3,
		PoolSize:            10,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Entry 事件流中的一条记录
type Entry struct {
	ID     string
	Fields map[string]any
}

// ErrClosed 管理器已关闭
var ErrClosed = errors.New("cache manager is closed")

// ErrCacheMiss 快照不存在
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss 判断是否为快照未命中
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// NewManager 创建管理器并校验连接
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(redisOptions(config))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &Manager{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "cache")),
		stop:   make(chan struct{}),
	}

	if config.HealthCheckInterval > 0 {
		go m.healthCheckLoop()
	}

	m.logger.Info("redis manager initialized",
		zap.String("addr", config.Addr),
		zap.Int64("stream_max_len", config.StreamMaxLen),
		zap.Bool("tls", config.TLS),
	)
	return m, nil
}

func redisOptions(config Config) *redis.Options {
	opts := &redis.Options{
		Addr:       config.Addr,
		Password:   config.Password,
		DB:         config.DB,
		MaxRetries: config.MaxRetries,
		PoolSize:   config.PoolSize,
	}
	if config.TLS {
		opts.TLSConfig = tlsutil.DefaultTLSConfig()
	}
	return opts
}

// =============================================================================
// 🎯 事件流
// =============================================================================

// Append 向事件流追加一条记录，返回记录 ID
func (m *Manager) Append(ctx context.Context, stream string, fields map[string]any) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", ErrClosed
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: fields,
	}
	if m.config.StreamMaxLen > 0 {
		args.MaxLen = m.config.StreamMaxLen
		args.Approx = true
	}

	id, err := m.redis.XAdd(ctx, args).Result()
	if err != nil {
		m.logger.Error("stream append failed", zap.String("stream", stream), zap.Error(err))
		return "", fmt.Errorf("stream append failed: %w", err)
	}
	return id, nil
}

// Range 按顺序读取事件流，count <= 0 时读取全部
func (m *Manager) Range(ctx context.Context, stream string, count int64) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	var (
		msgs []redis.XMessage
		err  error
	)
	if count > 0 {
		msgs, err = m.redis.XRangeN(ctx, stream, "-", "+", count).Result()
	} else {
		msgs, err = m.redis.XRange(ctx, stream, "-", "+").Result()
	}
	if err != nil {
		return nil, fmt.Errorf("stream range failed: %w", err)
	}

	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		entries = append(entries, Entry{ID: msg.ID, Fields: msg.Values})
	}
	return entries, nil
}

// Length 返回事件流长度
func (m *Manager) Length(ctx context.Context, stream string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrClosed
	}
	n, err := m.redis.XLen(ctx, stream).Result()
	if err != nil {
		return 0, fmt.Errorf("stream length failed: %w", err)
	}
	return n, nil
}

// =============================================================================
// 📸 快照
// =============================================================================

// SetJSON 写入 JSON 快照，ttl 为 0 时使用默认过期时间
func (m *Manager) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}
	if err := m.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		m.logger.Error("snapshot set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("snapshot set failed: %w", err)
	}
	return nil
}

// GetJSON 读取 JSON 快照
func (m *Manager) GetJSON(ctx context.Context, key string, dest any) error {
	m.mu.RLock()
	val, err := func() (string, error) {
		defer m.mu.RUnlock()
		if m.closed {
			return "", ErrClosed
		}
		return m.redis.Get(ctx, key).Result()
	}()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("snapshot get failed: %w", err)
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return nil
}

// Delete 删除键（快照或事件流）
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	if len(keys) == 0 {
		return nil
	}
	if err := m.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	return nil
}

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	return m.redis.Ping(ctx).Err()
}

// Close 关闭管理器
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	close(m.stop)
	m.logger.Info("closing redis manager")
	return m.redis.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

func (m *Manager) healthCheckLoop() {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.Ping(ctx); err != nil && !errors.Is(err, ErrClosed) {
			m.logger.Error("redis health check failed", zap.Error(err))
		} else {
			m.logger.Debug("redis health check passed")
		}
		cancel()
	}
}
