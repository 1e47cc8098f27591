package cache

import (
	"context"
	"crypto/tls"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)

	config := Config{
		Addr:         mr.Addr(),
		DefaultTTL:   time.Minute,
		StreamMaxLen: 100,
	}
	manager, err := NewManager(config, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return mr, manager
}

func TestNewManager_ConnectFailure(t *testing.T) {
	_, err := NewManager(Config{Addr: "127.0.0.1:1"}, nil)
	assert.Error(t, err)
}

func TestManager_AppendAndRange(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	id1, err := manager.Append(ctx, "steps:s1", map[string]any{"event": "start", "action": "click"})
	require.NoError(t, err)
	id2, err := manager.Append(ctx, "steps:s1", map[string]any{"event": "end", "action": "click"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	entries, err := manager.Range(ctx, "steps:s1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, id1, entries[0].ID)
	assert.Equal(t, "start", entries[0].Fields["event"])
	assert.Equal(t, "end", entries[1].Fields["event"])

	entries, err = manager.Range(ctx, "steps:s1", 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	n, err := manager.Length(ctx, "steps:s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestManager_SnapshotJSON(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	type snapshot struct {
		Action string `json:"action"`
		Open   bool   `json:"open"`
	}

	require.NoError(t, manager.SetJSON(ctx, "last:s1", snapshot{Action: "click", Open: true}, 0))
	assert.Equal(t, time.Minute, mr.TTL("last:s1"))

	var got snapshot
	require.NoError(t, manager.GetJSON(ctx, "last:s1", &got))
	assert.Equal(t, snapshot{Action: "click", Open: true}, got)

	err := manager.GetJSON(ctx, "missing", &got)
	assert.True(t, IsCacheMiss(err))

	require.NoError(t, manager.Delete(ctx, "last:s1"))
	assert.False(t, mr.Exists("last:s1"))
	require.NoError(t, manager.Delete(ctx))
}

func TestManager_Closed(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Ping(ctx))
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	_, err := manager.Append(ctx, "s", map[string]any{"a": 1})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = manager.Range(ctx, "s", 0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, manager.Ping(ctx), ErrClosed)
	assert.ErrorIs(t, manager.SetJSON(ctx, "k", 1, 0), ErrClosed)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Positive(t, cfg.StreamMaxLen)
	assert.Positive(t, cfg.DefaultTTL)
}

func TestRedisOptions(t *testing.T) {
	opts := redisOptions(Config{Addr: "cache:6379", DB: 2, PoolSize: 5})
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 5, opts.PoolSize)
	assert.Nil(t, opts.TLSConfig)

	opts = redisOptions(Config{Addr: "cache:6380", TLS: true})
	require.NotNil(t, opts.TLSConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), opts.TLSConfig.MinVersion)
}
