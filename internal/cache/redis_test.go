package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/kbroute/config"
)

// =============================================================================
// 🧪 RedisStore 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)

	store, err := NewRedisStore(RedisConfig{
		Addr:      mr.Addr(),
		KeyPrefix: "kbroute:",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return mr, store
}

func TestRedisStore_SetAndGet(t *testing.T) {
	mr, store := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "test-key", []byte("test-value"), time.Minute))

	value, err := store.Get(ctx, "test-key")
	require.NoError(t, err)
	assert.Equal(t, "test-value", string(value))

	// 键带前缀
	raw, err := mr.Get("kbroute:test-key")
	require.NoError(t, err)
	assert.Equal(t, "test-value", raw)
}

func TestRedisStore_Miss(t *testing.T) {
	_, store := setupTestRedis(t)
	_, err := store.Get(context.Background(), "non-existent")
	assert.True(t, IsCacheMiss(err))
}

func TestRedisStore_TTL(t *testing.T) {
	mr, store := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "test-ttl", []byte("value"), 100*time.Millisecond))
	_, err := store.Get(ctx, "test-ttl")
	require.NoError(t, err)

	mr.FastForward(200 * time.Millisecond)

	_, err = store.Get(ctx, "test-ttl")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisStore_NoTTLPersists(t *testing.T) {
	mr, store := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "forever", []byte("v"), 0))
	mr.FastForward(24 * time.Hour)
	_, err := store.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestRedisStore_Delete(t *testing.T) {
	_, store := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, store.Delete(ctx))

	_, err := store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisStore_CloseIsIdempotent(t *testing.T) {
	_, store := setupTestRedis(t)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
	assert.ErrorIs(t, store.Ping(context.Background()), ErrClosed)
}

func TestNewRedisStore_ConnectFailure(t *testing.T) {
	store, err := NewRedisStore(RedisConfig{Addr: "127.0.0.1:1"}, zap.NewNop())
	assert.Nil(t, store)
	assert.Error(t, err)
}

func TestNew_Backends(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := New(config.CacheConfig{Backend: "memory"}, config.RedisConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Name())

	s, err = New(config.CacheConfig{Backend: "lru", MaxEntries: 10}, config.RedisConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "lru", s.Name())

	s, err = New(config.CacheConfig{Backend: "redis", KeyPrefix: "p:"}, config.RedisConfig{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "redis", s.Name())
	require.NoError(t, s.Close())

	_, err = New(config.CacheConfig{Backend: "memcached"}, config.RedisConfig{}, nil)
	assert.Error(t, err)
}
