package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mautops/rdrealty-lms/internal/cache"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counts struct {
	Pending int `json:"pending"`
}

// newRedisStore 使用 miniredis 创建 Redis 缓存
func newRedisStore(t *testing.T) (*cache.RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewRedisStore(client, "lms"), mr
}

// runStoreContract 两种实现共用的行为测试
func runStoreContract(t *testing.T, store cache.Store) {
	ctx := context.Background()

	var got counts
	found, err := store.Get(ctx, "counters:pending:bu-1:E-1", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "counters:pending:bu-1:E-1", counts{Pending: 3}, time.Minute))
	require.NoError(t, store.Set(ctx, "counters:pending:bu-1:E-2", counts{Pending: 5}, time.Minute))
	require.NoError(t, store.Set(ctx, "counters:pending:bu-2:E-9", counts{Pending: 7}, time.Minute))

	found, err = store.Get(ctx, "counters:pending:bu-1:E-1", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 3, got.Pending)

	require.NoError(t, store.DeletePrefix(ctx, "counters:pending:bu-1:"))

	found, _ = store.Get(ctx, "counters:pending:bu-1:E-1", &got)
	assert.False(t, found)
	found, _ = store.Get(ctx, "counters:pending:bu-1:E-2", &got)
	assert.False(t, found)

	// 其他业务单元不受影响
	found, err = store.Get(ctx, "counters:pending:bu-2:E-9", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 7, got.Pending)
}

// TestMemoryStore_Contract 测试进程内缓存
func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, cache.NewMemoryStore())
}

// TestRedisStore_Contract 测试 Redis 缓存
func TestRedisStore_Contract(t *testing.T) {
	store, _ := newRedisStore(t)
	runStoreContract(t, store)
}

// TestMemoryStore_Expiry 测试过期
func TestMemoryStore_Expiry(t *testing.T) {
	store := cache.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", counts{Pending: 1}, 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	var got counts
	found, err := store.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

// TestRedisStore_Expiry 测试 Redis 过期
func TestRedisStore_Expiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", counts{Pending: 1}, time.Second))
	assert.True(t, mr.Exists("lms:k"))

	mr.FastForward(2 * time.Second)

	var got counts
	found, err := store.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

// TestKey 测试键拼接
func TestKey(t *testing.T) {
	assert.Equal(t, "counters:pending:bu-1:E-1", cache.Key("counters", "pending", "bu-1", "E-1"))
}
