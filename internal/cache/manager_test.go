package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/config"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)

	manager, err := NewManager(Config{
		Addr:       mr.Addr(),
		KeyPrefix:  "test:",
		DefaultTTL: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return mr, manager
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(
		config.RedisConfig{Addr: "redis:6379", Password: "pw", DB: 2, PoolSize: 0, MinIdleConns: 1},
		config.CacheConfig{TTL: time.Hour, KeyPrefix: "o:"},
	)
	assert.Equal(t, "redis:6379", cfg.Addr)
	assert.Equal(t, "pw", cfg.Password)
	assert.Equal(t, 2, cfg.DB)
	assert.Equal(t, 10, cfg.PoolSize, "zero pool size keeps the default")
	assert.Equal(t, time.Hour, cfg.DefaultTTL)
	assert.Equal(t, "o:", cfg.KeyPrefix)
}

func TestManager_SetAndGet(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k", "v", time.Minute))

	value, err := manager.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)

	// 键带前缀
	assert.True(t, mr.Exists("test:k"))
}

func TestManager_DefaultTTL(t *testing.T) {
	mr, manager := setupTestRedis(t)

	require.NoError(t, manager.Set(context.Background(), "k", "v", 0))
	assert.Equal(t, time.Minute, mr.TTL("test:k"))
}

func TestManager_GetNonExistent(t *testing.T) {
	_, manager := setupTestRedis(t)

	value, err := manager.Get(context.Background(), "missing")
	assert.True(t, IsCacheMiss(err))
	assert.Equal(t, "", value)
}

func TestManager_Delete(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, manager.Set(ctx, "b", "2", time.Minute))
	require.NoError(t, manager.Delete(ctx, "a", "b"))
	require.NoError(t, manager.Delete(ctx))

	_, err := manager.Get(ctx, "a")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_JSON(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}
	require.NoError(t, manager.SetJSON(ctx, "j", payload{Name: "n", Value: 7}, time.Minute))

	var got payload
	require.NoError(t, manager.GetJSON(ctx, "j", &got))
	assert.Equal(t, payload{Name: "n", Value: 7}, got)

	// 无法序列化
	assert.Error(t, manager.SetJSON(ctx, "bad", make(chan int), time.Minute))

	// 无效 JSON
	require.NoError(t, manager.Set(ctx, "raw", "not a json", time.Minute))
	var m map[string]any
	err := manager.GetJSON(ctx, "raw", &m)
	require.Error(t, err)
	assert.False(t, IsCacheMiss(err))
}

func TestManager_TTL(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "ttl", "value", 100*time.Millisecond))

	value, err := manager.Get(ctx, "ttl")
	require.NoError(t, err)
	assert.Equal(t, "value", value)

	mr.FastForward(200 * time.Millisecond)

	_, err = manager.Get(ctx, "ttl")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_Closed(t *testing.T) {
	_, manager := setupTestRedis(t)
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	ctx := context.Background()
	assert.ErrorIs(t, manager.Ping(ctx), ErrClosed)
	assert.ErrorIs(t, manager.Set(ctx, "k", "v", 0), ErrClosed)
	_, err := manager.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestManager_ConnectFailed(t *testing.T) {
	manager, err := NewManager(Config{Addr: "localhost:1"}, zap.NewNop())
	assert.Nil(t, manager)
	assert.Error(t, err)
}

func TestManager_ConcurrentOperations(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := fmt.Sprintf("concurrent-%d", id)
			assert.NoError(t, manager.Set(ctx, key, "value", time.Minute))
			value, err := manager.Get(ctx, key)
			assert.NoError(t, err)
			assert.Equal(t, "value", value)
		}(i)
	}
	wg.Wait()
}
