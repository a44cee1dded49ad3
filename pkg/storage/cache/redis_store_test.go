package cache

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dagvault/pkg/multihash"
	"dagvault/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SpyStore 统计底层方法被调用的次数，验证请求是否穿透了缓存
type SpyStore struct {
	hasCount int32
	putCount int32
	mu       sync.Mutex
	blocks   map[multihash.Multihash][]byte
}

func NewSpyStore() *SpyStore {
	return &SpyStore{blocks: make(map[multihash.Multihash][]byte)}
}

func (s *SpyStore) Has(ctx context.Context, hash multihash.Multihash) (bool, error) {
	atomic.AddInt32(&s.hasCount, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blocks[hash]
	return ok, nil
}

func (s *SpyStore) Put(ctx context.Context, hash multihash.Multihash, data []byte) error {
	atomic.AddInt32(&s.putCount, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[hash] = data
	return nil
}

func (s *SpyStore) Get(ctx context.Context, hash multihash.Multihash) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blocks[hash]
	if !ok {
		return nil, storage.ErrBlockNotFound
	}
	return data, nil
}

func (s *SpyStore) ExpandHash(ctx context.Context, prefix multihash.Prefix) (multihash.Multihash, error) {
	return multihash.Multihash{}, storage.ErrBlockNotFound
}

func TestCachedStore_Integration(t *testing.T) {
	// A. 环境检查: 确保 Redis 在运行
	redisAddr := "localhost:6379"
	conn, err := net.DialTimeout("tcp", redisAddr, 1*time.Second)
	if err != nil {
		t.Skipf("Skipping Redis integration test: %v", err)
	}
	conn.Close()

	// B. 初始化
	ctx := context.Background()
	spy := NewSpyStore()
	cachedStore, err := NewCachedStore(spy, Config{
		RedisURL: fmt.Sprintf("redis://%s/0", redisAddr),
		TTL:      1 * time.Hour,
	})
	require.NoError(t, err)
	defer cachedStore.Close()

	// 清理 Redis (防止上次测试残留)
	cachedStore.client.FlushDB(ctx)

	data := []byte("cached block")
	hash := multihash.Sum(multihash.SHA2_256, data)

	// --- Step 1: Cache Miss ---
	exists, err := cachedStore.Has(ctx, hash)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, int32(1), atomic.LoadInt32(&spy.hasCount), "Backend Has() should be called on miss")

	// --- Step 2: Put (Write-Through) ---
	require.NoError(t, cachedStore.Put(ctx, hash, data))
	assert.Equal(t, int32(1), atomic.LoadInt32(&spy.putCount), "Backend Put() should be called")

	redisVal, err := cachedStore.client.Exists(ctx, cachedStore.cacheKey(hash)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), redisVal, "Redis key should be set after Put")

	// --- Step 3: Cache Hit ---
	// Put 内部的预检算一次，之后的 Has 不应再穿透
	exists, err = cachedStore.Has(ctx, hash)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, int32(2), atomic.LoadInt32(&spy.hasCount), "Backend Has() should NOT be called on hit")

	// --- Step 4: 重复 Put 被缓存拦截 ---
	require.NoError(t, cachedStore.Put(ctx, hash, data))
	assert.Equal(t, int32(1), atomic.LoadInt32(&spy.putCount))

	// --- Step 5: Get 透传 ---
	got, err := cachedStore.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestNewCachedStore_InvalidURL(t *testing.T) {
	_, err := NewCachedStore(NewSpyStore(), Config{RedisURL: "not-a-url://"})
	assert.Error(t, err)
}
