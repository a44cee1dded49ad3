package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dagvault/pkg/multihash"
	"dagvault/pkg/storage"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "dv:blk:"

// CachedStore 是一个装饰器，为底层 storage.Store 的存在性查询加一层 Redis 缓存
type CachedStore struct {
	backend storage.Store // 被装饰的底层存储 (如 S3)
	client  *redis.Client
	ttl     time.Duration
}

type Config struct {
	RedisURL string        // redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 0 表示不过期
}

func NewCachedStore(backend storage.Store, cfg Config) (*CachedStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &CachedStore{backend: backend, client: client, ttl: cfg.TTL}, nil
}

// cacheKey 以完整 hex 作为 key，加前缀防止和其他应用冲突
func (s *CachedStore) cacheKey(hash multihash.Multihash) string {
	return keyPrefix + hash.Hex()
}

// Has 优先查 Redis
func (s *CachedStore) Has(ctx context.Context, hash multihash.Multihash) (bool, error) {
	key := s.cacheKey(hash)

	// 1. 查 Redis，出错则降级为直接查底层
	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		slog.Warn("redis exists failed, falling back to backend", "hash", hash, "error", err)
	} else if val > 0 {
		return true, nil
	}

	// 2. 缓存未命中，查底层存储
	found, err := s.backend.Has(ctx, hash)
	if err != nil {
		return false, err
	}

	// 3. 异步回填，上层 ctx 取消也不影响
	if found {
		go func() {
			fillCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := s.client.Set(fillCtx, key, "1", s.ttl).Err(); err != nil {
				slog.Debug("redis cache fill failed", "hash", hash, "error", err)
			}
		}()
	}
	return found, nil
}

// Put 先用缓存预检，已存在的块不会再穿透到底层
func (s *CachedStore) Put(ctx context.Context, hash multihash.Multihash, data []byte) error {
	exists, err := s.Has(ctx, hash)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := s.backend.Put(ctx, hash, data); err != nil {
		return err
	}

	// 只有底层写成功了才写 Redis，失败不影响主流程
	if err := s.client.Set(ctx, s.cacheKey(hash), "1", s.ttl).Err(); err != nil {
		slog.Warn("redis set failed", "hash", hash, "error", err)
	}
	return nil
}

// Get 透传，块内容不进 Redis
func (s *CachedStore) Get(ctx context.Context, hash multihash.Multihash) ([]byte, error) {
	return s.backend.Get(ctx, hash)
}

// ExpandHash 透传
func (s *CachedStore) ExpandHash(ctx context.Context, prefix multihash.Prefix) (multihash.Multihash, error) {
	return s.backend.ExpandHash(ctx, prefix)
}

// Close 释放 Redis 连接
func (s *CachedStore) Close() error {
	return s.client.Close()
}
