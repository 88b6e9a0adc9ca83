package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "jusox:lookup:"

// RedisStore 把响应缓存放在 Redis，适合多个 serve 实例共享。
type RedisStore struct {
	client   *redis.Client
	readOnly bool
}

// NewRedisStore 解析 redis:// URL 并检查连通性。
func NewRedisStore(ctx context.Context, url string, readOnly bool) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{client: client, readOnly: readOnly}, nil
}

// NewRedisStoreFromClient 复用已有连接（测试或上层自行管理连接池时使用）。
func NewRedisStoreFromClient(client *redis.Client, readOnly bool) *RedisStore {
	return &RedisStore{client: client, readOnly: readOnly}
}

func (s *RedisStore) ReadOnly() bool { return s.readOnly }

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Set 使用 SET key value EX ttl；ttl<=0 表示不过期。
func (s *RedisStore) Set(ctx context.Context, key string, b []byte, ttl time.Duration) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, redisKeyPrefix+key, b, ttl).Err()
}

func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
