package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"newsroom/internal/domain"
	"newsroom/internal/infra/metrics"
)

// markTTL хранит отметку дольше суток, чтобы покрыть любые смещения часовых поясов.
const markTTL = 48 * time.Hour

// RedisCache реализует domain.Cache и domain.ScheduleMarkRepo через Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
}

var (
	_ domain.Cache            = (*RedisCache)(nil)
	_ domain.ScheduleMarkRepo = (*RedisCache)(nil)
)

// NewRedis создаёт кэш.
func NewRedis(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, prefix: "newsroom:"}
}

// AcquireScheduleMark выставляет отметку через SETNX.
func (c *RedisCache) AcquireScheduleMark(ctx context.Context, personaID int64, action domain.Action, day string) (bool, error) {
	key := fmt.Sprintf("%smark:%d:%s:%s", c.prefix, personaID, action, day)
	start := time.Now()
	ok, err := c.client.SetNX(ctx, key, "1", markTTL).Result()
	metrics.ObserveNetworkRequest("redis", "setnx", "schedule_mark", start, err)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Set задаёт значение.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.client.Set(ctx, c.prefix+key, value, ttl).Err()
	metrics.ObserveNetworkRequest("redis", "set", "cache", start, err)
	return err
}

// Get возвращает значение. Отсутствующий ключ даёт domain.ErrNotFound.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.ObserveNetworkRequest("redis", "get", "cache", start, nil)
		return nil, domain.ErrNotFound
	}
	metrics.ObserveNetworkRequest("redis", "get", "cache", start, err)
	return data, err
}
