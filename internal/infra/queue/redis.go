package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"newsroom/internal/domain"
	"newsroom/internal/infra/metrics"
)

// RedisActionQueue реализует очередь задач на базе Redis lists.
type RedisActionQueue struct {
	client *redis.Client
	key    string
}

var _ domain.ActionQueue = (*RedisActionQueue)(nil)

// NewRedisActionQueue создаёт очередь по указанному ключу.
func NewRedisActionQueue(client *redis.Client, key string) *RedisActionQueue {
	return &RedisActionQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisActionQueue) Enqueue(ctx context.Context, job domain.ActionJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу. При неуспешной обработке задача возвращается в хвост очереди.
func (q *RedisActionQueue) Receive(ctx context.Context) (domain.ActionJob, domain.AckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.ActionJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.ActionJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.ActionJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.ActionJob{}, nil, errors.New("redis queue: unexpected response")
		}
		payload := []byte(res[1])
		var job domain.ActionJob
		if err := json.Unmarshal(payload, &job); err != nil {
			return domain.ActionJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.client.RPush(context.Background(), q.key, payload).Err()
		}
		return job, ack, nil
	}
}
