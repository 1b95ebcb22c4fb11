package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default Redis list keys
const (
	DefaultQueueKey      = "notify:queue"
	DefaultDeadLetterKey = "notify:dead"
)

// RedisQueue is a FIFO over a Redis list: LPUSH to enqueue, BRPOP to dequeue.
type RedisQueue struct {
	rdb     *redis.Client
	key     string
	deadKey string
}

// NewRedisQueue returns a queue on the default keys.
func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: DefaultQueueKey, deadKey: DefaultDeadLetterKey}
}

func (q *RedisQueue) Push(ctx context.Context, t Task) error {
	return q.push(ctx, q.key, t)
}

func (q *RedisQueue) DeadLetter(ctx context.Context, t Task) error {
	return q.push(ctx, q.deadKey, t)
}

func (q *RedisQueue) push(ctx context.Context, key string, t Task) error {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("notify: encode task: %w", err)
	}
	return q.rdb.LPush(ctx, key, b).Err()
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*Task, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// res is [key, value]
	var t Task
	if err := json.Unmarshal([]byte(res[1]), &t); err != nil {
		return nil, fmt.Errorf("notify: decode task: %w", err)
	}
	return &t, nil
}

// Pending reports the number of queued tasks.
func (q *RedisQueue) Pending(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

// Dead returns up to limit dead-lettered tasks, newest first.
func (q *RedisQueue) Dead(ctx context.Context, limit int64) ([]Task, error) {
	vals, err := q.rdb.LRange(ctx, q.deadKey, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	tasks := make([]Task, 0, len(vals))
	for _, v := range vals {
		var t Task
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			return nil, fmt.Errorf("notify: decode task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
