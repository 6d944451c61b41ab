// Package scheduler is the message-passing boundary to the background-sync
// facility. The orchestrator only requests work by job name; consuming the
// job queue is the replay worker's side of the contract.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultJobQueueKey is the Redis list the named job requests go through.
const DefaultJobQueueKey = "sync:jobs"

// JobScheduler accepts fire-and-forget requests for named sync jobs.
type JobScheduler interface {
	Request(ctx context.Context, job string) error
}

// RedisJobScheduler pushes job names onto a Redis list consumed by the
// replay worker.
type RedisJobScheduler struct {
	client   *redis.Client
	queueKey string
}

func NewRedisJobScheduler(client *redis.Client, queueKey string) *RedisJobScheduler {
	if queueKey == "" {
		queueKey = DefaultJobQueueKey
	}
	return &RedisJobScheduler{client: client, queueKey: queueKey}
}

func (s *RedisJobScheduler) Request(ctx context.Context, job string) error {
	if s.client == nil {
		return errors.New("redis client is nil")
	}
	if job == "" {
		return errors.New("job name is required")
	}

	if err := s.client.LPush(ctx, s.queueKey, job).Err(); err != nil {
		return fmt.Errorf("failed to request job %s: %w", job, err)
	}
	return nil
}

// Next blocks up to wait for the next requested job. Returns ok=false when
// the queue stayed empty.
func (s *RedisJobScheduler) Next(ctx context.Context, wait time.Duration) (string, bool, error) {
	if s.client == nil {
		return "", false, errors.New("redis client is nil")
	}

	res, err := s.client.BRPop(ctx, wait, s.queueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.DeadlineExceeded) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to pop job: %w", err)
	}
	if len(res) != 2 {
		return "", false, nil
	}
	return res[1], true, nil
}
