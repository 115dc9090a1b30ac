// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gitlab-rag/indexer/internal/logger"
)

// RedisQueue implements Queue using Redis Lists. One instance backs one
// logical queue (distinguished by key), so the service dials a
// separate RedisQueue per job kind it wants its own worker pool for.
type RedisQueue struct {
	client *redis.Client
	key    string
	log    *logger.Logger
}

// NewRedisQueue creates a new Redis-backed queue.
// client: the Redis client to use
// key: the Redis key name for the queue (e.g., "jobs:indexing")
// log: may be nil, in which case the queue logs nothing
func NewRedisQueue(client *redis.Client, key string, log *logger.Logger) (Queue, error) {
	if key == "" {
		key = "jobs:default"
	}

	logf(log, "NewRedisQueue: key=%s", key)

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		logf(log, "NewRedisQueue: failed to ping Redis: %v", err)
		return nil, err
	}

	return &RedisQueue{
		client: client,
		key:    key,
		log:    log,
	}, nil
}

// Enqueue adds a job to the queue using RPUSH.
func (r *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	logf(r.log, "Enqueue: key=%s job type=%s createdAt=%s", r.key, job.Type, job.CreatedAt.Format(time.RFC3339))

	data, err := json.Marshal(job)
	if err != nil {
		logf(r.log, "Enqueue: failed to marshal job: %v", err)
		return err
	}

	if err := r.client.RPush(ctx, r.key, data).Err(); err != nil {
		logf(r.log, "Enqueue: failed to push to Redis: %v", err)
		return err
	}

	logf(r.log, "Enqueue: successfully enqueued job type=%s on key=%s", job.Type, r.key)
	return nil
}

// Dequeue blocks until a job is available using BLPOP, then returns it.
func (r *RedisQueue) Dequeue(ctx context.Context) (Job, error) {
	// Use a channel to handle context cancellation
	type result struct {
		val []string
		err error
	}
	resultChan := make(chan result, 1)

	go func() {
		val, err := r.client.BLPop(ctx, 0, r.key).Result()
		resultChan <- result{val: val, err: err}
	}()

	select {
	case <-ctx.Done():
		return Job{}, ctx.Err()
	case res := <-resultChan:
		if res.err != nil {
			if res.err == redis.Nil {
				return Job{}, ctx.Err()
			}
			logf(r.log, "Dequeue: key=%s failed to pop from Redis: %v", r.key, res.err)
			return Job{}, res.err
		}

		if len(res.val) < 2 {
			return Job{}, fmt.Errorf("invalid result from Redis")
		}

		data := res.val[1]
		var job Job
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			logf(r.log, "Dequeue: key=%s failed to unmarshal job: %v", r.key, err)
			return Job{}, err
		}

		logf(r.log, "Dequeue: key=%s dequeued job type=%s createdAt=%s", r.key, job.Type, job.CreatedAt.Format(time.RFC3339))
		return job, nil
	}
}

func logf(log *logger.Logger, format string, v ...interface{}) {
	if log != nil {
		log.Printf(format, v...)
	}
}

