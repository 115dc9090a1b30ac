// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Kind names the kind of work a Job represents (e.g. "full_index" or
// "incremental_sync"), as opposed to which logical queue carries it.
// The service runs one RedisQueue per logical queue, so a Kind's queue
// is a property of which Queue it was enqueued on, not of the Kind
// itself.
type Kind string

// Job represents a job in the queue.
type Job struct {
	Type      Kind            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Queue defines the interface for job queues.
type Queue interface {
	// Enqueue adds a job to the queue.
	Enqueue(ctx context.Context, job Job) error

	// Dequeue blocks until a job is available, then returns it.
	// Returns an error if the context is cancelled or if the operation fails.
	Dequeue(ctx context.Context) (Job, error)
}

