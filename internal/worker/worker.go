// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package worker

import (
	"context"
	"sync"

	"github.com/gitlab-rag/indexer/internal/logger"
	"github.com/gitlab-rag/indexer/internal/queue"
)

// HandlerFunc processes a job. It should return an error if processing fails.
type HandlerFunc func(ctx context.Context, job queue.Job) error

// StartWorkers starts a pool of workers that process jobs from the queue.
// ctx: context for cancellation (workers will stop when context is cancelled)
// q: the queue to dequeue jobs from
// handler: function to process each job
// workerCount: number of worker goroutines to start
// log: may be nil, in which case the pool logs nothing
func StartWorkers(ctx context.Context, q queue.Queue, handler HandlerFunc, workerCount int, log *logger.Logger) error {
	logf(log, "StartWorkers: workerCount=%d", workerCount)

	var wg sync.WaitGroup
	wg.Add(workerCount)

	for i := 0; i < workerCount; i++ {
		workerID := i + 1
		go func() {
			defer wg.Done()
			workerLoop(ctx, q, handler, workerID, log)
		}()
	}

	wg.Wait()
	logf(log, "StartWorkers: all workers stopped")
	return nil
}

// workerLoop is the main loop for a single worker.
func workerLoop(ctx context.Context, q queue.Queue, handler HandlerFunc, workerID int, log *logger.Logger) {
	logf(log, "workerLoop: workerID=%d started", workerID)

	for {
		select {
		case <-ctx.Done():
			logf(log, "workerLoop: workerID=%d context cancelled, stopping", workerID)
			return
		default:
		}

		// Dequeue a job (this blocks until a job is available or context is cancelled)
		job, err := q.Dequeue(ctx)
		if err != nil {
			if err == context.Canceled || err == context.DeadlineExceeded {
				logf(log, "workerLoop: workerID=%d context cancelled during dequeue", workerID)
				return
			}
			logf(log, "workerLoop: workerID=%d dequeue error: %v, continuing", workerID, err)
			continue
		}

		logf(log, "workerLoop: workerID=%d processing job type=%s createdAt=%s", workerID, job.Type, job.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))

		if err := handler(ctx, job); err != nil {
			logf(log, "workerLoop: workerID=%d handler error for job type=%s: %v", workerID, job.Type, err)
			continue
		}

		logf(log, "workerLoop: workerID=%d successfully processed job type=%s", workerID, job.Type)
	}
}

func logf(log *logger.Logger, format string, v ...interface{}) {
	if log != nil {
		log.Printf(format, v...)
	}
}
