// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package jobs defines the queue payloads and handlers that connect
// the worker pool to the indexing orchestrator.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gitlab-rag/indexer/internal/orchestrator"
	"github.com/gitlab-rag/indexer/internal/queue"
)

// Job kinds, one per logical queue.
const (
	TypeFullIndex       queue.Kind = "full_index"
	TypeIncrementalSync queue.Kind = "incremental_sync"
)

// IndexPayload names the project a full-index or sync job targets.
type IndexPayload struct {
	GitlabID    int64     `json:"gitlab_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewFullIndexJob builds a queue.Job requesting a full index of gitlabID.
func NewFullIndexJob(gitlabID int64) (queue.Job, error) {
	return buildJob(TypeFullIndex, gitlabID)
}

// NewSyncJob builds a queue.Job requesting an incremental sync of gitlabID.
func NewSyncJob(gitlabID int64) (queue.Job, error) {
	return buildJob(TypeIncrementalSync, gitlabID)
}

func buildJob(jobType queue.Kind, gitlabID int64) (queue.Job, error) {
	payload, err := json.Marshal(IndexPayload{GitlabID: gitlabID, RequestedAt: timeNow()})
	if err != nil {
		return queue.Job{}, fmt.Errorf("failed to marshal %s payload: %w", jobType, err)
	}
	return queue.Job{Type: jobType, Payload: payload, CreatedAt: timeNow()}, nil
}

func timeNow() time.Time { return time.Now() }

// EnqueueFullIndex enqueues a full-index job on the indexing queue.
func EnqueueFullIndex(ctx context.Context, q queue.Queue, gitlabID int64) error {
	job, err := NewFullIndexJob(gitlabID)
	if err != nil {
		return err
	}
	return q.Enqueue(ctx, job)
}

// EnqueueSync enqueues an incremental-sync job on the gitlab_sync queue.
func EnqueueSync(ctx context.Context, q queue.Queue, gitlabID int64) error {
	job, err := NewSyncJob(gitlabID)
	if err != nil {
		return err
	}
	return q.Enqueue(ctx, job)
}

// HandleFullIndex drives the orchestrator's full-index pipeline for
// the job's project. orchestrator.ErrAlreadyIndexing is swallowed: the
// project is already being indexed, so the job counts as handled.
func HandleFullIndex(o *orchestrator.Orchestrator) func(context.Context, queue.Job) error {
	return func(ctx context.Context, job queue.Job) error {
		var payload IndexPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("full index job: failed to decode payload: %w", err)
		}
		err := o.FullIndex(ctx, payload.GitlabID)
		if err == orchestrator.ErrAlreadyIndexing {
			return nil
		}
		return err
	}
}

// HandleSync drives the orchestrator's incremental-sync pipeline for
// the job's project.
func HandleSync(o *orchestrator.Orchestrator) func(context.Context, queue.Job) error {
	return func(ctx context.Context, job queue.Job) error {
		var payload IndexPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("sync job: failed to decode payload: %w", err)
		}
		err := o.Sync(ctx, payload.GitlabID)
		if err == orchestrator.ErrAlreadyIndexing {
			return nil
		}
		return err
	}
}

// Dispatch routes a job to the right handler by type, for servers that
// run both job types off a single worker pool.
func Dispatch(o *orchestrator.Orchestrator) func(context.Context, queue.Job) error {
	fullIndex := HandleFullIndex(o)
	sync := HandleSync(o)
	return func(ctx context.Context, job queue.Job) error {
		switch job.Type {
		case TypeFullIndex:
			return fullIndex(ctx, job)
		case TypeIncrementalSync:
			return sync(ctx, job)
		default:
			return fmt.Errorf("unknown job type %q", job.Type)
		}
	}
}
