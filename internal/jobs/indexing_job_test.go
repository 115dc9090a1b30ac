// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package jobs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gitlab-rag/indexer/internal/orchestrator"
	"github.com/gitlab-rag/indexer/internal/queue"
)

func TestNewFullIndexJob(t *testing.T) {
	job, err := NewFullIndexJob(42)
	assert.NoError(t, err)
	assert.Equal(t, TypeFullIndex, job.Type)

	var payload IndexPayload
	assert.NoError(t, json.Unmarshal(job.Payload, &payload))
	assert.Equal(t, int64(42), payload.GitlabID)
}

func TestNewSyncJob(t *testing.T) {
	job, err := NewSyncJob(7)
	assert.NoError(t, err)
	assert.Equal(t, TypeIncrementalSync, job.Type)

	var payload IndexPayload
	assert.NoError(t, json.Unmarshal(job.Payload, &payload))
	assert.Equal(t, int64(7), payload.GitlabID)
}

func TestDispatchUnknownType(t *testing.T) {
	handler := Dispatch(&orchestrator.Orchestrator{})
	err := handler(context.Background(), queue.Job{Type: "bogus"})
	assert.Error(t, err)
}

func TestHandleFullIndexMalformedPayload(t *testing.T) {
	handler := HandleFullIndex(&orchestrator.Orchestrator{})
	err := handler(context.Background(), queue.Job{Type: TypeFullIndex, Payload: []byte("not json")})
	assert.Error(t, err)
}
