// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectordb

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MockVectorDB is an in-memory VectorDB for tests. It performs real
// (if unoptimized) cosine-similarity search and filtering so callers
// can assert on ranking behavior without a live Qdrant instance.
type MockVectorDB struct {
	mu     sync.Mutex
	points map[string]Point
}

// NewMockVectorDB creates an empty in-memory vector store.
func NewMockVectorDB() *MockVectorDB {
	return &MockVectorDB{points: make(map[string]Point)}
}

func (m *MockVectorDB) Upsert(ctx context.Context, id string, vector []float32, payload map[string]interface{}) error {
	return m.UpsertBatch(ctx, []Point{{ID: id, Vector: vector, Payload: payload}})
}

func (m *MockVectorDB) UpsertBatch(ctx context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		m.points[p.ID] = p
	}
	return nil
}

func (m *MockVectorDB) Search(ctx context.Context, queryVector []float32, topK int, filter Filter) ([]Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if topK <= 0 {
		topK = 10
	}

	var matches []Match
	for _, p := range m.points {
		if !matchesFilter(p.Payload, filter) {
			continue
		}
		matches = append(matches, Match{
			ID:      p.ID,
			Score:   cosineSimilarity(queryVector, p.Vector),
			Payload: p.Payload,
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func matchesFilter(payload map[string]interface{}, filter Filter) bool {
	if filter.HasProject {
		pid, ok := payload["project_id"].(int64)
		if !ok || pid != filter.ProjectID {
			return false
		}
	}
	if len(filter.ContentTypes) > 0 {
		ctype, _ := payload["type"].(string)
		found := false
		for _, t := range filter.ContentTypes {
			if t == ctype {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

func (m *MockVectorDB) DeleteByProject(ctx context.Context, projectID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if pid, ok := p.Payload["project_id"].(int64); ok && pid == projectID {
			delete(m.points, id)
		}
	}
	return nil
}

func (m *MockVectorDB) DeleteByIDs(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.points, id)
	}
	return nil
}

func (m *MockVectorDB) GetPointCount(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.points), nil
}
