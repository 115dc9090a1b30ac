// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package vectordb wraps the Qdrant gRPC client with the collection
// lifecycle, point-id scheme, and filtered search this service needs.
package vectordb

import (
	"context"
	"errors"
	"fmt"

	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/gitlab-rag/indexer/internal/logger"
)

const collectionName = "gitlab_content"

// Match represents a vector search hit.
type Match struct {
	ID       string
	Score    float32
	Payload  map[string]interface{}
}

// VectorDB describes the behaviour the retriever and indexer need from
// the vector store.
type VectorDB interface {
	Upsert(ctx context.Context, id string, vector []float32, payload map[string]interface{}) error
	UpsertBatch(ctx context.Context, points []Point) error
	Search(ctx context.Context, queryVector []float32, topK int, filter Filter) ([]Match, error)
	DeleteByProject(ctx context.Context, projectID int64) error
	DeleteByIDs(ctx context.Context, ids []string) error
	GetPointCount(ctx context.Context) (int, error)
}

// Point is a single vector plus its payload, for batched upserts.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// Filter narrows a search to a project and/or a set of content types.
// A zero-value Filter applies no constraints.
type Filter struct {
	ProjectID    int64
	HasProject   bool
	ContentTypes []string
}

// QdrantVectorDB is a thin wrapper around the Qdrant service clients.
type QdrantVectorDB struct {
	collectionsSvc qdrant.CollectionsClient
	pointsSvc      qdrant.PointsClient
	collection     string
	dimension      int
	log            *logger.Logger
}

// NewQdrantVectorDB constructs a wrapper and ensures the collection
// exists with the given vector dimension, recreating it if a
// previously created collection has a different dimension.
func NewQdrantVectorDB(ctx context.Context, conn *grpc.ClientConn, dimension int, log *logger.Logger) (*QdrantVectorDB, error) {
	if conn == nil {
		return nil, errors.New("gRPC connection is required")
	}

	vdb := &QdrantVectorDB{
		collectionsSvc: qdrant.NewCollectionsClient(conn),
		pointsSvc:      qdrant.NewPointsClient(conn),
		collection:     collectionName,
		dimension:      dimension,
		log:            log,
	}

	if err := vdb.ensureCollection(ctx, dimension); err != nil {
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	return vdb, nil
}

// ensureCollection creates the collection if absent, or drops and
// recreates it if an existing collection's vector size doesn't match
// dim (the indexer never runs two embedding dimensions side by side).
func (q *QdrantVectorDB) ensureCollection(ctx context.Context, dim int) error {
	info, err := q.collectionsSvc.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: q.collection})
	if err != nil {
		// Not found: create fresh.
		return q.createCollection(ctx, dim)
	}

	existingDim := extractVectorSize(info)
	if existingDim == dim {
		q.dimension = dim
		return nil
	}

	q.logf("collection %s has dimension %d, want %d; recreating", q.collection, existingDim, dim)
	if _, err := q.collectionsSvc.Delete(ctx, &qdrant.DeleteCollection{CollectionName: q.collection}); err != nil {
		return fmt.Errorf("failed to drop mismatched collection: %w", err)
	}
	return q.createCollection(ctx, dim)
}

func extractVectorSize(info *qdrant.GetCollectionInfoResponse) int {
	if info == nil || info.Result == nil || info.Result.Config == nil {
		return 0
	}
	params := info.Result.Config.Params
	if params == nil || params.VectorsConfig == nil {
		return 0
	}
	if single, ok := params.VectorsConfig.Config.(*qdrant.VectorsConfig_Params); ok {
		return int(single.Params.Size)
	}
	return 0
}

func (q *QdrantVectorDB) createCollection(ctx context.Context, dim int) error {
	_, err := q.collectionsSvc.Create(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(dim),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	q.dimension = dim
	q.logf("created collection %s with dimension %d", q.collection, dim)
	return nil
}

// Upsert stores or updates a single vector and its payload.
func (q *QdrantVectorDB) Upsert(ctx context.Context, id string, vector []float32, payload map[string]interface{}) error {
	return q.UpsertBatch(ctx, []Point{{ID: id, Vector: vector, Payload: payload}})
}

// UpsertBatch stores or updates many points in a single call.
func (q *QdrantVectorDB) UpsertBatch(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		if len(p.Vector) == 0 {
			return fmt.Errorf("point %s has empty vector", p.ID)
		}
		structs = append(structs, &qdrant.PointStruct{
			Id: pointID(p.ID),
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: p.Vector}},
			},
			Payload: toPayload(p.Payload),
		})
	}

	_, err := q.pointsSvc.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d points: %w", len(points), err)
	}
	return nil
}

// Search performs a cosine similarity search, optionally narrowed by filter.
func (q *QdrantVectorDB) Search(ctx context.Context, queryVector []float32, topK int, filter Filter) ([]Match, error) {
	if len(queryVector) == 0 {
		return nil, errors.New("query vector cannot be empty")
	}
	if topK <= 0 {
		topK = 10
	}

	req := &qdrant.SearchPoints{
		CollectionName: q.collection,
		Vector:         queryVector,
		Limit:          uint64(topK),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: false}},
	}
	if qdrantFilter := buildFilter(filter); qdrantFilter != nil {
		req.Filter = qdrantFilter
	}

	result, err := q.pointsSvc.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	matches := make([]Match, 0, len(result.Result))
	for _, scored := range result.Result {
		matches = append(matches, Match{
			ID:      extractPointID(scored.Id),
			Score:   scored.Score,
			Payload: fromPayload(scored.Payload),
		})
	}
	return matches, nil
}

func matchInt(key string, value int64) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: value}},
			},
		},
	}
}

func matchKeyword(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func buildFilter(f Filter) *qdrant.Filter {
	var must []*qdrant.Condition
	if f.HasProject {
		must = append(must, matchInt("project_id", f.ProjectID))
	}

	switch len(f.ContentTypes) {
	case 0:
		// no type constraint
	case 1:
		must = append(must, matchKeyword("type", f.ContentTypes[0]))
	default:
		should := make([]*qdrant.Condition, 0, len(f.ContentTypes))
		for _, ct := range f.ContentTypes {
			should = append(should, matchKeyword("type", ct))
		}
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Filter{Filter: &qdrant.Filter{Should: should}},
		})
	}

	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// DeleteByProject removes every point belonging to projectID, used
// when a project is removed or fully re-indexed from scratch.
func (q *QdrantVectorDB) DeleteByProject(ctx context.Context, projectID int64) error {
	filter := &qdrant.Filter{Must: []*qdrant.Condition{matchInt("project_id", projectID)}}
	_, err := q.pointsSvc.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: filter},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete points for project %d: %w", projectID, err)
	}
	return nil
}

// DeleteByIDs removes specific points by id, used when upstream
// GitLab items are deleted.
func (q *QdrantVectorDB) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	points := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		points = append(points, pointID(id))
	}
	_, err := q.pointsSvc.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{Points: &qdrant.PointsIdsList{Ids: points}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete %d points: %w", len(ids), err)
	}
	return nil
}

// GetPointCount returns the number of points currently stored.
func (q *QdrantVectorDB) GetPointCount(ctx context.Context) (int, error) {
	info, err := q.collectionsSvc.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: q.collection})
	if err != nil {
		return 0, fmt.Errorf("failed to get collection info: %w", err)
	}
	if info.Result == nil || info.Result.PointsCount == nil {
		return 0, nil
	}
	return int(*info.Result.PointsCount), nil
}

func (q *QdrantVectorDB) logf(format string, v ...interface{}) {
	if q.log != nil {
		q.log.Printf(format, v...)
	}
}
