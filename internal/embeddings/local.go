// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// LocalEmbedder calls a self-hosted embedding HTTP service, one text
// per request, instead of a specific vendor's batch API.
type LocalEmbedder struct {
	baseURL string
	client  *http.Client
	dim     int
}

// NewLocalEmbedder creates a new local-service embedder. dim must
// match the service's actual output width since the vector store's
// collection is sized from it.
func NewLocalEmbedder(baseURL string, dim int) (*LocalEmbedder, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("local embedding service url is required")
	}
	return &LocalEmbedder{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		dim:     dim,
	}, nil
}

// Dimension returns the embedding dimension.
func (e *LocalEmbedder) Dimension() int {
	return e.dim
}

// EmbedText posts a single text to the local service's /embed endpoint.
func (e *LocalEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	type requestPayload struct {
		Text string `json:"text"`
	}

	jsonData, err := json.Marshal(requestPayload{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/embed", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("local embedding service error (status %d): %s", resp.StatusCode, string(body))
	}

	type responsePayload struct {
		Embedding []float64 `json:"embedding"`
	}

	var response responsePayload
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	result := make([]float32, len(response.Embedding))
	for i, v := range response.Embedding {
		result[i] = float32(v)
	}
	return result, nil
}

// EmbedBatch calls the service once per text; the local embedding
// contract this service depends on is single-text only.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		embedding, err := e.EmbedText(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		result[i] = embedding
	}
	return result, nil
}
