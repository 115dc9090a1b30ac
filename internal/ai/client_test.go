// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompleteNoAPIKey(t *testing.T) {
	client := NewClient("", "gpt-4o-mini", "")
	_, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, CompleteOptions{})
	assert.Error(t, err)
}

func TestCompleteReturnsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"model": "gpt-4o-mini",
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": "hello there"}},
			},
			"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 3},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", "gpt-4o-mini", srv.URL)
	result, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, CompleteOptions{})

	assert.NoError(t, err)
	assert.Equal(t, "hello there", result.Content)
	assert.Equal(t, 12, result.Usage.InputTokens)
	assert.Equal(t, 3, result.Usage.OutputTokens)
}

func TestCompleteWithToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "auto", body["tool_choice"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{
					"tool_calls": []map[string]interface{}{
						{"id": "call_1", "type": "function", "function": map[string]string{"name": "search_code", "arguments": `{"pattern":"auth"}`}},
					},
				}},
			},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", "gpt-4o-mini", srv.URL)
	result, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "find auth"}}, CompleteOptions{
		Tools: []Tool{{Type: "function", Function: ToolFunction{Name: "search_code"}}},
	})

	assert.NoError(t, err)
	assert.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "search_code", result.ToolCalls[0].Function.Name)
}

func TestCompleteErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "invalid key"}`))
	}))
	defer srv.Close()

	client := NewClient("bad-key", "gpt-4o-mini", srv.URL)
	_, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, CompleteOptions{})
	assert.Error(t, err)
}
