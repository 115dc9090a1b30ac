// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gitlab-rag/indexer/internal/ai"
	"github.com/gitlab-rag/indexer/internal/manifest"
	"github.com/gitlab-rag/indexer/internal/planner"
	"github.com/gitlab-rag/indexer/internal/retriever"
)

const chatSystemPrompt = `You are a helpful assistant answering questions about a GitLab project using the provided context. Cite specifics from the context when relevant and say plainly when the context does not contain an answer.`

const titleMaxLen = 60

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID *int64 `json:"conversation_id,omitempty"`
	ProviderID     *int64 `json:"provider_id,omitempty"`
}

type chatSyncRequest struct {
	ConversationID int64  `json:"conversation_id"`
	Message        string `json:"message"`
	Title          string `json:"title,omitempty"`
}

type citation struct {
	ID       string                 `json:"id"`
	Score    float64                `json:"score"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type chatAnswer struct {
	Answer    string     `json:"answer"`
	Citations []citation `json:"citations"`
}

// handleChat handles POST /chat: it streams message|title|done|error
// server-sent events as the conversation is resolved, retrieved, and
// answered.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sendEvent := func(event string, data interface{}) {
		payload, _ := json.Marshal(data)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
		flusher.Flush()
	}

	ctx := r.Context()
	conversation, isNew, err := s.resolveConversation(ctx, req.ConversationID, req.ProviderID)
	if err != nil {
		sendEvent("error", map[string]string{"error": err.Error()})
		return
	}
	if isNew {
		title := titleFromMessage(req.Message)
		if err := s.store.UpdateConversationTitle(ctx, conversation.ID, title); err != nil {
			s.logf("chat: failed to set conversation title: %v", err)
		}
		sendEvent("title", map[string]interface{}{"conversation_id": conversation.ID, "title": title})
	}

	if _, err := s.store.AddMessage(ctx, conversation.ID, "user", req.Message); err != nil {
		sendEvent("error", map[string]string{"error": err.Error()})
		return
	}

	answer, err := s.answer(ctx, req.Message, conversation.ProviderID)
	if err != nil {
		sendEvent("error", map[string]string{"error": err.Error()})
		return
	}

	if _, err := s.store.AddMessage(ctx, conversation.ID, "assistant", answer.Answer); err != nil {
		s.logf("chat: failed to save assistant message: %v", err)
	}

	sendEvent("message", map[string]interface{}{
		"conversation_id": conversation.ID,
		"answer":          answer.Answer,
		"citations":       answer.Citations,
	})
	sendEvent("done", map[string]interface{}{"conversation_id": conversation.ID})
}

// handleChatSync handles POST /chat/sync: the same pipeline as
// handleChat but as a single JSON response, for callers that don't
// want an SSE stream.
func (s *Server) handleChatSync(w http.ResponseWriter, r *http.Request) {
	var req chatSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	ctx := r.Context()
	var conversation *manifest.Conversation
	var err error
	if req.ConversationID != 0 {
		conversation, err = s.store.GetConversation(ctx, req.ConversationID)
	} else {
		conversation, err = s.store.CreateConversation(ctx, req.Title, nil)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if req.Title != "" {
		if err := s.store.UpdateConversationTitle(ctx, conversation.ID, req.Title); err != nil {
			s.logf("chat/sync: failed to set title: %v", err)
		}
	}

	if _, err := s.store.AddMessage(ctx, conversation.ID, "user", req.Message); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	answer, err := s.answer(ctx, req.Message, conversation.ProviderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if _, err := s.store.AddMessage(ctx, conversation.ID, "assistant", answer.Answer); err != nil {
		s.logf("chat/sync: failed to save assistant message: %v", err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": conversation.ID,
		"answer":          answer.Answer,
		"citations":       answer.Citations,
	})
}

func (s *Server) resolveConversation(ctx context.Context, convID, providerID *int64) (*manifest.Conversation, bool, error) {
	if convID != nil {
		c, err := s.store.GetConversation(ctx, *convID)
		return c, false, err
	}
	c, err := s.store.CreateConversation(ctx, "", providerID)
	return c, true, err
}

func titleFromMessage(msg string) string {
	title := strings.TrimSpace(msg)
	if len(title) > titleMaxLen {
		title = title[:titleMaxLen] + "..."
	}
	return title
}

// answer plans the query, retrieves supporting context across
// selected projects, optionally runs the code analysis agent for
// code-heavy queries, and synthesizes a final answer.
func (s *Server) answer(ctx context.Context, query string, providerID *int64) (*chatAnswer, error) {
	projects, err := s.store.ListSelectedProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list selected projects: %w", err)
	}
	projectIDs := make([]int64, len(projects))
	for i, p := range projects {
		projectIDs[i] = p.GitlabID
	}

	plan := s.planner.BuildPlan(ctx, query)
	results, err := s.retriever.Retrieve(ctx, plan, projectIDs, s.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	var codeAnswer string
	if plan.Strategy == planner.StrategyCodeDeep && len(projectIDs) > 0 {
		repoPath := s.orchestrator.RepoPath(projectIDs[0])
		agentResult, agentErr := s.codeAgent.Analyze(ctx, query, repoPath)
		if agentErr != nil {
			s.logf("chat: code agent failed: %v", agentErr)
		} else {
			codeAnswer = agentResult.Answer
		}
	}

	client := s.aiClient
	if providerID != nil {
		if p, err := s.store.GetProvider(ctx, *providerID); err == nil {
			client = ai.NewClient(p.APIKey, p.Model, p.BaseURL)
		}
	} else if p, err := s.store.GetDefaultProvider(ctx); err == nil && p != nil {
		client = ai.NewClient(p.APIKey, p.Model, p.BaseURL)
	}

	answerText := s.synthesize(ctx, client, query, results, codeAnswer)

	citations := make([]citation, len(results))
	for i, res := range results {
		citations[i] = citation{ID: res.ID, Score: res.Score, Content: res.Content, Metadata: res.Metadata}
	}
	return &chatAnswer{Answer: answerText, Citations: citations}, nil
}

func (s *Server) synthesize(ctx context.Context, client *ai.Client, query string, results []retriever.Result, codeAnswer string) string {
	var b strings.Builder
	for _, res := range results {
		b.WriteString(res.Content)
		b.WriteString("\n\n")
	}
	if codeAnswer != "" {
		b.WriteString("Code analysis findings:\n")
		b.WriteString(codeAnswer)
		b.WriteString("\n\n")
	}
	contextText := b.String()

	if client == nil {
		return fallbackAnswer(query, contextText)
	}

	messages := []ai.Message{
		{Role: "system", Content: chatSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, query)},
	}
	result, err := client.Complete(ctx, messages, ai.CompleteOptions{Temperature: 0.2, MaxTokens: 800})
	if err != nil {
		s.logf("chat: completion failed, falling back to context summary: %v", err)
		return fallbackAnswer(query, contextText)
	}
	return result.Content
}

func fallbackAnswer(query, contextText string) string {
	if contextText == "" {
		return fmt.Sprintf("I couldn't find any indexed content related to: %s", query)
	}
	return fmt.Sprintf("Based on the indexed content, here is what's relevant to %q:\n\n%s", query, contextText)
}
