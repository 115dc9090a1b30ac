// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package server is the HTTP adapter: it translates JSON requests into
// calls against the manifest store, the indexing orchestrator, the job
// queue, and the chat pipeline (planner, retriever, code agent).
package server

import (
	"encoding/json"
	"net/http"

	"github.com/gitlab-rag/indexer/internal/ai"
	"github.com/gitlab-rag/indexer/internal/codeagent"
	"github.com/gitlab-rag/indexer/internal/gitlab"
	"github.com/gitlab-rag/indexer/internal/logger"
	"github.com/gitlab-rag/indexer/internal/manifest"
	"github.com/gitlab-rag/indexer/internal/orchestrator"
	"github.com/gitlab-rag/indexer/internal/planner"
	"github.com/gitlab-rag/indexer/internal/queue"
	"github.com/gitlab-rag/indexer/internal/retriever"
	"github.com/gitlab-rag/indexer/internal/server/middleware"
)

// Server holds every collaborator the HTTP adapter dispatches to.
type Server struct {
	store        *manifest.Store
	gitlabClient *gitlab.Client
	orchestrator *orchestrator.Orchestrator
	planner      *planner.Planner
	retriever    *retriever.Retriever
	codeAgent    *codeagent.Agent
	indexQueue   queue.Queue
	syncQueue    queue.Queue
	log          *logger.Logger
	topK         int
	aiClient     *ai.Client
}

// New builds a Server. indexQueue and syncQueue back the two logical
// job queues (full-index and incremental-sync); either may be nil, in
// which case that request kind is served synchronously in a detached
// goroutine instead of being enqueued.
func New(store *manifest.Store, gitlabClient *gitlab.Client, orch *orchestrator.Orchestrator, aiClient *ai.Client, vdbRetriever *retriever.Retriever, indexQueue, syncQueue queue.Queue, log *logger.Logger, topK int) *Server {
	return &Server{
		store:        store,
		gitlabClient: gitlabClient,
		orchestrator: orch,
		planner:      planner.New(aiClient),
		retriever:    vdbRetriever,
		codeAgent:    codeagent.New(aiClient),
		indexQueue:   indexQueue,
		syncQueue:    syncQueue,
		log:          log,
		topK:         topK,
		aiClient:     aiClient,
	}
}

// Routes builds the full HTTP handler tree.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", HandleHealth)

	mux.HandleFunc("GET /projects", s.handleListProjects)
	mux.HandleFunc("GET /projects/selected/list", s.handleListSelectedProjects)
	mux.HandleFunc("GET /projects/vector-counts", s.handleVectorCounts)
	mux.HandleFunc("POST /projects/refresh", s.handleRefreshProjects)
	mux.HandleFunc("GET /projects/{id}", s.handleGetProject)
	mux.HandleFunc("GET /projects/{id}/status", s.handleProjectStatus)
	mux.HandleFunc("POST /projects/{id}/select", s.handleSelectProject(true))
	mux.HandleFunc("POST /projects/{id}/deselect", s.handleSelectProject(false))
	mux.HandleFunc("POST /projects/{id}/index", s.handleStartIndex(false))
	mux.HandleFunc("POST /projects/{id}/sync", s.handleStartIndex(true))
	mux.HandleFunc("POST /projects/{id}/stop-indexing", s.handleStopIndexing)
	mux.HandleFunc("POST /projects/{id}/clear-index", s.handleClearIndex)

	mux.HandleFunc("GET /providers", s.handleListProviders)
	mux.HandleFunc("POST /providers", s.handleCreateProvider)
	mux.HandleFunc("PUT /providers/{id}", s.handleUpdateProvider)
	mux.HandleFunc("DELETE /providers/{id}", s.handleDeleteProvider)
	mux.HandleFunc("POST /providers/{id}/set-default", s.handleSetDefaultProvider)

	mux.HandleFunc("GET /conversations", s.handleListConversations)
	mux.HandleFunc("GET /conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("DELETE /conversations/{id}", s.handleDeleteConversation)
	mux.HandleFunc("PATCH /conversations/{id}/title", s.handleRenameConversation)

	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /chat/sync", s.handleChatSync)

	return middleware.TrafficLogger(s.log)(mux)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) logf(format string, v ...interface{}) {
	if s.log != nil {
		s.log.Printf(format, v...)
	}
}
