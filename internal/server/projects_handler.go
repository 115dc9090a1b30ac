// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gitlab-rag/indexer/internal/jobs"
	"github.com/gitlab-rag/indexer/internal/manifest"
	"github.com/gitlab-rag/indexer/internal/orchestrator"
)

func parsePathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleListSelectedProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListSelectedProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	project, err := s.store.GetProjectByID(r.Context(), id)
	if errors.Is(err, manifest.ErrNotFound) {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// handleRefreshProjects pulls the project list from GitLab and upserts
// each one into the manifest so newly-visible or renamed repos show up
// without a full re-clone.
func (s *Server) handleRefreshProjects(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	remote, err := s.gitlabClient.ListProjects(ctx, true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list gitlab projects: "+err.Error())
		return
	}

	projects := make([]manifest.Project, 0, len(remote))
	for _, rp := range remote {
		p, err := s.store.UpsertProject(ctx, rp.ID, rp.Name, rp.PathWithNamespace, rp.DefaultBranch, rp.HTTPURLToRepo)
		if err != nil {
			s.logf("refresh: failed to upsert project %d: %v", rp.ID, err)
			continue
		}
		projects = append(projects, *p)
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleProjectStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	project, err := s.store.GetProjectByID(r.Context(), id)
	if errors.Is(err, manifest.ErrNotFound) {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"indexing_status":     project.IndexingStatus,
		"indexing_error":      project.IndexingError,
		"is_indexed":          project.IsIndexed,
		"last_indexed_at":     project.LastIndexedAt,
		"last_indexed_commit": project.LastIndexedCommit,
	})
}

func (s *Server) handleSelectProject(selected bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parsePathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid project id")
			return
		}
		if err := s.store.SetSelected(r.Context(), id, selected); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// handleStartIndex drives either the full-index or incremental-sync
// pipeline for a project. Each kind has its own logical queue
// (indexQueue, syncQueue); when the relevant one is configured the run
// is enqueued for that kind's worker pool, otherwise it runs in a
// detached goroutine so the request returns immediately either way.
func (s *Server) handleStartIndex(isSync bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parsePathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid project id")
			return
		}

		project, err := s.store.GetProjectByID(r.Context(), id)
		if errors.Is(err, manifest.ErrNotFound) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if project.IndexingStatus == manifest.StatusIndexing || project.IndexingStatus == manifest.StatusSyncing {
			writeJSON(w, http.StatusOK, map[string]string{"status": "already_indexing"})
			return
		}

		q := s.indexQueue
		if isSync {
			q = s.syncQueue
		}

		if q != nil {
			var enqueueErr error
			if isSync {
				enqueueErr = jobs.EnqueueSync(r.Context(), q, project.GitlabID)
			} else {
				enqueueErr = jobs.EnqueueFullIndex(r.Context(), q, project.GitlabID)
			}
			if enqueueErr != nil {
				writeError(w, http.StatusInternalServerError, enqueueErr.Error())
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
			return
		}

		gitlabID := project.GitlabID
		go func() {
			var runErr error
			if isSync {
				runErr = s.orchestrator.Sync(context.Background(), gitlabID)
			} else {
				runErr = s.orchestrator.FullIndex(context.Background(), gitlabID)
			}
			if runErr != nil && runErr != orchestrator.ErrAlreadyIndexing {
				s.logf("background index run for project %d failed: %v", gitlabID, runErr)
			}
		}()
		writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
	}
}

func (s *Server) handleStopIndexing(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	project, err := s.store.GetProjectByID(r.Context(), id)
	if errors.Is(err, manifest.ErrNotFound) {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.orchestrator.StopIndexing(r.Context(), project.GitlabID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleClearIndex(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	project, err := s.store.GetProjectByID(r.Context(), id)
	if errors.Is(err, manifest.ErrNotFound) {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.orchestrator.ClearIndex(r.Context(), project.GitlabID); err != nil {
		if err == orchestrator.ErrAlreadyIndexing {
			writeJSON(w, http.StatusOK, map[string]string{"status": "already_indexing"})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleVectorCounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	counts := make(map[string]int, len(projects))
	for _, p := range projects {
		items, err := s.store.ListIndexedItems(ctx, p.ID, "")
		if err != nil {
			s.logf("vector-counts: failed to list items for project %d: %v", p.ID, err)
			continue
		}
		total := 0
		for _, it := range items {
			total += len(it.QdrantPointIDs)
		}
		counts[strconv.FormatInt(p.ID, 10)] = total
	}
	writeJSON(w, http.StatusOK, counts)
}
