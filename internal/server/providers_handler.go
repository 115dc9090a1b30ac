// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gitlab-rag/indexer/internal/manifest"
)

// providerView is an LLMProvider with its API key redacted; the UI
// never needs the raw secret back, only whether one is configured.
type providerView struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	HasAPIKey bool   `json:"has_api_key"`
	Model     string `json:"model"`
	BaseURL   string `json:"base_url"`
	IsDefault bool   `json:"is_default"`
}

func toProviderView(p manifest.LLMProvider) providerView {
	return providerView{
		ID:        p.ID,
		Name:      p.Name,
		Provider:  p.Provider,
		HasAPIKey: p.APIKey != "",
		Model:     p.Model,
		BaseURL:   p.BaseURL,
		IsDefault: p.IsDefault,
	}
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.store.ListProviders(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]providerView, len(providers))
	for i, p := range providers {
		views[i] = toProviderView(p)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateProvider(w http.ResponseWriter, r *http.Request) {
	var req manifest.LLMProvider
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" || req.Provider == "" || req.Model == "" {
		writeError(w, http.StatusBadRequest, "name, provider and model are required")
		return
	}

	created, err := s.store.CreateProvider(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toProviderView(*created))
}

func (s *Server) handleUpdateProvider(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid provider id")
		return
	}

	var req manifest.LLMProvider
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.ID = id

	if err := s.store.UpdateProvider(r.Context(), req); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeleteProvider(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid provider id")
		return
	}
	if err := s.store.DeleteProvider(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSetDefaultProvider(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid provider id")
		return
	}

	if _, err := s.store.GetProvider(r.Context(), id); errors.Is(err, manifest.ErrNotFound) {
		writeError(w, http.StatusNotFound, "provider not found")
		return
	}

	if err := s.store.SetDefaultProvider(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
