// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ListProjectsFollowsPagination(t *testing.T) {
	var gotTokens []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTokens = append(gotTokens, r.Header.Get("PRIVATE-TOKEN"))
		page := r.URL.Query().Get("page")
		switch page {
		case "1":
			w.Header().Set("X-Next-Page", "2")
			fmt.Fprint(w, `[{"id":1,"name":"alpha","path_with_namespace":"group/alpha","default_branch":"main","http_url_to_repo":"https://example.com/group/alpha.git"}]`)
		case "2":
			fmt.Fprint(w, `[{"id":2,"name":"beta","path_with_namespace":"group/beta","default_branch":"main","http_url_to_repo":"https://example.com/group/beta.git"}]`)
		default:
			t.Fatalf("unexpected page %q", page)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token", nil)
	projects, err := client.ListProjects(context.Background(), true)
	require.NoError(t, err)

	require.Len(t, projects, 2)
	assert.Equal(t, int64(1), projects[0].ID)
	assert.Equal(t, "alpha", projects[0].Name)
	assert.Equal(t, int64(2), projects[1].ID)
	for _, tok := range gotTokens {
		assert.Equal(t, "test-token", tok)
	}
}

func TestClient_ListProjectsRetriesTransientErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `[{"id":1,"name":"alpha","path_with_namespace":"group/alpha","default_branch":"main","http_url_to_repo":"https://example.com/group/alpha.git"}]`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token", nil)
	projects, err := client.ListProjects(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, 2, attempts)
}

func TestClient_GetProjectNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"404 Project Not Found"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token", nil)
	_, err := client.GetProject(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}
