package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackfolio/portfolio-rag/internal/port"
)

func TestRepoPath(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{name: "standard url", url: "https://github.com/owner/repo", want: "owner/repo"},
		{name: "trailing slash", url: "https://github.com/owner/repo/", want: "owner/repo"},
		{name: "dot git suffix", url: "https://github.com/owner/repo.git", want: "owner/repo"},
		{name: "www host", url: "https://www.github.com/owner/repo", want: "owner/repo"},
		{name: "nested path keeps owner and name", url: "https://github.com/owner/repo/tree/main", want: "owner/repo"},
		{name: "wrong host", url: "https://gitlab.com/owner/repo", wantErr: true},
		{name: "missing repo name", url: "https://github.com/owner", wantErr: true},
		{name: "empty", url: "", wantErr: true},
		{name: "garbage", url: "::bad::", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RepoPath(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, port.ErrInvalidRepoURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGitingestClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/ingest", r.URL.Path)

		var payload struct {
			InputText       string   `json:"input_text"`
			MaxFileSize     int      `json:"max_file_size"`
			ExcludePatterns []string `json:"exclude_patterns"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "https://github.com/owner/repo", payload.InputText)
		assert.Equal(t, 102400, payload.MaxFileSize)
		assert.Contains(t, payload.ExcludePatterns, ".env")
		assert.Contains(t, payload.ExcludePatterns, "node_modules/*")

		json.NewEncoder(w).Encode(map[string]string{"content": "flattened repository text"})
	}))
	defer srv.Close()

	client := NewGitingestClient(srv.URL, 5*time.Second)
	content, err := client.Fetch(context.Background(), "https://github.com/owner/repo")
	require.NoError(t, err)
	assert.Equal(t, "flattened repository text", content)
}

func TestGitingestClient_Fetch_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewGitingestClient(srv.URL, 5*time.Second)
	_, err := client.Fetch(context.Background(), "https://github.com/owner/repo")
	assert.ErrorIs(t, err, port.ErrFetchService)
}

func TestGitingestClient_Fetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]string{"content": "too late"})
	}))
	defer srv.Close()

	client := NewGitingestClient(srv.URL, 20*time.Millisecond)
	_, err := client.Fetch(context.Background(), "https://github.com/owner/repo")
	assert.ErrorIs(t, err, port.ErrFetchTimeout)
}

func TestGitingestClient_Fetch_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"content": "  \n\t "})
	}))
	defer srv.Close()

	client := NewGitingestClient(srv.URL, 5*time.Second)
	_, err := client.Fetch(context.Background(), "https://github.com/owner/repo")
	assert.ErrorIs(t, err, port.ErrEmptyContent)
}

func TestGitingestClient_Fetch_InvalidURLSkipsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := NewGitingestClient(srv.URL, 5*time.Second)
	_, err := client.Fetch(context.Background(), "https://bitbucket.org/owner/repo")
	assert.ErrorIs(t, err, port.ErrInvalidRepoURL)
	assert.False(t, called)
}
