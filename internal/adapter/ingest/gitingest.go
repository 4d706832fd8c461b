// Package ingest fetches flattened repository snapshots from a
// gitingest-compatible flattening service.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stackfolio/portfolio-rag/internal/port"
)

// maxFileSize is the per-file ceiling in bytes applied by the flattening service.
const maxFileSize = 102400

// excludePatterns filters binary, media, build-artifact and VCS-metadata files
// so only source-relevant text is retained.
var excludePatterns = []string{
	"*.pyc", "*.pyo", "*.pyd", "__pycache__/*",
	"*.so", "*.dylib", "*.dll",
	"node_modules/*", ".git/*", ".vscode/*", ".idea/*",
	"*.log", "*.tmp", "*.temp",
	"*.jpg", "*.jpeg", "*.png", "*.gif", "*.bmp", "*.svg",
	"*.pdf", "*.doc", "*.docx", "*.xls", "*.xlsx",
	"*.zip", "*.tar", "*.gz", "*.rar",
	"dist/*", "build/*", "target/*",
	".env", ".env.*",
}

// GitingestClient implements port.ContentFetcher against a gitingest-style API.
type GitingestClient struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewGitingestClient creates a fetcher for the flattening service at baseURL.
func NewGitingestClient(baseURL string, timeout time.Duration) *GitingestClient {
	return &GitingestClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// RepoPath extracts the owner/name pair from a GitHub repository URL.
// Returns port.ErrInvalidRepoURL when the URL is not a recognizable link.
func RepoPath(repoURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(repoURL))
	if err != nil {
		return "", port.ErrInvalidRepoURL
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	if host != "github.com" {
		return "", port.ErrInvalidRepoURL
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", port.ErrInvalidRepoURL
	}
	return parts[0] + "/" + strings.TrimSuffix(parts[1], ".git"), nil
}

// Fetch retrieves the flattened snapshot of the repository at repoURL.
func (g *GitingestClient) Fetch(ctx context.Context, repoURL string) (string, error) {
	if _, err := RepoPath(repoURL); err != nil {
		return "", err
	}

	payload := map[string]interface{}{
		"input_text":       repoURL,
		"max_file_size":    maxFileSize,
		"include_patterns": []string{},
		"exclude_patterns": excludePatterns,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/ingest", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("gitingest: %w", port.ErrFetchTimeout)
		}
		return "", fmt.Errorf("gitingest: %w: %v", port.ErrFetchService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gitingest API error (%d): %s: %w", resp.StatusCode, strings.TrimSpace(string(respBody)), port.ErrFetchService)
	}

	var result struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("gitingest decode: %w: %v", port.ErrFetchService, err)
	}
	if strings.TrimSpace(result.Content) == "" {
		return "", port.ErrEmptyContent
	}

	return result.Content, nil
}
