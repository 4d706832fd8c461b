package port

import "context"

// ContentFetcher abstracts the repository-flattening service that turns a
// remote repository tree into a single text blob of source-relevant content.
type ContentFetcher interface {
	// Fetch retrieves the flattened snapshot of the repository at repoURL.
	Fetch(ctx context.Context, repoURL string) (string, error)
}
