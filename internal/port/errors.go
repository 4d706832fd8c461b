package port

import (
	"errors"

	"github.com/stackfolio/portfolio-rag/internal/domain"
)

// Sentinel errors used across ports.
var (
	ErrInvalidRepoURL    = errors.New("invalid repository url")
	ErrFetchTimeout      = errors.New("repository fetch timed out")
	ErrFetchService      = errors.New("repository fetch service error")
	ErrEmptyContent      = errors.New("repository content is empty")
	ErrNoChunks          = errors.New("no content chunks generated")
	ErrEmbeddingService  = errors.New("embedding service error")
	ErrIndexUnavailable  = errors.New("vector index not available")
	ErrGenerationService = errors.New("generation service error")
	ErrProjectNotFound   = errors.New("project not found")
	ErrRecordNotFound    = errors.New("processing record not found")
)

// IsFatal reports whether err is a permanent ingestion failure that the retry
// sweep must not re-attempt.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidRepoURL) ||
		errors.Is(err, ErrEmptyContent) ||
		errors.Is(err, ErrNoChunks)
}

// ErrorKind classifies err for persistence alongside the failure message.
// Unclassified errors count as transient; the sweep's attempt budget bounds them.
func ErrorKind(err error) string {
	if IsFatal(err) {
		return domain.ErrorKindFatal
	}
	return domain.ErrorKindTransient
}
