package port

import (
	"context"

	"github.com/stackfolio/portfolio-rag/internal/domain"
)

// ProjectStore persists portfolio projects.
type ProjectStore interface {
	// CreateProject inserts a new project and fills in its generated fields.
	CreateProject(ctx context.Context, p *domain.Project) error

	// GetProject returns the project with the given id, or ErrProjectNotFound.
	GetProject(ctx context.Context, id string) (*domain.Project, error)

	// ListProjects returns all projects, newest first.
	ListProjects(ctx context.Context) ([]domain.Project, error)

	// DeleteProject removes a project and, by cascade, its processing record.
	DeleteProject(ctx context.Context, id string) error
}

// ProcessingStore persists processing records and their embeddings documents.
type ProcessingStore interface {
	// GetRecord returns the processing record owned by projectID, or ErrRecordNotFound.
	GetRecord(ctx context.Context, projectID string) (*domain.ProcessingRecord, error)

	// CreateRecord inserts a fresh pending record for projectID.
	CreateRecord(ctx context.Context, projectID string) (*domain.ProcessingRecord, error)

	// StartRun marks the record as fetching and clears any previous error.
	StartRun(ctx context.Context, id string) error

	// UpdateRecordState persists a state transition with its progress checkpoint.
	UpdateRecordState(ctx context.Context, id string, state string, progress int) error

	// SaveSnapshot stores the raw flattened repository text on the record.
	SaveSnapshot(ctx context.Context, id string, snapshot string) error

	// MarkRecordFailed records a failed run with its message and error kind,
	// incrementing the attempt counter.
	MarkRecordFailed(ctx context.Context, id string, message string, kind string) error

	// CompleteRecord stores the embeddings document and marks the record completed.
	CompleteRecord(ctx context.Context, id string, doc *domain.EmbeddingsDocument) error

	// ResetRecord returns the record to pending, clearing error, progress,
	// snapshot, document and attempt counter.
	ResetRecord(ctx context.Context, id string) error

	// LoadEmbeddingsDocument returns the persisted document for projectID,
	// or ErrIndexUnavailable when none has been stored.
	LoadEmbeddingsDocument(ctx context.Context, projectID string) (*domain.EmbeddingsDocument, error)

	// ListFailedRecords returns all records currently in the failed state.
	ListFailedRecords(ctx context.Context) ([]domain.ProcessingRecord, error)
}
