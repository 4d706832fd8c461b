package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stackfolio/portfolio-rag/internal/domain"
	"github.com/stackfolio/portfolio-rag/internal/port"
)

// ProcessingStore handles processing records and their embeddings documents.
type ProcessingStore struct {
	store *PostgresStore
}

// NewProcessingStore creates a processing store backed by the given Postgres store.
func NewProcessingStore(store *PostgresStore) *ProcessingStore {
	return &ProcessingStore{store: store}
}

// GetRecord returns the processing record owned by projectID.
func (p *ProcessingStore) GetRecord(ctx context.Context, projectID string) (*domain.ProcessingRecord, error) {
	query := `SELECT id, project_id, state, progress, last_error, error_kind, snapshot, processed, attempts, created_at, updated_at
	          FROM processing_records WHERE project_id = $1`

	var r domain.ProcessingRecord
	err := p.store.db.QueryRowContext(ctx, query, projectID).Scan(
		&r.ID, &r.ProjectID, &r.State, &r.Progress, &r.LastError, &r.ErrorKind,
		&r.Snapshot, &r.Processed, &r.Attempts, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get processing record: %w", err)
	}
	return &r, nil
}

// CreateRecord inserts a fresh pending record for projectID.
func (p *ProcessingStore) CreateRecord(ctx context.Context, projectID string) (*domain.ProcessingRecord, error) {
	query := `INSERT INTO processing_records (project_id)
	          VALUES ($1)
	          RETURNING id, project_id, state, progress, last_error, error_kind, snapshot, processed, attempts, created_at, updated_at`

	var r domain.ProcessingRecord
	err := p.store.db.QueryRowContext(ctx, query, projectID).Scan(
		&r.ID, &r.ProjectID, &r.State, &r.Progress, &r.LastError, &r.ErrorKind,
		&r.Snapshot, &r.Processed, &r.Attempts, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create processing record: %w", err)
	}
	return &r, nil
}

// StartRun marks the record as fetching and clears the previous error.
func (p *ProcessingStore) StartRun(ctx context.Context, id string) error {
	query := `UPDATE processing_records
	          SET state = $1, progress = $2, last_error = '', error_kind = '', updated_at = NOW()
	          WHERE id = $3`
	_, err := p.store.db.ExecContext(ctx, query, domain.StateFetching, domain.ProgressFetching, id)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// UpdateRecordState persists a state transition with its progress checkpoint.
func (p *ProcessingStore) UpdateRecordState(ctx context.Context, id string, state string, progress int) error {
	query := `UPDATE processing_records SET state = $1, progress = $2, updated_at = NOW() WHERE id = $3`
	_, err := p.store.db.ExecContext(ctx, query, state, progress, id)
	if err != nil {
		return fmt.Errorf("update record state: %w", err)
	}
	return nil
}

// SaveSnapshot stores the flattened repository text on the record.
func (p *ProcessingStore) SaveSnapshot(ctx context.Context, id string, snapshot string) error {
	query := `UPDATE processing_records SET snapshot = $1, updated_at = NOW() WHERE id = $2`
	_, err := p.store.db.ExecContext(ctx, query, snapshot, id)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// MarkRecordFailed records a failed run and increments the attempt counter.
func (p *ProcessingStore) MarkRecordFailed(ctx context.Context, id string, message string, kind string) error {
	query := `UPDATE processing_records
	          SET state = $1, last_error = $2, error_kind = $3, attempts = attempts + 1, updated_at = NOW()
	          WHERE id = $4`
	_, err := p.store.db.ExecContext(ctx, query, domain.StateFailed, message, kind, id)
	if err != nil {
		return fmt.Errorf("mark record failed: %w", err)
	}
	return nil
}

// CompleteRecord stores the embeddings document and marks the record completed.
func (p *ProcessingStore) CompleteRecord(ctx context.Context, id string, doc *domain.EmbeddingsDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal embeddings document: %w", err)
	}

	query := `UPDATE processing_records
	          SET state = $1, progress = $2, processed = TRUE, embeddings = $3::jsonb,
	              last_error = '', error_kind = '', attempts = 0, updated_at = NOW()
	          WHERE id = $4`
	_, err = p.store.db.ExecContext(ctx, query, domain.StateCompleted, domain.ProgressCompleted, string(payload), id)
	if err != nil {
		return fmt.Errorf("complete record: %w", err)
	}
	return nil
}

// ResetRecord returns the record to pending, wiping every artifact of prior runs.
func (p *ProcessingStore) ResetRecord(ctx context.Context, id string) error {
	query := `UPDATE processing_records
	          SET state = $1, progress = $2, last_error = '', error_kind = '', snapshot = '',
	              embeddings = NULL, processed = FALSE, attempts = 0, updated_at = NOW()
	          WHERE id = $3`
	_, err := p.store.db.ExecContext(ctx, query, domain.StatePending, domain.ProgressPending, id)
	if err != nil {
		return fmt.Errorf("reset record: %w", err)
	}
	return nil
}

// LoadEmbeddingsDocument returns the persisted document for projectID.
func (p *ProcessingStore) LoadEmbeddingsDocument(ctx context.Context, projectID string) (*domain.EmbeddingsDocument, error) {
	query := `SELECT embeddings FROM processing_records WHERE project_id = $1`

	var payload sql.NullString
	err := p.store.db.QueryRowContext(ctx, query, projectID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrIndexUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("load embeddings document: %w", err)
	}
	if !payload.Valid || payload.String == "" {
		return nil, port.ErrIndexUnavailable
	}

	var doc domain.EmbeddingsDocument
	if err := json.Unmarshal([]byte(payload.String), &doc); err != nil {
		return nil, fmt.Errorf("decode embeddings document: %w", err)
	}
	return &doc, nil
}

// ListFailedRecords returns all records in the failed state, oldest failure
// first. Snapshots are not loaded here; the sweep never needs them.
func (p *ProcessingStore) ListFailedRecords(ctx context.Context) ([]domain.ProcessingRecord, error) {
	query := `SELECT id, project_id, state, progress, last_error, error_kind, processed, attempts, created_at, updated_at
	          FROM processing_records WHERE state = $1 ORDER BY updated_at ASC`

	rows, err := p.store.db.QueryContext(ctx, query, domain.StateFailed)
	if err != nil {
		return nil, fmt.Errorf("list failed records: %w", err)
	}
	defer rows.Close()

	var records []domain.ProcessingRecord
	for rows.Next() {
		var r domain.ProcessingRecord
		if err := rows.Scan(
			&r.ID, &r.ProjectID, &r.State, &r.Progress, &r.LastError, &r.ErrorKind,
			&r.Processed, &r.Attempts, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan failed record: %w", err)
		}
		records = append(records, r)
	}
	return records, nil
}
