package domain

import "time"

// ProcessingRecord tracks the ingestion lifecycle of one project's repository.
// A project owns at most one record; reprocessing overwrites its contents as a unit.
type ProcessingRecord struct {
	ID        string    `json:"id"         db:"id"`
	ProjectID string    `json:"project_id" db:"project_id"`
	State     string    `json:"state"      db:"state"` // pending, fetching, chunking, embedding, completed, failed
	Progress  int       `json:"progress"   db:"progress"`
	LastError string    `json:"last_error" db:"last_error"`
	ErrorKind string    `json:"error_kind" db:"error_kind"` // transient, fatal
	Snapshot  string    `json:"-"          db:"snapshot"`
	Processed bool      `json:"processed"  db:"processed"`
	Attempts  int       `json:"attempts"   db:"attempts"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Processing state constants.
const (
	StatePending   = "pending"
	StateFetching  = "fetching"
	StateChunking  = "chunking"
	StateEmbedding = "embedding"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// Progress checkpoints set on entering each state.
const (
	ProgressPending   = 0
	ProgressFetching  = 10
	ProgressChunking  = 30
	ProgressEmbedding = 50
	ProgressCompleted = 100
)

// Error kind constants used by the retry sweep to decide eligibility.
const (
	ErrorKindTransient = "transient"
	ErrorKindFatal     = "fatal"
)
