package handler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stackfolio/portfolio-rag/internal/domain"
	"github.com/stackfolio/portfolio-rag/internal/port"
)

// In-memory port implementations backing the HTTP tests. The handlers are
// exercised through real services wired onto these.

type fakeProjectStore struct {
	mu       sync.Mutex
	projects map[string]*domain.Project
	order    []string
	seq      int
}

func newFakeProjectStore() *fakeProjectStore {
	return &fakeProjectStore{projects: map[string]*domain.Project{}}
}

func (s *fakeProjectStore) CreateProject(_ context.Context, p *domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	p.ID = fmt.Sprintf("p-%d", s.seq)
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	s.projects[p.ID] = &cp
	s.order = append(s.order, p.ID)
	return nil
}

func (s *fakeProjectStore) GetProject(_ context.Context, id string) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, port.ErrProjectNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakeProjectStore) ListProjects(_ context.Context) ([]domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Project, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		if p, ok := s.projects[s.order[i]]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakeProjectStore) DeleteProject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return port.ErrProjectNotFound
	}
	delete(s.projects, id)
	return nil
}

type fakeRecordStore struct {
	mu   sync.Mutex
	byID map[string]*domain.ProcessingRecord
	docs map[string]*domain.EmbeddingsDocument
	seq  int
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{
		byID: map[string]*domain.ProcessingRecord{},
		docs: map[string]*domain.EmbeddingsDocument{},
	}
}

// seed installs a record directly, bypassing the pipeline.
func (s *fakeRecordStore) seed(projectID string, mutate func(*domain.ProcessingRecord)) *domain.ProcessingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	rec := &domain.ProcessingRecord{
		ID:        fmt.Sprintf("r-%d", s.seq),
		ProjectID: projectID,
		State:     domain.StatePending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if mutate != nil {
		mutate(rec)
	}
	s.byID[rec.ID] = rec
	return rec
}

func (s *fakeRecordStore) seedDoc(projectID string, doc *domain.EmbeddingsDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[projectID] = doc
}

func (s *fakeRecordStore) byProject(projectID string) *domain.ProcessingRecord {
	for _, rec := range s.byID {
		if rec.ProjectID == projectID {
			return rec
		}
	}
	return nil
}

func (s *fakeRecordStore) GetRecord(_ context.Context, projectID string) (*domain.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.byProject(projectID)
	if rec == nil {
		return nil, port.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeRecordStore) CreateRecord(_ context.Context, projectID string) (*domain.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	rec := &domain.ProcessingRecord{
		ID:        fmt.Sprintf("r-%d", s.seq),
		ProjectID: projectID,
		State:     domain.StatePending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	s.byID[rec.ID] = rec
	cp := *rec
	return &cp, nil
}

func (s *fakeRecordStore) StartRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.byID[id]
	rec.State = domain.StateFetching
	rec.Progress = domain.ProgressFetching
	rec.LastError = ""
	rec.ErrorKind = ""
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *fakeRecordStore) UpdateRecordState(_ context.Context, id string, state string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.byID[id]
	rec.State = state
	rec.Progress = progress
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *fakeRecordStore) SaveSnapshot(_ context.Context, id string, snapshot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[id].Snapshot = snapshot
	return nil
}

func (s *fakeRecordStore) MarkRecordFailed(_ context.Context, id string, message string, kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.byID[id]
	rec.State = domain.StateFailed
	rec.LastError = message
	rec.ErrorKind = kind
	rec.Attempts++
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *fakeRecordStore) CompleteRecord(_ context.Context, id string, doc *domain.EmbeddingsDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.byID[id]
	rec.State = domain.StateCompleted
	rec.Progress = domain.ProgressCompleted
	rec.Processed = true
	rec.LastError = ""
	rec.ErrorKind = ""
	rec.Attempts = 0
	rec.UpdatedAt = time.Now()
	s.docs[rec.ProjectID] = doc
	return nil
}

func (s *fakeRecordStore) ResetRecord(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.byID[id]
	rec.State = domain.StatePending
	rec.Progress = domain.ProgressPending
	rec.LastError = ""
	rec.ErrorKind = ""
	rec.Snapshot = ""
	rec.Processed = false
	rec.Attempts = 0
	rec.UpdatedAt = time.Now()
	delete(s.docs, rec.ProjectID)
	return nil
}

func (s *fakeRecordStore) LoadEmbeddingsDocument(_ context.Context, projectID string) (*domain.EmbeddingsDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[projectID]
	if !ok {
		return nil, port.ErrIndexUnavailable
	}
	return doc, nil
}

func (s *fakeRecordStore) ListFailedRecords(_ context.Context) ([]domain.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ProcessingRecord
	for _, rec := range s.byID {
		if rec.State == domain.StateFailed {
			out = append(out, *rec)
		}
	}
	return out, nil
}

type fakeFetcher struct {
	mu      sync.Mutex
	content string
	err     error
	calls   int
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.content, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEmbedder struct {
	mu  sync.Mutex
	dim int
	err error
}

func (f *fakeEmbedder) ModelName() string { return "fake-embedder" }

func (f *fakeEmbedder) vectorFor(text string) []float32 {
	vec := make([]float32, f.dim)
	vec[0] = float32(len(text)%7 + 1)
	for i := 1; i < f.dim; i++ {
		vec[i] = 1
	}
	return vec
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.vectorFor(text), nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vectorFor(t)
	}
	return out, nil
}

type fakeGenerator struct {
	mu         sync.Mutex
	answer     string
	err        error
	lastPrompt string
}

func (f *fakeGenerator) ModelName() string { return "fake-generator" }

func (f *fakeGenerator) Generate(_ context.Context, _ string, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPrompt = userPrompt
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeGenerator) prompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPrompt
}

type fakeAuditStore struct {
	mu        sync.Mutex
	logs      []domain.AuditLog
	gotLimit  int
	gotMethod string
}

func (s *fakeAuditStore) ListAuditLogs(_ context.Context, limit int, method string) ([]domain.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gotLimit = limit
	s.gotMethod = method
	out := s.logs
	if method != "" {
		out = nil
		for _, l := range s.logs {
			if l.Method == method {
				out = append(out, l)
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
