package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/stackfolio/portfolio-rag/internal/domain"
	"github.com/stackfolio/portfolio-rag/internal/port"
)

// fakeProjectStore is an in-memory port.ProjectStore. Setting goneAfterGets
// makes every lookup past that count report the project as deleted.
type fakeProjectStore struct {
	mu            sync.Mutex
	projects      map[string]*domain.Project
	gets          int
	goneAfterGets int
}

func newFakeProjectStore(projects ...*domain.Project) *fakeProjectStore {
	s := &fakeProjectStore{projects: make(map[string]*domain.Project)}
	for _, p := range projects {
		s.projects[p.ID] = p
	}
	return s
}

func (s *fakeProjectStore) CreateProject(ctx context.Context, p *domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = fmt.Sprintf("p-%d", len(s.projects)+1)
	}
	s.projects[p.ID] = p
	return nil
}

func (s *fakeProjectStore) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.goneAfterGets > 0 && s.gets > s.goneAfterGets {
		return nil, port.ErrProjectNotFound
	}
	p, ok := s.projects[id]
	if !ok {
		return nil, port.ErrProjectNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakeProjectStore) ListProjects(ctx context.Context) ([]domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, *p)
	}
	return out, nil
}

func (s *fakeProjectStore) DeleteProject(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return port.ErrProjectNotFound
	}
	delete(s.projects, id)
	return nil
}

// fakeRecordStore is an in-memory port.ProcessingStore that logs every write
// as a transition entry so tests can assert persistence order.
type fakeRecordStore struct {
	mu          sync.Mutex
	byID        map[string]*domain.ProcessingRecord
	docs        map[string]*domain.EmbeddingsDocument // by project ID
	transitions []string
	seq         int
}

func newFakeRecordStore(records ...*domain.ProcessingRecord) *fakeRecordStore {
	s := &fakeRecordStore{
		byID: make(map[string]*domain.ProcessingRecord),
		docs: make(map[string]*domain.EmbeddingsDocument),
	}
	for _, r := range records {
		s.byID[r.ID] = r
	}
	return s
}

func (s *fakeRecordStore) log(entry string) {
	s.transitions = append(s.transitions, entry)
}

func (s *fakeRecordStore) Transitions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.transitions))
	copy(out, s.transitions)
	return out
}

func (s *fakeRecordStore) record(projectID string) *domain.ProcessingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.byID {
		if r.ProjectID == projectID {
			cp := *r
			return &cp
		}
	}
	return nil
}

func (s *fakeRecordStore) GetRecord(ctx context.Context, projectID string) (*domain.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.byID {
		if r.ProjectID == projectID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, port.ErrRecordNotFound
}

func (s *fakeRecordStore) CreateRecord(ctx context.Context, projectID string) (*domain.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	r := &domain.ProcessingRecord{
		ID:        fmt.Sprintf("r-%d", s.seq),
		ProjectID: projectID,
		State:     domain.StatePending,
	}
	s.byID[r.ID] = r
	s.log("create")
	cp := *r
	return &cp, nil
}

func (s *fakeRecordStore) StartRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.byID[id]
	r.State = domain.StateFetching
	r.Progress = domain.ProgressFetching
	r.LastError = ""
	r.ErrorKind = ""
	s.log("start")
	return nil
}

func (s *fakeRecordStore) UpdateRecordState(ctx context.Context, id string, state string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.byID[id]
	r.State = state
	r.Progress = progress
	s.log(fmt.Sprintf("state:%s:%d", state, progress))
	return nil
}

func (s *fakeRecordStore) SaveSnapshot(ctx context.Context, id string, snapshot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[id].Snapshot = snapshot
	s.log("snapshot")
	return nil
}

func (s *fakeRecordStore) MarkRecordFailed(ctx context.Context, id string, message string, kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.byID[id]
	r.State = domain.StateFailed
	r.LastError = message
	r.ErrorKind = kind
	r.Attempts++
	s.log("failed:" + kind)
	return nil
}

func (s *fakeRecordStore) CompleteRecord(ctx context.Context, id string, doc *domain.EmbeddingsDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.byID[id]
	r.State = domain.StateCompleted
	r.Progress = domain.ProgressCompleted
	r.Processed = true
	r.LastError = ""
	r.ErrorKind = ""
	r.Attempts = 0
	s.docs[r.ProjectID] = doc
	s.log("complete")
	return nil
}

func (s *fakeRecordStore) ResetRecord(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.byID[id]
	r.State = domain.StatePending
	r.Progress = domain.ProgressPending
	r.LastError = ""
	r.ErrorKind = ""
	r.Snapshot = ""
	r.Processed = false
	r.Attempts = 0
	delete(s.docs, r.ProjectID)
	s.log("reset")
	return nil
}

func (s *fakeRecordStore) LoadEmbeddingsDocument(ctx context.Context, projectID string) (*domain.EmbeddingsDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log("load-doc")
	doc, ok := s.docs[projectID]
	if !ok {
		return nil, port.ErrIndexUnavailable
	}
	return doc, nil
}

func (s *fakeRecordStore) ListFailedRecords(ctx context.Context) ([]domain.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ProcessingRecord
	for _, r := range s.byID {
		if r.State == domain.StateFailed {
			out = append(out, *r)
		}
	}
	return out, nil
}

// fakeFetcher is a programmable port.ContentFetcher.
type fakeFetcher struct {
	mu      sync.Mutex
	content string
	err     error
	calls   int
}

func (f *fakeFetcher) Fetch(ctx context.Context, repoURL string) (string, error) {
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

// fakeEmbedder is a programmable port.EmbeddingProvider producing
// deterministic non-zero vectors.
type fakeEmbedder struct {
	mu       sync.Mutex
	dim      int
	queryVec []float32
	batchErr error
	embedErr error
	batches  [][]string
	embeds   int
}

func newFakeEmbedder(dim int) *fakeEmbedder {
	return &fakeEmbedder{dim: dim}
}

func (f *fakeEmbedder) ModelName() string { return "fake-embedding" }

func (f *fakeEmbedder) vectorFor(text string) []float32 {
	v := make([]float32, f.dim)
	v[0] = float32(len(text)%7 + 1)
	for i := 1; i < f.dim; i++ {
		v[i] = 1
	}
	return v
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embeds++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	if f.queryVec != nil {
		cp := make([]float32, len(f.queryVec))
		copy(cp, f.queryVec)
		return cp, nil
	}
	return f.vectorFor(text), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	batch := make([]string, len(texts))
	copy(batch, texts)
	f.batches = append(f.batches, batch)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vectorFor(t)
	}
	return out, nil
}

func (f *fakeEmbedder) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

// fakeGenerator is a programmable port.GenerationProvider capturing its prompts.
type fakeGenerator struct {
	mu         sync.Mutex
	answer     string
	err        error
	calls      int
	lastSystem string
	lastPrompt string
}

func (f *fakeGenerator) ModelName() string { return "fake-generation" }

func (f *fakeGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastSystem = systemPrompt
	f.lastPrompt = userPrompt
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}
