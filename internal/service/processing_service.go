package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stackfolio/portfolio-rag/internal/chunker"
	"github.com/stackfolio/portfolio-rag/internal/domain"
	"github.com/stackfolio/portfolio-rag/internal/port"
	"github.com/stackfolio/portfolio-rag/internal/vectorindex"
)

// ProcessingOptions tunes the ingestion pipeline.
type ProcessingOptions struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
	BatchDelay   time.Duration
}

func (o ProcessingOptions) withDefaults() ProcessingOptions {
	if o.ChunkSize <= 0 {
		o.ChunkSize = chunker.DefaultChunkSize
	}
	if o.ChunkOverlap < 0 {
		o.ChunkOverlap = chunker.DefaultOverlap
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	return o
}

// ProcessingService drives a project's repository through the ingestion
// pipeline: fetch, chunk, embed, persist. One run per project at a time;
// admission control lives in the worker pool, retries in the sweeper.
type ProcessingService struct {
	projects port.ProjectStore
	records  port.ProcessingStore
	fetcher  port.ContentFetcher
	embedder port.EmbeddingProvider
	opts     ProcessingOptions
}

// NewProcessingService creates a new processing service.
func NewProcessingService(projects port.ProjectStore, records port.ProcessingStore, fetcher port.ContentFetcher, embedder port.EmbeddingProvider, opts ProcessingOptions) *ProcessingService {
	return &ProcessingService{
		projects: projects,
		records:  records,
		fetcher:  fetcher,
		embedder: embedder,
		opts:     opts.withDefaults(),
	}
}

// Process runs the full pipeline for one project. A completed record is
// skipped unless force is set; force wipes the previous run first. Failures
// are persisted on the record with their classification and returned.
func (s *ProcessingService) Process(ctx context.Context, projectID string, force bool) error {
	project, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	if project.GitHubURL == "" {
		return fmt.Errorf("project %s has no repository url: %w", projectID, port.ErrInvalidRepoURL)
	}

	rec, err := s.records.GetRecord(ctx, projectID)
	if errors.Is(err, port.ErrRecordNotFound) {
		rec, err = s.records.CreateRecord(ctx, projectID)
	}
	if err != nil {
		return fmt.Errorf("load processing record: %w", err)
	}

	if rec.Processed && rec.State == domain.StateCompleted && !force {
		slog.Info("project already processed, skipping", "project_id", projectID)
		return nil
	}
	if force {
		if err := s.records.ResetRecord(ctx, rec.ID); err != nil {
			return fmt.Errorf("reset record: %w", err)
		}
	}

	if err := s.records.StartRun(ctx, rec.ID); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	slog.Info("processing started", "project_id", projectID, "url", project.GitHubURL)

	if err := s.run(ctx, project, rec); err != nil {
		if errors.Is(err, port.ErrProjectNotFound) {
			// Deleted mid-run; the record went with it, nothing left to update.
			slog.Warn("project deleted during processing", "project_id", projectID)
			return err
		}
		kind := port.ErrorKind(err)
		slog.Error("processing failed", "project_id", projectID, "kind", kind, "error", err)
		if mErr := s.records.MarkRecordFailed(context.Background(), rec.ID, err.Error(), kind); mErr != nil {
			slog.Error("failed to persist error state", "project_id", projectID, "error", mErr)
		}
		return err
	}

	slog.Info("processing completed", "project_id", projectID)
	return nil
}

func (s *ProcessingService) run(ctx context.Context, project *domain.Project, rec *domain.ProcessingRecord) error {
	// 1. Fetch the flattened repository snapshot
	snapshot, err := s.fetcher.Fetch(ctx, project.GitHubURL)
	if err != nil {
		return err
	}
	if err := s.records.SaveSnapshot(ctx, rec.ID, snapshot); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	// 2. Chunk
	if err := s.records.UpdateRecordState(ctx, rec.ID, domain.StateChunking, domain.ProgressChunking); err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	chunks := chunker.Split(snapshot, s.opts.ChunkSize, s.opts.ChunkOverlap)
	if len(chunks) == 0 {
		return port.ErrNoChunks
	}
	slog.Info("content chunked", "project_id", project.ID, "chunks", len(chunks))

	// 3. Embed in batches
	if err := s.records.UpdateRecordState(ctx, rec.ID, domain.StateEmbedding, domain.ProgressEmbedding); err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	embeddings, err := s.embedBatches(ctx, chunks)
	if err != nil {
		return err
	}

	// Normalize once here so search is a plain inner product.
	vectorindex.NormalizeAll(embeddings)
	if _, err := vectorindex.Build(embeddings); err != nil {
		return fmt.Errorf("%w: %v", port.ErrEmbeddingService, err)
	}

	doc := &domain.EmbeddingsDocument{
		Chunks:             chunks,
		Embeddings:         embeddings,
		EmbeddingDimension: len(embeddings[0]),
		NumChunks:          len(chunks),
	}

	// 4. Final check that the project still exists before persisting
	if _, err := s.projects.GetProject(ctx, project.ID); err != nil {
		return fmt.Errorf("project check before completion: %w", err)
	}
	if err := s.records.CompleteRecord(ctx, rec.ID, doc); err != nil {
		return fmt.Errorf("complete record: %w", err)
	}
	return nil
}

// embedBatches embeds chunks in fixed-size batches with an inter-batch delay,
// pacing calls so the provider is not overwhelmed. No delay after the last batch.
func (s *ProcessingService) embedBatches(ctx context.Context, chunks []string) ([][]float32, error) {
	out := make([][]float32, 0, len(chunks))
	total := (len(chunks) + s.opts.BatchSize - 1) / s.opts.BatchSize

	for start := 0; start < len(chunks); start += s.opts.BatchSize {
		end := start + s.opts.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		slog.Info("embedding batch", "batch", start/s.opts.BatchSize+1, "total", total, "chunks", end-start)

		vectors, err := s.embedder.EmbedBatch(ctx, chunks[start:end])
		if err != nil {
			return nil, err
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("%w: got %d embeddings for %d chunks", port.ErrEmbeddingService, len(vectors), end-start)
		}
		out = append(out, vectors...)

		if end < len(chunks) && s.opts.BatchDelay > 0 {
			timer := time.NewTimer(s.opts.BatchDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return out, nil
}

// Status returns the processing record plus the chunk count once completed.
func (s *ProcessingService) Status(ctx context.Context, projectID string) (*domain.ProcessingRecord, int, error) {
	rec, err := s.records.GetRecord(ctx, projectID)
	if err != nil {
		return nil, 0, err
	}
	if rec.State != domain.StateCompleted {
		return rec, 0, nil
	}

	doc, err := s.records.LoadEmbeddingsDocument(ctx, projectID)
	if errors.Is(err, port.ErrIndexUnavailable) {
		return rec, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return rec, doc.NumChunks, nil
}

// ResetFailed returns every failed record to pending so it can be retried.
func (s *ProcessingService) ResetFailed(ctx context.Context) (int, error) {
	failed, err := s.records.ListFailedRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("list failed records: %w", err)
	}

	count := 0
	for _, rec := range failed {
		if err := s.records.ResetRecord(ctx, rec.ID); err != nil {
			return count, fmt.Errorf("reset record %s: %w", rec.ID, err)
		}
		count++
	}
	return count, nil
}
