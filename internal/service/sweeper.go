package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/stackfolio/portfolio-rag/internal/domain"
	"github.com/stackfolio/portfolio-rag/internal/port"
	"github.com/stackfolio/portfolio-rag/internal/worker"
)

// SweeperOptions tunes the retry sweep.
type SweeperOptions struct {
	Interval     time.Duration
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func (o SweeperOptions) withDefaults() SweeperOptions {
	if o.Interval <= 0 {
		o.Interval = time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = time.Minute
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 15 * time.Minute
	}
	return o
}

// Sweeper periodically requeues failed processing records. Only transient
// failures under the attempt budget are retried, each after an exponential
// backoff window derived from its attempt count.
type Sweeper struct {
	records   port.ProcessingStore
	processor *ProcessingService
	pool      *worker.Pool
	opts      SweeperOptions
}

// NewSweeper creates a new sweeper.
func NewSweeper(records port.ProcessingStore, processor *ProcessingService, pool *worker.Pool, opts SweeperOptions) *Sweeper {
	return &Sweeper{
		records:   records,
		processor: processor,
		pool:      pool,
		opts:      opts.withDefaults(),
	}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	slog.Info("retry sweeper started", "interval", s.opts.Interval, "max_attempts", s.opts.MaxAttempts)
	s.Sweep(ctx)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("retry sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep requeues every eligible failed record and returns how many it submitted.
func (s *Sweeper) Sweep(ctx context.Context) int {
	failed, err := s.records.ListFailedRecords(ctx)
	if err != nil {
		slog.Error("sweep: list failed records", "error", err)
		return 0
	}

	requeued := 0
	for _, rec := range failed {
		if !s.eligible(rec) {
			continue
		}

		projectID := rec.ProjectID
		_, err := s.pool.Submit(projectID, func(jobCtx context.Context) {
			if err := s.processor.Process(jobCtx, projectID, false); err != nil {
				slog.Error("retry run failed", "project_id", projectID, "error", err)
			}
		})
		if err != nil {
			if !errors.Is(err, worker.ErrBusy) {
				slog.Warn("sweep: submit rejected", "project_id", projectID, "error", err)
			}
			continue
		}

		requeued++
		slog.Info("requeued failed record", "project_id", projectID, "attempt", rec.Attempts+1)
	}
	return requeued
}

// eligible applies the retry policy: fatal failures never retry, the attempt
// budget caps the rest, and each waits out its backoff window.
func (s *Sweeper) eligible(rec domain.ProcessingRecord) bool {
	if rec.ErrorKind == domain.ErrorKindFatal {
		return false
	}
	if rec.Attempts >= s.opts.MaxAttempts {
		return false
	}
	return time.Since(rec.UpdatedAt) >= s.delayForAttempt(rec.Attempts)
}

// delayForAttempt returns the backoff window after the given attempt count:
// InitialDelay doubling up to MaxDelay.
func (s *Sweeper) delayForAttempt(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2.0
	b.MaxInterval = s.opts.MaxDelay
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		d = b.NextBackOff()
	}
	return d
}
