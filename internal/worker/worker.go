// Package worker drains queued fix jobs: it claims one job at a time, runs
// its assets through the refinement batch and records each outcome as it
// lands.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"listingfix/internal/domain"
	"listingfix/internal/infra"
	"listingfix/internal/refine"
)

const defaultPollInterval = 2 * time.Second

// finishTimeout bounds the final status write after the run context ends.
const finishTimeout = 5 * time.Second

// Worker polls the job queue.
type Worker struct {
	jobs   domain.JobRepository
	assets domain.AssetRepository
	batch  *refine.Batch
	logger infra.Logger
	poll   time.Duration
}

// New creates a worker. A non-positive poll interval falls back to two seconds.
func New(jobs domain.JobRepository, assets domain.AssetRepository, batch *refine.Batch, logger infra.Logger, poll time.Duration) *Worker {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Worker{jobs: jobs, assets: assets, batch: batch, logger: logger, poll: poll}
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Dur("poll_interval", w.poll).Msg("worker: started")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		processed, err := w.ProcessNext(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("worker: failed to process job")
		}
		if processed && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.poll):
		}
	}
}

// ProcessNext claims and runs a single job. It reports false when the queue
// was empty.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.jobs.Claim(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNoJobAvailable) {
			return false, nil
		}
		return false, fmt.Errorf("claim job: %w", err)
	}
	logger := w.logger.With().Str("job_id", job.ID).Int("assets", len(job.AssetIDs)).Logger()
	logger.Info().Msg("worker: picked job")

	assets, err := w.load(ctx, job)
	if err != nil {
		w.finish(job.ID, domain.JobStatusFailed, err.Error(), &logger)
		return true, err
	}

	// Outcomes of items aborted by cancellation are still recorded.
	recordCtx := context.WithoutCancel(ctx)
	items := w.batch.Run(ctx, assets, refine.BatchOptions{
		CustomInstruction: job.CustomInstruction,
		Progress: func(item refine.BatchItem) {
			if err := w.jobs.RecordOutcome(recordCtx, job.ID, item.AssetOutcome()); err != nil {
				logger.Error().Err(err).Str("asset_id", item.AssetID).Msg("worker: record outcome failed")
			}
		},
	})

	if err := ctx.Err(); err != nil {
		w.finish(job.ID, domain.JobStatusFailed, "worker stopped before the job completed", &logger)
		return true, nil
	}
	logger.Info().Int("completed", len(items)).Msg("worker: job finished")
	w.finish(job.ID, domain.JobStatusSucceeded, "", &logger)
	return true, nil
}

// load resolves the job's assets in order. Assets deleted since the job was
// queued are recorded as aborted and skipped.
func (w *Worker) load(ctx context.Context, job *domain.FixJob) ([]*domain.Asset, error) {
	assets := make([]*domain.Asset, 0, len(job.AssetIDs))
	for _, id := range job.AssetIDs {
		asset, err := w.assets.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				outcome := domain.AssetOutcome{
					AssetID:   id,
					Outcome:   string(refine.OutcomeAborted),
					Error:     "asset not found",
					ErrorType: "not_found",
				}
				if err := w.jobs.RecordOutcome(ctx, job.ID, outcome); err != nil {
					return nil, fmt.Errorf("record outcome: %w", err)
				}
				continue
			}
			return nil, fmt.Errorf("load asset %s: %w", id, err)
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

func (w *Worker) finish(id string, status domain.JobStatus, msg string, logger *infra.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()
	if err := w.jobs.Finish(ctx, id, status, msg); err != nil {
		logger.Error().Err(err).Str("status", string(status)).Msg("worker: update status failed")
	}
}
