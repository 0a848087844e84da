package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"listingfix/internal/domain"
	"listingfix/internal/infra"
	"listingfix/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Enqueue inserts a job in the QUEUED state.
func (r *JobRepositoryPG) Enqueue(ctx context.Context, job *domain.FixJob) error {
	if job == nil || len(job.AssetIDs) == 0 {
		return domain.ErrEmptyBatch
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	ids, err := json.Marshal(job.AssetIDs)
	if err != nil {
		return err
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertFixJob, job.ID, ids, job.CustomInstruction)
	if err := row.Scan(&job.CreatedAt, &job.UpdatedAt); err != nil {
		return fmt.Errorf("insert fix job: %w", err)
	}
	job.Status = domain.JobStatusQueued
	job.Outcomes = nil
	return nil
}

// Claim moves the oldest queued job to RUNNING and returns it. Concurrent
// workers never claim the same job.
func (r *JobRepositoryPG) Claim(ctx context.Context) (*domain.FixJob, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QClaimFixJob))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNoJobAvailable
		}
		return nil, err
	}
	return job, nil
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, id string) (*domain.FixJob, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrJobNotFound
	}
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectFixJobByID, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// RecordOutcome appends one asset outcome to the job.
func (r *JobRepositoryPG) RecordOutcome(ctx context.Context, id string, outcome domain.AssetOutcome) error {
	raw, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QAppendFixJobOutcome, id, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// Finish sets the terminal status of a job.
func (r *JobRepositoryPG) Finish(ctx context.Context, id string, status domain.JobStatus, errMsg string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QFinishFixJob, id, string(status), errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.FixJob, error) {
	var (
		job          domain.FixJob
		status       string
		assetIDsJSON []byte
		outcomesJSON []byte
	)
	if err := row.Scan(
		&job.ID,
		&status,
		&assetIDsJSON,
		&job.CustomInstruction,
		&outcomesJSON,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	if err := json.Unmarshal(assetIDsJSON, &job.AssetIDs); err != nil {
		return nil, fmt.Errorf("decode asset ids: %w", err)
	}
	if len(outcomesJSON) > 0 {
		if err := json.Unmarshal(outcomesJSON, &job.Outcomes); err != nil {
			return nil, fmt.Errorf("decode outcomes: %w", err)
		}
	}
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
