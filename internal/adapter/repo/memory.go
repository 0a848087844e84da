package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"listingfix/internal/domain"
)

// MemoryAssetRepository keeps assets in process memory. Callers always
// receive copies.
type MemoryAssetRepository struct {
	mu     sync.RWMutex
	assets map[string]*domain.Asset
	now    func() time.Time
}

func NewMemoryAssetRepository() *MemoryAssetRepository {
	return &MemoryAssetRepository{assets: make(map[string]*domain.Asset), now: time.Now}
}

func (r *MemoryAssetRepository) Create(ctx context.Context, asset *domain.Asset) error {
	if err := asset.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	now := r.now().UTC()
	asset.CreatedAt, asset.UpdatedAt = now, now
	r.assets[asset.ID] = cloneAsset(asset)
	return nil
}

func (r *MemoryAssetRepository) GetByID(ctx context.Context, id string) (*domain.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	asset, ok := r.assets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneAsset(asset), nil
}

func (r *MemoryAssetRepository) SetAnalysis(ctx context.Context, id string, analysis domain.ComplianceAnalysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	asset, ok := r.assets[id]
	if !ok {
		return domain.ErrNotFound
	}
	a := analysis
	a.Violations = append([]domain.Violation(nil), analysis.Violations...)
	asset.Analysis = &a
	asset.UpdatedAt = r.now().UTC()
	return nil
}

func (r *MemoryAssetRepository) SaveCandidate(ctx context.Context, id string, candidate domain.Image) error {
	if candidate.IsZero() {
		return domain.ErrInvalidAsset
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	asset, ok := r.assets[id]
	if !ok {
		return domain.ErrNotFound
	}
	asset.Candidate = cloneImage(candidate)
	asset.UpdatedAt = r.now().UTC()
	return nil
}

// MemoryJobRepository is a FIFO job queue in process memory.
type MemoryJobRepository struct {
	mu    sync.Mutex
	jobs  map[string]*domain.FixJob
	order []string
	now   func() time.Time
}

func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{jobs: make(map[string]*domain.FixJob), now: time.Now}
}

func (r *MemoryJobRepository) Enqueue(ctx context.Context, job *domain.FixJob) error {
	if job == nil || len(job.AssetIDs) == 0 {
		return domain.ErrEmptyBatch
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := r.now().UTC()
	job.Status = domain.JobStatusQueued
	job.Outcomes = nil
	job.CreatedAt, job.UpdatedAt = now, now
	r.jobs[job.ID] = cloneJob(job)
	r.order = append(r.order, job.ID)
	return nil
}

func (r *MemoryJobRepository) Claim(ctx context.Context) (*domain.FixJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		job := r.jobs[id]
		if job.Status != domain.JobStatusQueued {
			continue
		}
		job.Status = domain.JobStatusRunning
		job.UpdatedAt = r.now().UTC()
		return cloneJob(job), nil
	}
	return nil, domain.ErrNoJobAvailable
}

func (r *MemoryJobRepository) GetByID(ctx context.Context, id string) (*domain.FixJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (r *MemoryJobRepository) RecordOutcome(ctx context.Context, id string, outcome domain.AssetOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	job.Outcomes = append(job.Outcomes, outcome)
	job.UpdatedAt = r.now().UTC()
	return nil
}

func (r *MemoryJobRepository) Finish(ctx context.Context, id string, status domain.JobStatus, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	job.Status = status
	job.ErrorMessage = errMsg
	job.UpdatedAt = r.now().UTC()
	return nil
}

func cloneImage(img domain.Image) domain.Image {
	return domain.Image{Data: append([]byte(nil), img.Data...), MIMEType: img.MIMEType}
}

func cloneAsset(a *domain.Asset) *domain.Asset {
	out := *a
	out.Original = cloneImage(a.Original)
	if !a.Candidate.IsZero() {
		out.Candidate = cloneImage(a.Candidate)
	}
	if a.Analysis != nil {
		analysis := *a.Analysis
		analysis.Violations = append([]domain.Violation(nil), a.Analysis.Violations...)
		out.Analysis = &analysis
	}
	return &out
}

func cloneJob(j *domain.FixJob) *domain.FixJob {
	out := *j
	out.AssetIDs = append([]string(nil), j.AssetIDs...)
	out.Outcomes = append([]domain.AssetOutcome(nil), j.Outcomes...)
	return &out
}

var (
	_ domain.AssetRepository = (*MemoryAssetRepository)(nil)
	_ domain.JobRepository   = (*MemoryJobRepository)(nil)
)
