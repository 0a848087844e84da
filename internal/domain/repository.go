package domain

import "context"

// AssetRepository is the asset store boundary: the refinement engine reads
// assets through it and writes accepted candidates back.
type AssetRepository interface {
	Create(ctx context.Context, asset *Asset) error
	GetByID(ctx context.Context, id string) (*Asset, error)
	SetAnalysis(ctx context.Context, id string, analysis ComplianceAnalysis) error
	SaveCandidate(ctx context.Context, id string, candidate Image) error
}

// JobRepository persists batch fix jobs and hands them to workers.
type JobRepository interface {
	Enqueue(ctx context.Context, job *FixJob) error
	Claim(ctx context.Context) (*FixJob, error)
	GetByID(ctx context.Context, id string) (*FixJob, error)
	RecordOutcome(ctx context.Context, id string, outcome AssetOutcome) error
	Finish(ctx context.Context, id string, status JobStatus, errMsg string) error
}
