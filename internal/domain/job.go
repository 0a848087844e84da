package domain

import "time"

// JobStatus enumerates fix job lifecycle states.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
)

// FixJob is a queued batch of assets to run through the refinement engine.
type FixJob struct {
	ID                string
	AssetIDs          []string
	Status            JobStatus
	CustomInstruction string
	Outcomes          []AssetOutcome
	ErrorMessage      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AssetOutcome records how a single asset's run ended inside a batch.
type AssetOutcome struct {
	AssetID    string  `json:"assetId"`
	Outcome    string  `json:"outcome"`
	Score      float64 `json:"score,omitempty"`
	Attempts   int     `json:"attempts"`
	Unverified bool    `json:"unverified,omitempty"`
	Error      string  `json:"error,omitempty"`
	ErrorType  string  `json:"errorType,omitempty"`
}
