package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"listingfix/internal/domain"
)

type enqueueFixJobRequest struct {
	AssetIDs          []string `json:"assetIds" validate:"required,min=1,max=100,dive,required"`
	CustomInstruction string   `json:"customInstruction" validate:"max=2000"`
}

type fixJobResponse struct {
	ID                string                `json:"id"`
	Status            domain.JobStatus      `json:"status"`
	AssetIDs          []string              `json:"assetIds"`
	CustomInstruction string                `json:"customInstruction,omitempty"`
	Outcomes          []domain.AssetOutcome `json:"outcomes"`
	Error             string                `json:"error,omitempty"`
	CreatedAt         time.Time             `json:"createdAt"`
	UpdatedAt         time.Time             `json:"updatedAt"`
}

func toFixJobResponse(job *domain.FixJob) fixJobResponse {
	outcomes := job.Outcomes
	if outcomes == nil {
		outcomes = []domain.AssetOutcome{}
	}
	return fixJobResponse{
		ID:                job.ID,
		Status:            job.Status,
		AssetIDs:          job.AssetIDs,
		CustomInstruction: job.CustomInstruction,
		Outcomes:          outcomes,
		Error:             job.ErrorMessage,
		CreatedAt:         job.CreatedAt,
		UpdatedAt:         job.UpdatedAt,
	}
}

// EnqueueFixJob queues a batch for the worker. Every asset must exist.
func (a *App) EnqueueFixJob(w http.ResponseWriter, r *http.Request) {
	var req enqueueFixJobRequest
	if !a.decode(w, r, &req) {
		return
	}
	seen := make(map[string]struct{}, len(req.AssetIDs))
	ids := make([]string, 0, len(req.AssetIDs))
	for _, id := range req.AssetIDs {
		id = strings.TrimSpace(id)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, err := a.Assets.GetByID(r.Context(), id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				a.error(w, http.StatusBadRequest, "bad_request", "unknown asset "+id)
				return
			}
			a.storeError(w, r, err, "asset")
			return
		}
		ids = append(ids, id)
	}

	job := &domain.FixJob{AssetIDs: ids, CustomInstruction: strings.TrimSpace(req.CustomInstruction)}
	if err := a.Jobs.Enqueue(r.Context(), job); err != nil {
		a.storeError(w, r, err, "fix job")
		return
	}
	a.Logger.Info().Str("job_id", job.ID).Int("assets", len(ids)).Msg("api: fix job queued")
	a.json(w, http.StatusAccepted, toFixJobResponse(job))
}

func (a *App) GetFixJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.storeError(w, r, err, "fix job")
		return
	}
	a.json(w, http.StatusOK, toFixJobResponse(job))
}
