package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"listingfix/internal/domain"
	"listingfix/internal/refine"
)

type fixRequest struct {
	CustomInstruction string `json:"customInstruction" validate:"max=2000"`
	Force             bool   `json:"force"`
}

type attemptResponse struct {
	Number       int      `json:"number"`
	Status       string   `json:"status"`
	Score        *float64 `json:"score,omitempty"`
	SubjectMatch *bool    `json:"subjectMatch,omitempty"`
	Critique     string   `json:"critique,omitempty"`
	FailedChecks []string `json:"failedChecks,omitempty"`
	Unverified   bool     `json:"unverified,omitempty"`
}

type fixResponse struct {
	AssetID    string            `json:"assetId"`
	Outcome    string            `json:"outcome"`
	Score      float64           `json:"score"`
	Unverified bool              `json:"unverified,omitempty"`
	Saved      bool              `json:"saved"`
	Attempts   []attemptResponse `json:"attempts"`
	ErrorType  string            `json:"errorType,omitempty"`
	Error      string            `json:"error,omitempty"`
}

func toFixResponse(item refine.BatchItem) fixResponse {
	out := fixResponse{
		AssetID:    item.AssetID,
		Outcome:    string(item.Result.Outcome),
		Score:      item.Result.Score,
		Unverified: item.Result.Unverified,
		Saved:      item.Saved,
		Attempts:   make([]attemptResponse, 0, len(item.Result.Attempts)),
	}
	for _, at := range item.Result.Attempts {
		ar := attemptResponse{Number: at.Number, Status: string(at.Status), Unverified: at.Unverified}
		if v := at.Verification; v != nil {
			score, match := v.Score, v.SubjectMatch
			ar.Score = &score
			ar.SubjectMatch = &match
			ar.Critique = v.Critique
			ar.FailedChecks = v.FailedChecks
		}
		out.Attempts = append(out.Attempts, ar)
	}
	outcome := item.AssetOutcome()
	out.ErrorType = outcome.ErrorType
	out.Error = outcome.Error
	return out
}

// FixAsset runs one refinement synchronously. Run outcomes, including aborted
// runs, are reported in the body with status 200.
func (a *App) FixAsset(w http.ResponseWriter, r *http.Request) {
	var req fixRequest
	if r.ContentLength != 0 {
		if !a.decode(w, r, &req) {
			return
		}
	}
	asset, err := a.Assets.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.storeError(w, r, err, "asset")
		return
	}

	items := a.Batch.Run(r.Context(), []*domain.Asset{asset}, refine.BatchOptions{
		CustomInstruction: strings.TrimSpace(req.CustomInstruction),
		Force:             req.Force,
	})
	if len(items) != 1 {
		a.error(w, http.StatusInternalServerError, "internal", "refinement produced no result")
		return
	}
	item := items[0]
	a.Logger.Info().
		Str("asset_id", item.AssetID).
		Str("outcome", string(item.Result.Outcome)).
		Int("attempts", len(item.Result.Attempts)).
		Bool("saved", item.Saved).
		Msg("api: fix finished")
	a.json(w, http.StatusOK, toFixResponse(item))
}
