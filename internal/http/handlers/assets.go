package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"listingfix/internal/domain"
)

type imagePayload struct {
	Data     string `json:"data" validate:"required"`
	MIMEType string `json:"mimeType"`
}

type createAssetRequest struct {
	Role        string        `json:"role" validate:"required"`
	ReferenceID string        `json:"referenceId"`
	Subject     string        `json:"subject" validate:"max=500"`
	Image       *imagePayload `json:"image" validate:"required"`
}

type assetResponse struct {
	ID                string                     `json:"id"`
	Role              domain.Role                `json:"role"`
	ReferenceID       string                     `json:"referenceId,omitempty"`
	Subject           string                     `json:"subject,omitempty"`
	MIMEType          string                     `json:"mimeType"`
	HasCandidate      bool                       `json:"hasCandidate"`
	CandidateMIMEType string                     `json:"candidateMimeType,omitempty"`
	Analysis          *domain.ComplianceAnalysis `json:"analysis,omitempty"`
	CreatedAt         time.Time                  `json:"createdAt"`
	UpdatedAt         time.Time                  `json:"updatedAt"`
}

func toAssetResponse(asset *domain.Asset) assetResponse {
	return assetResponse{
		ID:                asset.ID,
		Role:              asset.Role,
		ReferenceID:       asset.ReferenceID,
		Subject:           asset.Subject,
		MIMEType:          asset.Original.MIMEType,
		HasCandidate:      !asset.Candidate.IsZero(),
		CandidateMIMEType: asset.Candidate.MIMEType,
		Analysis:          asset.Analysis,
		CreatedAt:         asset.CreatedAt,
		UpdatedAt:         asset.UpdatedAt,
	}
}

func (a *App) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var req createAssetRequest
	if !a.decode(w, r, &req) {
		return
	}
	role, ok := domain.ParseRole(req.Role)
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "role must be PRIMARY or SECONDARY")
		return
	}
	img, err := decodeImage(*req.Image)
	if err != nil {
		a.error(w, http.StatusBadRequest, "invalid_image", err.Error())
		return
	}

	asset := &domain.Asset{
		Role:     role,
		Subject:  strings.TrimSpace(req.Subject),
		Original: img,
	}
	if ref := strings.TrimSpace(req.ReferenceID); ref != "" {
		if role != domain.RoleSecondary {
			a.error(w, http.StatusBadRequest, "bad_request", "referenceId is only valid for SECONDARY assets")
			return
		}
		primary, err := a.Assets.GetByID(r.Context(), ref)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				a.error(w, http.StatusBadRequest, "bad_request", "referenceId does not name an existing asset")
				return
			}
			a.storeError(w, r, err, "reference asset")
			return
		}
		if primary.Role != domain.RolePrimary {
			a.error(w, http.StatusBadRequest, "bad_request", "referenceId must name a PRIMARY asset")
			return
		}
		asset.ReferenceID = ref
	}

	if err := a.Assets.Create(r.Context(), asset); err != nil {
		a.storeError(w, r, err, "asset")
		return
	}
	a.Logger.Info().Str("asset_id", asset.ID).Str("role", string(asset.Role)).Int("bytes", len(img.Data)).Msg("api: asset created")
	a.json(w, http.StatusCreated, toAssetResponse(asset))
}

func (a *App) GetAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := a.Assets.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.storeError(w, r, err, "asset")
		return
	}
	a.json(w, http.StatusOK, toAssetResponse(asset))
}

// AssetImage streams the original or the accepted candidate bytes.
func (a *App) AssetImage(w http.ResponseWriter, r *http.Request) {
	asset, err := a.Assets.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.storeError(w, r, err, "asset")
		return
	}
	var img domain.Image
	switch variant := r.URL.Query().Get("variant"); variant {
	case "", "original":
		img = asset.Original
	case "candidate":
		if asset.Candidate.IsZero() {
			a.error(w, http.StatusNotFound, "not_found", "asset has no accepted candidate")
			return
		}
		img = asset.Candidate
	default:
		a.error(w, http.StatusBadRequest, "bad_request", "variant must be original or candidate")
		return
	}
	mime := img.MIMEType
	if mime == "" {
		mime = http.DetectContentType(img.Data)
	}
	w.Header().Set("Content-Type", mime)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

func (a *App) SetAnalysis(w http.ResponseWriter, r *http.Request) {
	var analysis domain.ComplianceAnalysis
	if !a.decode(w, r, &analysis) {
		return
	}
	for _, v := range analysis.Violations {
		switch v.Severity {
		case domain.SeverityCritical, domain.SeverityWarning, domain.SeverityInfo:
		default:
			a.error(w, http.StatusBadRequest, "bad_request", "violation severity must be critical, warning or info")
			return
		}
	}
	id := chi.URLParam(r, "id")
	if err := a.Assets.SetAnalysis(r.Context(), id, analysis); err != nil {
		a.storeError(w, r, err, "asset")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"id": id, "analysis": analysis})
}

// decodeImage accepts raw base64 or a data URL. A missing MIME type is
// sniffed from the bytes.
func decodeImage(p imagePayload) (domain.Image, error) {
	data := strings.TrimSpace(p.Data)
	mime := strings.TrimSpace(p.MIMEType)
	if strings.HasPrefix(data, "data:") {
		header, payload, ok := strings.Cut(data, ",")
		if !ok {
			return domain.Image{}, errors.New("malformed data url")
		}
		if mime == "" {
			mime = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		}
		data = payload
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return domain.Image{}, errors.New("image data is not valid base64")
	}
	if len(raw) == 0 {
		return domain.Image{}, errors.New("image data is empty")
	}
	if mime == "" {
		mime = http.DetectContentType(raw)
	}
	if !strings.HasPrefix(mime, "image/") {
		return domain.Image{}, errors.New("unsupported image type " + mime)
	}
	return domain.Image{Data: raw, MIMEType: mime}, nil
}
