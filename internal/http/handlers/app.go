package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"listingfix/internal/domain"
	"listingfix/internal/infra"
	"listingfix/internal/refine"
)

// maxBodyBytes caps JSON request bodies; images travel base64 encoded.
const maxBodyBytes = 32 << 20

// App carries the dependencies shared by every handler.
type App struct {
	Config *infra.Config
	Logger infra.Logger
	Assets domain.AssetRepository
	Jobs   domain.JobRepository
	Batch  *refine.Batch
}

var validate = validator.New()

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errType, message string) {
	a.json(w, code, map[string]string{"error": errType, "message": message})
}

// decode reads a JSON body into dst and validates its struct tags.
func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "bad_request", "request body too large")
			return false
		}
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", describeValidation(err))
		return false
	}
	return true
}

// storeError maps repository failures onto API errors.
func (a *App) storeError(w http.ResponseWriter, r *http.Request, err error, what string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", what+" not found")
	case errors.Is(err, domain.ErrJobNotFound):
		a.error(w, http.StatusNotFound, "not_found", "fix job not found")
	case errors.Is(err, domain.ErrInvalidAsset), errors.Is(err, domain.ErrEmptyBatch):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("api: store failure")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load "+what)
	}
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid payload"
	}
	fe := verrs[0]
	return fe.Field() + " failed " + fe.Tag() + " validation"
}
