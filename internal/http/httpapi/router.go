package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"listingfix/internal/http/handlers"
	"listingfix/internal/middleware"
)

// NewRouter mounts the v1 API. Routes that spend oracle calls sit behind the
// rate limiter.
func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	var origins []string
	limit := 30
	if app.Config != nil {
		origins = app.Config.CORSAllowedOrigins
		if app.Config.RateLimitPerMin > 0 {
			limit = app.Config.RateLimitPerMin
		}
	}

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(origins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	r.Route("/v1/assets", func(r chi.Router) {
		r.Post("/", app.CreateAsset)
		r.Get("/{id}", app.GetAsset)
		r.Get("/{id}/image", app.AssetImage)
		r.Put("/{id}/analysis", app.SetAnalysis)
		r.With(middleware.RateLimit(limit, time.Minute)).Post("/{id}/fix", app.FixAsset)
	})

	r.Route("/v1/fix-jobs", func(r chi.Router) {
		r.With(middleware.RateLimit(limit, time.Minute)).Post("/", app.EnqueueFixJob)
		r.Get("/{id}", app.GetFixJob)
	})

	return r
}
