package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/sitescope/internal/api/middleware"
	"github.com/kiranshivaraju/sitescope/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	// RateLimit is optional; nil disables rate limiting.
	RateLimit *mw.RateLimit

	HealthHandler            http.HandlerFunc
	MetricsHandler           http.Handler
	CreatePhotoHandler       http.HandlerFunc
	AdvanceAnalysisHandler   http.HandlerFunc
	FindingsHandler          http.HandlerFunc
	PricingHandler           http.HandlerFunc
	EnqueueEmbeddingsHandler http.HandlerFunc
	AdvanceEmbeddingsHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Route("/api/v1/jobs/{jobID}", func(r chi.Router) {
			r.Post("/photos", orNotImplemented(deps.CreatePhotoHandler))
			r.Post("/analysis/advance", orNotImplemented(deps.AdvanceAnalysisHandler))
			r.Get("/findings", orNotImplemented(deps.FindingsHandler))
			r.Post("/pricing", orNotImplemented(deps.PricingHandler))
			r.Post("/embeddings", orNotImplemented(deps.EnqueueEmbeddingsHandler))
		})
		r.Post("/api/v1/embeddings/advance", orNotImplemented(deps.AdvanceEmbeddingsHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
