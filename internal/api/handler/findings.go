package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sitescope/internal/api/response"
	"github.com/kiranshivaraju/sitescope/internal/triage"
	"github.com/kiranshivaraju/sitescope/pkg/models"
)

// Triage serves findings summaries and quotes.
type Triage interface {
	GetFindingsSummary(ctx context.Context, jobID uuid.UUID) (*models.FindingsSummary, error)
	PriceJob(ctx context.Context, jobID uuid.UUID, sel *models.ScopeSelection) (*triage.Quote, error)
}

// NewFindingsHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}/findings.
// A job without photos is a 200 with status no_photos, never a 404.
func NewFindingsHandler(svc Triage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		summary, err := svc.GetFindingsSummary(r.Context(), jobID)
		if err != nil {
			slog.Error("building findings summary", "job_id", jobID, "error", err)
			internalError(w)
			return
		}
		response.JSON(w, summary)
	}
}

// NewPricingHandler returns an http.HandlerFunc for POST /api/v1/jobs/{jobID}/pricing.
// The body is an optional ScopeSelection.
func NewPricingHandler(svc Triage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		var sel models.ScopeSelection
		if !decodeBody(w, r, &sel) {
			return
		}
		if err := validate.Struct(sel); err != nil {
			response.ValidationFailed(w, err)
			return
		}

		quote, err := svc.PriceJob(r.Context(), jobID, &sel)
		if err != nil {
			slog.Error("pricing job", "job_id", jobID, "error", err)
			internalError(w)
			return
		}
		response.JSON(w, quote)
	}
}
