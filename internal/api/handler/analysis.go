package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sitescope/internal/ai"
	"github.com/kiranshivaraju/sitescope/internal/api/response"
)

// MaxAdvance caps how many items one advance request may process.
const MaxAdvance = 50

// AnalysisAdvancer drives the photo analysis queue.
type AnalysisAdvancer interface {
	AdvanceAnalysis(ctx context.Context, jobID uuid.UUID, maxToProcess int) (ai.AdvanceResult, error)
}

type advanceRequest struct {
	MaxToProcess int `json:"maxToProcess" validate:"gte=0,lte=50"`
}

// NewAdvanceAnalysisHandler returns an http.HandlerFunc for
// POST /api/v1/jobs/{jobID}/analysis/advance. The body is optional;
// maxToProcess defaults to defaultMax.
func NewAdvanceAnalysisHandler(svc AnalysisAdvancer, defaultMax int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := jobIDParam(w, r)
		if !ok {
			return
		}
		maxToProcess, ok := advanceLimit(w, r, defaultMax)
		if !ok {
			return
		}

		res, err := svc.AdvanceAnalysis(r.Context(), jobID, maxToProcess)
		if err != nil {
			slog.Error("advancing analysis", "job_id", jobID, "error", err)
			internalError(w)
			return
		}
		response.JSON(w, res)
	}
}

func advanceLimit(w http.ResponseWriter, r *http.Request, defaultMax int) (int, bool) {
	var req advanceRequest
	if !decodeBody(w, r, &req) {
		return 0, false
	}
	if err := validate.Struct(req); err != nil {
		response.ValidationFailed(w, err)
		return 0, false
	}
	if req.MaxToProcess == 0 {
		req.MaxToProcess = min(max(defaultMax, 1), MaxAdvance)
	}
	return req.MaxToProcess, true
}
