package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sitescope/internal/ai"
	"github.com/kiranshivaraju/sitescope/internal/api/response"
	"github.com/kiranshivaraju/sitescope/pkg/models"
)

// Embeddings enqueues and drives embedding tasks.
type Embeddings interface {
	EnqueueEmbeddings(ctx context.Context, jobID uuid.UUID) (*models.AsyncTask, bool, error)
	AdvanceEmbeddings(ctx context.Context, maxToProcess int) (ai.AdvanceResult, error)
}

// NewEnqueueEmbeddingsHandler returns an http.HandlerFunc for
// POST /api/v1/jobs/{jobID}/embeddings. It answers 202 for a new task and
// 200 with the existing task when one is already queued.
func NewEnqueueEmbeddingsHandler(svc Embeddings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		task, created, err := svc.EnqueueEmbeddings(r.Context(), jobID)
		if err != nil {
			slog.Error("enqueueing embeddings", "job_id", jobID, "error", err)
			internalError(w)
			return
		}
		if created {
			response.Accepted(w, task)
			return
		}
		response.JSON(w, task)
	}
}

// NewAdvanceEmbeddingsHandler returns an http.HandlerFunc for POST /api/v1/embeddings/advance.
func NewAdvanceEmbeddingsHandler(svc Embeddings, defaultMax int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxToProcess, ok := advanceLimit(w, r, defaultMax)
		if !ok {
			return
		}

		res, err := svc.AdvanceEmbeddings(r.Context(), maxToProcess)
		if err != nil {
			slog.Error("advancing embeddings", "error", err)
			internalError(w)
			return
		}
		response.JSON(w, res)
	}
}
