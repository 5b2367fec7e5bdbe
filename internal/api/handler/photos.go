package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sitescope/internal/api/response"
	"github.com/kiranshivaraju/sitescope/internal/store"
	"github.com/kiranshivaraju/sitescope/pkg/models"
)

// PhotoRegistrar persists new photo rows.
type PhotoRegistrar interface {
	CreatePhoto(ctx context.Context, photo *models.Photo) error
}

// SummaryInvalidator drops a job's cached findings summary.
type SummaryInvalidator interface {
	InvalidateSummary(ctx context.Context, jobID uuid.UUID) error
}

type createPhotoRequest struct {
	ImageURL string `json:"imageUrl" validate:"required,url,max=2048"`
	Kind     string `json:"kind"     validate:"omitempty,max=64"`
}

// NewCreatePhotoHandler returns an http.HandlerFunc for POST /api/v1/jobs/{jobID}/photos.
// The photo starts pending analysis. inv may be nil.
func NewCreatePhotoHandler(st PhotoRegistrar, inv SummaryInvalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		var req createPhotoRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := validate.Struct(req); err != nil {
			response.ValidationFailed(w, err)
			return
		}

		photo := &models.Photo{
			JobID:          jobID,
			ImageURL:       req.ImageURL,
			Kind:           req.Kind,
			FindingsStatus: models.FindingsStatusPending,
		}
		if err := st.CreatePhoto(r.Context(), photo); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, "DUPLICATE_PHOTO", "Photo already exists", nil)
				return
			}
			slog.Error("creating photo", "job_id", jobID, "error", err)
			internalError(w)
			return
		}

		if inv != nil {
			if err := inv.InvalidateSummary(r.Context(), jobID); err != nil {
				slog.Warn("invalidating summary after photo upload", "job_id", jobID, "error", err)
			}
		}
		response.Created(w, photo)
	}
}
