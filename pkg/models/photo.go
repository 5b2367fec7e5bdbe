package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	FindingsStatusPending    = "pending"
	FindingsStatusProcessing = "processing"
	FindingsStatusReady      = "ready"
	FindingsStatusFailed     = "failed"
)

// Photo is one uploaded image belonging to a job. Analysis of a photo is
// scheduled through the claim queue: LockedBy/LockedAt record the claiming
// worker, NextAttemptAt the earliest retry time.
type Photo struct {
	ID             uuid.UUID           `db:"id"               json:"id"`
	JobID          uuid.UUID           `db:"job_id"           json:"job_id"`
	ImageURL       string              `db:"image_url"        json:"image_url"`
	Kind           string              `db:"kind"             json:"kind"`
	FindingsStatus string              `db:"findings_status"  json:"findings_status"`
	Findings       *StructuredFindings `db:"findings"         json:"findings,omitempty"`
	Attempts       int                 `db:"attempts"         json:"attempts"`
	LockedBy       *string             `db:"locked_by"        json:"locked_by,omitempty"`
	LockedAt       *time.Time          `db:"locked_at"        json:"locked_at,omitempty"`
	NextAttemptAt  *time.Time          `db:"next_attempt_at"  json:"next_attempt_at,omitempty"`
	LastError      *string             `db:"last_error"       json:"last_error,omitempty"`
	AnalyzedAt     *time.Time          `db:"analyzed_at"      json:"analyzed_at,omitempty"`
	CreatedAt      time.Time           `db:"created_at"       json:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at"       json:"updated_at"`
}

// Terminal reports whether the photo's analysis has finished, successfully or not.
func (p *Photo) Terminal() bool {
	return p.FindingsStatus == FindingsStatusReady || p.FindingsStatus == FindingsStatusFailed
}

// PhotoEmbedding is the vector embedding of a ready photo's summary labels.
type PhotoEmbedding struct {
	PhotoID   uuid.UUID `db:"photo_id"   json:"photo_id"`
	JobID     uuid.UUID `db:"job_id"     json:"job_id"`
	Model     string    `db:"model"      json:"model"`
	Labels    []string  `db:"labels"     json:"labels"`
	Embedding []float32 `db:"embedding"  json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
