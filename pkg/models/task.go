package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusDone       = "done"
	TaskStatusFailed     = "failed"
)

// TaskKindEmbedding computes photo embeddings for every ready photo of a job.
const TaskKindEmbedding = "embedding"

// AsyncTask is a generic claim-queue row. SubjectID references the entity the
// task works on (a job id for embedding tasks). At most one pending or
// processing task exists per (Kind, SubjectID).
type AsyncTask struct {
	ID            uuid.UUID       `db:"id"              json:"id"`
	Kind          string          `db:"kind"            json:"kind"`
	SubjectID     uuid.UUID       `db:"subject_id"      json:"subject_id"`
	Status        string          `db:"status"          json:"status"`
	Attempts      int             `db:"attempts"        json:"attempts"`
	LockedBy      *string         `db:"locked_by"       json:"locked_by,omitempty"`
	LockedAt      *time.Time      `db:"locked_at"       json:"locked_at,omitempty"`
	NextAttemptAt *time.Time      `db:"next_attempt_at" json:"next_attempt_at,omitempty"`
	StartedAt     *time.Time      `db:"started_at"      json:"started_at,omitempty"`
	FinishedAt    *time.Time      `db:"finished_at"     json:"finished_at,omitempty"`
	Error         *string         `db:"error"           json:"error,omitempty"`
	Result        json.RawMessage `db:"result"          json:"result,omitempty"`
	CreatedAt     time.Time       `db:"created_at"      json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"      json:"updated_at"`
}
