package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kiranshivaraju/sitescope/internal/queue"
	"github.com/kiranshivaraju/sitescope/pkg/models"
	pgvector "github.com/pgvector/pgvector-go"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	db  DBTX
	now func() time.Time
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgresStore over a pgx pool.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// --- Photos ---

var photoColumns = []string{
	"id", "job_id", "image_url", "kind", "findings_status", "findings", "attempts",
	"locked_by", "locked_at", "next_attempt_at", "last_error", "analyzed_at",
	"created_at", "updated_at",
}

func scanPhoto(row pgx.Row) (*models.Photo, error) {
	var p models.Photo
	var findings []byte
	if err := row.Scan(&p.ID, &p.JobID, &p.ImageURL, &p.Kind, &p.FindingsStatus, &findings, &p.Attempts,
		&p.LockedBy, &p.LockedAt, &p.NextAttemptAt, &p.LastError, &p.AnalyzedAt,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if len(findings) > 0 {
		var f models.StructuredFindings
		if err := json.Unmarshal(findings, &f); err != nil {
			return nil, fmt.Errorf("decode findings for photo %s: %w", p.ID, err)
		}
		p.Findings = &f
	}
	return &p, nil
}

func (s *PostgresStore) CreatePhoto(ctx context.Context, photo *models.Photo) error {
	now := s.now()
	if photo.ID == uuid.Nil {
		photo.ID = uuid.New()
	}
	if photo.FindingsStatus == "" {
		photo.FindingsStatus = models.FindingsStatusPending
	}
	if photo.Kind == "" {
		photo.Kind = "site"
	}
	photo.CreatedAt, photo.UpdatedAt = now, now

	_, err := s.db.Exec(ctx,
		`INSERT INTO photos (id, job_id, image_url, kind, findings_status, attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 0, $6, $7)`,
		photo.ID, photo.JobID, photo.ImageURL, photo.Kind, photo.FindingsStatus, photo.CreatedAt, photo.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create photo: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error) {
	p, err := scanPhoto(s.db.QueryRow(ctx,
		`SELECT `+strings.Join(photoColumns, ", ")+` FROM photos WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get photo: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPhotosByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Photo, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+strings.Join(photoColumns, ", ")+` FROM photos WHERE job_id = $1 ORDER BY created_at ASC, id ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close()

	var photos []*models.Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

func (s *PostgresStore) PhotoQueue(jobID uuid.UUID) queue.Backend[models.Photo] {
	t := claimTable[models.Photo]{
		table:        "photos",
		statusColumn: "findings_status",
		errorColumn:  "last_error",
		doneStatus:   models.FindingsStatusReady,
		columns:      photoColumns,
		scan:         scanPhoto,
		onDone: func(b sq.UpdateBuilder, result []byte, now time.Time) sq.UpdateBuilder {
			return b.Set("findings", result).Set("analyzed_at", now)
		},
	}
	if jobID != uuid.Nil {
		t.scope = sq.Eq{"job_id": jobID}
	}
	return &claimBackend[models.Photo]{db: s.db, t: t}
}

// --- Async tasks ---

var taskColumns = []string{
	"id", "kind", "subject_id", "status", "attempts", "locked_by", "locked_at",
	"next_attempt_at", "started_at", "finished_at", "error", "result",
	"created_at", "updated_at",
}

func scanTask(row pgx.Row) (*models.AsyncTask, error) {
	var t models.AsyncTask
	var result []byte
	if err := row.Scan(&t.ID, &t.Kind, &t.SubjectID, &t.Status, &t.Attempts, &t.LockedBy, &t.LockedAt,
		&t.NextAttemptAt, &t.StartedAt, &t.FinishedAt, &t.Error, &result,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if len(result) > 0 {
		t.Result = json.RawMessage(result)
	}
	return &t, nil
}

// EnqueueTask relies on the partial unique index over live (kind, subject_id)
// rows, so concurrent enqueues collapse into one insert.
func (s *PostgresStore) EnqueueTask(ctx context.Context, kind string, subjectID uuid.UUID) (*models.AsyncTask, bool, error) {
	cols := strings.Join(taskColumns, ", ")
	// A live task can finish between the insert and the lookup; one more round settles it.
	for range 2 {
		now := s.now()
		task, err := scanTask(s.db.QueryRow(ctx,
			`INSERT INTO async_tasks (id, kind, subject_id, status, attempts, created_at, updated_at)
			 VALUES ($1, $2, $3, 'pending', 0, $4, $4)
			 ON CONFLICT (kind, subject_id) WHERE status IN ('pending', 'processing') DO NOTHING
			 RETURNING `+cols,
			uuid.New(), kind, subjectID, now))
		if err == nil {
			return task, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, fmt.Errorf("enqueue task: %w", err)
		}

		task, err = scanTask(s.db.QueryRow(ctx,
			`SELECT `+cols+` FROM async_tasks
			 WHERE kind = $1 AND subject_id = $2 AND status IN ('pending', 'processing')
			 ORDER BY created_at DESC LIMIT 1`,
			kind, subjectID))
		if err == nil {
			return task, false, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, fmt.Errorf("get live task: %w", err)
		}
	}
	return nil, false, fmt.Errorf("enqueue task %s/%s: live task vanished twice", kind, subjectID)
}

func (s *PostgresStore) GetTask(ctx context.Context, id uuid.UUID) (*models.AsyncTask, error) {
	t, err := scanTask(s.db.QueryRow(ctx,
		`SELECT `+strings.Join(taskColumns, ", ")+` FROM async_tasks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) TaskQueue(kind string) queue.Backend[models.AsyncTask] {
	return &claimBackend[models.AsyncTask]{db: s.db, t: claimTable[models.AsyncTask]{
		table:        "async_tasks",
		statusColumn: "status",
		errorColumn:  "error",
		doneStatus:   models.TaskStatusDone,
		columns:      taskColumns,
		scope:        sq.Eq{"kind": kind},
		scan:         scanTask,
		onClaim: func(b sq.UpdateBuilder, now time.Time) sq.UpdateBuilder {
			return b.Set("started_at", sq.Expr("COALESCE(started_at, ?)", now))
		},
		onDone: func(b sq.UpdateBuilder, result []byte, now time.Time) sq.UpdateBuilder {
			return b.Set("result", result).Set("finished_at", now)
		},
		onFail: func(b sq.UpdateBuilder, now time.Time) sq.UpdateBuilder {
			return b.Set("finished_at", now)
		},
	}}
}

// --- Embeddings ---

func (s *PostgresStore) UpsertPhotoEmbedding(ctx context.Context, e *models.PhotoEmbedding) error {
	now := s.now()
	labels := e.Labels
	if labels == nil {
		labels = []string{}
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO photo_embeddings (photo_id, job_id, model, labels, embedding, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 ON CONFLICT (photo_id) DO UPDATE SET
		   model = EXCLUDED.model,
		   labels = EXCLUDED.labels,
		   embedding = EXCLUDED.embedding,
		   updated_at = EXCLUDED.updated_at`,
		e.PhotoID, e.JobID, e.Model, labels, pgvector.NewVector(e.Embedding), now)
	if err != nil {
		return fmt.Errorf("upsert photo embedding: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPhotoEmbeddings(ctx context.Context, jobID uuid.UUID) ([]*models.PhotoEmbedding, error) {
	rows, err := s.db.Query(ctx,
		`SELECT photo_id, job_id, model, labels, embedding, created_at, updated_at
		 FROM photo_embeddings WHERE job_id = $1 ORDER BY created_at ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list photo embeddings: %w", err)
	}
	defer rows.Close()

	var out []*models.PhotoEmbedding
	for rows.Next() {
		var e models.PhotoEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&e.PhotoID, &e.JobID, &e.Model, &e.Labels, &vec, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan photo embedding: %w", err)
		}
		e.Embedding = vec.Slice()
		out = append(out, &e)
	}
	return out, rows.Err()
}

// isDuplicateKeyError checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
