package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kiranshivaraju/sitescope/internal/queue"
	"github.com/kiranshivaraju/sitescope/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// DBTX is the subset of pgxpool.Pool the store depends on. pgxmock pools satisfy it too.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreatePhoto(ctx context.Context, photo *models.Photo) error
	GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error)
	ListPhotosByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Photo, error)
	// PhotoQueue returns the claim backend over photo analysis. uuid.Nil
	// scopes it to photos of every job.
	PhotoQueue(jobID uuid.UUID) queue.Backend[models.Photo]

	// EnqueueTask inserts a pending task unless a pending or processing task
	// already exists for (kind, subjectID). created reports whether a row was inserted.
	EnqueueTask(ctx context.Context, kind string, subjectID uuid.UUID) (task *models.AsyncTask, created bool, err error)
	GetTask(ctx context.Context, id uuid.UUID) (*models.AsyncTask, error)
	TaskQueue(kind string) queue.Backend[models.AsyncTask]

	UpsertPhotoEmbedding(ctx context.Context, e *models.PhotoEmbedding) error
	ListPhotoEmbeddings(ctx context.Context, jobID uuid.UUID) ([]*models.PhotoEmbedding, error)
}
