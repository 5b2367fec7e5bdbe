// Package queue implements the claim-based task runner used for photo
// analysis and embedding jobs.
//
// Mutual exclusion lives entirely in the Backend's conditional Claim update:
// invocations may run in separate processes, so the queue holds no in-memory
// locks. A lock older than the expiry is treated as abandoned and can be
// reclaimed by any worker.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sitescope/internal/metrics"
)

// ErrLockLost is returned when a completion or release no longer matches the
// caller's lock, typically because the lock expired and another worker claimed the task.
var ErrLockLost = errors.New("queue: task lock lost")

const (
	DefaultLockExpiry  = 2 * time.Minute
	DefaultMaxAttempts = 5
	DefaultBatchSize   = 10
)

// Backend is the persistence contract behind a Queue. Every mutation is
// conditional; none is a plain unconditional write.
type Backend[T any] interface {
	// Candidates returns up to limit ids that are pending and due at now, or
	// processing with a lock taken before staleBefore.
	Candidates(ctx context.Context, limit int, now, staleBefore time.Time) ([]uuid.UUID, error)
	// Claim atomically sets status=processing, locked_by=workerID,
	// locked_at=now and attempts+=1, only if the row is still unlocked or its
	// lock predates staleBefore. It returns nil, nil when the row no longer matches.
	Claim(ctx context.Context, id uuid.UUID, workerID string, now, staleBefore time.Time) (*T, error)
	// Complete marks the task done and stores result. Returns ErrLockLost if
	// workerID no longer holds the lock.
	Complete(ctx context.Context, id uuid.UUID, workerID string, result []byte, now time.Time) error
	// Reschedule returns the task to pending with nextAttemptAt and clears the lock.
	Reschedule(ctx context.Context, id uuid.UUID, workerID, errMsg string, nextAttemptAt, now time.Time) error
	// Fail marks the task permanently failed and clears the lock.
	Fail(ctx context.Context, id uuid.UUID, workerID, errMsg string, now time.Time) error
}

// Options configures a Queue. Zero values fall back to the defaults.
type Options struct {
	Name        string
	WorkerID    string
	LockExpiry  time.Duration
	MaxAttempts int
	Now         func() time.Time
}

// Outcome is the result of MarkFailed.
type Outcome string

const (
	OutcomeRetry  Outcome = "retry"
	OutcomeFailed Outcome = "failed"
)

// Queue drives a Backend. It is safe for concurrent use; concurrent callers
// may each claim distinct tasks.
type Queue[T any] struct {
	backend     Backend[T]
	name        string
	workerID    string
	lockExpiry  time.Duration
	maxAttempts int
	now         func() time.Time
}

// New creates a Queue over backend.
func New[T any](backend Backend[T], opts Options) *Queue[T] {
	if opts.Name == "" {
		opts.Name = "default"
	}
	if opts.WorkerID == "" {
		opts.WorkerID = DefaultWorkerID()
	}
	if opts.LockExpiry <= 0 {
		opts.LockExpiry = DefaultLockExpiry
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Queue[T]{
		backend:     backend,
		name:        opts.Name,
		workerID:    opts.WorkerID,
		lockExpiry:  opts.LockExpiry,
		maxAttempts: opts.MaxAttempts,
		now:         opts.Now,
	}
}

// WorkerID returns the lock owner id this queue claims with.
func (q *Queue[T]) WorkerID() string { return q.workerID }

// ClaimNext looks at up to batchSize eligible tasks and claims the first one
// whose conditional update succeeds. It returns nil, nil when nothing could
// be claimed. A lockExpiry <= 0 uses the queue's configured expiry.
func (q *Queue[T]) ClaimNext(ctx context.Context, batchSize int, lockExpiry time.Duration) (*T, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if lockExpiry <= 0 {
		lockExpiry = q.lockExpiry
	}

	now := q.now()
	staleBefore := now.Add(-lockExpiry)

	ids, err := q.backend.Candidates(ctx, batchSize, now, staleBefore)
	if err != nil {
		return nil, fmt.Errorf("list %s candidates: %w", q.name, err)
	}
	if len(ids) == 0 {
		metrics.QueueClaims.WithLabelValues(q.name, "empty").Inc()
		return nil, nil
	}

	for _, id := range ids {
		task, err := q.backend.Claim(ctx, id, q.workerID, now, staleBefore)
		if err != nil {
			return nil, fmt.Errorf("claim %s task %s: %w", q.name, id, err)
		}
		if task == nil {
			// Another worker won this row.
			metrics.QueueClaims.WithLabelValues(q.name, "lost").Inc()
			continue
		}
		metrics.QueueClaims.WithLabelValues(q.name, "claimed").Inc()
		slog.Debug("task claimed", "queue", q.name, "task_id", id, "worker_id", q.workerID)
		return task, nil
	}
	return nil, nil
}

// MarkDone completes a claimed task.
func (q *Queue[T]) MarkDone(ctx context.Context, id uuid.UUID, result []byte) error {
	if err := q.backend.Complete(ctx, id, q.workerID, result, q.now()); err != nil {
		return fmt.Errorf("complete %s task %s: %w", q.name, id, err)
	}
	metrics.QueueReleases.WithLabelValues(q.name, "done").Inc()
	return nil
}

// MarkFailed records a failed run. attempts is the task's attempt count after
// the claim. Below the maximum the task goes back to pending with the fixed
// backoff; at the maximum it is failed permanently.
func (q *Queue[T]) MarkFailed(ctx context.Context, id uuid.UUID, cause error, attempts int) (Outcome, error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	now := q.now()

	if attempts < q.maxAttempts {
		next := now.Add(Backoff(attempts))
		if err := q.backend.Reschedule(ctx, id, q.workerID, msg, next, now); err != nil {
			return "", fmt.Errorf("reschedule %s task %s: %w", q.name, id, err)
		}
		metrics.QueueReleases.WithLabelValues(q.name, string(OutcomeRetry)).Inc()
		slog.Warn("task failed, retry scheduled",
			"queue", q.name, "task_id", id, "worker_id", q.workerID,
			"attempts", attempts, "next_attempt_at", next, "error", msg)
		return OutcomeRetry, nil
	}

	if err := q.backend.Fail(ctx, id, q.workerID, msg, now); err != nil {
		return "", fmt.Errorf("fail %s task %s: %w", q.name, id, err)
	}
	metrics.QueueReleases.WithLabelValues(q.name, string(OutcomeFailed)).Inc()
	slog.Error("task failed permanently",
		"queue", q.name, "task_id", id, "worker_id", q.workerID,
		"attempts", attempts, "error", msg)
	return OutcomeFailed, nil
}

// DefaultWorkerID builds a process-unique worker id from the hostname.
func DefaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
