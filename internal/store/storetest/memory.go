// Package storetest provides an in-memory store.Store for tests of packages
// that sit on top of persistence. The claim backends emulate the conditional
// updates of the Postgres store under a single mutex.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sitescope/internal/queue"
	"github.com/kiranshivaraju/sitescope/internal/store"
	"github.com/kiranshivaraju/sitescope/pkg/models"
)

// MemoryStore stores rows in memory. The zero value is not usable; call New.
type MemoryStore struct {
	mu         sync.Mutex
	photos     map[uuid.UUID]*models.Photo
	tasks      map[uuid.UUID]*models.AsyncTask
	embeddings map[uuid.UUID]*models.PhotoEmbedding
	seq        int

	// Now stamps created_at/updated_at. Defaults to time.Now.
	Now func() time.Time
}

var _ store.Store = (*MemoryStore)(nil)

func New() *MemoryStore {
	return &MemoryStore{
		photos:     make(map[uuid.UUID]*models.Photo),
		tasks:      make(map[uuid.UUID]*models.AsyncTask),
		embeddings: make(map[uuid.UUID]*models.PhotoEmbedding),
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// stamp returns now plus a strictly increasing nanosecond offset so rows
// created within the same instant still order deterministically.
func (s *MemoryStore) stamp() time.Time {
	s.seq++
	return s.Now().Add(time.Duration(s.seq))
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) CreatePhoto(_ context.Context, photo *models.Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if photo.ID == uuid.Nil {
		photo.ID = uuid.New()
	}
	if _, ok := s.photos[photo.ID]; ok {
		return store.ErrDuplicateKey
	}
	if photo.FindingsStatus == "" {
		photo.FindingsStatus = models.FindingsStatusPending
	}
	if photo.Kind == "" {
		photo.Kind = "site"
	}
	now := s.stamp()
	photo.CreatedAt, photo.UpdatedAt = now, now
	clone := *photo
	s.photos[photo.ID] = &clone
	return nil
}

// PutPhoto stores photo as given, overwriting any row with the same id.
// Tests use it to seed ready or locked rows directly.
func (s *MemoryStore) PutPhoto(photo models.Photo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if photo.CreatedAt.IsZero() {
		photo.CreatedAt = s.stamp()
	}
	if photo.UpdatedAt.IsZero() {
		photo.UpdatedAt = photo.CreatedAt
	}
	s.photos[photo.ID] = &photo
}

func (s *MemoryStore) GetPhoto(_ context.Context, id uuid.UUID) (*models.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.photos[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (s *MemoryStore) ListPhotosByJob(_ context.Context, jobID uuid.UUID) ([]*models.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Photo
	for _, p := range s.photos {
		if p.JobID == jobID {
			clone := *p
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *MemoryStore) PhotoQueue(jobID uuid.UUID) queue.Backend[models.Photo] {
	return &photoBackend{s: s, jobID: jobID}
}

func (s *MemoryStore) EnqueueTask(_ context.Context, kind string, subjectID uuid.UUID) (*models.AsyncTask, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		if t.Kind == kind && t.SubjectID == subjectID &&
			(t.Status == models.TaskStatusPending || t.Status == models.TaskStatusProcessing) {
			clone := *t
			return &clone, false, nil
		}
	}
	now := s.stamp()
	t := &models.AsyncTask{
		ID:        uuid.New(),
		Kind:      kind,
		SubjectID: subjectID,
		Status:    models.TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.tasks[t.ID] = t
	clone := *t
	return &clone, true, nil
}

func (s *MemoryStore) GetTask(_ context.Context, id uuid.UUID) (*models.AsyncTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *t
	return &clone, nil
}

func (s *MemoryStore) TaskQueue(kind string) queue.Backend[models.AsyncTask] {
	return &taskBackend{s: s, kind: kind}
}

func (s *MemoryStore) UpsertPhotoEmbedding(_ context.Context, e *models.PhotoEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.stamp()
	if prev, ok := s.embeddings[e.PhotoID]; ok {
		e.CreatedAt = prev.CreatedAt
	} else {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	clone := *e
	s.embeddings[e.PhotoID] = &clone
	return nil
}

func (s *MemoryStore) ListPhotoEmbeddings(_ context.Context, jobID uuid.UUID) ([]*models.PhotoEmbedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.PhotoEmbedding
	for _, e := range s.embeddings {
		if e.JobID == jobID {
			clone := *e
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PhotoID.String() < out[j].PhotoID.String() })
	return out, nil
}

// row is the claim-relevant view shared by photos and tasks.
type row struct {
	status        *string
	attempts      *int
	lockedBy      **string
	lockedAt      **time.Time
	nextAttemptAt **time.Time
	updatedAt     *time.Time
	createdAt     time.Time
}

func eligible(r row, now, staleBefore time.Time) bool {
	switch *r.status {
	case "pending":
		return *r.lockedBy == nil && (*r.nextAttemptAt == nil || !(*r.nextAttemptAt).After(now))
	case "processing":
		return *r.lockedAt != nil && (*r.lockedAt).Before(staleBefore)
	}
	return false
}

// sortCandidates orders by locked_at ascending with nulls first, then newest created first.
func sortCandidates(ids []uuid.UUID, rows map[uuid.UUID]row) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := rows[ids[i]], rows[ids[j]]
		la, lb := *a.lockedAt, *b.lockedAt
		switch {
		case la == nil && lb != nil:
			return true
		case la != nil && lb == nil:
			return false
		case la != nil && lb != nil && !la.Equal(*lb):
			return la.Before(*lb)
		}
		return a.createdAt.After(b.createdAt)
	})
}

func claim(r row, workerID string, now time.Time) {
	*r.status = "processing"
	w := workerID
	t := now
	*r.lockedBy = &w
	*r.lockedAt = &t
	*r.attempts++
	*r.updatedAt = now
}

func owned(r row, workerID string) bool {
	return *r.status == "processing" && *r.lockedBy != nil && **r.lockedBy == workerID
}

func release(r row, status string, next *time.Time, now time.Time) {
	*r.status = status
	*r.lockedBy = nil
	*r.lockedAt = nil
	*r.nextAttemptAt = next
	*r.updatedAt = now
}

func strPtr(s string) *string { return &s }

type photoBackend struct {
	s     *MemoryStore
	jobID uuid.UUID
}

func photoRow(p *models.Photo) row {
	return row{
		status:        &p.FindingsStatus,
		attempts:      &p.Attempts,
		lockedBy:      &p.LockedBy,
		lockedAt:      &p.LockedAt,
		nextAttemptAt: &p.NextAttemptAt,
		updatedAt:     &p.UpdatedAt,
		createdAt:     p.CreatedAt,
	}
}

func (b *photoBackend) inScope(p *models.Photo) bool {
	return b.jobID == uuid.Nil || p.JobID == b.jobID
}

func (b *photoBackend) Candidates(_ context.Context, limit int, now, staleBefore time.Time) ([]uuid.UUID, error) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	rows := make(map[uuid.UUID]row)
	var ids []uuid.UUID
	for id, p := range b.s.photos {
		r := photoRow(p)
		if b.inScope(p) && eligible(r, now, staleBefore) {
			rows[id] = r
			ids = append(ids, id)
		}
	}
	sortCandidates(ids, rows)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (b *photoBackend) Claim(_ context.Context, id uuid.UUID, workerID string, now, staleBefore time.Time) (*models.Photo, error) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	p, ok := b.s.photos[id]
	if !ok || !b.inScope(p) || !eligible(photoRow(p), now, staleBefore) {
		return nil, nil
	}
	claim(photoRow(p), workerID, now)
	clone := *p
	return &clone, nil
}

func (b *photoBackend) Complete(_ context.Context, id uuid.UUID, workerID string, result []byte, now time.Time) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	p, ok := b.s.photos[id]
	if !ok || !owned(photoRow(p), workerID) {
		return queue.ErrLockLost
	}
	var findings models.StructuredFindings
	if err := json.Unmarshal(result, &findings); err != nil {
		return fmt.Errorf("decode findings: %w", err)
	}
	release(photoRow(p), models.FindingsStatusReady, nil, now)
	p.Findings = &findings
	p.LastError = nil
	analyzed := now
	p.AnalyzedAt = &analyzed
	return nil
}

func (b *photoBackend) Reschedule(_ context.Context, id uuid.UUID, workerID, errMsg string, nextAttemptAt, now time.Time) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	p, ok := b.s.photos[id]
	if !ok || !owned(photoRow(p), workerID) {
		return queue.ErrLockLost
	}
	next := nextAttemptAt
	release(photoRow(p), models.FindingsStatusPending, &next, now)
	p.LastError = strPtr(errMsg)
	return nil
}

func (b *photoBackend) Fail(_ context.Context, id uuid.UUID, workerID, errMsg string, now time.Time) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	p, ok := b.s.photos[id]
	if !ok || !owned(photoRow(p), workerID) {
		return queue.ErrLockLost
	}
	release(photoRow(p), models.FindingsStatusFailed, nil, now)
	p.LastError = strPtr(errMsg)
	return nil
}

type taskBackend struct {
	s    *MemoryStore
	kind string
}

func taskRow(t *models.AsyncTask) row {
	return row{
		status:        &t.Status,
		attempts:      &t.Attempts,
		lockedBy:      &t.LockedBy,
		lockedAt:      &t.LockedAt,
		nextAttemptAt: &t.NextAttemptAt,
		updatedAt:     &t.UpdatedAt,
		createdAt:     t.CreatedAt,
	}
}

func (b *taskBackend) Candidates(_ context.Context, limit int, now, staleBefore time.Time) ([]uuid.UUID, error) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	rows := make(map[uuid.UUID]row)
	var ids []uuid.UUID
	for id, t := range b.s.tasks {
		r := taskRow(t)
		if t.Kind == b.kind && eligible(r, now, staleBefore) {
			rows[id] = r
			ids = append(ids, id)
		}
	}
	sortCandidates(ids, rows)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (b *taskBackend) Claim(_ context.Context, id uuid.UUID, workerID string, now, staleBefore time.Time) (*models.AsyncTask, error) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	t, ok := b.s.tasks[id]
	if !ok || t.Kind != b.kind || !eligible(taskRow(t), now, staleBefore) {
		return nil, nil
	}
	claim(taskRow(t), workerID, now)
	if t.StartedAt == nil {
		started := now
		t.StartedAt = &started
	}
	clone := *t
	return &clone, nil
}

func (b *taskBackend) Complete(_ context.Context, id uuid.UUID, workerID string, result []byte, now time.Time) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	t, ok := b.s.tasks[id]
	if !ok || !owned(taskRow(t), workerID) {
		return queue.ErrLockLost
	}
	release(taskRow(t), models.TaskStatusDone, nil, now)
	t.Result = append(json.RawMessage(nil), result...)
	t.Error = nil
	finished := now
	t.FinishedAt = &finished
	return nil
}

func (b *taskBackend) Reschedule(_ context.Context, id uuid.UUID, workerID, errMsg string, nextAttemptAt, now time.Time) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	t, ok := b.s.tasks[id]
	if !ok || !owned(taskRow(t), workerID) {
		return queue.ErrLockLost
	}
	next := nextAttemptAt
	release(taskRow(t), models.TaskStatusPending, &next, now)
	t.Error = strPtr(errMsg)
	return nil
}

func (b *taskBackend) Fail(_ context.Context, id uuid.UUID, workerID, errMsg string, now time.Time) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	t, ok := b.s.tasks[id]
	if !ok || !owned(taskRow(t), workerID) {
		return queue.ErrLockLost
	}
	release(taskRow(t), models.TaskStatusFailed, nil, now)
	t.Error = strPtr(errMsg)
	finished := now
	t.FinishedAt = &finished
	return nil
}
