package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sitescope/internal/queue"
	"github.com/kiranshivaraju/sitescope/internal/store"
	"github.com/kiranshivaraju/sitescope/pkg/models"
)

const embedBatchSize = 100

// EmbeddingResult is stored as the result of a finished embedding task.
type EmbeddingResult struct {
	Model    string `json:"model"`
	Embedded int    `json:"embedded"`
	Skipped  int    `json:"skipped"`
}

// EmbeddingService computes vector embeddings of ready photos' combined labels
// through the same claim queue as photo analysis.
type EmbeddingService struct {
	store    store.Store
	embedder models.Embedder
	opts     QueueOptions
}

func NewEmbeddingService(st store.Store, embedder models.Embedder, opts QueueOptions) *EmbeddingService {
	if opts.WorkerID == "" {
		opts.WorkerID = queue.DefaultWorkerID()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = queue.DefaultBatchSize
	}
	return &EmbeddingService{store: st, embedder: embedder, opts: opts}
}

// EnqueueEmbeddings schedules an embedding task for jobID. It returns the
// live task and created=false when one is already pending or processing.
func (s *EmbeddingService) EnqueueEmbeddings(ctx context.Context, jobID uuid.UUID) (*models.AsyncTask, bool, error) {
	task, created, err := s.store.EnqueueTask(ctx, models.TaskKindEmbedding, jobID)
	if err != nil {
		return nil, false, fmt.Errorf("enqueue embeddings for job %s: %w", jobID, err)
	}
	if created {
		slog.Debug("embedding task enqueued", "task_id", task.ID, "job_id", jobID)
	}
	return task, created, nil
}

// AdvanceEmbeddings claims and runs up to maxToProcess embedding tasks.
func (s *EmbeddingService) AdvanceEmbeddings(ctx context.Context, maxToProcess int) (AdvanceResult, error) {
	var res AdvanceResult
	q := queue.New[models.AsyncTask](s.store.TaskQueue(models.TaskKindEmbedding), s.opts.queueOptions("embedding"))

	for res.Processed < maxToProcess {
		task, err := q.ClaimNext(ctx, s.opts.BatchSize, s.opts.LockExpiry)
		if err != nil {
			return res, err
		}
		if task == nil {
			break
		}
		res.Processed++

		out, err := s.embedJob(ctx, task.SubjectID)
		if err != nil {
			outcome, ferr := q.MarkFailed(ctx, task.ID, err, task.Attempts)
			switch {
			case errors.Is(ferr, queue.ErrLockLost):
				res.LockLost++
			case ferr != nil:
				return res, ferr
			case outcome == queue.OutcomeFailed:
				res.Failed++
			default:
				res.Retried++
			}
			continue
		}

		data, err := json.Marshal(out)
		if err != nil {
			return res, fmt.Errorf("encode embedding result: %w", err)
		}
		if err := q.MarkDone(ctx, task.ID, data); err != nil {
			if errors.Is(err, queue.ErrLockLost) {
				res.LockLost++
				continue
			}
			return res, err
		}
		res.Succeeded++
	}
	return res, nil
}

// embedJob embeds every ready photo of a job that has summary labels.
func (s *EmbeddingService) embedJob(ctx context.Context, jobID uuid.UUID) (EmbeddingResult, error) {
	out := EmbeddingResult{Model: s.embedder.Model()}

	photos, err := s.store.ListPhotosByJob(ctx, jobID)
	if err != nil {
		return out, err
	}

	var pending []*models.Photo
	var texts []string
	for _, p := range photos {
		if p.FindingsStatus != models.FindingsStatusReady || p.Findings == nil || len(p.Findings.Combined.SummaryLabels) == 0 {
			out.Skipped++
			continue
		}
		pending = append(pending, p)
		texts = append(texts, strings.Join(p.Findings.Combined.SummaryLabels, ", "))
	}

	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		vectors, err := s.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return out, fmt.Errorf("embed photos of job %s: %w", jobID, err)
		}
		if len(vectors) != end-start {
			return out, fmt.Errorf("%w: %d vectors for %d photos", ErrInvalidResponse, len(vectors), end-start)
		}
		for i, vec := range vectors {
			p := pending[start+i]
			if err := s.store.UpsertPhotoEmbedding(ctx, &models.PhotoEmbedding{
				PhotoID:   p.ID,
				JobID:     jobID,
				Model:     out.Model,
				Labels:    p.Findings.Combined.SummaryLabels,
				Embedding: vec,
			}); err != nil {
				return out, err
			}
			out.Embedded++
		}
	}
	return out, nil
}
