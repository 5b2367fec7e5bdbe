package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sitescope/internal/cache"
	"github.com/kiranshivaraju/sitescope/internal/queue"
	"github.com/kiranshivaraju/sitescope/internal/store"
	"github.com/kiranshivaraju/sitescope/pkg/models"
)

// PhotoAnalyzer produces structured findings for one photo. *Fuser implements it.
type PhotoAnalyzer interface {
	Fuse(ctx context.Context, photo *models.Photo) (*models.StructuredFindings, error)
}

// QueueOptions configures the queues driven by the services in this package.
type QueueOptions struct {
	WorkerID    string
	LockExpiry  time.Duration
	MaxAttempts int
	BatchSize   int
	// Now overrides the queue clock in tests.
	Now func() time.Time
}

func (o QueueOptions) queueOptions(name string) queue.Options {
	return queue.Options{
		Name:        name,
		WorkerID:    o.WorkerID,
		LockExpiry:  o.LockExpiry,
		MaxAttempts: o.MaxAttempts,
		Now:         o.Now,
	}
}

// AdvanceResult counts what one advance call did.
type AdvanceResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
	// LockLost counts tasks whose lock expired and was taken over before the result was written.
	LockLost int `json:"lockLost"`
}

// AnalysisService drives photo analysis through the claim queue inline.
type AnalysisService struct {
	store      store.Store
	analyzer   PhotoAnalyzer
	cache      cache.Cache
	embeddings *EmbeddingService
	opts       QueueOptions
}

// NewAnalysisService creates a new AnalysisService. embeddings may be nil;
// when set, an embedding task is enqueued for every job with a newly ready photo.
func NewAnalysisService(st store.Store, analyzer PhotoAnalyzer, ca cache.Cache, embeddings *EmbeddingService, opts QueueOptions) *AnalysisService {
	if opts.WorkerID == "" {
		opts.WorkerID = queue.DefaultWorkerID()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = queue.DefaultBatchSize
	}
	return &AnalysisService{
		store:      st,
		analyzer:   analyzer,
		cache:      ca,
		embeddings: embeddings,
		opts:       opts,
	}
}

// AdvanceAnalysis claims and analyzes up to maxToProcess photos of jobID, one
// claim at a time. uuid.Nil advances photos of every job. Concurrent calls are
// safe and may each make progress on distinct photos.
func (s *AnalysisService) AdvanceAnalysis(ctx context.Context, jobID uuid.UUID, maxToProcess int) (AdvanceResult, error) {
	var res AdvanceResult
	if maxToProcess <= 0 {
		return res, nil
	}

	q := queue.New[models.Photo](s.store.PhotoQueue(jobID), s.opts.queueOptions("photo_analysis"))
	touched := make(map[uuid.UUID]bool)
	defer func() { s.afterAdvance(ctx, touched) }()

	for res.Processed < maxToProcess {
		photo, err := q.ClaimNext(ctx, s.opts.BatchSize, s.opts.LockExpiry)
		if err != nil {
			return res, err
		}
		if photo == nil {
			break
		}
		res.Processed++

		findings, err := s.analyze(ctx, photo)
		if err != nil {
			outcome, ferr := q.MarkFailed(ctx, photo.ID, err, photo.Attempts)
			if errors.Is(ferr, queue.ErrLockLost) {
				res.LockLost++
				continue
			}
			if ferr != nil {
				return res, ferr
			}
			if outcome == queue.OutcomeFailed {
				res.Failed++
				if _, ok := touched[photo.JobID]; !ok {
					touched[photo.JobID] = false
				}
			} else {
				res.Retried++
			}
			continue
		}

		data, err := json.Marshal(findings)
		if err != nil {
			return res, fmt.Errorf("encode findings for photo %s: %w", photo.ID, err)
		}
		if err := q.MarkDone(ctx, photo.ID, data); err != nil {
			if errors.Is(err, queue.ErrLockLost) {
				slog.Warn("photo lock lost before findings were stored", "photo_id", photo.ID, "worker_id", q.WorkerID())
				res.LockLost++
				continue
			}
			return res, err
		}
		res.Succeeded++
		touched[photo.JobID] = true
	}

	return res, nil
}

// analyze runs the analyzer, converting a panic into an error so the photo
// goes through the failure path instead of staying locked until expiry.
func (s *AnalysisService) analyze(ctx context.Context, photo *models.Photo) (findings *models.StructuredFindings, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in photo analysis", "error", r, "photo_id", photo.ID)
			findings, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	findings, err = s.analyzer.Fuse(ctx, photo)
	if err != nil {
		return nil, err
	}
	if err := findings.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVisionFailed, err)
	}
	return findings, nil
}

// afterAdvance invalidates the cached summaries of every job whose photos
// changed state and enqueues embeddings for jobs with newly ready photos.
func (s *AnalysisService) afterAdvance(ctx context.Context, touched map[uuid.UUID]bool) {
	if len(touched) == 0 {
		return
	}

	jobIDs := make([]uuid.UUID, 0, len(touched))
	for jobID, ready := range touched {
		jobIDs = append(jobIDs, jobID)
		if ready && s.embeddings != nil {
			if _, _, err := s.embeddings.EnqueueEmbeddings(ctx, jobID); err != nil {
				slog.Warn("enqueue embeddings failed", "job_id", jobID, "error", err)
			}
		}
	}
	if s.cache != nil {
		if err := cache.BumpSummaryGeneration(ctx, s.cache, jobIDs...); err != nil {
			slog.Warn("summary cache invalidation failed", "jobs", len(jobIDs), "error", err)
		}
	}
}
