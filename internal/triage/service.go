// Package triage composes aggregation, clarification and pricing into the
// job-level operations exposed over HTTP.
package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sitescope/internal/analysis"
	"github.com/kiranshivaraju/sitescope/internal/cache"
	"github.com/kiranshivaraju/sitescope/internal/clarify"
	"github.com/kiranshivaraju/sitescope/internal/metrics"
	"github.com/kiranshivaraju/sitescope/internal/pricing"
	"github.com/kiranshivaraju/sitescope/internal/store"
	"github.com/kiranshivaraju/sitescope/pkg/models"
)

const DefaultSummaryTTL = 5 * time.Minute

// Quote is the priced outcome of a scope selection.
type Quote struct {
	models.GuardrailResult
	Status           string `json:"status"`
	ProblemStatement string `json:"problemStatement,omitempty"`
}

// Service serves findings summaries and prices jobs. The cache may be nil.
type Service struct {
	store      store.Store
	cache      cache.Cache
	engine     *clarify.Engine
	guardrails *pricing.Guardrails
	ttl        time.Duration
}

func NewService(st store.Store, ca cache.Cache, cfg pricing.Config, ttl time.Duration) *Service {
	if ttl <= 0 || ttl >= cache.SummaryGenerationTTL {
		ttl = DefaultSummaryTTL
	}
	return &Service{
		store:      st,
		cache:      ca,
		engine:     clarify.New(cfg),
		guardrails: pricing.New(cfg),
		ttl:        ttl,
	}
}

// GetFindingsSummary returns the job-level summary. Only a store failure is
// an error; missing or unfinished analysis is reported through Status.
func (s *Service) GetFindingsSummary(ctx context.Context, jobID uuid.UUID) (*models.FindingsSummary, error) {
	// The generation is read before the photos so that an invalidation racing
	// with this read leaves the stored summary under a stale generation.
	gen, cacheable := s.summaryGeneration(ctx, jobID)
	if cacheable {
		if cached := s.cachedSummary(ctx, jobID, gen); cached != nil {
			return cached, nil
		}
	}

	photos, err := s.store.ListPhotosByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing photos: %w", err)
	}

	summary := s.summarize(photos)
	if cacheable && summary.Status == models.SummaryReady {
		s.storeSummary(ctx, jobID, gen, summary)
	}
	return summary, nil
}

func (s *Service) summarize(photos []*models.Photo) *models.FindingsSummary {
	agg := analysis.Aggregate(photos)
	summary := &models.FindingsSummary{
		Status:              summaryStatus(photos),
		Findings:            agg.Findings,
		Unknowns:            agg.Unknowns,
		ClarifyingQuestions: []models.ClarifyingQuestion{},
		SuggestedTiers:      []models.ScopeTier{},
		OverallConfidence:   agg.OverallConfidence,
		PhotosAnalyzed:      agg.PhotosAnalyzed,
		PhotosTotal:         agg.PhotosTotal,
		SuggestedProblem:    agg.SuggestedProblem,
		NeedsMorePhotos:     agg.NeedsMorePhotos,
		DetectedTrade:       agg.DetectedTrade,
		IsPaintingJob:       agg.IsPaintingJob,
	}
	if agg.PhotosAnalyzed == 0 {
		return summary
	}

	decision := s.engine.Evaluate(agg)
	summary.NeedsClarification = decision.NeedsClarification
	summary.ClarifyingQuestions = decision.Questions
	summary.SuggestedTiers = s.engine.GenerateScopeTiers(agg, agg.EstimatedAreaSqFt)
	return summary
}

// summaryStatus classifies the job from its photos' analysis states.
func summaryStatus(photos []*models.Photo) string {
	if len(photos) == 0 {
		return models.SummaryNoPhotos
	}
	ready, terminal := 0, 0
	for _, p := range photos {
		if p.FindingsStatus == models.FindingsStatusReady {
			ready++
		}
		if p.Terminal() {
			terminal++
		}
	}
	switch {
	case ready == 0 && terminal == len(photos):
		return models.SummaryFailed
	case ready == 0:
		return models.SummaryAnalyzing
	case terminal < len(photos):
		return models.SummaryPartial
	default:
		return models.SummaryReady
	}
}

// PriceJob applies the pricing guardrails to the job's current findings.
// It degrades rather than failing when the job has no analyzed photos.
func (s *Service) PriceJob(ctx context.Context, jobID uuid.UUID, sel *models.ScopeSelection) (*Quote, error) {
	summary, err := s.GetFindingsSummary(ctx, jobID)
	if err != nil {
		return nil, err
	}

	q := &Quote{
		GuardrailResult:  s.guardrails.Apply(summary.Findings, sel, summary.IsPaintingJob),
		Status:           summary.Status,
		ProblemStatement: summary.SuggestedProblem,
	}
	if sel != nil && sel.ProblemStatement != "" {
		q.ProblemStatement = sel.ProblemStatement
	}
	if summary.Status != models.SummaryReady {
		q.RequiresConfirmation = true
		q.Approved = false
		q.Warnings = append(q.Warnings, fmt.Sprintf(
			"Priced from %d of %d analyzed photos", summary.PhotosAnalyzed, summary.PhotosTotal))
	}

	slog.Info("job priced",
		"job_id", jobID,
		"status", summary.Status,
		"default_scope", q.DefaultScope,
		"requires_confirmation", q.RequiresConfirmation,
	)
	return q, nil
}

// InvalidateSummary makes the cached summary of jobID unreachable.
func (s *Service) InvalidateSummary(ctx context.Context, jobID uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	if err := cache.BumpSummaryGeneration(ctx, s.cache, jobID); err != nil {
		return fmt.Errorf("invalidating summary: %w", err)
	}
	return nil
}

// summaryGeneration reports false when there is no cache or its generation
// cannot be read, in which case the summary is neither read nor stored.
func (s *Service) summaryGeneration(ctx context.Context, jobID uuid.UUID) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	gen, err := cache.SummaryGeneration(ctx, s.cache, jobID)
	if err != nil {
		metrics.SummaryCache.WithLabelValues("error").Inc()
		slog.Warn("summary cache generation read failed", "job_id", jobID, "error", err)
		return 0, false
	}
	return gen, true
}

func (s *Service) cachedSummary(ctx context.Context, jobID uuid.UUID, gen int64) *models.FindingsSummary {
	raw, ok, err := s.cache.Get(ctx, cache.FindingsSummaryKey(jobID, gen))
	if err != nil {
		metrics.SummaryCache.WithLabelValues("error").Inc()
		slog.Warn("summary cache read failed", "job_id", jobID, "error", err)
		return nil
	}
	if !ok {
		metrics.SummaryCache.WithLabelValues("miss").Inc()
		return nil
	}

	var summary models.FindingsSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		metrics.SummaryCache.WithLabelValues("error").Inc()
		slog.Warn("discarding undecodable cached summary", "job_id", jobID, "error", err)
		return nil
	}
	metrics.SummaryCache.WithLabelValues("hit").Inc()
	return &summary
}

func (s *Service) storeSummary(ctx context.Context, jobID uuid.UUID, gen int64, summary *models.FindingsSummary) {
	raw, err := json.Marshal(summary)
	if err != nil {
		slog.Warn("encoding summary for cache", "job_id", jobID, "error", err)
		return
	}
	if err := s.cache.Set(ctx, cache.FindingsSummaryKey(jobID, gen), raw, s.ttl); err != nil {
		slog.Warn("summary cache write failed", "job_id", jobID, "error", err)
	}
}
