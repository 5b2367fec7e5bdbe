package triage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/sitescope/internal/cache"
	"github.com/kiranshivaraju/sitescope/internal/pricing"
	"github.com/kiranshivaraju/sitescope/internal/store/storetest"
	"github.com/kiranshivaraju/sitescope/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conf(f float64) *float64 { return &f }

func photo(jobID uuid.UUID, status string, v *models.VisionResult) models.Photo {
	p := models.Photo{ID: uuid.New(), JobID: jobID, ImageURL: "https://img.example/x.jpg", FindingsStatus: status}
	if status == models.FindingsStatusReady {
		p.Findings = &models.StructuredFindings{
			Detector: models.DetectorBranch{Status: models.BranchFailed, Error: "down"},
			LLM:      models.LLMBranch{Status: models.BranchReady, Result: v},
			Combined: models.Combined{
				Confidence:        conf(v.Confidence),
				IsPaintingRelated: v.IsPaintingRelated,
			},
		}
	}
	return p
}

func setupRedis(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func paintingJob(st *storetest.MemoryStore) uuid.UUID {
	jobID := uuid.New()
	st.PutPhoto(photo(jobID, models.FindingsStatusReady, &models.VisionResult{Damage: []string{"peeling paint near window"}, Confidence: 0.82}))
	st.PutPhoto(photo(jobID, models.FindingsStatusReady, &models.VisionResult{Damage: []string{"peeling paint near window"}, Confidence: 0.73}))
	st.PutPhoto(photo(jobID, models.FindingsStatusReady, &models.VisionResult{Labels: []string{"hallway"}, Confidence: 0.6}))
	return jobID
}

func TestGetFindingsSummary_PaintingJob(t *testing.T) {
	st := storetest.New()
	jobID := paintingJob(st)
	svc := NewService(st, nil, pricing.DefaultConfig(), 0)

	sum, err := svc.GetFindingsSummary(context.Background(), jobID)
	require.NoError(t, err)

	assert.Equal(t, models.SummaryReady, sum.Status)
	require.Len(t, sum.Findings, 1)
	assert.Equal(t, models.CategoryPainting, sum.Findings[0].Category)
	assert.Len(t, sum.Findings[0].PhotoIDs, 2)
	assert.True(t, sum.IsPaintingJob)
	assert.True(t, sum.NeedsClarification)
	assert.Len(t, sum.ClarifyingQuestions, 5)
	require.Len(t, sum.SuggestedTiers, 3)
	assert.Nil(t, sum.SuggestedTiers[0].PriceRange, "no area estimate leaves painting tiers unpriced")
	assert.Equal(t, 3, sum.PhotosAnalyzed)
	assert.Equal(t, 3, sum.PhotosTotal)
}

func TestGetFindingsSummary_Statuses(t *testing.T) {
	ready := &models.VisionResult{Issues: []string{"loose handrail"}, Confidence: 0.9}
	tests := []struct {
		name     string
		statuses []string
		want     string
	}{
		{"no photos", nil, models.SummaryNoPhotos},
		{"pending only", []string{models.FindingsStatusPending, models.FindingsStatusProcessing}, models.SummaryAnalyzing},
		{"pending and failed", []string{models.FindingsStatusFailed, models.FindingsStatusPending}, models.SummaryAnalyzing},
		{"all failed", []string{models.FindingsStatusFailed, models.FindingsStatusFailed}, models.SummaryFailed},
		{"ready and pending", []string{models.FindingsStatusReady, models.FindingsStatusPending}, models.SummaryPartial},
		{"ready and failed", []string{models.FindingsStatusReady, models.FindingsStatusFailed}, models.SummaryReady},
		{"all ready", []string{models.FindingsStatusReady, models.FindingsStatusReady}, models.SummaryReady},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := storetest.New()
			jobID := uuid.New()
			for _, status := range tt.statuses {
				st.PutPhoto(photo(jobID, status, ready))
			}

			sum, err := NewService(st, nil, pricing.DefaultConfig(), 0).GetFindingsSummary(context.Background(), jobID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sum.Status)
			assert.Equal(t, len(tt.statuses), sum.PhotosTotal)
			assert.NotNil(t, sum.Findings)
			assert.NotNil(t, sum.ClarifyingQuestions)
			assert.NotNil(t, sum.SuggestedTiers)
		})
	}
}

func TestGetFindingsSummary_NoReadyPhotosHasNoTiers(t *testing.T) {
	st := storetest.New()
	jobID := uuid.New()
	st.PutPhoto(photo(jobID, models.FindingsStatusPending, nil))

	sum, err := NewService(st, nil, pricing.DefaultConfig(), 0).GetFindingsSummary(context.Background(), jobID)
	require.NoError(t, err)
	assert.Empty(t, sum.SuggestedTiers)
	assert.False(t, sum.NeedsClarification)
	assert.Equal(t, 0.5, sum.OverallConfidence)
}

func TestGetFindingsSummary_CachesReadyOnly(t *testing.T) {
	ctx := context.Background()
	rc, mr := setupRedis(t)
	st := storetest.New()
	svc := NewService(st, rc, pricing.DefaultConfig(), time.Minute)

	jobID := uuid.New()
	st.PutPhoto(photo(jobID, models.FindingsStatusReady, &models.VisionResult{Issues: []string{"loose handrail"}, Confidence: 0.9}))
	pending := photo(jobID, models.FindingsStatusPending, nil)
	st.PutPhoto(pending)

	sum, err := svc.GetFindingsSummary(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.SummaryPartial, sum.Status)
	assert.False(t, mr.Exists(cache.FindingsSummaryKey(jobID, 0)))

	pending.FindingsStatus = models.FindingsStatusFailed
	st.PutPhoto(pending)

	sum, err = svc.GetFindingsSummary(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.SummaryReady, sum.Status)
	require.True(t, mr.Exists(cache.FindingsSummaryKey(jobID, 0)))
	assert.Equal(t, time.Minute, mr.TTL(cache.FindingsSummaryKey(jobID, 0)))

	raw, err := mr.Get(cache.FindingsSummaryKey(jobID, 0))
	require.NoError(t, err)
	var cached models.FindingsSummary
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	assert.Equal(t, sum.Findings, cached.Findings)
}

func TestGetFindingsSummary_ServesFromCache(t *testing.T) {
	ctx := context.Background()
	rc, _ := setupRedis(t)
	jobID := uuid.New()

	stale, err := json.Marshal(models.FindingsSummary{Status: models.SummaryReady, SuggestedProblem: "from cache"})
	require.NoError(t, err)
	require.NoError(t, rc.Set(ctx, cache.FindingsSummaryKey(jobID, 0), stale, time.Minute))

	svc := NewService(storetest.New(), rc, pricing.DefaultConfig(), time.Minute)
	sum, err := svc.GetFindingsSummary(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, "from cache", sum.SuggestedProblem)

	require.NoError(t, svc.InvalidateSummary(ctx, jobID))
	gen, err := cache.SummaryGeneration(ctx, rc, jobID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	sum, err = svc.GetFindingsSummary(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.SummaryNoPhotos, sum.Status)
}

// racingStore runs onList once, after the photos were read but before they
// are returned, to interleave a registration with a summary read.
type racingStore struct {
	*storetest.MemoryStore
	onList func()
}

func (s *racingStore) ListPhotosByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Photo, error) {
	photos, err := s.MemoryStore.ListPhotosByJob(ctx, jobID)
	if hook := s.onList; hook != nil {
		s.onList = nil
		hook()
	}
	return photos, err
}

func TestGetFindingsSummary_InvalidationDuringReadIsNotLost(t *testing.T) {
	ctx := context.Background()
	rc, _ := setupRedis(t)
	st := &racingStore{MemoryStore: storetest.New()}
	svc := NewService(st, rc, pricing.DefaultConfig(), time.Minute)

	jobID := uuid.New()
	st.PutPhoto(photo(jobID, models.FindingsStatusReady, &models.VisionResult{Issues: []string{"loose handrail"}, Confidence: 0.9}))
	st.onList = func() {
		st.PutPhoto(photo(jobID, models.FindingsStatusPending, nil))
		require.NoError(t, svc.InvalidateSummary(ctx, jobID))
	}

	stale, err := svc.GetFindingsSummary(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.SummaryReady, stale.Status)
	assert.Equal(t, 1, stale.PhotosTotal)

	fresh, err := svc.GetFindingsSummary(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.SummaryPartial, fresh.Status)
	assert.Equal(t, 2, fresh.PhotosTotal)
}

func TestGetFindingsSummary_CorruptGenerationSkipsCache(t *testing.T) {
	ctx := context.Background()
	rc, mr := setupRedis(t)
	st := storetest.New()
	jobID := paintingJob(st)
	require.NoError(t, mr.Set(cache.SummaryGenerationKey(jobID), "garbage"))

	sum, err := NewService(st, rc, pricing.DefaultConfig(), time.Minute).GetFindingsSummary(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.SummaryReady, sum.Status)
	assert.Equal(t, []string{cache.SummaryGenerationKey(jobID)}, mr.Keys())
}

func TestGetFindingsSummary_UndecodableCacheEntryIsIgnored(t *testing.T) {
	ctx := context.Background()
	rc, _ := setupRedis(t)
	jobID := uuid.New()
	require.NoError(t, rc.Set(ctx, cache.FindingsSummaryKey(jobID, 0), []byte("{not json"), time.Minute))

	sum, err := NewService(storetest.New(), rc, pricing.DefaultConfig(), time.Minute).GetFindingsSummary(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.SummaryNoPhotos, sum.Status)
}

func TestGetFindingsSummary_CacheDownStillServes(t *testing.T) {
	rc, mr := setupRedis(t)
	mr.Close()

	st := storetest.New()
	jobID := paintingJob(st)
	sum, err := NewService(st, rc, pricing.DefaultConfig(), time.Minute).GetFindingsSummary(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, models.SummaryReady, sum.Status)
}

type failingStore struct {
	*storetest.MemoryStore
}

var errDown = errors.New("db down")

func (failingStore) ListPhotosByJob(context.Context, uuid.UUID) ([]*models.Photo, error) {
	return nil, errDown
}

func TestGetFindingsSummary_StoreError(t *testing.T) {
	svc := NewService(failingStore{storetest.New()}, nil, pricing.DefaultConfig(), 0)
	_, err := svc.GetFindingsSummary(context.Background(), uuid.New())
	assert.ErrorIs(t, err, errDown)

	_, err = svc.PriceJob(context.Background(), uuid.New(), nil)
	assert.ErrorIs(t, err, errDown)
}

func TestPriceJob_PaintingDefaultsToSpotRepair(t *testing.T) {
	st := storetest.New()
	jobID := paintingJob(st)

	q, err := NewService(st, nil, pricing.DefaultConfig(), 0).PriceJob(context.Background(), jobID, nil)
	require.NoError(t, err)
	assert.Equal(t, pricing.ScopeSpotRepair, q.DefaultScope)
	assert.Equal(t, models.PriceRange{Low: 150, High: 200}, *q.SuggestedPrice)
	assert.True(t, q.RequiresConfirmation)
	assert.False(t, q.Approved)
	assert.Equal(t, "peeling paint near window", q.ProblemStatement)
	assert.Equal(t, models.SummaryReady, q.Status)
}

func TestPriceJob_ProblemStatementOverride(t *testing.T) {
	st := storetest.New()
	jobID := paintingJob(st)
	sel := &models.ScopeSelection{
		Answers:          map[string]any{"paint_scope": "one_wall"},
		Measurements:     &models.Measurements{SquareFeet: 120},
		ProblemStatement: "Repaint the hallway wall",
	}

	q, err := NewService(st, nil, pricing.DefaultConfig(), 0).PriceJob(context.Background(), jobID, sel)
	require.NoError(t, err)
	assert.Equal(t, "Repaint the hallway wall", q.ProblemStatement)
	assert.True(t, q.Approved)
	assert.Equal(t, models.PriceRange{Low: 300, High: 480}, *q.SuggestedPrice)
}

func TestPriceJob_UnfinishedAnalysisRequiresConfirmation(t *testing.T) {
	st := storetest.New()
	jobID := uuid.New()
	st.PutPhoto(photo(jobID, models.FindingsStatusReady, &models.VisionResult{Issues: []string{"loose handrail"}, Confidence: 0.9}))
	st.PutPhoto(photo(jobID, models.FindingsStatusPending, nil))

	q, err := NewService(st, nil, pricing.DefaultConfig(), 0).PriceJob(context.Background(), jobID,
		&models.ScopeSelection{SelectedTierID: models.TierRecommended})
	require.NoError(t, err)
	assert.Equal(t, models.SummaryPartial, q.Status)
	assert.True(t, q.RequiresConfirmation)
	assert.False(t, q.Approved)
	assert.Contains(t, q.Warnings, "Priced from 1 of 2 analyzed photos")
}

func TestPriceJob_NoPhotosDegrades(t *testing.T) {
	q, err := NewService(storetest.New(), nil, pricing.DefaultConfig(), 0).PriceJob(context.Background(), uuid.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.SummaryNoPhotos, q.Status)
	assert.Equal(t, models.TierRecommended, q.DefaultScope)
	require.NotNil(t, q.SuggestedPrice)
	assert.True(t, q.RequiresConfirmation)
}
