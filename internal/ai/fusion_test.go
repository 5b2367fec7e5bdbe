package ai

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sitescope/internal/ai/mock"
	"github.com/kiranshivaraju/sitescope/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPhoto() *models.Photo {
	return &models.Photo{
		ID:       uuid.New(),
		JobID:    uuid.New(),
		ImageURL: "https://cdn.example.com/photos/wall.png",
		Kind:     "closeup",
	}
}

func visionReturning(res models.VisionResult) *mock.MockVisionModel {
	return &mock.MockVisionModel{
		Name_: "mock",
		AnalyzeFunc: func(_ context.Context, _ models.VisionRequest) (models.VisionResult, error) {
			return res, nil
		},
	}
}

func TestFuse_BothReady(t *testing.T) {
	f := NewFuser(mock.NewMockDetector(), mock.NewMockVisionModel(), mock.NewImageFetcher(), FuserOptions{})

	sf, err := f.Fuse(context.Background(), testPhoto())
	require.NoError(t, err)
	require.NoError(t, sf.Validate())

	assert.Equal(t, models.BranchReady, sf.Detector.Status)
	assert.Equal(t, models.BranchReady, sf.LLM.Status)
	require.NotNil(t, sf.Combined.Confidence)
	assert.InDelta(t, 0.82, *sf.Combined.Confidence, 1e-9)
	assert.Equal(t, []string{"interior wall", "window trim", "Wall", "Paint", "Window", "Room"}, sf.Combined.SummaryLabels)
	assert.Equal(t, []string{"Wide shot of the full wall"}, sf.Combined.NeedsMorePhotos)
	assert.Equal(t, "painting", sf.Combined.DetectedTrade)
	assert.True(t, sf.Combined.IsPaintingRelated)
}

func TestFuse_ConfidenceFloor(t *testing.T) {
	f := NewFuser(mock.NewMockDetector(), visionReturning(models.VisionResult{Confidence: 0}), mock.NewImageFetcher(), FuserOptions{})

	sf, err := f.Fuse(context.Background(), testPhoto())
	require.NoError(t, err)
	assert.InDelta(t, 0.1, *sf.Combined.Confidence, 1e-9)
}

func TestFuse_ConfidenceClamped(t *testing.T) {
	f := NewFuser(mock.NewMockDetector(), visionReturning(models.VisionResult{Confidence: 3}), mock.NewImageFetcher(), FuserOptions{})

	sf, err := f.Fuse(context.Background(), testPhoto())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, *sf.Combined.Confidence, 1e-9)
}

func TestFuse_DetectorFails(t *testing.T) {
	f := NewFuser(mock.NewFailingDetector(errors.New("quota exceeded")), mock.NewMockVisionModel(), mock.NewImageFetcher(), FuserOptions{})

	sf, err := f.Fuse(context.Background(), testPhoto())
	require.NoError(t, err)

	assert.Equal(t, models.BranchFailed, sf.Detector.Status)
	assert.Nil(t, sf.Detector.Result)
	assert.Contains(t, sf.Detector.Error, "quota exceeded")
	assert.True(t, sf.LLMReady())
	assert.InDelta(t, 0.82, *sf.Combined.Confidence, 1e-9)
	assert.Equal(t, []string{"interior wall", "window trim"}, sf.Combined.SummaryLabels)
}

func TestFuse_LLMFailsUsesDefaultConfidence(t *testing.T) {
	f := NewFuser(mock.NewMockDetector(), mock.NewFailingVisionModel(errors.New("503")), mock.NewImageFetcher(), FuserOptions{})

	sf, err := f.Fuse(context.Background(), testPhoto())
	require.NoError(t, err)

	assert.Equal(t, models.BranchFailed, sf.LLM.Status)
	assert.True(t, sf.DetectorReady())
	assert.InDelta(t, DefaultFusionConfidence, *sf.Combined.Confidence, 1e-9)
	assert.Equal(t, []string{"Wall", "Paint", "Window", "Room"}, sf.Combined.SummaryLabels)
	assert.Empty(t, sf.Combined.NeedsMorePhotos)
}

func TestFuse_ConfiguredDefaultConfidence(t *testing.T) {
	f := NewFuser(mock.NewMockDetector(), mock.NewFailingVisionModel(errors.New("503")), mock.NewImageFetcher(),
		FuserOptions{DefaultConfidence: 0.3})

	sf, err := f.Fuse(context.Background(), testPhoto())
	require.NoError(t, err)
	assert.InDelta(t, 0.3, *sf.Combined.Confidence, 1e-9)
}

func TestFuse_BothFail(t *testing.T) {
	detErr := errors.New("detector down")
	llmErr := errors.New("llm down")
	f := NewFuser(mock.NewFailingDetector(detErr), mock.NewFailingVisionModel(llmErr), mock.NewImageFetcher(), FuserOptions{})

	sf, err := f.Fuse(context.Background(), testPhoto())
	assert.Nil(t, sf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVisionFailed)
	assert.ErrorIs(t, err, detErr)
	assert.ErrorIs(t, err, llmErr)
}

func TestFuse_UnsupportedImageFailsDetectorBranch(t *testing.T) {
	called := false
	detector := &mock.MockDetector{
		Name_: "mock",
		DetectFunc: func(_ context.Context, _ []byte) ([]models.Label, error) {
			called = true
			return nil, nil
		},
	}
	fetcher := &mock.Fetcher{Data: []byte("GIF89a\x01\x00\x01\x00")}
	f := NewFuser(detector, mock.NewMockVisionModel(), fetcher, FuserOptions{})

	sf, err := f.Fuse(context.Background(), testPhoto())
	require.NoError(t, err)
	assert.False(t, called, "label detection must not run on an unsupported image")
	assert.Equal(t, models.BranchFailed, sf.Detector.Status)
	assert.Contains(t, sf.Detector.Error, "unsupported image format")
}

func TestFuse_UnsupportedImageAndLLMFailure(t *testing.T) {
	fetcher := &mock.Fetcher{Data: []byte("not an image")}
	f := NewFuser(mock.NewMockDetector(), mock.NewFailingVisionModel(errors.New("llm down")), fetcher, FuserOptions{})

	_, err := f.Fuse(context.Background(), testPhoto())
	assert.ErrorIs(t, err, ErrVisionFailed)
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestFuse_FetchErrorFailsDetectorBranch(t *testing.T) {
	fetcher := &mock.Fetcher{Err: ErrImageForbidden}
	f := NewFuser(mock.NewMockDetector(), mock.NewMockVisionModel(), fetcher, FuserOptions{})

	sf, err := f.Fuse(context.Background(), testPhoto())
	require.NoError(t, err)
	assert.Equal(t, models.BranchFailed, sf.Detector.Status)
	assert.Equal(t, ErrImageForbidden.Error(), sf.Detector.Error)
}

func TestFuse_LLMTimeout(t *testing.T) {
	f := NewFuser(mock.NewMockDetector(), mock.NewTimeoutVisionModel(), mock.NewImageFetcher(),
		FuserOptions{Timeout: 50 * time.Millisecond})

	start := time.Now()
	sf, err := f.Fuse(context.Background(), testPhoto())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, models.BranchFailed, sf.LLM.Status)
	assert.True(t, sf.DetectorReady())
}

func TestFuse_NaNConfidenceIsInvalid(t *testing.T) {
	f := NewFuser(mock.NewMockDetector(), visionReturning(models.VisionResult{Confidence: math.NaN()}), mock.NewImageFetcher(), FuserOptions{})

	sf, err := f.Fuse(context.Background(), testPhoto())
	require.NoError(t, err)
	assert.Equal(t, models.BranchFailed, sf.LLM.Status)
	assert.Contains(t, sf.LLM.Error, ErrInvalidResponse.Error())
}

func TestFuse_SummaryLabelsDedupAndCap(t *testing.T) {
	llmLabels := []string{"wall", "PAINT", "a", "b", "c", "d", "e", "f", "g", "h", "i"}
	f := NewFuser(mock.NewMockDetector(), visionReturning(models.VisionResult{Labels: llmLabels, Confidence: 0.5}), mock.NewImageFetcher(), FuserOptions{})

	sf, err := f.Fuse(context.Background(), testPhoto())
	require.NoError(t, err)
	assert.Len(t, sf.Combined.SummaryLabels, maxSummaryLabels)
	assert.Equal(t, llmLabels[:10], sf.Combined.SummaryLabels)
}

func TestFuse_DetectorLabelsDedupedCaseInsensitive(t *testing.T) {
	f := NewFuser(mock.NewMockDetector(), visionReturning(models.VisionResult{Labels: []string{"wall", "paint"}, Confidence: 0.5}), mock.NewImageFetcher(), FuserOptions{})

	sf, err := f.Fuse(context.Background(), testPhoto())
	require.NoError(t, err)
	assert.Equal(t, []string{"wall", "paint", "Window", "Room"}, sf.Combined.SummaryLabels)
}

func TestFuse_TopFiveDetectorLabels(t *testing.T) {
	detector := &mock.MockDetector{
		Name_: "mock",
		DetectFunc: func(_ context.Context, _ []byte) ([]models.Label, error) {
			return []models.Label{
				{Name: "low", Confidence: 10},
				{Name: "a", Confidence: 90},
				{Name: "b", Confidence: 80},
				{Name: "c", Confidence: 70},
				{Name: "d", Confidence: 60},
				{Name: "e", Confidence: 50},
				{Name: " ", Confidence: 99},
			}, nil
		},
	}
	f := NewFuser(detector, mock.NewFailingVisionModel(errors.New("down")), mock.NewImageFetcher(), FuserOptions{})

	sf, err := f.Fuse(context.Background(), testPhoto())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, sf.Combined.SummaryLabels)
	assert.Len(t, sf.Detector.Result.Labels, 6, "blank labels are dropped")
}

func TestNormalizeVisionResult(t *testing.T) {
	v := models.VisionResult{
		Labels:            []string{" wall ", ""},
		Objects:           []models.DetectedObject{{Name: " window ", Notes: " cracked "}, {}},
		Confidence:        -1,
		EstimatedSeverity: " HIGH ",
		EstimatedAreaSqFt: -5,
	}
	require.NoError(t, normalizeVisionResult(&v))
	assert.Equal(t, []string{"wall"}, v.Labels)
	assert.Equal(t, []models.DetectedObject{{Name: "window", Notes: "cracked"}}, v.Objects)
	assert.Equal(t, 0.0, v.Confidence)
	assert.Equal(t, models.SeverityHigh, v.EstimatedSeverity)
	assert.Equal(t, 0.0, v.EstimatedAreaSqFt)

	v = models.VisionResult{EstimatedSeverity: "catastrophic"}
	require.NoError(t, normalizeVisionResult(&v))
	assert.Empty(t, v.EstimatedSeverity)
}

func TestFuser_RateLimiterHonorsContext(t *testing.T) {
	f := NewFuser(mock.NewMockDetector(), mock.NewMockVisionModel(), mock.NewImageFetcher(), FuserOptions{RatePerSec: 0.001})
	// Drain the single burst token.
	_, err := f.Fuse(context.Background(), testPhoto())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	sf, err := f.Fuse(ctx, testPhoto())
	require.NoError(t, err)
	assert.Equal(t, models.BranchFailed, sf.LLM.Status)
	assert.Contains(t, sf.LLM.Error, ErrInferenceTimeout.Error())
}
