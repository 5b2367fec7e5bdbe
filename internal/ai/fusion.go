package ai

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/kiranshivaraju/sitescope/internal/metrics"
	"github.com/kiranshivaraju/sitescope/pkg/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// DefaultFusionConfidence is the combined confidence used when the
	// generative provider failed.
	DefaultFusionConfidence = 0.5

	maxDetectorSummaryLabels = 5
	maxSummaryLabels         = 10
)

// FuserOptions tunes a Fuser. Zero values fall back to the defaults.
type FuserOptions struct {
	DefaultConfidence float64
	// Timeout bounds each provider call.
	Timeout time.Duration
	// RatePerSec paces generative calls across concurrent analyses. Zero disables pacing.
	RatePerSec float64
}

// Fuser runs both vision providers on a photo and fuses their results.
type Fuser struct {
	detector          models.LabelDetector
	vision            models.VisionModel
	fetcher           Fetcher
	limiter           *rate.Limiter
	defaultConfidence float64
	timeout           time.Duration
}

// NewFuser creates a Fuser. The fetcher supplies image bytes to the label detector.
func NewFuser(detector models.LabelDetector, vision models.VisionModel, fetcher Fetcher, opts FuserOptions) *Fuser {
	f := &Fuser{
		detector:          detector,
		vision:            vision,
		fetcher:           fetcher,
		defaultConfidence: opts.DefaultConfidence,
		timeout:           opts.Timeout,
	}
	if f.defaultConfidence <= 0 || f.defaultConfidence > 1 {
		f.defaultConfidence = DefaultFusionConfidence
	}
	if f.timeout <= 0 {
		f.timeout = 60 * time.Second
	}
	if opts.RatePerSec > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
	}
	return f
}

// Fuse analyzes one photo. Each provider failure is recorded as a failed
// branch; when both fail the error wraps ErrVisionFailed and both causes.
func (f *Fuser) Fuse(ctx context.Context, photo *models.Photo) (*models.StructuredFindings, error) {
	var (
		g                 errgroup.Group
		labels            []models.Label
		vision            models.VisionResult
		detErr, visionErr error
	)

	// Branches never return an error to the group so one failure cannot cancel the other.
	g.Go(func() error {
		labels, detErr = f.detect(ctx, photo)
		return nil
	})
	g.Go(func() error {
		vision, visionErr = f.analyze(ctx, photo)
		return nil
	})
	_ = g.Wait()

	f.record(photo, f.detector.Name(), detErr)
	f.record(photo, f.vision.Name(), visionErr)

	if detErr != nil && visionErr != nil {
		return nil, fmt.Errorf("%w: detector: %w; llm: %w", ErrVisionFailed, detErr, visionErr)
	}

	findings := &models.StructuredFindings{}
	if detErr != nil {
		findings.Detector = models.DetectorBranch{Status: models.BranchFailed, Error: detErr.Error()}
	} else {
		findings.Detector = models.DetectorBranch{Status: models.BranchReady, Result: &models.DetectorResult{Labels: labels}}
	}
	if visionErr != nil {
		findings.LLM = models.LLMBranch{Status: models.BranchFailed, Error: visionErr.Error()}
	} else {
		findings.LLM = models.LLMBranch{Status: models.BranchReady, Result: &vision}
	}
	findings.Combined = f.combine(findings)
	return findings, nil
}

func (f *Fuser) detect(ctx context.Context, photo *models.Photo) ([]models.Label, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	image, err := f.fetcher.Fetch(ctx, photo.ImageURL)
	if err != nil {
		return nil, err
	}
	if err := CheckImageSignature(image); err != nil {
		return nil, err
	}
	labels, err := f.detector.DetectLabels(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.detector.Name(), err)
	}
	return normalizeLabels(labels), nil
}

func (f *Fuser) analyze(ctx context.Context, photo *models.Photo) (models.VisionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return models.VisionResult{}, fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
		}
	}
	res, err := f.vision.AnalyzePhoto(ctx, models.VisionRequest{
		PhotoID:  photo.ID.String(),
		ImageURL: photo.ImageURL,
		Kind:     photo.Kind,
	})
	if err != nil {
		return models.VisionResult{}, fmt.Errorf("%s: %w", f.vision.Name(), err)
	}
	if err := normalizeVisionResult(&res); err != nil {
		return models.VisionResult{}, fmt.Errorf("%s: %w", f.vision.Name(), err)
	}
	return res, nil
}

func (f *Fuser) record(photo *models.Photo, provider string, err error) {
	status := models.BranchReady
	if err != nil {
		status = models.BranchFailed
		slog.Warn("vision provider failed", "provider", provider, "photo_id", photo.ID, "error", err)
	}
	metrics.FusionBranches.WithLabelValues(provider, status).Inc()
}

func (f *Fuser) combine(sf *models.StructuredFindings) models.Combined {
	c := models.Combined{SummaryLabels: []string{}, NeedsMorePhotos: []string{}}

	confidence := f.defaultConfidence
	if sf.LLMReady() {
		v := sf.LLM.Result
		confidence = clamp01(v.Confidence*0.9 + 0.1)
		c.SummaryLabels = appendUnique(c.SummaryLabels, v.Labels, maxSummaryLabels)
		c.NeedsMorePhotos = append(c.NeedsMorePhotos, v.NeedsMorePhotos...)
		c.ScopeAmbiguous = v.ScopeAmbiguous
		c.ClarificationReasons = v.ClarificationReasons
		c.DetectedTrade = v.DetectedTrade
		c.IsPaintingRelated = v.IsPaintingRelated
	}
	c.Confidence = &confidence

	if sf.DetectorReady() {
		top := topLabels(sf.Detector.Result.Labels, maxDetectorSummaryLabels)
		c.SummaryLabels = appendUnique(c.SummaryLabels, top, maxSummaryLabels)
	}
	return c
}

// normalizeVisionResult validates the generative payload at the fusion boundary.
func normalizeVisionResult(v *models.VisionResult) error {
	if math.IsNaN(v.Confidence) || math.IsInf(v.Confidence, 0) {
		return fmt.Errorf("%w: confidence is not a number", ErrInvalidResponse)
	}
	v.Confidence = clamp01(v.Confidence)
	v.Labels = cleanStrings(v.Labels)
	v.Damage = cleanStrings(v.Damage)
	v.Issues = cleanStrings(v.Issues)
	v.Materials = cleanStrings(v.Materials)
	v.NeedsMorePhotos = cleanStrings(v.NeedsMorePhotos)
	v.ClarificationReasons = cleanStrings(v.ClarificationReasons)
	objects := make([]models.DetectedObject, 0, len(v.Objects))
	for _, o := range v.Objects {
		o.Name, o.Notes = strings.TrimSpace(o.Name), strings.TrimSpace(o.Notes)
		if o.Name != "" || o.Notes != "" {
			objects = append(objects, o)
		}
	}
	v.Objects = objects
	v.DetectedTrade = strings.TrimSpace(v.DetectedTrade)
	v.EstimatedSeverity = strings.ToLower(strings.TrimSpace(v.EstimatedSeverity))
	switch v.EstimatedSeverity {
	case "", models.SeverityLow, models.SeverityMedium, models.SeverityHigh:
	default:
		v.EstimatedSeverity = ""
	}
	if v.EstimatedAreaSqFt < 0 || math.IsNaN(v.EstimatedAreaSqFt) {
		v.EstimatedAreaSqFt = 0
	}
	return nil
}

func normalizeLabels(labels []models.Label) []models.Label {
	out := make([]models.Label, 0, len(labels))
	for _, l := range labels {
		l.Name = strings.TrimSpace(l.Name)
		if l.Name == "" {
			continue
		}
		l.Confidence = math.Max(0, math.Min(100, l.Confidence))
		out = append(out, l)
	}
	return out
}

// topLabels returns the names of the n highest-confidence labels.
func topLabels(labels []models.Label, n int) []string {
	sorted := make([]models.Label, len(labels))
	copy(sorted, labels)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Confidence > sorted[j].Confidence })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	names := make([]string, len(sorted))
	for i, l := range sorted {
		names[i] = l.Name
	}
	return names
}

// appendUnique appends values not already present (case-insensitively) until dst holds max entries.
func appendUnique(dst, values []string, max int) []string {
	seen := make(map[string]bool, len(dst))
	for _, d := range dst {
		seen[strings.ToLower(d)] = true
	}
	for _, v := range values {
		if len(dst) >= max {
			break
		}
		key := strings.ToLower(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		dst = append(dst, v)
	}
	return dst
}

func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
