package mock

import (
	"context"
	"errors"
	"hash/fnv"

	"github.com/kiranshivaraju/sitescope/pkg/models"
)

// ErrTimeout is returned by the timeout providers once the context is done.
var ErrTimeout = errors.New("mock provider timed out")

// MockDetector satisfies models.LabelDetector for testing.
type MockDetector struct {
	Name_      string
	DetectFunc func(ctx context.Context, image []byte) ([]models.Label, error)
}

func (m *MockDetector) Name() string { return m.Name_ }

func (m *MockDetector) DetectLabels(ctx context.Context, image []byte) ([]models.Label, error) {
	if m.DetectFunc != nil {
		return m.DetectFunc(ctx, image)
	}
	return nil, nil
}

// MockVisionModel satisfies models.VisionModel for testing.
type MockVisionModel struct {
	Name_       string
	AnalyzeFunc func(ctx context.Context, req models.VisionRequest) (models.VisionResult, error)
}

func (m *MockVisionModel) Name() string { return m.Name_ }

func (m *MockVisionModel) AnalyzePhoto(ctx context.Context, req models.VisionRequest) (models.VisionResult, error) {
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, req)
	}
	return models.VisionResult{}, nil
}

// MockEmbedder satisfies models.Embedder for testing.
type MockEmbedder struct {
	Model_    string
	EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *MockEmbedder) Model() string { return m.Model_ }

func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, texts)
	}
	return make([][]float32, len(texts)), nil
}

// NewMockDetector returns a MockDetector with a fixed interior-wall label set.
func NewMockDetector() *MockDetector {
	return &MockDetector{
		Name_: "mock",
		DetectFunc: func(_ context.Context, _ []byte) ([]models.Label, error) {
			return []models.Label{
				{Name: "Wall", Confidence: 96},
				{Name: "Paint", Confidence: 88},
				{Name: "Window", Confidence: 81},
				{Name: "Room", Confidence: 64},
			}, nil
		},
	}
}

// NewMockVisionModel returns a MockVisionModel describing a small painting repair.
func NewMockVisionModel() *MockVisionModel {
	return &MockVisionModel{
		Name_: "mock",
		AnalyzeFunc: func(_ context.Context, _ models.VisionRequest) (models.VisionResult, error) {
			return models.VisionResult{
				Labels:            []string{"interior wall", "window trim"},
				Damage:            []string{"peeling paint near window"},
				Issues:            []string{},
				Objects:           []models.DetectedObject{{Name: "window", Notes: "trim paint flaking"}},
				Materials:         []string{"drywall", "latex paint"},
				Confidence:        0.8,
				NeedsMorePhotos:   []string{"Wide shot of the full wall"},
				DetectedTrade:     "painting",
				IsPaintingRelated: true,
				EstimatedSeverity: models.SeverityLow,
			}, nil
		},
	}
}

// NewMockEmbedder returns a MockEmbedder producing deterministic 8-dimension
// vectors derived from each text's hash.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Model_: "mock-embedding",
		EmbedFunc: func(_ context.Context, texts []string) ([][]float32, error) {
			out := make([][]float32, len(texts))
			for i, text := range texts {
				h := fnv.New64a()
				_, _ = h.Write([]byte(text))
				sum := h.Sum64()
				vec := make([]float32, 8)
				for d := range vec {
					vec[d] = float32((sum>>(d*8))&0xff) / 255
				}
				out[i] = vec
			}
			return out, nil
		},
	}
}

// NewFailingDetector returns a MockDetector that always returns err.
func NewFailingDetector(err error) *MockDetector {
	return &MockDetector{
		Name_: "mock-failing",
		DetectFunc: func(_ context.Context, _ []byte) ([]models.Label, error) {
			return nil, err
		},
	}
}

// NewFailingVisionModel returns a MockVisionModel that always returns err.
func NewFailingVisionModel(err error) *MockVisionModel {
	return &MockVisionModel{
		Name_: "mock-failing",
		AnalyzeFunc: func(_ context.Context, _ models.VisionRequest) (models.VisionResult, error) {
			return models.VisionResult{}, err
		},
	}
}

// NewTimeoutVisionModel returns a MockVisionModel that blocks until the context is cancelled.
func NewTimeoutVisionModel() *MockVisionModel {
	return &MockVisionModel{
		Name_: "mock-timeout",
		AnalyzeFunc: func(ctx context.Context, _ models.VisionRequest) (models.VisionResult, error) {
			<-ctx.Done()
			return models.VisionResult{}, ErrTimeout
		},
	}
}

// Fetcher serves fixed bytes for every URL.
type Fetcher struct {
	Data []byte
	Err  error
}

func (f *Fetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Data, nil
}

// PNGHeader is the 8-byte PNG signature followed by an IHDR chunk start,
// enough for signature detection.
var PNGHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

// NewImageFetcher returns a Fetcher serving a PNG signature.
func NewImageFetcher() *Fetcher {
	return &Fetcher{Data: PNGHeader}
}

// Compile-time checks.
var (
	_ models.LabelDetector = (*MockDetector)(nil)
	_ models.VisionModel   = (*MockVisionModel)(nil)
	_ models.Embedder      = (*MockEmbedder)(nil)
)
