package ai

import (
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/sitescope/internal/ai/gcv"
	"github.com/kiranshivaraju/sitescope/internal/ai/mock"
	"github.com/kiranshivaraju/sitescope/internal/ai/openai"
	"github.com/kiranshivaraju/sitescope/internal/config"
	"github.com/kiranshivaraju/sitescope/pkg/models"
)

// NewLabelDetector constructs the label-detection provider selected by config.
// Called once at server startup.
func NewLabelDetector(cfg config.VisionConfig) (models.LabelDetector, error) {
	switch cfg.LabelProvider {
	case "gcv":
		return gcv.NewDetector(cfg.GCV, cfg.Timeout)
	case "mock":
		return mock.NewMockDetector(), nil
	default:
		return nil, fmt.Errorf("unknown label provider %q: must be one of gcv, mock", cfg.LabelProvider)
	}
}

// NewVisionModel constructs the generative vision provider selected by config.
func NewVisionModel(cfg config.VisionConfig) (models.VisionModel, error) {
	switch cfg.VisionProvider {
	case "openai":
		return openai.NewVisionModel(cfg.OpenAI)
	case "mock":
		return mock.NewMockVisionModel(), nil
	default:
		return nil, fmt.Errorf("unknown vision provider %q: must be one of openai, mock", cfg.VisionProvider)
	}
}

// NewEmbedder constructs the photo embedder selected by config. The mock
// embedder writes deterministic vectors and is never chosen implicitly.
func NewEmbedder(cfg config.VisionConfig) (models.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "openai":
		return openai.NewEmbedder(cfg.OpenAI)
	case "mock":
		slog.Warn("using mock embedder: photo embeddings are not semantic")
		return mock.NewMockEmbedder(), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q: must be one of openai, mock", cfg.EmbeddingProvider)
	}
}

// NewFuserFromConfig wires the configured providers and an HTTP image fetcher into a Fuser.
func NewFuserFromConfig(cfg config.VisionConfig) (*Fuser, error) {
	detector, err := NewLabelDetector(cfg)
	if err != nil {
		return nil, err
	}
	vision, err := NewVisionModel(cfg)
	if err != nil {
		return nil, err
	}
	return NewFuser(detector, vision, NewHTTPFetcher(cfg.FetchTimeout, cfg.MaxRedirects), FuserOptions{
		DefaultConfidence: cfg.DefaultConfidence,
		Timeout:           cfg.Timeout,
		RatePerSec:        cfg.RatePerSec,
	}), nil
}
