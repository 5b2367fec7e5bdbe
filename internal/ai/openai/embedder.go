package openai

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/sitescope/internal/config"
	"github.com/kiranshivaraju/sitescope/pkg/models"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	DefaultEmbeddingModel = "text-embedding-3-small"
	maxEmbeddingBatch     = 100
)

// Embedder implements models.Embedder with the embeddings endpoint.
type Embedder struct {
	client openai.Client
	model  string
}

var _ models.Embedder = (*Embedder)(nil)

func NewEmbedder(cfg config.OpenAIConfig, opts ...option.RequestOption) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	model := cfg.EmbeddingModel
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &Embedder{client: openai.NewClient(clientOptions(cfg, opts)...), model: model}, nil
}

func (e *Embedder) Model() string { return e.model }

// Embed returns one vector per text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > maxEmbeddingBatch {
		return nil, fmt.Errorf("embedding batch of %d exceeds maximum of %d", len(texts), maxEmbeddingBatch)
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d texts", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("embeddings: index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}
