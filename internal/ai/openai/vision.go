// Package openai adapts the OpenAI API to the generative vision and
// embedding provider interfaces.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/sitescope/internal/config"
	"github.com/kiranshivaraju/sitescope/pkg/models"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const DefaultVisionModel = "gpt-4o"

var (
	ErrAPIKeyNotSet      = errors.New("OpenAI API key not set")
	ErrEmptyResponse     = errors.New("openai: no completion choices returned")
	ErrMalformedResponse = errors.New("openai: response is not the expected JSON object")
)

const visionPrompt = `You are assisting a contractor who is scoping repair and remodel work from jobsite photos.
Describe only what is visible. Reply with a single JSON object with these fields:
  "labels": short nouns for what is in frame,
  "damage": visible damage, one short phrase each,
  "issues": non-damage problems worth fixing,
  "objects": [{"name": ..., "notes": condition notes or ""}],
  "materials": surface and building materials,
  "confidence": 0 to 1, how sure you are about the scope visible here,
  "needsMorePhotos": shots that would remove doubt,
  "scopeAmbiguous": true if the extent of work cannot be judged from this photo,
  "clarificationReasons": why the scope is ambiguous,
  "detectedTrade": the primary trade (painting, plumbing, electrical, carpentry, roofing, general),
  "isPaintingRelated": true if the work is mainly painting,
  "estimatedSeverity": "low", "medium" or "high",
  "estimatedAreaSqFt": affected area in square feet, 0 if unknown.`

// VisionModel implements models.VisionModel with a chat completion over the image URL.
type VisionModel struct {
	client openai.Client
	model  string
}

var _ models.VisionModel = (*VisionModel)(nil)

// NewVisionModel creates a VisionModel. Extra request options are appended
// after the API key and base URL from cfg.
func NewVisionModel(cfg config.OpenAIConfig, opts ...option.RequestOption) (*VisionModel, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	model := cfg.VisionModel
	if model == "" {
		model = DefaultVisionModel
	}
	return &VisionModel{client: openai.NewClient(clientOptions(cfg, opts)...), model: model}, nil
}

func (v *VisionModel) Name() string { return "openai" }

func (v *VisionModel) AnalyzePhoto(ctx context.Context, req models.VisionRequest) (models.VisionResult, error) {
	detail := fmt.Sprintf("Photo kind: %s.", req.Kind)
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(detail),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL:    req.ImageURL,
			Detail: "auto",
		}),
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(v.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(visionPrompt),
			{OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{OfArrayOfContentParts: parts},
			}},
		},
		Temperature: openai.Float(0.2),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		},
	}

	completion, err := v.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return models.VisionResult{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return models.VisionResult{}, ErrEmptyResponse
	}
	return parseVisionResult(completion.Choices[0].Message.Content)
}

// parseVisionResult decodes the model's JSON reply, tolerating a markdown code fence.
func parseVisionResult(content string) (models.VisionResult, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	var res models.VisionResult
	if err := json.Unmarshal([]byte(content), &res); err != nil {
		return models.VisionResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return res, nil
}

// clientOptions disables client-side retries; failed calls are retried by the queue.
func clientOptions(cfg config.OpenAIConfig, extra []option.RequestOption) []option.RequestOption {
	opts := []option.RequestOption{option.WithMaxRetries(0), option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return append(opts, extra...)
}
