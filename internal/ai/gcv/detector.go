// Package gcv adapts the Cloud Vision images:annotate endpoint to the
// label-detection provider interface.
package gcv

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kiranshivaraju/sitescope/internal/config"
	"github.com/kiranshivaraju/sitescope/pkg/models"
)

const defaultMaxResults = 20

var (
	ErrAPIKeyNotSet  = errors.New("GCV API key not set")
	ErrEmptyResponse = errors.New("gcv: annotate returned no responses")
)

type annotateRequest struct {
	Requests []imageRequest `json:"requests"`
}

type imageRequest struct {
	Image    imageContent `json:"image"`
	Features []feature    `json:"features"`
}

type imageContent struct {
	Content string `json:"content"`
}

type feature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults"`
}

type annotateResponse struct {
	Responses []imageResponse `json:"responses"`
}

type imageResponse struct {
	LabelAnnotations []labelAnnotation `json:"labelAnnotations"`
	Error            *statusError      `json:"error,omitempty"`
}

type labelAnnotation struct {
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

type statusError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Detector implements models.LabelDetector.
type Detector struct {
	client     *resty.Client
	endpoint   string
	apiKey     string
	maxResults int
}

var _ models.LabelDetector = (*Detector)(nil)

func NewDetector(cfg config.GCVConfig, timeout time.Duration) (*Detector, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	return &Detector{
		client:     resty.New().SetTimeout(timeout).SetHeader("Content-Type", "application/json"),
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		maxResults: defaultMaxResults,
	}, nil
}

func (d *Detector) Name() string { return "gcv" }

// DetectLabels returns labels with the API's 0–1 score scaled to 0–100.
func (d *Detector) DetectLabels(ctx context.Context, image []byte) ([]models.Label, error) {
	body := annotateRequest{Requests: []imageRequest{{
		Image:    imageContent{Content: base64.StdEncoding.EncodeToString(image)},
		Features: []feature{{Type: "LABEL_DETECTION", MaxResults: d.maxResults}},
	}}}

	var out annotateResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetQueryParam("key", d.apiKey).
		SetBody(body).
		SetResult(&out).
		Post(d.endpoint)
	if err != nil {
		return nil, fmt.Errorf("annotate image: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("annotate image: status %d", resp.StatusCode())
	}
	if len(out.Responses) == 0 {
		return nil, ErrEmptyResponse
	}

	r := out.Responses[0]
	if r.Error != nil {
		return nil, fmt.Errorf("annotate image: code %d: %s", r.Error.Code, r.Error.Message)
	}

	labels := make([]models.Label, 0, len(r.LabelAnnotations))
	for _, a := range r.LabelAnnotations {
		labels = append(labels, models.Label{Name: a.Description, Confidence: a.Score * 100})
	}
	return labels, nil
}
