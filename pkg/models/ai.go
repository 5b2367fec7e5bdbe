// Package models contains shared data models used across the sitescope codebase.
package models

import "context"

// LabelDetector is the label-detection provider. It receives the raw image
// bytes and returns generic labels scored 0–100.
// Never call a specific provider directly; always inject this interface.
type LabelDetector interface {
	DetectLabels(ctx context.Context, image []byte) ([]Label, error)
	// Name returns the provider identifier (e.g., "gcv", "mock").
	Name() string
}

// VisionModel is the generative vision provider. It is given the image
// location and returns a structured description of visible work.
type VisionModel interface {
	AnalyzePhoto(ctx context.Context, req VisionRequest) (VisionResult, error)
	Name() string
}

// Embedder turns texts into vectors for similarity search over photos.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// VisionRequest is the input to a generative vision call.
type VisionRequest struct {
	PhotoID  string
	ImageURL string
	Kind     string
}

// Label is a single label-detection hit.
type Label struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"` // 0–100
}

// DetectedObject is an object the generative model called out, optionally
// with notes about its condition.
type DetectedObject struct {
	Name  string `json:"name"`
	Notes string `json:"notes,omitempty"`
}

// VisionResult is the ready payload of the generative vision provider.
type VisionResult struct {
	Labels               []string         `json:"labels"`
	Damage               []string         `json:"damage"`
	Issues               []string         `json:"issues"`
	Objects              []DetectedObject `json:"objects"`
	Materials            []string         `json:"materials"`
	Confidence           float64          `json:"confidence"` // 0–1
	NeedsMorePhotos      []string         `json:"needsMorePhotos"`
	ScopeAmbiguous       bool             `json:"scopeAmbiguous,omitempty"`
	ClarificationReasons []string         `json:"clarificationReasons,omitempty"`
	DetectedTrade        string           `json:"detectedTrade,omitempty"`
	IsPaintingRelated    bool             `json:"isPaintingRelated,omitempty"`
	EstimatedSeverity    string           `json:"estimatedSeverity,omitempty"`
	EstimatedAreaSqFt    float64          `json:"estimatedAreaSqFt,omitempty"`
}
