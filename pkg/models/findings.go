package models

import "errors"

const (
	BranchReady  = "ready"
	BranchFailed = "failed"
)

// ErrNoReadyBranch is returned by Validate when neither provider branch is ready.
var ErrNoReadyBranch = errors.New("structured findings: no provider branch is ready")

// StructuredFindings is the fused per-photo analysis record. Each provider
// branch is either ready (Result set) or failed (Error set).
type StructuredFindings struct {
	Detector DetectorBranch `json:"detector"`
	LLM      LLMBranch      `json:"llm"`
	Combined Combined       `json:"combined"`
}

// DetectorBranch holds the label-detection provider's outcome.
type DetectorBranch struct {
	Status string          `json:"status"`
	Result *DetectorResult `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// DetectorResult is the ready payload of the label-detection provider.
type DetectorResult struct {
	Labels []Label `json:"labels"`
}

// LLMBranch holds the generative vision provider's outcome.
type LLMBranch struct {
	Status string        `json:"status"`
	Result *VisionResult `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// Combined is the fused view over both branches.
type Combined struct {
	Confidence           *float64 `json:"confidence,omitempty"`
	SummaryLabels        []string `json:"summaryLabels"`
	NeedsMorePhotos      []string `json:"needsMorePhotos"`
	ScopeAmbiguous       bool     `json:"scopeAmbiguous,omitempty"`
	ClarificationReasons []string `json:"clarificationReasons,omitempty"`
	DetectedTrade        string   `json:"detectedTrade,omitempty"`
	IsPaintingRelated    bool     `json:"isPaintingRelated,omitempty"`
}

// DetectorReady reports whether the label-detection branch carries a result.
func (f *StructuredFindings) DetectorReady() bool {
	return f != nil && f.Detector.Status == BranchReady && f.Detector.Result != nil
}

// LLMReady reports whether the generative branch carries a result.
func (f *StructuredFindings) LLMReady() bool {
	return f != nil && f.LLM.Status == BranchReady && f.LLM.Result != nil
}

// Validate checks the at-least-one-ready invariant.
func (f *StructuredFindings) Validate() error {
	if !f.DetectorReady() && !f.LLMReady() {
		return ErrNoReadyBranch
	}
	return nil
}
