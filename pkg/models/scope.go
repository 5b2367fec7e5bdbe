package models

const (
	CategoryDamage      = "damage"
	CategoryRepair      = "repair"
	CategoryMaintenance = "maintenance"
	CategoryUpgrade     = "upgrade"
	CategoryInspection  = "inspection"
	CategoryPainting    = "painting"
	CategoryPlumbing    = "plumbing"
	CategoryElectrical  = "electrical"
	CategoryStructural  = "structural"
	CategoryOther       = "other"
)

const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Finding is a deduplicated issue inferred from one or more photos.
// ID is the normalized dedup key ("<category>:<label>").
type Finding struct {
	ID          string   `json:"id"`
	Issue       string   `json:"issue"`
	Description string   `json:"description,omitempty"`
	Confidence  float64  `json:"confidence"`
	Category    string   `json:"category"`
	Severity    string   `json:"severity,omitempty"`
	PhotoIDs    []string `json:"photoIds"`
}

// Unknown is an aspect of the job the pipeline is not confident about.
type Unknown struct {
	Description    string `json:"description"`
	ImpactsScope   bool   `json:"impactsScope"`
	ImpactsPricing bool   `json:"impactsPricing"`
}

const (
	QuestionSingleSelect = "single_select"
	QuestionMultiSelect  = "multi_select"
	QuestionNumber       = "number"
	QuestionText         = "text"
	QuestionBoolean      = "boolean"
)

const (
	ImpactScope     = "scope"
	ImpactPricing   = "pricing"
	ImpactTimeline  = "timeline"
	ImpactMaterials = "materials"
)

// ClarifyingQuestion must be answered before a defensible price exists.
type ClarifyingQuestion struct {
	ID         string           `json:"id"`
	Question   string           `json:"question"`
	Type       string           `json:"type"`
	Options    []QuestionOption `json:"options,omitempty"`
	Min        *float64         `json:"min,omitempty"`
	Max        *float64         `json:"max,omitempty"`
	Unit       string           `json:"unit,omitempty"`
	Required   bool             `json:"required"`
	HelpText   string           `json:"helpText,omitempty"`
	ImpactArea string           `json:"impactArea"`
}

// QuestionOption is one choice of a select question.
type QuestionOption struct {
	Value           string   `json:"value"`
	Label           string   `json:"label"`
	PriceMultiplier *float64 `json:"priceMultiplier,omitempty"`
	Default         bool     `json:"default,omitempty"`
}

const (
	TierMinimum     = "minimum"
	TierRecommended = "recommended"
	TierPremium     = "premium"
)

// ScopeTier is one named package of work.
type ScopeTier struct {
	ID                   string        `json:"id"`
	Name                 string        `json:"name"`
	Level                string        `json:"level"`
	Items                []string      `json:"items"`
	EstimatedDuration    DurationRange `json:"estimatedDuration"`
	PriceRange           *PriceRange   `json:"priceRange,omitempty"`
	RequiresConfirmation bool          `json:"requiresConfirmation"`
	Warnings             []string      `json:"warnings"`
}

// DurationRange is an estimated duration in hours.
type DurationRange struct {
	MinHours int `json:"minHours"`
	MaxHours int `json:"maxHours"`
}

// PriceRange is a whole-dollar low/high price.
type PriceRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// ScopeSelection holds the user's resolved answers.
type ScopeSelection struct {
	SelectedTierID      string         `json:"selectedTierId,omitempty"`
	Answers             map[string]any `json:"answers,omitempty"`
	ConfirmedScopeItems []string       `json:"confirmedScopeItems,omitempty" validate:"omitempty,dive,required"`
	Measurements        *Measurements  `json:"measurements,omitempty"`
	ProblemStatement    string         `json:"problemStatement,omitempty" validate:"max=2000"`
}

// Measurements are optional on-site measurements.
type Measurements struct {
	SquareFeet    float64 `json:"squareFeet,omitempty"    validate:"gte=0,lte=100000"`
	LinearFeet    float64 `json:"linearFeet,omitempty"    validate:"gte=0,lte=100000"`
	RoomCount     int     `json:"roomCount,omitempty"     validate:"gte=0,lte=500"`
	WallCount     int     `json:"wallCount,omitempty"     validate:"gte=0,lte=2000"`
	CeilingHeight float64 `json:"ceilingHeight,omitempty" validate:"gte=0,lte=100"`
}

const (
	SummaryNoPhotos  = "no_photos"
	SummaryAnalyzing = "analyzing"
	SummaryFailed    = "failed"
	SummaryPartial   = "partial"
	SummaryReady     = "ready"
)

// FindingsSummary is the job-level view returned to API collaborators.
type FindingsSummary struct {
	Status              string               `json:"status"`
	Findings            []Finding            `json:"findings"`
	Unknowns            []Unknown            `json:"unknowns"`
	NeedsClarification  bool                 `json:"needsClarification"`
	ClarifyingQuestions []ClarifyingQuestion `json:"clarifyingQuestions"`
	SuggestedTiers      []ScopeTier          `json:"suggestedTiers"`
	OverallConfidence   float64              `json:"overallConfidence"`
	PhotosAnalyzed      int                  `json:"photosAnalyzed"`
	PhotosTotal         int                  `json:"photosTotal"`
	SuggestedProblem    string               `json:"suggestedProblem,omitempty"`
	NeedsMorePhotos     []string             `json:"needsMorePhotos,omitempty"`
	DetectedTrade       string               `json:"detectedTrade,omitempty"`
	IsPaintingJob       bool                 `json:"isPaintingJob"`
}

// GuardrailResult is the outcome of applying pricing guardrails.
type GuardrailResult struct {
	Approved             bool        `json:"approved"`
	RequiresConfirmation bool        `json:"requiresConfirmation"`
	SuggestedPrice       *PriceRange `json:"suggestedPrice,omitempty"`
	Warnings             []string    `json:"warnings"`
	DefaultScope         string      `json:"defaultScope"`
}
