// Package pricing converts a confirmed or default scope into a price range
// and enforces the guardrails that keep pricing at the smallest defensible scope.
package pricing

import (
	"github.com/kiranshivaraju/sitescope/internal/config"
	"github.com/kiranshivaraju/sitescope/pkg/models"
)

// Painting scopes, from smallest to largest.
const (
	ScopeSpotRepair  = "spot_repair"
	ScopeOneWall     = "one_wall"
	ScopeEntireRoom  = "entire_room"
	ScopeEntireHouse = "entire_house"
)

// Answer keys read from ScopeSelection.Answers.
const (
	AnswerPaintScope     = "paint_scope"
	AnswerRoomSize       = "room_size"
	AnswerCeilingHeight  = "ceiling_height"
	AnswerIncludeCeiling = "include_ceiling"
	AnswerColorChange    = "color_change"
	AnswerScopeLevel     = "scope_level"
	AnswerWorkAreaSize   = "work_area_size"
	AnswerConfirmAll     = "confirm_all_items"
)

const (
	CeilingStandard = "standard"
	CeilingTall     = "tall"
	CeilingVaulted  = "vaulted"
)

// Range is a low/high pair in dollars, dollars per square foot, or a multiplier.
type Range struct {
	Low  float64
	High float64
}

// Config holds every pricing constant. Use DefaultConfig and override fields.
type Config struct {
	// LaborMinimum raises any price lower bound (Low) and upper bound (High) to at least these values.
	LaborMinimum Range
	// PaintBaseRate is the per-square-foot base rate used for painting tier estimates.
	PaintBaseRate float64
	// PaintRates is the per-square-foot price range per painting scope.
	PaintRates map[string]Range
	// DefaultSqFt is the assumed area per painting scope when nothing was measured.
	DefaultSqFt map[string]float64
	// RoomSizeSqFt maps the room_size answer to a derived area for entire_room.
	RoomSizeSqFt map[string]float64
	// LargeScopeSqFt is the unmeasured area above which confirmation is required.
	LargeScopeSqFt float64
	// PaintTierMultipliers scale PaintBaseRate per painting tier.
	PaintTierMultipliers map[string]float64
	// TierSpread turns a point estimate into a range.
	TierSpread Range

	ColorChangeMultiplier    float64
	TallCeilingMultiplier    float64
	VaultedCeilingMultiplier float64
	IncludeCeilingMultiplier float64
	TallCeilingFt            float64
	VaultedCeilingFt         float64

	// RepairItemRange is the price range of one non-painting line item.
	RepairItemRange Range
	// TierMultipliers scale non-painting tiers by level.
	TierMultipliers map[string]float64
	// MinimumTierMaxFindings is the finding count above which a minimum tier draws a warning.
	MinimumTierMaxFindings int
}

// DefaultConfig returns the standard pricing constants.
func DefaultConfig() Config {
	return Config{
		LaborMinimum:  Range{Low: 150, High: 200},
		PaintBaseRate: 4,
		PaintRates: map[string]Range{
			ScopeSpotRepair:  {Low: 3, High: 5},
			ScopeOneWall:     {Low: 2.5, High: 4},
			ScopeEntireRoom:  {Low: 2, High: 3.5},
			ScopeEntireHouse: {Low: 1.5, High: 3},
		},
		DefaultSqFt: map[string]float64{
			ScopeSpotRepair:  20,
			ScopeOneWall:     100,
			ScopeEntireRoom:  120,
			ScopeEntireHouse: 2000,
		},
		RoomSizeSqFt: map[string]float64{
			"small":  80,
			"medium": 150,
			"large":  250,
		},
		LargeScopeSqFt: 200,
		PaintTierMultipliers: map[string]float64{
			ScopeSpotRepair: 0.5,
			ScopeOneWall:    1.0,
			ScopeEntireRoom: 1.5,
		},
		TierSpread: Range{Low: 0.8, High: 1.2},

		ColorChangeMultiplier:    1.2,
		TallCeilingMultiplier:    1.3,
		VaultedCeilingMultiplier: 1.6,
		IncludeCeilingMultiplier: 1.25,
		TallCeilingFt:            9,
		VaultedCeilingFt:         12,

		RepairItemRange: Range{Low: 150, High: 400},
		TierMultipliers: map[string]float64{
			models.TierMinimum:     1.0,
			models.TierRecommended: 1.5,
			models.TierPremium:     2.0,
		},
		MinimumTierMaxFindings: 3,
	}
}

// FromEnv applies the environment overrides to DefaultConfig. Zero values keep the default.
func FromEnv(c config.PricingConfig) Config {
	cfg := DefaultConfig()
	if c.LaborMinLow > 0 {
		cfg.LaborMinimum.Low = c.LaborMinLow
	}
	if c.LaborMinHigh > 0 {
		cfg.LaborMinimum.High = c.LaborMinHigh
	}
	if c.PaintBaseRate > 0 {
		cfg.PaintBaseRate = c.PaintBaseRate
	}
	return cfg
}
