package clarify

import (
	"fmt"

	"github.com/kiranshivaraju/sitescope/internal/analysis"
	"github.com/kiranshivaraju/sitescope/internal/pricing"
	"github.com/kiranshivaraju/sitescope/pkg/models"
)

type paintingTier struct {
	scope    string
	name     string
	level    string
	items    []string
	duration models.DurationRange
	confirm  bool
}

var paintingTiers = []paintingTier{
	{
		scope:    pricing.ScopeSpotRepair,
		name:     "Spot Repair",
		level:    models.TierMinimum,
		items:    []string{"Scrape and sand affected areas", "Spot prime", "Touch-up paint to match existing finish"},
		duration: models.DurationRange{MinHours: 2, MaxHours: 4},
	},
	{
		scope:    pricing.ScopeOneWall,
		name:     "One Wall",
		level:    models.TierRecommended,
		items:    []string{"Prep and patch one wall", "Prime repaired areas", "Two finish coats on one wall"},
		duration: models.DurationRange{MinHours: 4, MaxHours: 8},
	},
	{
		scope:    pricing.ScopeEntireRoom,
		name:     "Entire Room",
		level:    models.TierPremium,
		items:    []string{"Prep and patch all walls", "Prime repaired areas", "Two finish coats on all walls", "Cut in trim and edges"},
		duration: models.DurationRange{MinHours: 8, MaxHours: 16},
		confirm:  true,
	},
}

// GenerateScopeTiers returns the minimum, recommended and premium tiers for
// the aggregate. sqft prices painting tiers when positive; painting tiers
// are unpriced otherwise.
func (e *Engine) GenerateScopeTiers(agg analysis.Result, sqft float64) []models.ScopeTier {
	if agg.IsPaintingJob {
		return e.paintingScopeTiers(sqft)
	}
	return e.generalScopeTiers(agg.Findings)
}

func (e *Engine) paintingScopeTiers(sqft float64) []models.ScopeTier {
	tiers := make([]models.ScopeTier, 0, len(paintingTiers))
	for _, t := range paintingTiers {
		tier := models.ScopeTier{
			ID:                   t.scope,
			Name:                 t.name,
			Level:                t.level,
			Items:                append([]string(nil), t.items...),
			EstimatedDuration:    t.duration,
			RequiresConfirmation: t.confirm,
			Warnings:             []string{},
		}
		if sqft > 0 {
			price := e.cfg.PaintTierPrice(t.scope, sqft)
			tier.PriceRange = &price
		} else {
			tier.Warnings = append(tier.Warnings, "Measure the area to price this tier")
		}
		if t.confirm {
			tier.Warnings = append(tier.Warnings, "Confirm room dimensions before quoting")
		}
		tiers = append(tiers, tier)
	}
	return tiers
}

func (e *Engine) generalScopeTiers(findings []models.Finding) []models.ScopeTier {
	minimum := issues(pricing.MinimumFindings(findings))
	all := issues(findings)
	premium := append(append([]string{}, all...), pricing.PreventiveItems...)

	tiers := []models.ScopeTier{
		e.generalTier(models.TierMinimum, "Minimum Repair", minimum, findings, models.DurationRange{MinHours: 2, MaxHours: 4}),
		e.generalTier(models.TierRecommended, "Recommended Repair", all, findings, models.DurationRange{MinHours: 4, MaxHours: 8}),
		e.generalTier(models.TierPremium, "Premium Repair", premium, findings, models.DurationRange{MinHours: 8, MaxHours: 16}),
	}

	if left := len(findings) - len(minimum); left > 0 {
		tiers[0].Warnings = append(tiers[0].Warnings, fmt.Sprintf(
			"Leaves %d of %d detected issues unaddressed", left, len(findings)))
	}
	tiers[2].RequiresConfirmation = true
	tiers[2].Warnings = append(tiers[2].Warnings, "Includes preventive work beyond the detected issues")
	return tiers
}

func (e *Engine) generalTier(level, name string, items []string, findings []models.Finding, d models.DurationRange) models.ScopeTier {
	if len(items) == 0 {
		items = []string{"On-site assessment"}
	}
	price := e.cfg.ItemsPrice(level, pricing.TierItemCount(findings, level), 1)
	return models.ScopeTier{
		ID:                level,
		Name:              name,
		Level:             level,
		Items:             items,
		EstimatedDuration: d,
		PriceRange:        &price,
		Warnings:          []string{},
	}
}

func issues(findings []models.Finding) []string {
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Issue)
	}
	return out
}
