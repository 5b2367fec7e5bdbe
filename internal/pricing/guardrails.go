package pricing

import (
	"fmt"

	"github.com/kiranshivaraju/sitescope/pkg/models"
)

// Guardrails applies the pricing rules of one Config.
type Guardrails struct {
	cfg Config
}

func New(cfg Config) *Guardrails {
	return &Guardrails{cfg: cfg}
}

// Config returns the constants the guardrails price with.
func (g *Guardrails) Config() Config { return g.cfg }

// Apply prices the job. It never fails: missing input degrades to the
// smallest defensible scope and is reported through Warnings and
// RequiresConfirmation.
func (g *Guardrails) Apply(findings []models.Finding, sel *models.ScopeSelection, isPaintingJob bool) models.GuardrailResult {
	if sel == nil {
		sel = &models.ScopeSelection{}
	}
	var res models.GuardrailResult
	if isPaintingJob {
		res = g.applyPainting(findings, sel)
	} else {
		res = g.applyGeneral(findings, sel)
	}
	res.Warnings = append(res.Warnings, ValidateScopeVsFindings(findings, res.DefaultScope, isPaintingJob)...)
	return res
}

func (g *Guardrails) applyPainting(findings []models.Finding, sel *models.ScopeSelection) models.GuardrailResult {
	res := models.GuardrailResult{Warnings: []string{}}
	mult := g.cfg.PriceMultiplier(sel.Answers, sel.Measurements)

	scope := answerString(sel.Answers, AnswerPaintScope)
	if _, known := g.cfg.PaintRates[scope]; scope != "" && !known {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Unknown painting scope %q; priced as a spot repair", scope))
		scope = ""
	}
	if scope == "" {
		sqft := g.cfg.DefaultSqFt[ScopeSpotRepair]
		price := g.cfg.PaintPrice(ScopeSpotRepair, sqft, mult)
		res.DefaultScope = ScopeSpotRepair
		res.SuggestedPrice = &price
		res.RequiresConfirmation = true
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"No painting scope was selected; priced as a spot repair of %.0f sq ft. Confirm the scope before quoting.", sqft))
		return res
	}

	sqft, measured := g.resolveSqFt(scope, sel)
	price := g.cfg.PaintPrice(scope, sqft, mult)
	res.DefaultScope = scope
	res.SuggestedPrice = &price

	switch {
	case scope == ScopeEntireHouse:
		res.RequiresConfirmation = true
		res.Warnings = append(res.Warnings, "Entire-house painting must be confirmed with a site visit before quoting")
	case scope == ScopeEntireRoom && !measured:
		res.RequiresConfirmation = true
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"Entire-room price assumes %.0f sq ft; measure the room to confirm", sqft))
	case !measured && sqft > g.cfg.LargeScopeSqFt:
		res.RequiresConfirmation = true
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"Estimated area of %.0f sq ft exceeds %.0f sq ft without a measurement", sqft, g.cfg.LargeScopeSqFt))
	}

	res.Approved = !res.RequiresConfirmation
	return res
}

// resolveSqFt prefers an explicit measurement. Without one, entire_room uses
// the room_size answer and every scope falls back to its default area.
func (g *Guardrails) resolveSqFt(scope string, sel *models.ScopeSelection) (sqft float64, measured bool) {
	if sel.Measurements != nil && sel.Measurements.SquareFeet > 0 {
		return sel.Measurements.SquareFeet, true
	}
	if scope == ScopeEntireRoom {
		if derived, ok := g.cfg.RoomSizeSqFt[answerString(sel.Answers, AnswerRoomSize)]; ok {
			return derived, false
		}
	}
	return g.cfg.DefaultSqFt[scope], false
}

func (g *Guardrails) applyGeneral(findings []models.Finding, sel *models.ScopeSelection) models.GuardrailResult {
	res := models.GuardrailResult{Warnings: []string{}, Approved: true}

	tier := sel.SelectedTierID
	if tier == "" {
		tier = answerString(sel.Answers, AnswerScopeLevel)
	}
	switch tier {
	case models.TierMinimum, models.TierRecommended, models.TierPremium:
	case "":
		tier = models.TierRecommended
		res.Warnings = append(res.Warnings, "No scope tier was selected; defaulting to the recommended scope")
	default:
		res.Warnings = append(res.Warnings, fmt.Sprintf("Unknown scope tier %q; defaulting to the recommended scope", tier))
		tier = models.TierRecommended
	}

	if tier == models.TierMinimum {
		if len(findings) > g.cfg.MinimumTierMaxFindings {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"Minimum scope selected but %d findings were detected; some issues will not be addressed", len(findings)))
		}
		if n := countHighSeverity(findings); n > 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"Minimum scope selected with %d high-severity finding(s)", n))
		}
	}

	items := TierItemCount(findings, tier)
	if len(sel.ConfirmedScopeItems) > 0 {
		items = len(sel.ConfirmedScopeItems)
	}
	price := g.cfg.ItemsPrice(tier, items, g.cfg.PriceMultiplier(sel.Answers, sel.Measurements))
	res.SuggestedPrice = &price
	res.DefaultScope = tier
	res.RequiresConfirmation = tier == models.TierPremium
	return res
}

// TierItemCount is the number of line items a non-painting tier carries for findings.
func TierItemCount(findings []models.Finding, level string) int {
	switch level {
	case models.TierMinimum:
		return max(len(MinimumFindings(findings)), 1)
	case models.TierPremium:
		return max(len(findings), 1) + len(PreventiveItems)
	default:
		return max(len(findings), 1)
	}
}

// PreventiveItems are added to every premium non-painting tier.
var PreventiveItems = []string{
	"Preventive maintenance inspection of adjacent areas",
	"Protective sealing and finish of repaired surfaces",
}

// MinimumFindings returns the high-severity and damage findings, or the top
// finding when there are none.
func MinimumFindings(findings []models.Finding) []models.Finding {
	var out []models.Finding
	for _, f := range findings {
		if f.Severity == models.SeverityHigh || f.Category == models.CategoryDamage {
			out = append(out, f)
		}
	}
	if len(out) == 0 && len(findings) > 0 {
		out = findings[:1]
	}
	return out
}

func countHighSeverity(findings []models.Finding) int {
	n := 0
	for _, f := range findings {
		if f.Severity == models.SeverityHigh {
			n++
		}
	}
	return n
}

// ValidateScopeVsFindings flags a scope that does not fit the findings. The
// warnings never block pricing.
func ValidateScopeVsFindings(findings []models.Finding, scope string, isPaintingJob bool) []string {
	painting := 0
	for _, f := range findings {
		if f.Category == models.CategoryPainting {
			painting++
		}
	}

	var warnings []string
	switch {
	case scope == ScopeEntireHouse && painting <= 1:
		warnings = append(warnings, fmt.Sprintf(
			"Entire-house scope selected but only %d painting finding(s) were detected", painting))
	case scope == ScopeEntireRoom && painting == 0:
		warnings = append(warnings, "Entire-room scope selected but no painting findings were detected")
	case scope == ScopeSpotRepair && painting > 3:
		warnings = append(warnings, fmt.Sprintf(
			"Spot repair selected but %d painting findings were detected; the scope may be larger", painting))
	case !isPaintingJob && scope == models.TierPremium && len(findings) <= 1:
		warnings = append(warnings, "Premium scope selected for a single finding")
	}
	return warnings
}
