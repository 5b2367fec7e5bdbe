package pricing

import (
	"strings"

	"github.com/kiranshivaraju/sitescope/pkg/models"
	"github.com/shopspring/decimal"
)

// PaintPrice prices sqft at the scope's per-square-foot range, scaled by
// multiplier and raised to the labor minimum.
func (c Config) PaintPrice(scope string, sqft, multiplier float64) models.PriceRange {
	rate, ok := c.PaintRates[scope]
	if !ok {
		rate = c.PaintRates[ScopeSpotRepair]
	}
	area := decimal.NewFromFloat(sqft)
	m := decimal.NewFromFloat(multiplier)
	return c.floor(
		area.Mul(decimal.NewFromFloat(rate.Low)).Mul(m),
		area.Mul(decimal.NewFromFloat(rate.High)).Mul(m),
	)
}

// PaintTierPrice estimates a painting tier as sqft × base rate × tier
// multiplier, spread by TierSpread and raised to the labor minimum.
func (c Config) PaintTierPrice(tier string, sqft float64) models.PriceRange {
	point := decimal.NewFromFloat(sqft).
		Mul(decimal.NewFromFloat(c.PaintBaseRate)).
		Mul(decimal.NewFromFloat(c.PaintTierMultipliers[tier]))
	return c.floor(
		point.Mul(decimal.NewFromFloat(c.TierSpread.Low)),
		point.Mul(decimal.NewFromFloat(c.TierSpread.High)),
	)
}

// ItemsPrice prices items line items of a non-painting tier at level.
func (c Config) ItemsPrice(level string, items int, multiplier float64) models.PriceRange {
	tierMult, ok := c.TierMultipliers[level]
	if !ok {
		tierMult = 1
	}
	n := decimal.NewFromInt(int64(max(items, 1)))
	m := decimal.NewFromFloat(tierMult).Mul(decimal.NewFromFloat(multiplier))
	return c.floor(
		n.Mul(decimal.NewFromFloat(c.RepairItemRange.Low)).Mul(m),
		n.Mul(decimal.NewFromFloat(c.RepairItemRange.High)).Mul(m),
	)
}

// floor rounds to whole dollars and raises each bound to the labor minimum.
func (c Config) floor(low, high decimal.Decimal) models.PriceRange {
	low, high = low.Round(0), high.Round(0)
	if minLow := decimal.NewFromFloat(c.LaborMinimum.Low).Round(0); low.LessThan(minLow) {
		low = minLow
	}
	if minHigh := decimal.NewFromFloat(c.LaborMinimum.High).Round(0); high.LessThan(minHigh) {
		high = minHigh
	}
	if high.LessThan(low) {
		high = low
	}
	return models.PriceRange{Low: low.InexactFloat64(), High: high.InexactFloat64()}
}

// PriceMultiplier composes the independent adjustment factors found in
// answers. A ceiling_height answer wins over a measured ceiling height.
func (c Config) PriceMultiplier(answers map[string]any, m *models.Measurements) float64 {
	mult := decimal.NewFromInt(1)

	if answerBool(answers, AnswerColorChange) {
		mult = mult.Mul(decimal.NewFromFloat(c.ColorChangeMultiplier))
	}
	if answerBool(answers, AnswerIncludeCeiling) {
		mult = mult.Mul(decimal.NewFromFloat(c.IncludeCeilingMultiplier))
	}

	ceiling := strings.ToLower(answerString(answers, AnswerCeilingHeight))
	if ceiling == "" && m != nil {
		switch {
		case m.CeilingHeight >= c.VaultedCeilingFt:
			ceiling = CeilingVaulted
		case m.CeilingHeight >= c.TallCeilingFt:
			ceiling = CeilingTall
		}
	}
	switch ceiling {
	case CeilingTall:
		mult = mult.Mul(decimal.NewFromFloat(c.TallCeilingMultiplier))
	case CeilingVaulted:
		mult = mult.Mul(decimal.NewFromFloat(c.VaultedCeilingMultiplier))
	}

	return mult.InexactFloat64()
}

func answerString(answers map[string]any, key string) string {
	v, ok := answers[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// answerBool accepts JSON booleans, "true"/"yes"/"1" strings and the number 1.
func answerBool(answers map[string]any, key string) bool {
	switch v := answers[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1":
			return true
		}
	case float64:
		return v == 1
	case int:
		return v == 1
	}
	return false
}
