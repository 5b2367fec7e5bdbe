package clarify

import (
	"github.com/kiranshivaraju/sitescope/internal/analysis"
	"github.com/kiranshivaraju/sitescope/internal/pricing"
	"github.com/kiranshivaraju/sitescope/pkg/models"
)

func mult(v float64) *float64 { return &v }

// paintingQuestions is the fixed painting set: scope, room size, ceiling
// height, include-ceiling and color change, in that order.
func (e *Engine) paintingQuestions() []models.ClarifyingQuestion {
	return []models.ClarifyingQuestion{
		{
			ID:       pricing.AnswerPaintScope,
			Question: "How much of the area needs painting?",
			Type:     models.QuestionSingleSelect,
			Options: []models.QuestionOption{
				{Value: pricing.ScopeSpotRepair, Label: "Spot repair / touch-up", Default: true},
				{Value: pricing.ScopeOneWall, Label: "One wall"},
				{Value: pricing.ScopeEntireRoom, Label: "Entire room"},
				{Value: pricing.ScopeEntireHouse, Label: "Entire house"},
			},
			Required:   true,
			HelpText:   "Without an answer the job is priced as a spot repair.",
			ImpactArea: models.ImpactScope,
		},
		{
			ID:       pricing.AnswerRoomSize,
			Question: "How large is the room?",
			Type:     models.QuestionSingleSelect,
			Options: []models.QuestionOption{
				{Value: "small", Label: "Small (under 100 sq ft)"},
				{Value: "medium", Label: "Medium (100-200 sq ft)", Default: true},
				{Value: "large", Label: "Large (over 200 sq ft)"},
			},
			HelpText:   "Used to estimate the area when the entire room is painted.",
			ImpactArea: models.ImpactPricing,
		},
		{
			ID:       pricing.AnswerCeilingHeight,
			Question: "How tall are the ceilings?",
			Type:     models.QuestionSingleSelect,
			Options: []models.QuestionOption{
				{Value: pricing.CeilingStandard, Label: "Standard (8 ft)", PriceMultiplier: mult(1), Default: true},
				{Value: pricing.CeilingTall, Label: "Tall (9-11 ft)", PriceMultiplier: mult(e.cfg.TallCeilingMultiplier)},
				{Value: pricing.CeilingVaulted, Label: "Vaulted (12 ft or more)", PriceMultiplier: mult(e.cfg.VaultedCeilingMultiplier)},
			},
			ImpactArea: models.ImpactPricing,
		},
		{
			ID:         pricing.AnswerIncludeCeiling,
			Question:   "Should the ceiling be painted too?",
			Type:       models.QuestionBoolean,
			ImpactArea: models.ImpactPricing,
		},
		{
			ID:         pricing.AnswerColorChange,
			Question:   "Is this a color change?",
			Type:       models.QuestionBoolean,
			HelpText:   "A color change usually needs an extra coat.",
			ImpactArea: models.ImpactMaterials,
		},
	}
}

func (e *Engine) generalQuestions(agg analysis.Result) []models.ClarifyingQuestion {
	scope := models.ClarifyingQuestion{
		ID:       pricing.AnswerScopeLevel,
		Question: "What level of work should the proposal cover?",
		Type:     models.QuestionSingleSelect,
		Options: []models.QuestionOption{
			{Value: models.TierMinimum, Label: "Minimum: urgent issues only", PriceMultiplier: mult(e.tierMultiplier(models.TierMinimum))},
			{Value: models.TierRecommended, Label: "Recommended: all detected issues", PriceMultiplier: mult(e.tierMultiplier(models.TierRecommended)), Default: true},
			{Value: models.TierPremium, Label: "Premium: all issues plus preventive work", PriceMultiplier: mult(e.tierMultiplier(models.TierPremium))},
		},
		Required:   true,
		ImpactArea: models.ImpactScope,
	}
	if len(agg.ClarificationReasons) > 0 {
		scope.HelpText = agg.ClarificationReasons[0]
	}

	questions := []models.ClarifyingQuestion{
		scope,
		{
			ID:         pricing.AnswerWorkAreaSize,
			Question:   "Approximately how large is the work area?",
			Type:       models.QuestionNumber,
			Min:        mult(0),
			Unit:       "sq ft",
			ImpactArea: models.ImpactPricing,
		},
	}
	if len(agg.Findings) >= ConfirmAllMinFindings {
		questions = append(questions, models.ClarifyingQuestion{
			ID:         pricing.AnswerConfirmAll,
			Question:   "Should every detected issue be included in the proposal?",
			Type:       models.QuestionBoolean,
			Required:   true,
			ImpactArea: models.ImpactScope,
		})
	}
	return questions
}

func (e *Engine) tierMultiplier(level string) float64 {
	if m, ok := e.cfg.TierMultipliers[level]; ok {
		return m
	}
	return 1
}
