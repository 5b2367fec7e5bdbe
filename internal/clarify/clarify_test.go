package clarify

import (
	"fmt"
	"testing"

	"github.com/kiranshivaraju/sitescope/internal/analysis"
	"github.com/kiranshivaraju/sitescope/internal/pricing"
	"github.com/kiranshivaraju/sitescope/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func questionIDs(qs []models.ClarifyingQuestion) []string {
	ids := make([]string, 0, len(qs))
	for _, q := range qs {
		ids = append(ids, q.ID)
	}
	return ids
}

func sixFindings() []models.Finding {
	sev := []string{models.SeverityHigh, models.SeverityLow, models.SeverityHigh, models.SeverityMedium, models.SeverityLow, models.SeverityMedium}
	out := make([]models.Finding, len(sev))
	for i, s := range sev {
		out[i] = models.Finding{
			ID:         fmt.Sprintf("repair:issue %d", i),
			Issue:      fmt.Sprintf("issue %d", i),
			Category:   models.CategoryRepair,
			Severity:   s,
			Confidence: 0.9,
		}
	}
	return out
}

func TestEvaluate_PaintingJobGetsFixedQuestionSet(t *testing.T) {
	e := New(pricing.DefaultConfig())
	d := e.Evaluate(analysis.Result{
		IsPaintingJob: true,
		Findings:      []models.Finding{{Issue: "peeling paint near window", Category: models.CategoryPainting, Confidence: 0.82}},
	})

	assert.True(t, d.NeedsClarification)
	assert.Equal(t, []Trigger{TriggerPaintingJob}, d.Triggers)
	assert.Equal(t, []string{"paint_scope", "room_size", "ceiling_height", "include_ceiling", "color_change"}, questionIDs(d.Questions))

	scope := d.Questions[0]
	assert.True(t, scope.Required)
	assert.Equal(t, models.ImpactScope, scope.ImpactArea)
	require.NotEmpty(t, scope.Options)
	assert.Equal(t, pricing.ScopeSpotRepair, scope.Options[0].Value)
	assert.True(t, scope.Options[0].Default)

	ceiling := d.Questions[2]
	require.Len(t, ceiling.Options, 3)
	assert.Equal(t, 1.3, *ceiling.Options[1].PriceMultiplier)
	assert.Equal(t, 1.6, *ceiling.Options[2].PriceMultiplier)
	assert.Equal(t, models.QuestionBoolean, d.Questions[3].Type)
	assert.Equal(t, models.ImpactMaterials, d.Questions[4].ImpactArea)
}

func TestEvaluate_PriceableAsIs(t *testing.T) {
	d := New(pricing.DefaultConfig()).Evaluate(analysis.Result{
		Findings:          []models.Finding{{Issue: "loose handrail", Confidence: 0.9}, {Issue: "missing trim", Confidence: 0.5}},
		EstimatedAreaSqFt: 200,
	})

	assert.False(t, d.NeedsClarification)
	assert.Empty(t, d.Triggers)
	assert.NotNil(t, d.Questions)
	assert.Empty(t, d.Questions)
}

func TestEvaluate_Triggers(t *testing.T) {
	tests := []struct {
		name string
		agg  analysis.Result
		want Trigger
	}{
		{"ambiguous scope", analysis.Result{ScopeAmbiguous: true}, TriggerAmbiguousScope},
		{"reasons", analysis.Result{ClarificationReasons: []string{"Cannot see the floor"}}, TriggerClarificationReasons},
		{"low confidence majority", analysis.Result{Findings: []models.Finding{{Confidence: 0.3}, {Confidence: 0.59}, {Confidence: 0.9}}}, TriggerLowConfidenceMajority},
		{"large area", analysis.Result{EstimatedAreaSqFt: 201}, TriggerLargeArea},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(pricing.DefaultConfig()).Evaluate(tt.agg)
			assert.True(t, d.NeedsClarification)
			assert.Equal(t, []Trigger{tt.want}, d.Triggers)
			assert.Equal(t, "scope_level", d.Questions[0].ID)
		})
	}
}

func TestEvaluate_LowConfidenceHalfIsNotMajority(t *testing.T) {
	d := New(pricing.DefaultConfig()).Evaluate(analysis.Result{
		Findings: []models.Finding{{Confidence: 0.3}, {Confidence: 0.9}},
	})
	assert.False(t, d.NeedsClarification)
}

func TestEvaluate_GeneralQuestions(t *testing.T) {
	d := New(pricing.DefaultConfig()).Evaluate(analysis.Result{
		ScopeAmbiguous:       true,
		ClarificationReasons: []string{"Cannot tell how many steps are damaged", "second reason"},
		Findings:             sixFindings(),
	})

	require.Equal(t, []string{"scope_level", "work_area_size", "confirm_all_items"}, questionIDs(d.Questions))
	scope := d.Questions[0]
	assert.Equal(t, "Cannot tell how many steps are damaged", scope.HelpText)
	require.Len(t, scope.Options, 3)
	assert.Equal(t, 1.0, *scope.Options[0].PriceMultiplier)
	assert.Equal(t, 1.5, *scope.Options[1].PriceMultiplier)
	assert.True(t, scope.Options[1].Default)
	assert.Equal(t, 2.0, *scope.Options[2].PriceMultiplier)

	area := d.Questions[1]
	assert.False(t, area.Required)
	assert.Equal(t, models.QuestionNumber, area.Type)
	assert.Equal(t, "sq ft", area.Unit)
	assert.True(t, d.Questions[2].Required)
}

func TestEvaluate_ConfirmAllOnlyFromFiveFindings(t *testing.T) {
	e := New(pricing.DefaultConfig())
	d := e.Evaluate(analysis.Result{ScopeAmbiguous: true, Findings: sixFindings()[:4]})
	assert.Equal(t, []string{"scope_level", "work_area_size"}, questionIDs(d.Questions))
	assert.Empty(t, d.Questions[0].HelpText)

	d = e.Evaluate(analysis.Result{ScopeAmbiguous: true, Findings: sixFindings()[:5]})
	assert.Len(t, d.Questions, 3)
}

func TestGenerateScopeTiers_GeneralPartitionsBySeverity(t *testing.T) {
	tiers := New(pricing.DefaultConfig()).GenerateScopeTiers(analysis.Result{Findings: sixFindings()}, 0)
	require.Len(t, tiers, 3)

	minimum, recommended, premium := tiers[0], tiers[1], tiers[2]
	assert.Equal(t, models.TierMinimum, minimum.Level)
	assert.Equal(t, []string{"issue 0", "issue 2"}, minimum.Items)
	assert.Equal(t, models.PriceRange{Low: 300, High: 800}, *minimum.PriceRange)
	assert.Contains(t, minimum.Warnings[0], "4 of 6")
	assert.False(t, minimum.RequiresConfirmation)

	assert.Len(t, recommended.Items, 6)
	assert.Equal(t, models.PriceRange{Low: 1350, High: 3600}, *recommended.PriceRange)
	assert.False(t, recommended.RequiresConfirmation)

	assert.Len(t, premium.Items, 8)
	assert.Equal(t, pricing.PreventiveItems, premium.Items[6:])
	assert.True(t, premium.RequiresConfirmation)
	// 8 items × $150–400 × 2.0
	assert.Equal(t, models.PriceRange{Low: 2400, High: 6400}, *premium.PriceRange)
}

func TestGenerateScopeTiers_DamageCountsAsMinimum(t *testing.T) {
	findings := []models.Finding{
		{Issue: "hole in drywall", Category: models.CategoryDamage, Severity: models.SeverityLow},
		{Issue: "dated fixture", Category: models.CategoryUpgrade},
	}
	tiers := New(pricing.DefaultConfig()).GenerateScopeTiers(analysis.Result{Findings: findings}, 0)
	assert.Equal(t, []string{"hole in drywall"}, tiers[0].Items)
}

func TestGenerateScopeTiers_GeneralWithoutFindings(t *testing.T) {
	tiers := New(pricing.DefaultConfig()).GenerateScopeTiers(analysis.Result{}, 0)
	require.Len(t, tiers, 3)
	assert.Equal(t, []string{"On-site assessment"}, tiers[0].Items)
	assert.Equal(t, []string{"On-site assessment"}, tiers[1].Items)
	assert.Equal(t, pricing.PreventiveItems, tiers[2].Items)
	assert.Empty(t, tiers[0].Warnings)
}

func TestGenerateScopeTiers_Painting(t *testing.T) {
	e := New(pricing.DefaultConfig())

	tiers := e.GenerateScopeTiers(analysis.Result{IsPaintingJob: true}, 200)
	require.Len(t, tiers, 3)
	assert.Equal(t, []string{"Spot Repair", "One Wall", "Entire Room"}, []string{tiers[0].Name, tiers[1].Name, tiers[2].Name})
	assert.Equal(t, pricing.ScopeSpotRepair, tiers[0].ID)
	// 200 × $4 × {0.5, 1.0, 1.5} × [0.8, 1.2]
	assert.Equal(t, models.PriceRange{Low: 320, High: 480}, *tiers[0].PriceRange)
	assert.Equal(t, models.PriceRange{Low: 640, High: 960}, *tiers[1].PriceRange)
	assert.Equal(t, models.PriceRange{Low: 960, High: 1440}, *tiers[2].PriceRange)
	assert.False(t, tiers[0].RequiresConfirmation)
	assert.True(t, tiers[2].RequiresConfirmation)

	unpriced := e.GenerateScopeTiers(analysis.Result{IsPaintingJob: true}, 0)
	for _, tier := range unpriced {
		assert.Nil(t, tier.PriceRange, tier.Name)
		assert.NotEmpty(t, tier.Warnings, tier.Name)
	}
}
