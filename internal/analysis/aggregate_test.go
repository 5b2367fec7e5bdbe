package analysis

import (
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sitescope/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func readyPhoto(conf *float64, llm *models.VisionResult, labels ...models.Label) *models.Photo {
	sf := &models.StructuredFindings{
		Detector: models.DetectorBranch{Status: models.BranchFailed, Error: "down"},
		LLM:      models.LLMBranch{Status: models.BranchFailed, Error: "down"},
		Combined: models.Combined{Confidence: conf},
	}
	if llm != nil {
		sf.LLM = models.LLMBranch{Status: models.BranchReady, Result: llm}
		sf.Combined.IsPaintingRelated = llm.IsPaintingRelated
		sf.Combined.ScopeAmbiguous = llm.ScopeAmbiguous
		sf.Combined.DetectedTrade = llm.DetectedTrade
		sf.Combined.NeedsMorePhotos = llm.NeedsMorePhotos
	}
	if labels != nil {
		sf.Detector = models.DetectorBranch{Status: models.BranchReady, Result: &models.DetectorResult{Labels: labels}}
	}
	return &models.Photo{
		ID:             uuid.New(),
		JobID:          uuid.New(),
		FindingsStatus: models.FindingsStatusReady,
		Findings:       sf,
	}
}

func TestAggregate_PeelingPaintScenario(t *testing.T) {
	peeling := &models.VisionResult{Damage: []string{"peeling paint near window"}, Confidence: 0.8}
	p1 := readyPhoto(ptr(0.82), peeling)
	p2 := readyPhoto(ptr(0.73), &models.VisionResult{Damage: []string{"Peeling  paint near window "}, Confidence: 0.7})
	p3 := readyPhoto(ptr(0.5), &models.VisionResult{Labels: []string{"hallway"}})

	res := Aggregate([]*models.Photo{p1, p2, p3})

	require.Len(t, res.Findings, 1)
	f := res.Findings[0]
	assert.Equal(t, "painting:peeling paint near window", f.ID)
	assert.Equal(t, models.CategoryPainting, f.Category)
	assert.Equal(t, []string{p1.ID.String(), p2.ID.String()}, f.PhotoIDs)
	assert.InDelta(t, 0.82, f.Confidence, 1e-9)
	assert.True(t, res.IsPaintingJob)
	assert.Equal(t, 3, res.PhotosAnalyzed)
	assert.Equal(t, 3, res.PhotosTotal)
	assert.InDelta(t, (0.82+0.73+0.5)/3, res.OverallConfidence, 1e-9)
	assert.Equal(t, "peeling paint near window", res.SuggestedProblem)
	assert.Len(t, res.Unknowns, 2, "painting jobs carry the two fixed unknowns")
}

func TestAggregate_MergeNeverLowersConfidence(t *testing.T) {
	p1 := readyPhoto(ptr(0.9), &models.VisionResult{Issues: []string{"loose handrail"}})
	p2 := readyPhoto(ptr(0.4), &models.VisionResult{Issues: []string{"loose handrail"}})

	res := Aggregate([]*models.Photo{p1, p2})
	require.Len(t, res.Findings, 1)
	assert.InDelta(t, 0.9, res.Findings[0].Confidence, 1e-9)
	assert.Len(t, res.Findings[0].PhotoIDs, 2)
}

func TestAggregate_SamePhotoNotListedTwice(t *testing.T) {
	p := readyPhoto(ptr(0.7), &models.VisionResult{Damage: []string{"crack", "Crack"}})

	res := Aggregate([]*models.Photo{p})
	require.Len(t, res.Findings, 1)
	assert.Equal(t, []string{p.ID.String()}, res.Findings[0].PhotoIDs)
}

func TestAggregate_SourceDefaultsAndKeywordOverrides(t *testing.T) {
	p := readyPhoto(ptr(0.7), &models.VisionResult{
		Damage:  []string{"water stain on ceiling", "leaking pipe under sink"},
		Issues:  []string{"dated light fixture", "missing trim"},
		Objects: []models.DetectedObject{{Name: "outlet", Notes: "cover cracked"}, {Name: "door"}},
	})

	res := Aggregate([]*models.Photo{p})
	byID := map[string]models.Finding{}
	for _, f := range res.Findings {
		byID[f.ID] = f
	}

	assert.Contains(t, byID, "damage:water stain on ceiling")
	assert.Contains(t, byID, "plumbing:leaking pipe under sink")
	assert.Contains(t, byID, "upgrade:dated light fixture")
	assert.Contains(t, byID, "repair:missing trim")
	assert.Contains(t, byID, "electrical:outlet: cover cracked")
	assert.Len(t, res.Findings, 5, "objects without notes are not findings")
	assert.Equal(t, "Condition of outlet", byID["electrical:outlet: cover cracked"].Description)
	assert.False(t, res.IsPaintingJob)
	assert.Empty(t, res.Unknowns)
}

func TestAggregate_HighConfidenceDetectorLabelsOnly(t *testing.T) {
	p := readyPhoto(ptr(0.5), nil,
		models.Label{Name: "Mold", Confidence: 91},
		models.Label{Name: "Tile", Confidence: 79.9},
	)

	res := Aggregate([]*models.Photo{p})
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "other:mold", res.Findings[0].ID)
	assert.InDelta(t, 0.91, res.Findings[0].Confidence, 1e-9)
}

func TestAggregate_ExcludesUnreadyPhotos(t *testing.T) {
	ready := readyPhoto(ptr(0.6), &models.VisionResult{Damage: []string{"hole in drywall"}})
	pending := &models.Photo{ID: uuid.New(), FindingsStatus: models.FindingsStatusPending}
	failed := &models.Photo{ID: uuid.New(), FindingsStatus: models.FindingsStatusFailed}

	res := Aggregate([]*models.Photo{ready, pending, failed})
	assert.Equal(t, 1, res.PhotosAnalyzed)
	assert.Equal(t, 3, res.PhotosTotal)
	assert.Len(t, res.Findings, 1)
}

func TestAggregate_Empty(t *testing.T) {
	res := Aggregate(nil)
	assert.NotNil(t, res.Findings)
	assert.NotNil(t, res.Unknowns)
	assert.NotNil(t, res.NeedsMorePhotos)
	assert.Equal(t, DefaultConfidence, res.OverallConfidence)
	assert.Empty(t, res.SuggestedProblem)
}

func TestAggregate_ConfidenceDefaultsWhenAbsent(t *testing.T) {
	res := Aggregate([]*models.Photo{readyPhoto(nil, &models.VisionResult{Damage: []string{"dent"}})})
	assert.Equal(t, DefaultConfidence, res.OverallConfidence)
	assert.InDelta(t, DefaultConfidence, res.Findings[0].Confidence, 1e-9)
}

func TestAggregate_SortAndTruncate(t *testing.T) {
	var photos []*models.Photo
	for i := 0; i < 20; i++ {
		photos = append(photos, readyPhoto(ptr(float64(i)/20), &models.VisionResult{Damage: []string{string(rune('a'+i)) + " damage"}}))
	}

	res := Aggregate(photos)
	require.Len(t, res.Findings, 15)
	assert.Equal(t, "t damage", res.Findings[0].Issue)
	for i := 1; i < len(res.Findings); i++ {
		assert.GreaterOrEqual(t, res.Findings[i-1].Confidence, res.Findings[i].Confidence)
	}
}

func TestAggregate_NeedsMorePhotosDedupAndCap(t *testing.T) {
	p1 := readyPhoto(ptr(0.5), &models.VisionResult{NeedsMorePhotos: []string{"Wide shot", "close-up", "wide SHOT"}})
	p2 := readyPhoto(ptr(0.5), &models.VisionResult{NeedsMorePhotos: []string{"a", "b", "c", "d", "e"}})

	res := Aggregate([]*models.Photo{p1, p2})
	assert.Equal(t, []string{"Wide shot", "close-up", "a", "b", "c", "d"}, res.NeedsMorePhotos)
}

func TestAggregate_DetectedTradePrefersCombined(t *testing.T) {
	p := readyPhoto(ptr(0.5), &models.VisionResult{DetectedTrade: "carpentry"})
	p.Findings.Combined.DetectedTrade = "roofing"
	later := readyPhoto(ptr(0.5), &models.VisionResult{DetectedTrade: "plumbing"})

	res := Aggregate([]*models.Photo{p, later})
	assert.Equal(t, "roofing", res.DetectedTrade)

	p.Findings.Combined.DetectedTrade = ""
	res = Aggregate([]*models.Photo{p, later})
	assert.Equal(t, "carpentry", res.DetectedTrade)
}

func TestAggregate_ScopeAmbiguityBecomesUnknowns(t *testing.T) {
	p := readyPhoto(ptr(0.5), &models.VisionResult{
		ScopeAmbiguous:       true,
		ClarificationReasons: []string{"Cannot see the full wall", "cannot see the full wall"},
	})

	res := Aggregate([]*models.Photo{p})
	assert.True(t, res.ScopeAmbiguous)
	assert.Equal(t, []string{"Cannot see the full wall"}, res.ClarificationReasons)
	require.Len(t, res.Unknowns, 1)
	assert.True(t, res.Unknowns[0].ImpactsScope)

	p.Findings.LLM.Result.ClarificationReasons = nil
	res = Aggregate([]*models.Photo{p})
	require.Len(t, res.Unknowns, 1)
	assert.Contains(t, res.Unknowns[0].Description, "extent of work")
}

func TestAggregate_PaintingFlagFromProvider(t *testing.T) {
	p := readyPhoto(ptr(0.5), &models.VisionResult{IsPaintingRelated: true, Issues: []string{"scuffed baseboard"}})

	res := Aggregate([]*models.Photo{p})
	assert.True(t, res.IsPaintingJob)
	assert.Equal(t, "scuffed baseboard", res.SuggestedProblem)
}

func TestAggregate_EstimatedAreaKeepsMaximum(t *testing.T) {
	res := Aggregate([]*models.Photo{
		readyPhoto(ptr(0.5), &models.VisionResult{EstimatedAreaSqFt: 40}),
		readyPhoto(ptr(0.5), &models.VisionResult{EstimatedAreaSqFt: 260}),
	})
	assert.Equal(t, 260.0, res.EstimatedAreaSqFt)
}

func TestSuggestProblem_PrefersDamageOverOthers(t *testing.T) {
	findings := []models.Finding{
		{Issue: "loose railing", Category: models.CategoryRepair, Confidence: 0.9},
		{Issue: "hole in door", Category: models.CategoryDamage, Confidence: 0.6},
	}
	assert.Equal(t, "hole in door", suggestProblem(findings))
	assert.Equal(t, "loose railing", suggestProblem(findings[:1]))
}

func TestInferCategory(t *testing.T) {
	tests := []struct {
		text     string
		fallback string
		want     string
	}{
		{"Peeling trim", models.CategoryDamage, models.CategoryPainting},
		{"faded siding", models.CategoryRepair, models.CategoryPainting},
		{"painted-over outlet", models.CategoryRepair, models.CategoryPainting},
		{"slow drain from pipe", models.CategoryRepair, models.CategoryPlumbing},
		{"PLUMBING fixture", models.CategoryOther, models.CategoryPlumbing},
		{"exposed wire", models.CategoryDamage, models.CategoryElectrical},
		{"outdated cabinets", models.CategoryRepair, models.CategoryUpgrade},
		{"leaking electrical box", models.CategoryDamage, models.CategoryPlumbing},
		{"cracked tile", models.CategoryDamage, models.CategoryDamage},
		{"", models.CategoryOther, models.CategoryOther},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, InferCategory(tt.text, tt.fallback))
		})
	}
}

func TestFindingKey(t *testing.T) {
	assert.Equal(t, "damage:peeling paint", FindingKey("damage", "  Peeling \t Paint "))
	assert.Equal(t, FindingKey("repair", "Loose Rail"), FindingKey("repair", "loose  rail"))
}
