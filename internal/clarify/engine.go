// Package clarify decides whether an aggregated job can be priced as-is and,
// when it cannot, produces the questions and scope tiers shown to the user.
package clarify

import (
	"github.com/kiranshivaraju/sitescope/internal/analysis"
	"github.com/kiranshivaraju/sitescope/internal/pricing"
	"github.com/kiranshivaraju/sitescope/pkg/models"
)

// LowConfidence is the finding confidence below which a finding counts
// toward the low-confidence majority.
const LowConfidence = 0.6

// ConfirmAllMinFindings is the finding count from which a non-painting job
// must confirm every line item.
const ConfirmAllMinFindings = 5

// Trigger names why a job needs clarification.
type Trigger string

const (
	TriggerAmbiguousScope        Trigger = "scope_ambiguous"
	TriggerPaintingJob           Trigger = "painting_job"
	TriggerClarificationReasons  Trigger = "clarification_reasons"
	TriggerLowConfidenceMajority Trigger = "low_confidence_majority"
	TriggerLargeArea             Trigger = "large_unconfirmed_area"
)

// Decision is the outcome of Evaluate.
type Decision struct {
	NeedsClarification bool
	Triggers           []Trigger
	Questions          []models.ClarifyingQuestion
}

// Engine evaluates aggregates against one pricing configuration.
type Engine struct {
	cfg pricing.Config
}

func New(cfg pricing.Config) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate returns priceable-as-is (no questions) or needs-clarification with
// the ordered question set for the job kind.
func (e *Engine) Evaluate(agg analysis.Result) Decision {
	d := Decision{
		Triggers:  triggers(agg, e.cfg.LargeScopeSqFt),
		Questions: []models.ClarifyingQuestion{},
	}
	d.NeedsClarification = len(d.Triggers) > 0
	if !d.NeedsClarification {
		return d
	}

	if agg.IsPaintingJob {
		d.Questions = e.paintingQuestions()
	} else {
		d.Questions = e.generalQuestions(agg)
	}
	return d
}

func triggers(agg analysis.Result, largeSqFt float64) []Trigger {
	var out []Trigger
	if agg.ScopeAmbiguous {
		out = append(out, TriggerAmbiguousScope)
	}
	if agg.IsPaintingJob {
		out = append(out, TriggerPaintingJob)
	}
	if len(agg.ClarificationReasons) > 0 {
		out = append(out, TriggerClarificationReasons)
	}
	if lowConfidenceMajority(agg.Findings) {
		out = append(out, TriggerLowConfidenceMajority)
	}
	if agg.EstimatedAreaSqFt > largeSqFt {
		out = append(out, TriggerLargeArea)
	}
	return out
}

// lowConfidenceMajority reports whether more than half of findings fall
// below LowConfidence. No findings is not a majority.
func lowConfidenceMajority(findings []models.Finding) bool {
	low := 0
	for _, f := range findings {
		if f.Confidence < LowConfidence {
			low++
		}
	}
	return low*2 > len(findings)
}
