// Package analysis merges per-photo structured findings into a job-level,
// deduplicated finding set.
package analysis

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kiranshivaraju/sitescope/pkg/models"
)

const (
	// HighConfidenceLabel is the minimum label-detector score (0–100) that becomes a finding.
	HighConfidenceLabel = 80
	// DefaultConfidence is used when no photo carries a combined confidence.
	DefaultConfidence = 0.5

	maxFindings        = 15
	maxNeedsMorePhotos = 6
)

// Fixed unknowns attached to every painting job.
var paintingUnknowns = []models.Unknown{
	{Description: "Extent of painting (spot repair, one wall, entire room) is not confirmed", ImpactsScope: true, ImpactsPricing: true},
	{Description: "A color change may require primer and extra coats", ImpactsScope: false, ImpactsPricing: true},
}

var reWhitespace = regexp.MustCompile(`\s+`)

// Result is the aggregate view over all photos of one job.
type Result struct {
	Findings             []models.Finding
	Unknowns             []models.Unknown
	OverallConfidence    float64
	PhotosAnalyzed       int
	PhotosTotal          int
	SuggestedProblem     string
	NeedsMorePhotos      []string
	DetectedTrade        string
	IsPaintingJob        bool
	ScopeAmbiguous       bool
	ClarificationReasons []string
	// EstimatedAreaSqFt is the largest affected area any photo reported; it is never a measurement.
	EstimatedAreaSqFt float64
}

// Aggregate merges the findings of every ready photo. Photos that are not
// ready count towards PhotosTotal only. Slices in the result are never nil.
func Aggregate(photos []*models.Photo) Result {
	res := Result{
		Findings:             []models.Finding{},
		Unknowns:             []models.Unknown{},
		NeedsMorePhotos:      []string{},
		ClarificationReasons: []string{},
		PhotosTotal:          len(photos),
	}

	m := newMerger()
	var confidences []float64
	var hints []string

	for _, p := range photos {
		if p.FindingsStatus != models.FindingsStatusReady || p.Findings == nil {
			continue
		}
		res.PhotosAnalyzed++
		sf := p.Findings
		photoID := p.ID.String()

		photoConf := DefaultConfidence
		if sf.Combined.Confidence != nil {
			photoConf = *sf.Combined.Confidence
			confidences = append(confidences, photoConf)
		}

		c := sf.Combined
		res.IsPaintingJob = res.IsPaintingJob || c.IsPaintingRelated
		res.ScopeAmbiguous = res.ScopeAmbiguous || c.ScopeAmbiguous
		res.ClarificationReasons = append(res.ClarificationReasons, c.ClarificationReasons...)
		hints = append(hints, c.NeedsMorePhotos...)
		if res.DetectedTrade == "" {
			res.DetectedTrade = strings.TrimSpace(c.DetectedTrade)
		}

		if sf.LLMReady() {
			v := sf.LLM.Result
			for _, d := range v.Damage {
				m.add(d, "Visible damage", models.CategoryDamage, photoConf, v.EstimatedSeverity, photoID)
			}
			for _, issue := range v.Issues {
				m.add(issue, "Reported issue", models.CategoryRepair, photoConf, v.EstimatedSeverity, photoID)
			}
			for _, o := range v.Objects {
				if strings.TrimSpace(o.Notes) == "" {
					continue
				}
				label, description := o.Notes, "Condition noted"
				if o.Name != "" {
					label = fmt.Sprintf("%s: %s", o.Name, o.Notes)
					description = "Condition of " + o.Name
				}
				m.add(label, description, models.CategoryRepair, photoConf, v.EstimatedSeverity, photoID)
			}

			res.IsPaintingJob = res.IsPaintingJob || v.IsPaintingRelated
			res.ScopeAmbiguous = res.ScopeAmbiguous || v.ScopeAmbiguous
			res.ClarificationReasons = append(res.ClarificationReasons, v.ClarificationReasons...)
			if len(c.NeedsMorePhotos) == 0 {
				hints = append(hints, v.NeedsMorePhotos...)
			}
			if res.DetectedTrade == "" {
				res.DetectedTrade = strings.TrimSpace(v.DetectedTrade)
			}
			if v.EstimatedAreaSqFt > res.EstimatedAreaSqFt {
				res.EstimatedAreaSqFt = v.EstimatedAreaSqFt
			}
		}

		if sf.DetectorReady() {
			for _, l := range sf.Detector.Result.Labels {
				if l.Confidence >= HighConfidenceLabel {
					m.add(l.Name, "Detected in photo", models.CategoryOther, l.Confidence/100, "", photoID)
				}
			}
		}
	}

	res.Findings = m.sorted()
	if m.painting || mentionsPainting(res.Findings) {
		res.IsPaintingJob = true
	}
	if len(res.Findings) > maxFindings {
		res.Findings = res.Findings[:maxFindings]
	}

	res.ClarificationReasons = dedupFold(res.ClarificationReasons, 0)
	res.NeedsMorePhotos = dedupFold(hints, maxNeedsMorePhotos)
	res.OverallConfidence = mean(confidences, DefaultConfidence)
	res.SuggestedProblem = suggestProblem(res.Findings)

	if res.ScopeAmbiguous {
		if len(res.ClarificationReasons) == 0 {
			res.Unknowns = append(res.Unknowns, models.Unknown{
				Description:    "The extent of work could not be determined from the photos",
				ImpactsScope:   true,
				ImpactsPricing: true,
			})
		}
		for _, r := range res.ClarificationReasons {
			res.Unknowns = append(res.Unknowns, models.Unknown{Description: r, ImpactsScope: true, ImpactsPricing: true})
		}
	}
	if res.IsPaintingJob {
		res.Unknowns = append(res.Unknowns, paintingUnknowns...)
	}

	return res
}

// FindingKey returns the dedup key of a finding: category prefix plus the
// lowercased, whitespace-collapsed label.
func FindingKey(category, label string) string {
	return category + ":" + NormalizeLabel(label)
}

// NormalizeLabel lowercases, trims and collapses whitespace.
func NormalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(reWhitespace.ReplaceAllString(label, " ")))
}

// merger accumulates findings keyed by FindingKey, preserving first-seen order.
type merger struct {
	byKey    map[string]*models.Finding
	order    []string
	painting bool
}

func newMerger() *merger {
	return &merger{byKey: make(map[string]*models.Finding)}
}

func (m *merger) add(label, description, defaultCategory string, confidence float64, severity, photoID string) {
	label = strings.TrimSpace(reWhitespace.ReplaceAllString(label, " "))
	if label == "" {
		return
	}
	category := InferCategory(label, defaultCategory)
	if category == models.CategoryPainting {
		m.painting = true
	}

	key := FindingKey(category, label)
	f, ok := m.byKey[key]
	if !ok {
		f = &models.Finding{
			ID:          key,
			Issue:       label,
			Description: strings.TrimSpace(description),
			Confidence:  confidence,
			Category:    category,
			Severity:    severity,
			PhotoIDs:    []string{},
		}
		m.byKey[key] = f
		m.order = append(m.order, key)
	}

	if confidence > f.Confidence {
		f.Confidence = confidence
	}
	if severityRank(severity) > severityRank(f.Severity) {
		f.Severity = severity
	}
	for _, id := range f.PhotoIDs {
		if id == photoID {
			return
		}
	}
	f.PhotoIDs = append(f.PhotoIDs, photoID)
}

// sorted returns findings by confidence descending, ties in first-seen order.
func (m *merger) sorted() []models.Finding {
	out := make([]models.Finding, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, *m.byKey[k])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func mentionsPainting(findings []models.Finding) bool {
	for _, f := range findings {
		if matchesAny(strings.ToLower(f.Issue+" "+f.Description), paintingKeywords) {
			return true
		}
	}
	return false
}

// suggestProblem prefers the top painting finding, then the top damage
// finding, then the top finding overall.
func suggestProblem(findings []models.Finding) string {
	for _, category := range []string{models.CategoryPainting, models.CategoryDamage} {
		for _, f := range findings {
			if f.Category == category {
				return f.Issue
			}
		}
	}
	if len(findings) > 0 {
		return findings[0].Issue
	}
	return ""
}

func severityRank(s string) int {
	switch s {
	case models.SeverityHigh:
		return 3
	case models.SeverityMedium:
		return 2
	case models.SeverityLow:
		return 1
	default:
		return 0
	}
}

// dedupFold removes case-insensitive duplicates and blanks, keeping the first
// spelling. max <= 0 means no cap.
func dedupFold(values []string, max int) []string {
	out := []string{}
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

func mean(values []float64, fallback float64) float64 {
	if len(values) == 0 {
		return fallback
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
