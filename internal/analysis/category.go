package analysis

import (
	"strings"

	"github.com/kiranshivaraju/sitescope/pkg/models"
)

var paintingKeywords = []string{"paint", "peel", "fad"}

// categoryRule maps any of its keywords, matched as substrings of the
// lowercased text, to a category.
type categoryRule struct {
	keywords []string
	category string
}

// categoryRules are evaluated in order; the first match wins. "outdated"
// also reads as a repair, but upgrade is what it resolves to here.
var categoryRules = []categoryRule{
	{paintingKeywords, models.CategoryPainting},
	{[]string{"plumb", "pipe", "leak"}, models.CategoryPlumbing},
	{[]string{"electric", "wire", "outlet"}, models.CategoryElectrical},
	{[]string{"upgrade", "dated", "outdated"}, models.CategoryUpgrade},
}

// InferCategory returns the category of the first rule whose keywords appear
// in text, or defaultCategory when none does.
func InferCategory(text, defaultCategory string) string {
	lower := strings.ToLower(text)
	for _, r := range categoryRules {
		if matchesAny(lower, r.keywords) {
			return r.category
		}
	}
	return defaultCategory
}

func matchesAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
