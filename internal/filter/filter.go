// Package filter decides whether a deal matches a search-term configuration's
// include and exclude keywords.
package filter

import (
	"strings"

	"github.com/pauljones0/hotukdeals-notifier/internal/models"
)

// Accepts reports whether deal passes cfg's keyword rules. Title and merchant
// form one haystack; any exclude keyword rejects, and every include keyword
// must be present. Matching is plain substring containment, lower-cased
// unless cfg.CaseSensitive is set.
func Accepts(deal models.Deal, cfg models.SearchTermConfig) bool {
	haystack := deal.Title + " " + deal.Merchant
	if !cfg.CaseSensitive {
		haystack = strings.ToLower(haystack)
	}

	for _, kw := range cfg.ExcludeKeywords {
		if kw, ok := normalize(kw, cfg.CaseSensitive); ok && strings.Contains(haystack, kw) {
			return false
		}
	}

	for _, kw := range cfg.IncludeKeywords {
		if kw, ok := normalize(kw, cfg.CaseSensitive); ok && !strings.Contains(haystack, kw) {
			return false
		}
	}
	return true
}

// normalize folds kw's case unless matching is case sensitive. Blank keywords
// are ignored; other keywords keep their spacing.
func normalize(kw string, caseSensitive bool) (string, bool) {
	if strings.TrimSpace(kw) == "" {
		return "", false
	}
	if !caseSensitive {
		kw = strings.ToLower(kw)
	}
	return kw, true
}
