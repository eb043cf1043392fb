package scraper

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/pauljones0/hotukdeals-notifier/internal/util"
)

// titlePricePatterns are tried in order against listing titles.
var titlePricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`[£$€][\d,]+(?:\.\d{2})?`),
	regexp.MustCompile(`(?i)\b\d+(?:\.\d{2})?\s*(?:£|GBP|pounds?)\b`),
}

// priceFromTitle recovers a price phrase from listing title text.
func priceFromTitle(title string) string {
	for _, re := range titlePricePatterns {
		if m := re.FindString(title); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

func formatPounds(v float64) string {
	return util.FormatAmount(util.DefaultCurrencySymbol, v)
}

// savingsFromAmounts returns the saving and its rounded percentage of the
// previous price. ok is false unless previous exceeds current.
func savingsFromAmounts(symbol string, current, previous float64) (amount string, pct int, ok bool) {
	if previous <= current || previous <= 0 {
		return "", 0, false
	}
	diff := previous - current
	if symbol == "" {
		symbol = util.DefaultCurrencySymbol
	}
	return fmt.Sprintf("%s%.2f", symbol, diff), int(math.Round(diff / previous * 100)), true
}

// ComputeSavings derives the saving between two currency strings such as
// "£40" and "£50". ok is false when either is unparsable or there is no saving.
func ComputeSavings(price, original string) (amount string, pct int, ok bool) {
	current, symbol, okCurrent := util.ParseAmount(price)
	previous, _, okPrevious := util.ParseAmount(original)
	if !okCurrent || !okPrevious {
		return "", 0, false
	}
	return savingsFromAmounts(symbol, current, previous)
}
