package util

import (
	"regexp"
	"strconv"
	"strings"
)

func SafeAtoi(s string) int {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return i
}

var nonNumericRegex = regexp.MustCompile(`[^\d]`)

func CleanNumericString(s string) string {
	return nonNumericRegex.ReplaceAllString(s, "")
}

const DefaultCurrencySymbol = "£"

var (
	symbolAmountRegex = regexp.MustCompile(`([£$€])\s*(\d[\d,]*(?:\.\d+)?)`)
	amountSuffixRegex = regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d+)?)\s*(?:£|GBP|pounds?)\b`)
)

// ParseAmount extracts the first currency amount from s, e.g. "£1,299.99" or
// "40 GBP". The symbol defaults to £ when the amount is written as a suffix.
func ParseAmount(s string) (amount float64, symbol string, ok bool) {
	if m := symbolAmountRegex.FindStringSubmatch(s); m != nil {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
		if err == nil {
			return v, m[1], true
		}
	}
	if m := amountSuffixRegex.FindStringSubmatch(s); m != nil {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err == nil {
			return v, DefaultCurrencySymbol, true
		}
	}
	return 0, "", false
}

// FormatAmount renders v with the shortest exact representation, e.g. £40 or £39.99.
func FormatAmount(symbol string, v float64) string {
	if symbol == "" {
		symbol = DefaultCurrencySymbol
	}
	return symbol + strconv.FormatFloat(v, 'f', -1, 64)
}
