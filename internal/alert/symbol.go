package alert

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"stockalert/internal/feed"
)

var symbolRe = regexp.MustCompile(`^[A-Z0-9&._-]{1,20}$`)

// NormalizeSymbol upper-cases and validates a ticker.
func NormalizeSymbol(s string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(s))
	if !symbolRe.MatchString(sym) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, s)
	}
	return sym, nil
}

func parseComparison(s string) (string, error) {
	switch strings.TrimSpace(s) {
	case ">", "gt", "above":
		return ">", nil
	case "<", "lt", "below":
		return "<", nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidComparison, s)
}

func parseKind(s string) (feed.Kind, error) {
	switch k := feed.Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case feed.KindPrice, feed.KindIndicator:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// ParseThreshold accepts a plain decimal number.
func ParseThreshold(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidThreshold, s)
	}
	return d, nil
}

// conditionMet evaluates value <cmp> threshold.
func conditionMet(value decimal.Decimal, cmp string, threshold decimal.Decimal) bool {
	switch cmp {
	case ">":
		return value.GreaterThan(threshold)
	case "<":
		return value.LessThan(threshold)
	}
	return false
}
