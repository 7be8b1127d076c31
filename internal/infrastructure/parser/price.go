package parser

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

var priceExpr = regexp.MustCompile(`-?\d(?:[\d.,\s]*\d)?`)

// ParsePrice turns a displayed price such as "1.299,99 €" or "€12.50" into a
// decimal. Comma-decimal and dot-decimal notations are both accepted; a lone
// separator followed by exactly three digits is read as a thousands mark.
// The second result is false when no positive amount can be read.
func ParsePrice(raw string) (decimal.Decimal, bool) {
	text := norm.NFKC.String(raw)

	match := priceExpr.FindString(text)
	if match == "" || strings.HasPrefix(match, "-") {
		return decimal.Decimal{}, false
	}

	digits := strings.Join(strings.Fields(match), "")
	digits = normalizeSeparators(digits)

	value, err := decimal.NewFromString(digits)
	if err != nil || !value.IsPositive() {
		return decimal.Decimal{}, false
	}
	return value, true
}

func normalizeSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		return singleSeparator(s, ",")
	case lastDot >= 0:
		return singleSeparator(s, ".")
	default:
		return s
	}
}

func singleSeparator(s, sep string) string {
	if strings.Count(s, sep) > 1 {
		return strings.ReplaceAll(s, sep, "")
	}
	idx := strings.Index(s, sep)
	if len(s)-idx-1 == 3 {
		return strings.Replace(s, sep, "", 1)
	}
	return strings.Replace(s, sep, ".", 1)
}
