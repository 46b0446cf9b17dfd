package document

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountEpsilon is the default tolerance for amount comparisons: one unit of
// the minor currency.
var AmountEpsilon = decimal.NewFromFloat(0.01)

// ParseAmount parses an amount in Argentine notation: dots as thousands
// separators, comma as decimal marker. "2.917.310,00" parses to 2917310.00.
// A lone dot followed by exactly three trailing digits is treated as a
// thousands separator only when no comma is present; any other ambiguous
// shape is rejected.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = strings.TrimSpace(s[1:])
	}
	if s == "" {
		return decimal.Zero, fmt.Errorf("parse amount: empty input")
	}

	comma := strings.Count(s, ",")
	switch {
	case comma > 1:
		return decimal.Zero, fmt.Errorf("parse amount %q: multiple decimal commas", raw)
	case comma == 1:
		idx := strings.LastIndex(s, ",")
		intPart := strings.ReplaceAll(s[:idx], ".", "")
		fracPart := s[idx+1:]
		if fracPart == "" || len(fracPart) > 2 || !digitsOnlyRe.MatchString(fracPart) {
			return decimal.Zero, fmt.Errorf("parse amount %q: invalid fractional part", raw)
		}
		s = intPart + "." + fracPart
	default:
		// No comma: every dot is a thousands separator, and each group after
		// a dot must have exactly three digits or the form is ambiguous.
		if strings.Contains(s, ".") {
			groups := strings.Split(s, ".")
			for i, g := range groups {
				if i > 0 && len(g) != 3 {
					return decimal.Zero, fmt.Errorf("parse amount %q: ambiguous dot grouping", raw)
				}
			}
			s = strings.Join(groups, "")
		}
	}

	if !strings.Contains(s, ".") && !digitsOnlyRe.MatchString(s) {
		return decimal.Zero, fmt.Errorf("parse amount %q: non-numeric", raw)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// FormatAmount renders a decimal in Argentine notation with two fractional
// digits: 2917310 -> "2.917.310,00".
func FormatAmount(d decimal.Decimal) string {
	fixed := d.StringFixed(2)
	negative := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	parts := strings.SplitN(fixed, ".", 2)
	intPart, fracPart := parts[0], parts[1]

	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteString(".")
		}
		b.WriteString(intPart[i : i+3])
	}

	out := b.String() + "," + fracPart
	if negative {
		out = "-" + out
	}
	return out
}

// AmountsEqual compares two amounts under the epsilon tolerance.
func AmountsEqual(a, b decimal.Decimal) bool {
	return AmountsWithin(a, b, AmountEpsilon)
}

// AmountsWithin compares two amounts under an explicit absolute tolerance.
func AmountsWithin(a, b, eps decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(eps)
}

// AmountsWithinPercent reports whether b lies inside the ±pct band around a.
// Used for cross-currency comparisons after conversion.
func AmountsWithinPercent(a, b decimal.Decimal, pct float64) bool {
	if a.IsZero() {
		return b.IsZero()
	}
	band := a.Abs().Mul(decimal.NewFromFloat(pct / 100))
	return a.Sub(b).Abs().LessThanOrEqual(band)
}
