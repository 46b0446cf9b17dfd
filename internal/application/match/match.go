// Package match ranks ledger documents against payments and bank movements.
// Three matchers live here: invoice against payment, salary receipt against
// payment, and the tiered bank-movement matcher. All of them share the same
// amount comparison rules, including the cross-currency band.
package match

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"adva/ms_conciliacion_core/internal/core/document"
	"adva/ms_conciliacion_core/internal/core/rates"

	"github.com/shopspring/decimal"
)

// Defaults for the LOW matching window and the cross-currency band.
const (
	DefaultDaysBefore       = 10
	DefaultDaysAfter        = 60
	DefaultTolerancePercent = 5.0
)

// amountComparison is the outcome of comparing two amounts, possibly across
// currencies.
type amountComparison struct {
	ok            bool
	exact         bool
	crossCurrency bool
	rate          decimal.Decimal
}

// compareAmounts checks a document amount against a payment amount. Same
// currency requires equality within epsilon. A USD document against an ARS
// payment converts at the venta rate of the document's date and accepts a
// ±pct band; an unavailable rate rejects the pair.
func compareAmounts(ctx context.Context, provider rates.Provider, docAmount decimal.Decimal, docCurrency document.Currency, docDate time.Time, paid decimal.Decimal, paidCurrency document.Currency, pct float64) amountComparison {
	if docCurrency == paidCurrency {
		if document.AmountsEqual(docAmount, paid) {
			return amountComparison{ok: true, exact: true}
		}
		return amountComparison{}
	}

	if docCurrency != document.CurrencyUSD || paidCurrency != document.CurrencyARS || provider == nil {
		return amountComparison{}
	}
	quote, err := provider.QuoteFor(ctx, docDate)
	if err != nil {
		return amountComparison{}
	}
	converted := docAmount.Mul(quote.Venta)
	if !document.AmountsWithinPercent(converted, paid, pct) {
		return amountComparison{}
	}
	return amountComparison{ok: true, crossCurrency: true, rate: quote.Venta}
}

// nameContains reports whether either name contains the other, ignoring case
// and accents. Empty names never match.
func nameContains(a, b string) bool {
	na := strings.ToUpper(document.StripAccents(strings.TrimSpace(a)))
	nb := strings.ToUpper(document.StripAccents(strings.TrimSpace(b)))
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

// ErrNoCandidates is returned by rankers when nothing survives filtering.
var ErrNoCandidates = errors.New("no candidates")

func formatRate(rate decimal.Decimal) string {
	return fmt.Sprintf("Cross-currency match (USD→ARS), rate: %s", rate.String())
}
