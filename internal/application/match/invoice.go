package match

import (
	"context"
	"log/slog"
	"sort"

	"adva/ms_conciliacion_core/internal/application/sheets"
	"adva/ms_conciliacion_core/internal/core/document"
	"adva/ms_conciliacion_core/internal/core/rates"
)

// Date windows relative to the invoice date, in days. The payment lands
// shortly after the invoice in the normal case; small negative offsets cover
// advance payments.
const (
	highWindowMin = 0
	highWindowMax = 15
	medWindowMin  = -3
	medWindowMax  = 30
)

// InvoiceCandidate is one invoice ranked against a payment.
type InvoiceCandidate struct {
	Invoice       sheets.InvoiceRef
	Confidence    document.MatchConfidence
	DateDiff      int
	Exact         bool
	CrossCurrency bool
	IdentityHit   bool
	IsUpgrade     bool
	Reasons       []string
}

// InvoiceMatcher ranks invoices against a payment.
type InvoiceMatcher struct {
	rates      rates.Provider
	daysBefore int
	daysAfter  int
	tolerance  float64
	log        *slog.Logger
}

// NewInvoiceMatcher creates an invoice matcher. Zero window bounds fall back
// to the defaults.
func NewInvoiceMatcher(provider rates.Provider, daysBefore, daysAfter int, tolerancePct float64, log *slog.Logger) *InvoiceMatcher {
	if daysBefore <= 0 {
		daysBefore = DefaultDaysBefore
	}
	if daysAfter <= 0 {
		daysAfter = DefaultDaysAfter
	}
	if tolerancePct <= 0 {
		tolerancePct = DefaultTolerancePercent
	}
	return &InvoiceMatcher{
		rates:      provider,
		daysBefore: daysBefore,
		daysAfter:  daysAfter,
		tolerance:  tolerancePct,
		log:        log,
	}
}

// Rank filters and orders invoice candidates for one payment, best first.
// Already-matched invoices stay in the result flagged as upgrades; the
// reconciler decides whether displacing their current match is worth it.
func (m *InvoiceMatcher) Rank(ctx context.Context, payment document.Payment, invoices []sheets.InvoiceRef) []InvoiceCandidate {
	var out []InvoiceCandidate
	for _, inv := range invoices {
		cand, ok := m.evaluate(ctx, payment, inv)
		if !ok {
			continue
		}
		out = append(out, cand)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Confidence.Rank() != b.Confidence.Rank() {
			return a.Confidence.Rank() > b.Confidence.Rank()
		}
		if a.DateDiff != b.DateDiff {
			return a.DateDiff < b.DateDiff
		}
		return a.Exact && !b.Exact
	})
	return out
}

func (m *InvoiceMatcher) evaluate(ctx context.Context, payment document.Payment, inv sheets.InvoiceRef) (InvoiceCandidate, bool) {
	cmp := compareAmounts(ctx, m.rates, inv.ImporteTotal, inv.Moneda, inv.FechaEmision, payment.ImportePagado, payment.Moneda, m.tolerance)
	if !cmp.ok {
		return InvoiceCandidate{}, false
	}

	// Days from invoice to payment; positive when the payment came later.
	diff := document.DaysBetween(inv.FechaEmision, payment.FechaPago)
	inHigh := diff >= highWindowMin && diff <= highWindowMax
	inMedium := diff > medWindowMin && diff < medWindowMax
	inLow := diff > -m.daysBefore && diff < m.daysAfter
	if !inLow {
		return InvoiceCandidate{}, false
	}

	identity := m.identityHit(payment, inv.Invoice)

	var conf document.MatchConfidence
	switch {
	case inHigh && identity:
		conf = document.ConfidenceHigh
	case inHigh || inMedium:
		conf = document.ConfidenceMedium
	default:
		conf = document.ConfidenceLow
	}

	cand := InvoiceCandidate{
		Invoice:       inv,
		DateDiff:      abs(diff),
		Exact:         cmp.exact,
		CrossCurrency: cmp.crossCurrency,
		IdentityHit:   identity,
		IsUpgrade:     inv.MatchedPagoFileID != "" && inv.MatchedPagoFileID != payment.FileID,
	}

	if cmp.crossCurrency {
		if identity {
			conf = document.ConfidenceMedium
		} else {
			conf = document.ConfidenceLow
		}
		cand.Reasons = append(cand.Reasons, formatRate(cmp.rate))
	}
	cand.Confidence = conf
	if identity {
		cand.Reasons = append(cand.Reasons, "Identity match")
	}
	return cand, true
}

// identityHit checks the payment's counterparty against the invoice's
// counterparty. The beneficiary identifies the payee, so it outranks the
// payer when both are present.
func (m *InvoiceMatcher) identityHit(payment document.Payment, inv document.Invoice) bool {
	invCuit, invName := invoiceCounterparty(inv)

	payCuit := payment.CuitBeneficiario
	if payCuit == "" || payCuit == document.AdvaCUIT {
		payCuit = payment.CuitPagador
	}
	if payCuit != "" && payCuit != document.AdvaCUIT && document.IdentifiersMatch(payCuit, invCuit) {
		return true
	}

	if nameContains(payment.NombreBeneficiario, invName) {
		return true
	}
	return nameContains(payment.NombrePagador, invName)
}

// invoiceCounterparty returns the CUIT and name of the invoice's non-ADVA
// side.
func invoiceCounterparty(inv document.Invoice) (cuit, name string) {
	if inv.Emitida() {
		return inv.CuitReceptor, inv.RazonSocialReceptor
	}
	return inv.CuitEmisor, inv.RazonSocialEmisor
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
