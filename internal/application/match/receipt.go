package match

import (
	"context"
	"log/slog"
	"sort"

	"adva/ms_conciliacion_core/internal/application/sheets"
	"adva/ms_conciliacion_core/internal/core/document"
)

// ReceiptCandidate is one salary receipt ranked against a payment.
type ReceiptCandidate struct {
	Receipt     sheets.ReceiptRef
	Confidence  document.MatchConfidence
	DateDiff    int
	Exact       bool
	IdentityHit bool
	IsUpgrade   bool
	Reasons     []string
}

// ReceiptMatcher ranks salary receipts against a sent payment. Salaries are
// always paid by the organization in pesos, so the matcher is same-currency
// and the only identity signal is the beneficiary (the employee).
type ReceiptMatcher struct {
	daysBefore int
	daysAfter  int
	log        *slog.Logger
}

// NewReceiptMatcher creates a receipt matcher.
func NewReceiptMatcher(daysBefore, daysAfter int, log *slog.Logger) *ReceiptMatcher {
	if daysBefore <= 0 {
		daysBefore = DefaultDaysBefore
	}
	if daysAfter <= 0 {
		daysAfter = DefaultDaysAfter
	}
	return &ReceiptMatcher{daysBefore: daysBefore, daysAfter: daysAfter, log: log}
}

// Rank filters and orders receipt candidates for one payment, best first.
func (m *ReceiptMatcher) Rank(_ context.Context, payment document.Payment, receipts []sheets.ReceiptRef) []ReceiptCandidate {
	if payment.Moneda != document.CurrencyARS {
		return nil
	}

	var out []ReceiptCandidate
	for _, rec := range receipts {
		cand, ok := m.evaluate(payment, rec)
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

func (m *ReceiptMatcher) evaluate(payment document.Payment, rec sheets.ReceiptRef) (ReceiptCandidate, bool) {
	if !document.AmountsEqual(rec.TotalNeto, payment.ImportePagado) {
		return ReceiptCandidate{}, false
	}

	diff := document.DaysBetween(rec.FechaPago, payment.FechaPago)
	inHigh := diff >= highWindowMin && diff <= highWindowMax
	inMedium := diff > medWindowMin && diff < medWindowMax
	inLow := diff > -m.daysBefore && diff < m.daysAfter
	if !inLow {
		return ReceiptCandidate{}, false
	}

	identity := m.identityHit(payment, rec.Receipt)

	var conf document.MatchConfidence
	switch {
	case inHigh && identity:
		conf = document.ConfidenceHigh
	case inHigh || inMedium:
		conf = document.ConfidenceMedium
	default:
		conf = document.ConfidenceLow
	}

	cand := ReceiptCandidate{
		Receipt:     rec,
		Confidence:  conf,
		DateDiff:    abs(diff),
		Exact:       true,
		IdentityHit: identity,
		IsUpgrade:   rec.MatchedPagoFileID != "" && rec.MatchedPagoFileID != payment.FileID,
	}
	if identity {
		cand.Reasons = append(cand.Reasons, "Identity match")
	}
	return cand, true
}

// identityHit checks the payment's beneficiary against the employee. The
// payer is never a signal here: the organization pays every salary.
func (m *ReceiptMatcher) identityHit(payment document.Payment, rec document.Receipt) bool {
	if payment.CuitBeneficiario != "" && document.IdentifiersMatch(payment.CuitBeneficiario, rec.CuilEmpleado) {
		return true
	}
	return nameContains(payment.NombreBeneficiario, rec.NombreEmpleado)
}
