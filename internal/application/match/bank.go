package match

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"adva/ms_conciliacion_core/internal/application/sheets"
	"adva/ms_conciliacion_core/internal/core/document"
	"adva/ms_conciliacion_core/internal/core/rates"

	"github.com/shopspring/decimal"
)

// MatchType labels the resolution of one bank movement.
type MatchType string

const (
	MatchBankFee       MatchType = "bank_fee"
	MatchCardPayment   MatchType = "credit_card_payment"
	MatchPagoFactura   MatchType = "pago_factura"
	MatchDirectFactura MatchType = "direct_factura"
	MatchRecibo        MatchType = "recibo"
	MatchPagoOnly      MatchType = "pago_only"
	MatchNone          MatchType = "no_match"
)

// Date windows for bank matching, in days.
const (
	paymentWindow     = 15 // movement vs payment date, either direction
	invoiceWindowPre  = 5  // invoice may post-date the movement this much
	invoiceWindowPost = 30 // invoice may pre-date the movement this much
	retencionWindow   = 90 // withholding issued within this many days after the invoice
)

// BankMatch is the resolution of one movement against the ledger pool.
type BankMatch struct {
	Type            MatchType
	Description     string
	MatchedFileID   string
	ExtractedCuit   string
	Confidence      document.MatchConfidence
	Tier            int
	Reasons         []string
	UsedRetenciones []document.Withholding
}

// Pool is the ledger slice a movement is matched against. Debits use the
// egresos side, credits the ingresos side.
type Pool struct {
	InvoicesReceived []sheets.InvoiceRef
	InvoicesIssued   []sheets.InvoiceRef
	PaymentsSent     []sheets.PaymentRef
	PaymentsReceived []sheets.PaymentRef
	Receipts         []sheets.ReceiptRef
	Withholdings     []document.Withholding
}

// bankCandidate is one pool document that survived filtering.
type bankCandidate struct {
	tier          int
	dateDiff      int
	exact         bool
	crossCurrency bool
	rate          decimal.Decimal
	keywordScore  int

	matchType       MatchType
	fileID          string
	invoice         *document.Invoice
	payment         *document.Payment
	receipt         *document.Receipt
	usedRetenciones []document.Withholding
}

// BankMatcher resolves bank movements against the ledgers using the tiered
// identity-gated ranking.
type BankMatcher struct {
	rates     rates.Provider
	tolerance float64
	// keywordDirectDebitOnly restricts keyword-based invoice matching to
	// movements that look like direct debits, reproducing the older matcher
	// behavior.
	keywordDirectDebitOnly bool
	log                    *slog.Logger
}

// NewBankMatcher creates a bank matcher.
func NewBankMatcher(provider rates.Provider, tolerancePct float64, keywordDirectDebitOnly bool, log *slog.Logger) *BankMatcher {
	if tolerancePct <= 0 {
		tolerancePct = DefaultTolerancePercent
	}
	return &BankMatcher{
		rates:                  provider,
		tolerance:              tolerancePct,
		keywordDirectDebitOnly: keywordDirectDebitOnly,
		log:                    log,
	}
}

// Match resolves one movement. moneda is the currency of the statement the
// movement belongs to.
func (m *BankMatcher) Match(ctx context.Context, mov document.BankMovement, moneda document.Currency, pool Pool) BankMatch {
	// Phase 0: categories the bank itself names.
	if IsBankFee(mov.Concepto) {
		return BankMatch{Type: MatchBankFee, Description: "Gastos bancarios", Confidence: document.ConfidenceHigh}
	}
	if mov.IsDebit() && IsCardPayment(mov.Concepto) {
		return BankMatch{Type: MatchCardPayment, Description: "Pago de tarjeta de credito", Confidence: document.ConfidenceHigh}
	}

	extractedCuit := document.ExtractCUIT(mov.Concepto)
	extractedRef := ExtractPaymentRef(mov.Concepto)
	tokens := Tokenize(mov.Concepto)

	var cands []bankCandidate
	if mov.IsDebit() {
		cands = m.debitCandidates(ctx, mov, moneda, pool, extractedCuit, extractedRef, tokens)
	} else {
		cands = m.creditCandidates(ctx, mov, moneda, pool, extractedCuit, extractedRef, tokens)
	}

	if len(cands) == 0 {
		return BankMatch{Type: MatchNone, ExtractedCuit: extractedCuit}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.tier != b.tier {
			return a.tier < b.tier
		}
		if a.dateDiff != b.dateDiff {
			return a.dateDiff < b.dateDiff
		}
		if a.exact != b.exact {
			return a.exact
		}
		// No churn: an existing match wins all remaining ties.
		return a.fileID == mov.MatchedFileID && b.fileID != mov.MatchedFileID
	})

	best := cands[0]
	return m.render(mov, best, extractedCuit)
}

// hardFilterPasses applies the no-fallthrough identity gate: an extracted
// CUIT restricts the pool to that CUIT, else an extracted reference restricts
// it to payments carrying it.
func hardFilterPasses(extractedCuit, extractedRef, docCuit, paymentRef string) bool {
	if extractedCuit != "" {
		return docCuit != "" && document.IdentifiersMatch(extractedCuit, docCuit)
	}
	if extractedRef != "" {
		return paymentRef != "" && paymentRef == extractedRef
	}
	return true
}

func (m *BankMatcher) debitCandidates(ctx context.Context, mov document.BankMovement, moneda document.Currency, pool Pool, extractedCuit, extractedRef string, tokens []string) []bankCandidate {
	amount := mov.Amount()
	var out []bankCandidate

	for i := range pool.PaymentsSent {
		p := &pool.PaymentsSent[i].Payment
		if c, ok := m.paymentCandidate(ctx, mov, moneda, amount, p, pool.InvoicesReceived, extractedCuit, extractedRef, tokens); ok {
			out = append(out, c)
		}
	}
	for i := range pool.InvoicesReceived {
		inv := &pool.InvoicesReceived[i].Invoice
		if c, ok := m.invoiceCandidate(ctx, mov, moneda, amount, inv, nil, extractedCuit, extractedRef, tokens); ok {
			out = append(out, c)
		}
	}
	for i := range pool.Receipts {
		rec := &pool.Receipts[i].Receipt
		if c, ok := m.receiptCandidate(mov, moneda, amount, rec, extractedCuit, extractedRef, tokens); ok {
			out = append(out, c)
		}
	}
	return out
}

func (m *BankMatcher) creditCandidates(ctx context.Context, mov document.BankMovement, moneda document.Currency, pool Pool, extractedCuit, extractedRef string, tokens []string) []bankCandidate {
	amount := mov.Amount()
	var out []bankCandidate

	for i := range pool.PaymentsReceived {
		p := &pool.PaymentsReceived[i].Payment
		if c, ok := m.paymentCandidate(ctx, mov, moneda, amount, p, pool.InvoicesIssued, extractedCuit, extractedRef, tokens); ok {
			out = append(out, c)
		}
	}
	for i := range pool.InvoicesIssued {
		inv := &pool.InvoicesIssued[i].Invoice
		if c, ok := m.invoiceCandidate(ctx, mov, moneda, amount, inv, pool.Withholdings, extractedCuit, extractedRef, tokens); ok {
			out = append(out, c)
		}
	}
	return out
}

// paymentCandidate evaluates one ledger payment. invoices is the pool side
// the payment's matched invoice may live in, for the tier-1 combo.
func (m *BankMatcher) paymentCandidate(ctx context.Context, mov document.BankMovement, moneda document.Currency, amount decimal.Decimal, p *document.Payment, invoices []sheets.InvoiceRef, extractedCuit, extractedRef string, tokens []string) (bankCandidate, bool) {
	diff := document.AbsDays(p.FechaPago, mov.Fecha)
	if diff > paymentWindow {
		return bankCandidate{}, false
	}

	cuit, name := paymentCounterparty(*p)
	if !hardFilterPasses(extractedCuit, extractedRef, cuit, p.Referencia) {
		return bankCandidate{}, false
	}

	cmp := compareAmounts(ctx, m.rates, p.ImportePagado, p.Moneda, p.FechaPago, amount, moneda, m.tolerance)
	if !cmp.ok {
		return bankCandidate{}, false
	}

	cand := bankCandidate{
		dateDiff:      diff,
		exact:         cmp.exact,
		crossCurrency: cmp.crossCurrency,
		rate:          cmp.rate,
		fileID:        p.FileID,
		payment:       p,
		matchType:     MatchPagoOnly,
	}

	// Tier 1: the payment already links to an invoice present in the pool.
	if p.MatchedFacturaFileID != "" {
		for i := range invoices {
			if invoices[i].FileID == p.MatchedFacturaFileID {
				cand.tier = 1
				cand.matchType = MatchPagoFactura
				cand.invoice = &invoices[i].Invoice
				return cand, true
			}
		}
	}

	switch {
	case extractedCuit != "" && cuit != "" && document.IdentifiersMatch(extractedCuit, cuit):
		cand.tier = 2
	case extractedRef != "" && p.Referencia == extractedRef:
		cand.tier = 3
	default:
		if score := KeywordScore(tokens, name, p.Concepto); score >= MinKeywordScore {
			cand.tier = 4
			cand.keywordScore = score
		} else {
			cand.tier = 5
		}
	}
	return cand, true
}

func (m *BankMatcher) invoiceCandidate(ctx context.Context, mov document.BankMovement, moneda document.Currency, amount decimal.Decimal, inv *document.Invoice, withholdings []document.Withholding, extractedCuit, extractedRef string, tokens []string) (bankCandidate, bool) {
	// The invoice may post-date the movement a few days (posting lag) or
	// pre-date it up to a month.
	diff := document.DaysBetween(inv.FechaEmision, mov.Fecha)
	if diff < -invoiceWindowPre || diff > invoiceWindowPost {
		return bankCandidate{}, false
	}

	cuit, name := invoiceCounterparty(*inv)
	if !hardFilterPasses(extractedCuit, extractedRef, cuit, "") {
		return bankCandidate{}, false
	}

	cand := bankCandidate{
		dateDiff:  abs(diff),
		fileID:    inv.FileID,
		invoice:   inv,
		matchType: MatchDirectFactura,
	}

	cmp := compareAmounts(ctx, m.rates, inv.ImporteTotal, inv.Moneda, inv.FechaEmision, amount, moneda, m.tolerance)
	switch {
	case cmp.ok:
		cand.exact = cmp.exact
		cand.crossCurrency = cmp.crossCurrency
		cand.rate = cmp.rate
	case inv.Emitida() && !mov.IsDebit():
		// The client may have withheld tax: the bank credit plus the
		// withholdings should reach the invoice total.
		used := relatedWithholdings(*inv, withholdings)
		if len(used) == 0 {
			return bankCandidate{}, false
		}
		sum := amount
		for _, w := range used {
			sum = sum.Add(w.MontoRetencion)
		}
		if !document.AmountsEqual(sum, inv.ImporteTotal) {
			return bankCandidate{}, false
		}
		cand.exact = true
		cand.usedRetenciones = used
	default:
		return bankCandidate{}, false
	}

	switch {
	case extractedCuit != "" && cuit != "" && document.IdentifiersMatch(extractedCuit, cuit):
		cand.tier = 2
	case len(cand.usedRetenciones) > 0:
		// Withholdings agree on agent CUIT, an implicit identity signal.
		cand.tier = 2
	default:
		if m.keywordDirectDebitOnly && !looksLikeDirectDebit(mov.Concepto) {
			cand.tier = 5
		} else if score := KeywordScore(tokens, name, inv.Concepto); score >= MinKeywordScore {
			cand.tier = 4
			cand.keywordScore = score
		} else {
			cand.tier = 5
		}
	}
	return cand, true
}

func (m *BankMatcher) receiptCandidate(mov document.BankMovement, moneda document.Currency, amount decimal.Decimal, rec *document.Receipt, extractedCuit, extractedRef string, tokens []string) (bankCandidate, bool) {
	if moneda != document.CurrencyARS {
		return bankCandidate{}, false
	}
	diff := document.DaysBetween(rec.FechaPago, mov.Fecha)
	if diff < -invoiceWindowPre || diff > invoiceWindowPost {
		return bankCandidate{}, false
	}
	if !hardFilterPasses(extractedCuit, extractedRef, rec.CuilEmpleado, "") {
		return bankCandidate{}, false
	}
	if !document.AmountsEqual(rec.TotalNeto, amount) {
		return bankCandidate{}, false
	}

	cand := bankCandidate{
		dateDiff:  abs(diff),
		exact:     true,
		fileID:    rec.FileID,
		receipt:   rec,
		matchType: MatchRecibo,
	}
	switch {
	case extractedCuit != "" && document.IdentifiersMatch(extractedCuit, rec.CuilEmpleado):
		cand.tier = 2
	default:
		if score := KeywordScore(tokens, rec.NombreEmpleado, ""); score >= MinKeywordScore {
			cand.tier = 4
			cand.keywordScore = score
		} else {
			cand.tier = 5
		}
	}
	return cand, true
}

// looksLikeDirectDebit recognizes the conceptos banks stamp on automatic
// debits.
func looksLikeDirectDebit(concepto string) bool {
	c := strings.ToUpper(StripBankPrefix(concepto))
	return strings.Contains(c, "DEBITO") || strings.Contains(c, "DEBIN")
}

// paymentCounterparty returns the CUIT and name of the payment's non-ADVA
// side.
func paymentCounterparty(p document.Payment) (cuit, name string) {
	if p.Enviado() {
		return p.CuitBeneficiario, p.NombreBeneficiario
	}
	return p.CuitPagador, p.NombrePagador
}

// render turns the winning candidate into the final match with confidence,
// description and reasons.
func (m *BankMatcher) render(mov document.BankMovement, best bankCandidate, extractedCuit string) BankMatch {
	out := BankMatch{
		Type:            best.matchType,
		MatchedFileID:   best.fileID,
		ExtractedCuit:   extractedCuit,
		Tier:            best.tier,
		UsedRetenciones: best.usedRetenciones,
	}

	switch best.tier {
	case 1, 2, 3:
		out.Confidence = document.ConfidenceHigh
		if best.crossCurrency {
			out.Confidence = document.ConfidenceMedium
		}
	case 4:
		out.Confidence = document.ConfidenceMedium
		if best.crossCurrency {
			out.Confidence = document.ConfidenceLow
		}
	default:
		out.Confidence = document.ConfidenceLow
	}

	switch best.tier {
	case 1:
		out.Reasons = append(out.Reasons, "Pago-factura combo")
	case 2:
		out.Reasons = append(out.Reasons, "CUIT match")
	case 3:
		out.Reasons = append(out.Reasons, "Payment reference match")
	case 4:
		out.Reasons = append(out.Reasons, fmt.Sprintf("Keyword match (score: %d)", best.keywordScore))
	case 5:
		out.Reasons = append(out.Reasons, "Amount and date only")
	}
	if best.crossCurrency {
		out.Reasons = append(out.Reasons, formatRate(best.rate))
	}

	out.Description = describe(mov, best)
	return out
}

func describe(mov document.BankMovement, best bankCandidate) string {
	switch best.matchType {
	case MatchPagoFactura, MatchDirectFactura:
		inv := best.invoice
		if mov.IsDebit() {
			return fmt.Sprintf("Pago Factura a %s - %s", inv.RazonSocialEmisor, inv.Concepto)
		}
		desc := fmt.Sprintf("Cobro Factura de %s - %s", inv.RazonSocialReceptor, inv.Concepto)
		if len(best.usedRetenciones) > 0 {
			desc += " (con retencion)"
		}
		return desc
	case MatchRecibo:
		rec := best.receipt
		return fmt.Sprintf("Sueldo %s - %s", rec.PeriodoAbonado, rec.NombreEmpleado)
	case MatchPagoOnly:
		p := best.payment
		cuit, name := paymentCounterparty(*p)
		if mov.IsDebit() {
			return fmt.Sprintf("REVISAR! Pago a %s %s (%s)", name, cuit, p.Concepto)
		}
		return fmt.Sprintf("REVISAR! Cobro de %s", name)
	}
	return ""
}

// relatedWithholdings selects the retenciones attributable to an issued
// invoice: same withholding agent as the invoice's receptor, issued within
// the window after the invoice.
func relatedWithholdings(inv document.Invoice, withholdings []document.Withholding) []document.Withholding {
	var out []document.Withholding
	for _, w := range withholdings {
		if !document.IdentifiersMatch(w.CuitAgenteRetencion, inv.CuitReceptor) {
			continue
		}
		d := document.DaysBetween(inv.FechaEmision, w.FechaEmision)
		if d < 0 || d > retencionWindow {
			continue
		}
		out = append(out, w)
	}
	return out
}
