// Package reconcile runs the cross-ledger matching passes: payments against
// invoices, payments against salary receipts, and bank movements against the
// whole pool. Links are written back symmetrically; a better late-arriving
// candidate may displace an existing link, re-matching the freed document.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"adva/ms_conciliacion_core/internal/application/match"
	"adva/ms_conciliacion_core/internal/application/sheets"
	"adva/ms_conciliacion_core/internal/core/document"
	"adva/ms_conciliacion_core/internal/core/ledger"
	"adva/ms_conciliacion_core/internal/core/rates"
)

// Displacement cascades are bounded: each freed payment re-matches at most
// this deep, and a whole cascade never runs past the timeout.
const (
	DefaultMaxCascadeDepth = 10
	DefaultCascadeTimeout  = 30 * time.Second
)

// Config tunes the matching windows, tolerances and cascade bounds. Zero
// cascade bounds fall back to the defaults.
type Config struct {
	DaysBefore             int
	DaysAfter              int
	TolerancePercent       float64
	KeywordDirectDebitOnly bool
	MaxCascadeDepth        int
	CascadeTimeout         time.Duration
}

// Summary reports what one reconciliation run changed.
type Summary struct {
	PaymentsMatched  int
	ReceiptsMatched  int
	MovementsMatched int
	Displacements    int
	SkippedRows      int
	Duration         time.Duration
}

// Orchestrator drives the reconciliation passes over the ledgers.
type Orchestrator struct {
	ledgers        *sheets.Manager
	invoices       *match.InvoiceMatcher
	receipts       *match.ReceiptMatcher
	bank           *match.BankMatcher
	maxDepth       int
	cascadeTimeout time.Duration
	log            *slog.Logger
}

// New creates an orchestrator over the ledger manager.
func New(ledgers *sheets.Manager, provider rates.Provider, cfg Config, log *slog.Logger) *Orchestrator {
	maxDepth := cfg.MaxCascadeDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxCascadeDepth
	}
	cascadeTimeout := cfg.CascadeTimeout
	if cascadeTimeout <= 0 {
		cascadeTimeout = DefaultCascadeTimeout
	}
	return &Orchestrator{
		ledgers:        ledgers,
		invoices:       match.NewInvoiceMatcher(provider, cfg.DaysBefore, cfg.DaysAfter, cfg.TolerancePercent, log),
		receipts:       match.NewReceiptMatcher(cfg.DaysBefore, cfg.DaysAfter, log),
		bank:           match.NewBankMatcher(provider, cfg.TolerancePercent, cfg.KeywordDirectDebitOnly, log),
		maxDepth:       maxDepth,
		cascadeTimeout: cascadeTimeout,
		log:            log,
	}
}

// Run executes the three passes and returns what changed.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	started := time.Now()
	var sum Summary

	invReceived, err := o.ledgers.Invoices(ctx, ledger.SheetFacturasRecibidas)
	if err != nil {
		return sum, err
	}
	invIssued, err := o.ledgers.Invoices(ctx, ledger.SheetFacturasEmitidas)
	if err != nil {
		return sum, err
	}
	paySent, err := o.ledgers.Payments(ctx, ledger.SheetPagosEnviados)
	if err != nil {
		return sum, err
	}
	payReceived, err := o.ledgers.Payments(ctx, ledger.SheetPagosRecibidos)
	if err != nil {
		return sum, err
	}
	receipts, err := o.ledgers.Receipts(ctx)
	if err != nil {
		return sum, err
	}
	withholdings, err := o.ledgers.Withholdings(ctx)
	if err != nil {
		return sum, err
	}

	// Sent payments settle received invoices; received payments settle issued
	// invoices.
	if err := o.invoicePass(ctx, paySent, invReceived, &sum); err != nil {
		return sum, err
	}
	if err := o.invoicePass(ctx, payReceived, invIssued, &sum); err != nil {
		return sum, err
	}
	if err := o.receiptPass(ctx, paySent, receipts, &sum); err != nil {
		return sum, err
	}

	pool := match.Pool{
		InvoicesReceived: invReceived,
		InvoicesIssued:   invIssued,
		PaymentsSent:     paySent,
		PaymentsReceived: payReceived,
		Receipts:         receipts,
		Withholdings:     withholdings,
	}
	if err := o.bankPass(ctx, pool, &sum); err != nil {
		return sum, err
	}

	sum.Duration = time.Since(started)
	o.log.Info("reconciliation finished",
		"payments_matched", sum.PaymentsMatched,
		"receipts_matched", sum.ReceiptsMatched,
		"movements_matched", sum.MovementsMatched,
		"displacements", sum.Displacements,
		"skipped_rows", sum.SkippedRows,
		"duration", sum.Duration)
	return sum, nil
}

// invoicePass links every unmatched payment to its best invoice candidate.
func (o *Orchestrator) invoicePass(ctx context.Context, payments []sheets.PaymentRef, invoices []sheets.InvoiceRef, sum *Summary) error {
	byFileID := make(map[string]*sheets.PaymentRef, len(payments))
	for i := range payments {
		byFileID[payments[i].FileID] = &payments[i]
	}
	invByFileID := make(map[string]*sheets.InvoiceRef, len(invoices))
	for i := range invoices {
		invByFileID[invoices[i].FileID] = &invoices[i]
	}

	for i := range payments {
		p := &payments[i]
		if p.MatchedFacturaFileID != "" {
			continue
		}
		deadline := time.Now().Add(o.cascadeTimeout)
		if err := o.matchPayment(ctx, p, invoices, invByFileID, byFileID, 0, deadline, sum); err != nil {
			return err
		}
	}
	return nil
}

// matchPayment links one payment, displacing a weaker existing link when the
// candidate is strictly better. A displaced payment re-enters matching.
func (o *Orchestrator) matchPayment(ctx context.Context, p *sheets.PaymentRef, invoices []sheets.InvoiceRef, invByFileID map[string]*sheets.InvoiceRef, payByFileID map[string]*sheets.PaymentRef, depth int, deadline time.Time, sum *Summary) error {
	if depth > o.maxDepth {
		o.log.Warn("displacement cascade too deep, stopping", "payment", p.FileID, "depth", depth)
		return nil
	}
	if time.Now().After(deadline) {
		o.log.Warn("displacement cascade timed out", "payment", p.FileID)
		return nil
	}

	for _, cand := range o.invoices.Rank(ctx, p.Payment, invoices) {
		inv := invByFileID[cand.Invoice.FileID]
		if inv == nil {
			continue
		}

		if inv.MatchedPagoFileID == "" || inv.MatchedPagoFileID == p.FileID {
			return o.linkInvoice(ctx, p, inv, cand.Confidence, sum)
		}

		incumbent := payByFileID[inv.MatchedPagoFileID]
		if incumbent == nil {
			// Dangling link, its payment row is gone. Take the invoice.
			return o.linkInvoice(ctx, p, inv, cand.Confidence, sum)
		}
		if !o.strictlyBetter(ctx, cand, incumbent.Payment, invoices, inv.FileID) {
			continue
		}

		// Displace: free the incumbent, link the newcomer, re-match the freed
		// payment against the remaining pool.
		incumbent.MatchedFacturaFileID = ""
		incumbent.MatchConfidence = document.ConfidenceNone
		if err := o.ledgers.UpdatePaymentRow(ctx, *incumbent); err != nil {
			return err
		}
		sum.Displacements++
		o.log.Info("displaced weaker match",
			"invoice", inv.FileID, "old_payment", incumbent.FileID, "new_payment", p.FileID)

		if err := o.linkInvoice(ctx, p, inv, cand.Confidence, sum); err != nil {
			return err
		}
		return o.matchPayment(ctx, incumbent, invoices, invByFileID, payByFileID, depth+1, deadline, sum)
	}
	return nil
}

// strictlyBetter re-evaluates the incumbent payment against the same invoice
// and compares the two candidacies: confidence first, then date proximity,
// then exactness. Ties keep the incumbent.
func (o *Orchestrator) strictlyBetter(ctx context.Context, cand match.InvoiceCandidate, incumbent document.Payment, invoices []sheets.InvoiceRef, invoiceFileID string) bool {
	var current *match.InvoiceCandidate
	for _, c := range o.invoices.Rank(ctx, incumbent, invoices) {
		if c.Invoice.FileID == invoiceFileID {
			cc := c
			current = &cc
			break
		}
	}
	if current == nil {
		// The incumbent no longer qualifies at all.
		return true
	}
	if cand.Confidence.Rank() != current.Confidence.Rank() {
		return cand.Confidence.Rank() > current.Confidence.Rank()
	}
	if abs(cand.DateDiff) != abs(current.DateDiff) {
		return abs(cand.DateDiff) < abs(current.DateDiff)
	}
	return cand.Exact && !current.Exact
}

func (o *Orchestrator) linkInvoice(ctx context.Context, p *sheets.PaymentRef, inv *sheets.InvoiceRef, conf document.MatchConfidence, sum *Summary) error {
	inv.MatchedPagoFileID = p.FileID
	inv.MatchConfidence = conf
	p.MatchedFacturaFileID = inv.FileID
	p.MatchConfidence = conf

	if err := o.ledgers.UpdateInvoiceRow(ctx, *inv); err != nil {
		return err
	}
	if err := o.ledgers.UpdatePaymentRow(ctx, *p); err != nil {
		return err
	}
	sum.PaymentsMatched++
	o.log.Info("payment matched to invoice",
		"payment", p.FileID, "invoice", inv.FileID, "confidence", conf)
	return nil
}

// receiptPass links unmatched sent payments to salary receipts. Payments that
// just matched an invoice are already consumed.
func (o *Orchestrator) receiptPass(ctx context.Context, payments []sheets.PaymentRef, receipts []sheets.ReceiptRef, sum *Summary) error {
	recByFileID := make(map[string]*sheets.ReceiptRef, len(receipts))
	for i := range receipts {
		recByFileID[receipts[i].FileID] = &receipts[i]
	}

	for i := range payments {
		p := &payments[i]
		if p.MatchedFacturaFileID != "" {
			continue
		}
		for _, cand := range o.receipts.Rank(ctx, p.Payment, receipts) {
			rec := recByFileID[cand.Receipt.FileID]
			if rec == nil || (rec.MatchedPagoFileID != "" && rec.MatchedPagoFileID != p.FileID) {
				continue
			}

			rec.MatchedPagoFileID = p.FileID
			rec.MatchConfidence = cand.Confidence
			p.MatchedFacturaFileID = rec.FileID
			p.MatchConfidence = cand.Confidence

			if err := o.ledgers.UpdateReceiptRow(ctx, *rec); err != nil {
				return err
			}
			if err := o.ledgers.UpdatePaymentRow(ctx, *p); err != nil {
				return err
			}
			sum.ReceiptsMatched++
			o.log.Info("payment matched to receipt",
				"payment", p.FileID, "receipt", rec.FileID, "confidence", cand.Confidence)
			break
		}
	}
	return nil
}

// bankPass resolves every movement of every account tab. Rows changed by a
// concurrent writer between read and write are skipped, not overwritten.
func (o *Orchestrator) bankPass(ctx context.Context, pool match.Pool, sum *Summary) error {
	tabs, err := o.ledgers.MovementTabs(ctx)
	if err != nil {
		return err
	}

	for _, tab := range tabs {
		moneda := sheets.TabCurrency(tab)
		movs, err := o.ledgers.Movements(ctx, tab)
		if err != nil {
			return err
		}
		for _, ref := range movs {
			res := o.bank.Match(ctx, ref.BankMovement, moneda, pool)
			if res.Type == match.MatchNone && res.Description == "" {
				continue
			}
			if ref.MatchedFileID == res.MatchedFileID && ref.Detalle == res.Description {
				continue
			}
			ok, err := o.ledgers.UpdateMovement(ctx, ref, res.MatchedFileID, res.Description)
			if err != nil {
				return err
			}
			if !ok {
				sum.SkippedRows++
				continue
			}
			sum.MovementsMatched++
			o.log.Info("movement resolved",
				"tab", tab, "row", ref.Row, "type", res.Type,
				"matched_file", res.MatchedFileID, "confidence", res.Confidence)
		}
	}
	return nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
