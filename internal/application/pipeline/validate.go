package pipeline

import (
	"log/slog"

	"adva/ms_conciliacion_core/internal/core/document"

	"github.com/shopspring/decimal"
)

// Arithmetic slack for neto + IVA vs total, covering rounding on the
// comprobante itself.
var sumEpsilon = decimal.NewFromFloat(0.02)

// validateInvoice runs the consistency checks that cannot fail a document,
// only flag it for review.
func validateInvoice(inv *document.Invoice, log *slog.Logger) {
	if inv.CuitEmisor != "" && !document.ValidCUIT(inv.CuitEmisor) {
		log.Warn("invoice emisor CUIT fails checksum", "file_id", inv.FileID, "cuit", inv.CuitEmisor)
		inv.NeedsReview = true
	}
	if inv.CuitReceptor != "" && !document.ValidCUIT(inv.CuitReceptor) {
		log.Warn("invoice receptor CUIT fails checksum", "file_id", inv.FileID, "cuit", inv.CuitReceptor)
		inv.NeedsReview = true
	}

	// A missing breakdown (factura B/C) sums to zero and is fine; a present
	// one must add up to the total.
	sum := inv.ImporteNeto.Add(inv.ImporteIVA)
	if !sum.IsZero() && !document.AmountsWithin(sum, inv.ImporteTotal, sumEpsilon) {
		log.Warn("invoice amounts do not add up",
			"file_id", inv.FileID, "neto", inv.ImporteNeto, "iva", inv.ImporteIVA, "total", inv.ImporteTotal)
		inv.NeedsReview = true
	}
	if inv.ImporteTotal.LessThanOrEqual(decimal.Zero) {
		log.Warn("invoice total not positive", "file_id", inv.FileID, "total", inv.ImporteTotal)
		inv.NeedsReview = true
	}
}

func validatePayment(p *document.Payment, log *slog.Logger) {
	if p.CuitPagador != "" && !document.ValidCUIT(p.CuitPagador) && !document.ValidDNI(p.CuitPagador) {
		log.Warn("payment pagador identifier fails checksum", "file_id", p.FileID, "cuit", p.CuitPagador)
		p.NeedsReview = true
	}
	if p.CuitBeneficiario != "" && !document.ValidCUIT(p.CuitBeneficiario) && !document.ValidDNI(p.CuitBeneficiario) {
		log.Warn("payment beneficiario identifier fails checksum", "file_id", p.FileID, "cuit", p.CuitBeneficiario)
		p.NeedsReview = true
	}
	if p.ImportePagado.LessThanOrEqual(decimal.Zero) {
		log.Warn("payment amount not positive", "file_id", p.FileID, "importe", p.ImportePagado)
		p.NeedsReview = true
	}
}

func validateReceipt(r *document.Receipt, log *slog.Logger) {
	if r.CuilEmpleado != "" && !document.ValidCUIT(r.CuilEmpleado) {
		log.Warn("receipt CUIL fails checksum", "file_id", r.FileID, "cuil", r.CuilEmpleado)
		r.NeedsReview = true
	}

	net := r.SubtotalRemuneraciones.Sub(r.SubtotalDescuentos)
	if !r.SubtotalRemuneraciones.IsZero() && !document.AmountsWithin(net, r.TotalNeto, sumEpsilon) {
		log.Warn("receipt subtotals do not add up",
			"file_id", r.FileID, "remuneraciones", r.SubtotalRemuneraciones,
			"descuentos", r.SubtotalDescuentos, "neto", r.TotalNeto)
		r.NeedsReview = true
	}
	if r.TotalNeto.LessThanOrEqual(decimal.Zero) {
		log.Warn("receipt net not positive", "file_id", r.FileID, "neto", r.TotalNeto)
		r.NeedsReview = true
	}
}
