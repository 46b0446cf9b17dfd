// Package ledger fixes the column layouts of the spreadsheet ledgers and
// converts entities to and from rows. Column order is part of the external
// contract: changing it breaks every consumer of the sheets.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"adva/ms_conciliacion_core/internal/core/document"

	"github.com/shopspring/decimal"
)

// Sheet identifies one logical ledger.
type Sheet string

const (
	SheetFacturasEmitidas  Sheet = "facturas_emitidas"
	SheetFacturasRecibidas Sheet = "facturas_recibidas"
	SheetPagosEnviados     Sheet = "pagos_enviados"
	SheetPagosRecibidos    Sheet = "pagos_recibidos"
	SheetRecibos           Sheet = "recibos"
	SheetRetenciones       Sheet = "retenciones"
	SheetErrores           Sheet = "errores"
)

// SheetFor maps a document type to its destination ledger.
func SheetFor(t document.Type) (Sheet, bool) {
	switch t {
	case document.TypeFacturaEmitida:
		return SheetFacturasEmitidas, true
	case document.TypeFacturaRecibida:
		return SheetFacturasRecibidas, true
	case document.TypePagoEnviado:
		return SheetPagosEnviados, true
	case document.TypePagoRecibido:
		return SheetPagosRecibidos, true
	case document.TypeRecibo:
		return SheetRecibos, true
	}
	return "", false
}

// Column indices shared by both invoice sheets.
const (
	invColFecha = iota
	invColFileID
	invColFileName
	invColTipo
	invColNumero
	invColCuitContraparte
	invColRazonSocial
	invColNeto
	invColIVA
	invColTotal
	invColMoneda
	invColConcepto
	invColProcessedAt
	invColConfidence
	invColNeedsReview
	invColMatchedPago
	invColMatchConfidence
	invColHasCuitMatch
	invColCount
)

// InvoiceFileIDColumn is the fileId column index, used for dedup scans.
const InvoiceFileIDColumn = invColFileID

const timeLayout = time.RFC3339

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func formatBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func parseBool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "TRUE")
}

// InvoiceRow renders an invoice as a ledger row. The counterparty column holds
// the non-ADVA side: the issuer on the received sheet, the receiver on the
// issued sheet.
func InvoiceRow(inv document.Invoice) []string {
	row := make([]string, invColCount)
	row[invColFecha] = formatDate(inv.FechaEmision)
	row[invColFileID] = inv.FileID
	row[invColFileName] = inv.FileName
	row[invColTipo] = string(inv.Tipo)
	row[invColNumero] = inv.Numero
	if inv.Emitida() {
		row[invColCuitContraparte] = inv.CuitReceptor
		row[invColRazonSocial] = inv.RazonSocialReceptor
	} else {
		row[invColCuitContraparte] = inv.CuitEmisor
		row[invColRazonSocial] = inv.RazonSocialEmisor
	}
	row[invColNeto] = document.FormatAmount(inv.ImporteNeto)
	row[invColIVA] = document.FormatAmount(inv.ImporteIVA)
	row[invColTotal] = document.FormatAmount(inv.ImporteTotal)
	row[invColMoneda] = string(inv.Moneda)
	row[invColConcepto] = inv.Concepto
	row[invColProcessedAt] = inv.ProcessedAt.Format(timeLayout)
	row[invColConfidence] = strconv.FormatFloat(inv.Confidence, 'f', 2, 64)
	row[invColNeedsReview] = formatBool(inv.NeedsReview)
	row[invColMatchedPago] = inv.MatchedPagoFileID
	row[invColMatchConfidence] = string(inv.MatchConfidence)
	row[invColHasCuitMatch] = formatBool(inv.CuitEmisor != "" && inv.CuitReceptor != "")
	return row
}

// ParseInvoiceRow reads an invoice back from a ledger row. The sheet it came
// from decides which side of the operation ADVA occupies.
func ParseInvoiceRow(row []string, sheet Sheet) (document.Invoice, error) {
	if len(row) < invColMatchConfidence {
		return document.Invoice{}, fmt.Errorf("invoice row: want at least %d columns, got %d", invColMatchConfidence, len(row))
	}
	fecha, err := document.ParseDate(row[invColFecha])
	if err != nil {
		return document.Invoice{}, fmt.Errorf("invoice row fecha: %w", err)
	}

	inv := document.Invoice{
		Tipo:     document.InvoiceType(row[invColTipo]),
		Numero:   row[invColNumero],
		Moneda:   document.Currency(row[invColMoneda]),
		Concepto: row[invColConcepto],
	}
	inv.FechaEmision = fecha
	inv.FileID = row[invColFileID]
	inv.FileName = row[invColFileName]

	if inv.ImporteNeto, err = parseAmountCell(row[invColNeto]); err != nil {
		return document.Invoice{}, fmt.Errorf("invoice row neto: %w", err)
	}
	if inv.ImporteIVA, err = parseAmountCell(row[invColIVA]); err != nil {
		return document.Invoice{}, fmt.Errorf("invoice row iva: %w", err)
	}
	if inv.ImporteTotal, err = parseAmountCell(row[invColTotal]); err != nil {
		return document.Invoice{}, fmt.Errorf("invoice row total: %w", err)
	}

	if sheet == SheetFacturasEmitidas {
		inv.CuitEmisor = document.AdvaCUIT
		inv.CuitReceptor = row[invColCuitContraparte]
		inv.RazonSocialReceptor = row[invColRazonSocial]
	} else {
		inv.CuitEmisor = row[invColCuitContraparte]
		inv.RazonSocialEmisor = row[invColRazonSocial]
		inv.CuitReceptor = document.AdvaCUIT
	}

	if ts := row[invColProcessedAt]; ts != "" {
		inv.ProcessedAt, _ = time.Parse(timeLayout, ts)
	}
	inv.Confidence, _ = strconv.ParseFloat(row[invColConfidence], 64)
	inv.NeedsReview = parseBool(row[invColNeedsReview])
	inv.MatchedPagoFileID = row[invColMatchedPago]
	if len(row) > invColMatchConfidence {
		inv.MatchConfidence = document.MatchConfidence(row[invColMatchConfidence])
	}
	return inv, nil
}

// Column indices shared by both payment sheets.
const (
	pagColFecha = iota
	pagColFileID
	pagColFileName
	pagColBanco
	pagColImporte
	pagColMoneda
	pagColReferencia
	pagColCuitContraparte
	pagColNombreContraparte
	pagColConcepto
	pagColProcessedAt
	pagColConfidence
	pagColNeedsReview
	pagColMatchedFactura
	pagColMatchConfidence
	pagColCount
)

// PaymentFileIDColumn is the fileId column index on the payment sheets.
const PaymentFileIDColumn = pagColFileID

// PaymentRow renders a payment as a ledger row. The counterparty columns hold
// the non-ADVA party: the beneficiary on the sent sheet, the payer on the
// received sheet.
func PaymentRow(p document.Payment) []string {
	row := make([]string, pagColCount)
	row[pagColFecha] = formatDate(p.FechaPago)
	row[pagColFileID] = p.FileID
	row[pagColFileName] = p.FileName
	row[pagColBanco] = p.Banco
	row[pagColImporte] = document.FormatAmount(p.ImportePagado)
	row[pagColMoneda] = string(p.Moneda)
	row[pagColReferencia] = p.Referencia
	if p.Enviado() {
		row[pagColCuitContraparte] = p.CuitBeneficiario
		row[pagColNombreContraparte] = p.NombreBeneficiario
	} else {
		row[pagColCuitContraparte] = p.CuitPagador
		row[pagColNombreContraparte] = p.NombrePagador
	}
	row[pagColConcepto] = p.Concepto
	row[pagColProcessedAt] = p.ProcessedAt.Format(timeLayout)
	row[pagColConfidence] = strconv.FormatFloat(p.Confidence, 'f', 2, 64)
	row[pagColNeedsReview] = formatBool(p.NeedsReview)
	row[pagColMatchedFactura] = p.MatchedFacturaFileID
	row[pagColMatchConfidence] = string(p.MatchConfidence)
	return row
}

// ParsePaymentRow reads a payment back from a ledger row.
func ParsePaymentRow(row []string, sheet Sheet) (document.Payment, error) {
	if len(row) < pagColMatchConfidence {
		return document.Payment{}, fmt.Errorf("payment row: want at least %d columns, got %d", pagColMatchConfidence, len(row))
	}
	fecha, err := document.ParseDate(row[pagColFecha])
	if err != nil {
		return document.Payment{}, fmt.Errorf("payment row fecha: %w", err)
	}

	p := document.Payment{
		Banco:      row[pagColBanco],
		Moneda:     document.Currency(row[pagColMoneda]),
		Referencia: row[pagColReferencia],
		Concepto:   row[pagColConcepto],
	}
	p.FechaPago = fecha
	p.FileID = row[pagColFileID]
	p.FileName = row[pagColFileName]

	if p.ImportePagado, err = parseAmountCell(row[pagColImporte]); err != nil {
		return document.Payment{}, fmt.Errorf("payment row importe: %w", err)
	}

	if sheet == SheetPagosEnviados {
		p.CuitPagador = document.AdvaCUIT
		p.CuitBeneficiario = row[pagColCuitContraparte]
		p.NombreBeneficiario = row[pagColNombreContraparte]
	} else {
		p.CuitBeneficiario = document.AdvaCUIT
		p.CuitPagador = row[pagColCuitContraparte]
		p.NombrePagador = row[pagColNombreContraparte]
	}

	if ts := row[pagColProcessedAt]; ts != "" {
		p.ProcessedAt, _ = time.Parse(timeLayout, ts)
	}
	p.Confidence, _ = strconv.ParseFloat(row[pagColConfidence], 64)
	p.NeedsReview = parseBool(row[pagColNeedsReview])
	p.MatchedFacturaFileID = row[pagColMatchedFactura]
	if len(row) > pagColMatchConfidence {
		p.MatchConfidence = document.MatchConfidence(row[pagColMatchConfidence])
	}
	return p, nil
}

// Column indices of the salary receipt sheet.
const (
	recColPeriodo = iota
	recColFileID
	recColFileName
	recColTipo
	recColNombre
	recColCuil
	recColLegajo
	recColFechaPago
	recColRemuneraciones
	recColDescuentos
	recColTotalNeto
	recColTarea
	recColProcessedAt
	recColConfidence
	recColNeedsReview
	recColMatchedPago
	recColMatchConfidence
	recColCount
)

// ReceiptFileIDColumn is the fileId column index on the receipts sheet.
const ReceiptFileIDColumn = recColFileID

// ReceiptRow renders a salary receipt as a ledger row.
func ReceiptRow(r document.Receipt) []string {
	row := make([]string, recColCount)
	row[recColPeriodo] = r.PeriodoAbonado
	row[recColFileID] = r.FileID
	row[recColFileName] = r.FileName
	row[recColTipo] = string(r.Tipo)
	row[recColNombre] = r.NombreEmpleado
	row[recColCuil] = r.CuilEmpleado
	row[recColLegajo] = r.Legajo
	row[recColFechaPago] = formatDate(r.FechaPago)
	row[recColRemuneraciones] = document.FormatAmount(r.SubtotalRemuneraciones)
	row[recColDescuentos] = document.FormatAmount(r.SubtotalDescuentos)
	row[recColTotalNeto] = document.FormatAmount(r.TotalNeto)
	row[recColTarea] = r.TareaDesempenada
	row[recColProcessedAt] = r.ProcessedAt.Format(timeLayout)
	row[recColConfidence] = strconv.FormatFloat(r.Confidence, 'f', 2, 64)
	row[recColNeedsReview] = formatBool(r.NeedsReview)
	row[recColMatchedPago] = r.MatchedPagoFileID
	row[recColMatchConfidence] = string(r.MatchConfidence)
	return row
}

// ParseReceiptRow reads a salary receipt back from a ledger row.
func ParseReceiptRow(row []string) (document.Receipt, error) {
	if len(row) < recColMatchConfidence {
		return document.Receipt{}, fmt.Errorf("receipt row: want at least %d columns, got %d", recColMatchConfidence, len(row))
	}

	r := document.Receipt{
		Tipo:             document.ReceiptType(row[recColTipo]),
		NombreEmpleado:   row[recColNombre],
		CuilEmpleado:     row[recColCuil],
		Legajo:           row[recColLegajo],
		PeriodoAbonado:   row[recColPeriodo],
		TareaDesempenada: row[recColTarea],
	}
	r.FileID = row[recColFileID]
	r.FileName = row[recColFileName]

	var err error
	if r.FechaPago, err = document.ParseDate(row[recColFechaPago]); err != nil {
		return document.Receipt{}, fmt.Errorf("receipt row fechaPago: %w", err)
	}
	if r.SubtotalRemuneraciones, err = parseAmountCell(row[recColRemuneraciones]); err != nil {
		return document.Receipt{}, fmt.Errorf("receipt row remuneraciones: %w", err)
	}
	if r.SubtotalDescuentos, err = parseAmountCell(row[recColDescuentos]); err != nil {
		return document.Receipt{}, fmt.Errorf("receipt row descuentos: %w", err)
	}
	if r.TotalNeto, err = parseAmountCell(row[recColTotalNeto]); err != nil {
		return document.Receipt{}, fmt.Errorf("receipt row totalNeto: %w", err)
	}

	if ts := row[recColProcessedAt]; ts != "" {
		r.ProcessedAt, _ = time.Parse(timeLayout, ts)
	}
	r.Confidence, _ = strconv.ParseFloat(row[recColConfidence], 64)
	r.NeedsReview = parseBool(row[recColNeedsReview])
	r.MatchedPagoFileID = row[recColMatchedPago]
	if len(row) > recColMatchConfidence {
		r.MatchConfidence = document.MatchConfidence(row[recColMatchConfidence])
	}
	return r, nil
}

// Column indices of a per-account movement sheet.
const (
	movColFecha = iota
	movColFechaValor
	movColConcepto
	movColCodigo
	movColOficina
	movColDebito
	movColCredito
	movColSaldo
	movColMatchedFileID
	movColDetalle
	movColCount
)

// MovementDateColumn is the fecha column index, used to keep movement tabs
// sorted chronologically.
const MovementDateColumn = movColFecha

// MovementRow renders a bank movement as a statement sheet row.
func MovementRow(m document.BankMovement) []string {
	row := make([]string, movColCount)
	row[movColFecha] = formatDate(m.Fecha)
	row[movColFechaValor] = formatDate(m.FechaValor)
	row[movColConcepto] = m.Concepto
	row[movColCodigo] = m.Codigo
	row[movColOficina] = m.Oficina
	if m.Debito != nil {
		row[movColDebito] = document.FormatAmount(*m.Debito)
	}
	if m.Credito != nil {
		row[movColCredito] = document.FormatAmount(*m.Credito)
	}
	row[movColSaldo] = document.FormatAmount(m.Saldo)
	row[movColMatchedFileID] = m.MatchedFileID
	row[movColDetalle] = m.Detalle
	return row
}

// ParseMovementRow reads a bank movement back from a statement sheet row.
func ParseMovementRow(row []string) (document.BankMovement, error) {
	if len(row) < movColSaldo {
		return document.BankMovement{}, fmt.Errorf("movement row: want at least %d columns, got %d", movColSaldo, len(row))
	}

	m := document.BankMovement{
		Concepto: row[movColConcepto],
		Codigo:   row[movColCodigo],
		Oficina:  row[movColOficina],
	}

	var err error
	if m.Fecha, err = document.ParseDate(row[movColFecha]); err != nil {
		return document.BankMovement{}, fmt.Errorf("movement row fecha: %w", err)
	}
	if row[movColFechaValor] != "" {
		if m.FechaValor, err = document.ParseDate(row[movColFechaValor]); err != nil {
			return document.BankMovement{}, fmt.Errorf("movement row fechaValor: %w", err)
		}
	}

	if cell := strings.TrimSpace(row[movColDebito]); cell != "" {
		d, err := document.ParseAmount(cell)
		if err != nil {
			return document.BankMovement{}, fmt.Errorf("movement row debito: %w", err)
		}
		m.Debito = &d
	}
	if cell := strings.TrimSpace(row[movColCredito]); cell != "" {
		c, err := document.ParseAmount(cell)
		if err != nil {
			return document.BankMovement{}, fmt.Errorf("movement row credito: %w", err)
		}
		m.Credito = &c
	}
	if !m.Valid() {
		return document.BankMovement{}, fmt.Errorf("movement row: exactly one of debito/credito must be set")
	}

	if cell := strings.TrimSpace(row[movColSaldo]); cell != "" {
		if m.Saldo, err = document.ParseAmount(cell); err != nil {
			return document.BankMovement{}, fmt.Errorf("movement row saldo: %w", err)
		}
	}
	if len(row) > movColMatchedFileID {
		m.MatchedFileID = row[movColMatchedFileID]
	}
	if len(row) > movColDetalle {
		m.Detalle = row[movColDetalle]
	}
	return m, nil
}

// Column indices of the withholdings sheet.
const (
	retColFecha = iota
	retColFileID
	retColFileName
	retColCuitAgente
	retColMonto
	retColProcessedAt
	retColCount
)

// WithholdingRow renders a retención as a ledger row.
func WithholdingRow(w document.Withholding) []string {
	row := make([]string, retColCount)
	row[retColFecha] = formatDate(w.FechaEmision)
	row[retColFileID] = w.FileID
	row[retColFileName] = w.FileName
	row[retColCuitAgente] = w.CuitAgenteRetencion
	row[retColMonto] = document.FormatAmount(w.MontoRetencion)
	row[retColProcessedAt] = w.ProcessedAt.Format(timeLayout)
	return row
}

// ParseWithholdingRow reads a retención back from a ledger row.
func ParseWithholdingRow(row []string) (document.Withholding, error) {
	if len(row) < retColProcessedAt {
		return document.Withholding{}, fmt.Errorf("withholding row: want at least %d columns, got %d", retColProcessedAt, len(row))
	}
	w := document.Withholding{CuitAgenteRetencion: row[retColCuitAgente]}
	w.FileID = row[retColFileID]
	w.FileName = row[retColFileName]

	var err error
	if w.FechaEmision, err = document.ParseDate(row[retColFecha]); err != nil {
		return document.Withholding{}, fmt.Errorf("withholding row fecha: %w", err)
	}
	if w.MontoRetencion, err = parseAmountCell(row[retColMonto]); err != nil {
		return document.Withholding{}, fmt.Errorf("withholding row monto: %w", err)
	}
	return w, nil
}

// MovementHash fingerprints the fields of a movement row that the matcher read.
// The reconciler recomputes it before writing a match back; a changed hash
// means a concurrent writer touched the row and the update is skipped.
func MovementHash(m document.BankMovement) string {
	var debito, credito string
	if m.Debito != nil {
		debito = m.Debito.StringFixed(2)
	}
	if m.Credito != nil {
		credito = m.Credito.StringFixed(2)
	}
	payload := strings.Join([]string{
		formatDate(m.Fecha), m.Concepto, debito, credito, m.MatchedFileID, m.Detalle,
	}, "\x1f")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func parseAmountCell(cell string) (decimal.Decimal, error) {
	if strings.TrimSpace(cell) == "" {
		return decimal.Zero, nil
	}
	return document.ParseAmount(cell)
}
