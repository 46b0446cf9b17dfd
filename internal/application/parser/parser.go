// Package parser turns raw LLM reply text into typed records. The model is
// asked for bare JSON but frequently wraps it in markdown fences or prose, so
// every entry point first isolates the JSON object, then normalizes
// identifiers, assigns the document direction, and scores extraction
// confidence.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"adva/ms_conciliacion_core/internal/core/document"

	"github.com/shopspring/decimal"
)

// ErrNoJSON is returned when the reply contains no JSON object at all.
var ErrNoJSON = errors.New("no JSON object in LLM reply")

// ErrUnrecognizedDirection is returned when neither party of an invoice can
// be identified as the reference organization.
var ErrUnrecognizedDirection = errors.New("cannot determine document direction")

// confidenceFloor is the minimum extraction confidence: even a reply missing
// most fields produced a parseable object.
const confidenceFloor = 0.5

// reviewThreshold marks the confidence at or below which missing fields flag
// the row for manual review.
const reviewThreshold = 0.9

// ExtractJSON isolates the JSON object inside an LLM reply, stripping
// markdown fences and surrounding prose.
func ExtractJSON(text string) (string, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return "", ErrNoJSON
	}
	return s[start : end+1], nil
}

// amount accepts a JSON number, a plain numeric string, or an Argentine
// formatted string ("2.917.310,00"). The model is told to use point decimals
// but does not always comply.
type amount struct {
	decimal.Decimal
}

func (a *amount) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		a.Decimal = decimal.Zero
		return nil
	}
	if err := a.Decimal.UnmarshalJSON(data); err == nil {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("amount: %s", data)
	}
	d, err := document.ParseAmount(s)
	if err != nil {
		return err
	}
	a.Decimal = d
	return nil
}

// ParseClassification parses the classification reply. Unknown type strings
// degrade to unrecognized instead of failing the task.
func ParseClassification(text string) (document.Classification, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return document.Classification{}, err
	}

	var dto struct {
		Type       string   `json:"type"`
		Confidence float64  `json:"confidence"`
		Indicators []string `json:"indicators"`
	}
	if err := json.Unmarshal([]byte(raw), &dto); err != nil {
		return document.Classification{}, fmt.Errorf("parse classification: %w", err)
	}

	c := document.Classification{
		Type:       document.Type(strings.TrimSpace(strings.ToLower(dto.Type))),
		Confidence: dto.Confidence,
		Indicators: dto.Indicators,
	}
	switch c.Type {
	case document.TypeFacturaEmitida, document.TypeFacturaRecibida,
		document.TypePagoEnviado, document.TypePagoRecibido,
		document.TypeRecibo, document.TypeResumenBancario:
	default:
		c.Type = document.TypeUnrecognized
	}
	return c, nil
}

type invoiceDTO struct {
	TipoFactura         string `json:"tipoFactura"`
	NumeroFactura       string `json:"numeroFactura"`
	FechaEmision        string `json:"fechaEmision"`
	CuitEmisor          string `json:"cuitEmisor"`
	RazonSocialEmisor   string `json:"razonSocialEmisor"`
	CuitReceptor        string `json:"cuitReceptor"`
	RazonSocialReceptor string `json:"razonSocialReceptor"`
	ImporteNeto         amount `json:"importeNeto"`
	ImporteIVA          amount `json:"importeIVA"`
	ImporteTotal        amount `json:"importeTotal"`
	Moneda              string `json:"moneda"`
	Concepto            string `json:"concepto"`
	CAE                 string `json:"cae"`
}

// ParseInvoice parses an invoice extraction reply and assigns direction by
// locating the reference organization among the parties.
func ParseInvoice(text string) (document.Invoice, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return document.Invoice{}, err
	}
	var dto invoiceDTO
	if err := json.Unmarshal([]byte(raw), &dto); err != nil {
		return document.Invoice{}, fmt.Errorf("parse invoice: %w", err)
	}

	inv := document.Invoice{
		Tipo:         document.InvoiceType(strings.ToUpper(strings.TrimSpace(dto.TipoFactura))),
		Numero:       strings.TrimSpace(dto.NumeroFactura),
		ImporteNeto:  dto.ImporteNeto.Decimal,
		ImporteIVA:   dto.ImporteIVA.Decimal,
		ImporteTotal: dto.ImporteTotal.Decimal,
		Moneda:       document.Currency(strings.ToUpper(strings.TrimSpace(dto.Moneda))),
		Concepto:     strings.TrimSpace(dto.Concepto),
		CAE:          strings.TrimSpace(dto.CAE),
	}
	if dto.FechaEmision != "" {
		if inv.FechaEmision, err = document.ParseDate(dto.FechaEmision); err != nil {
			return document.Invoice{}, fmt.Errorf("parse invoice: %w", err)
		}
	}

	if err := assignInvoiceDirection(&inv, dto); err != nil {
		return document.Invoice{}, err
	}

	required := []bool{
		inv.Tipo != "",
		inv.Numero != "",
		!inv.FechaEmision.IsZero(),
		inv.CuitEmisor != "",
		inv.RazonSocialEmisor != "" || inv.RazonSocialReceptor != "",
		!inv.ImporteTotal.IsZero(),
		document.ValidCurrency(string(inv.Moneda)),
	}
	suspicious := inv.ImporteNeto.IsZero() && inv.ImporteIVA.IsZero()
	inv.Confidence, inv.NeedsReview = score(required, suspicious)
	return inv, nil
}

// assignInvoiceDirection decides which side of the invoice the reference
// organization occupies. The organization's name is a stronger signal than
// the extracted CUITs because OCR mangles digits more often than words.
func assignInvoiceDirection(inv *document.Invoice, dto invoiceDTO) error {
	cuitEmisor := document.NormalizeCUIT(dto.CuitEmisor)
	cuitReceptor := document.NormalizeCUIT(dto.CuitReceptor)

	emisorIsAdva := document.IsAdvaName(dto.RazonSocialEmisor) || cuitEmisor == document.AdvaCUIT
	receptorIsAdva := document.IsAdvaName(dto.RazonSocialReceptor) || cuitReceptor == document.AdvaCUIT

	switch {
	case receptorIsAdva && !emisorIsAdva:
		inv.CuitEmisor = cuitEmisor
		inv.RazonSocialEmisor = strings.TrimSpace(dto.RazonSocialEmisor)
		inv.CuitReceptor = document.AdvaCUIT
		inv.RazonSocialReceptor = strings.TrimSpace(dto.RazonSocialReceptor)
	case emisorIsAdva && !receptorIsAdva:
		inv.CuitEmisor = document.AdvaCUIT
		inv.RazonSocialEmisor = strings.TrimSpace(dto.RazonSocialEmisor)
		// Consumer-facing invoices may carry no receiver at all.
		inv.CuitReceptor = cuitReceptor
		inv.RazonSocialReceptor = strings.TrimSpace(dto.RazonSocialReceptor)
	default:
		return fmt.Errorf("%w: emisor=%q receptor=%q", ErrUnrecognizedDirection, dto.RazonSocialEmisor, dto.RazonSocialReceptor)
	}
	return nil
}

type paymentDTO struct {
	Banco              string `json:"banco"`
	FechaPago          string `json:"fechaPago"`
	ImportePagado      amount `json:"importePagado"`
	Moneda             string `json:"moneda"`
	Referencia         string `json:"referencia"`
	CuitPagador        string `json:"cuitPagador"`
	NombrePagador      string `json:"nombrePagador"`
	CuitBeneficiario   string `json:"cuitBeneficiario"`
	NombreBeneficiario string `json:"nombreBeneficiario"`
	Concepto           string `json:"concepto"`
}

// ParsePayment parses a transfer receipt extraction reply.
func ParsePayment(text string) (document.Payment, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return document.Payment{}, err
	}
	var dto paymentDTO
	if err := json.Unmarshal([]byte(raw), &dto); err != nil {
		return document.Payment{}, fmt.Errorf("parse payment: %w", err)
	}

	p := document.Payment{
		Banco:              strings.TrimSpace(dto.Banco),
		ImportePagado:      dto.ImportePagado.Decimal,
		Moneda:             document.Currency(strings.ToUpper(strings.TrimSpace(dto.Moneda))),
		Referencia:         strings.TrimSpace(dto.Referencia),
		CuitPagador:        document.NormalizeCUIT(dto.CuitPagador),
		NombrePagador:      strings.TrimSpace(dto.NombrePagador),
		CuitBeneficiario:   document.NormalizeCUIT(dto.CuitBeneficiario),
		NombreBeneficiario: strings.TrimSpace(dto.NombreBeneficiario),
		Concepto:           strings.TrimSpace(dto.Concepto),
	}
	if dto.FechaPago != "" {
		if p.FechaPago, err = document.ParseDate(dto.FechaPago); err != nil {
			return document.Payment{}, fmt.Errorf("parse payment: %w", err)
		}
	}

	// When the model only produced names, the CUIT slots stay empty but
	// direction still needs resolving from whichever side names ADVA.
	if p.CuitBeneficiario == "" && document.IsAdvaName(p.NombreBeneficiario) {
		p.CuitBeneficiario = document.AdvaCUIT
	}
	if p.CuitPagador == "" && document.IsAdvaName(p.NombrePagador) {
		p.CuitPagador = document.AdvaCUIT
	}

	required := []bool{
		p.Banco != "",
		!p.FechaPago.IsZero(),
		!p.ImportePagado.IsZero(),
		document.ValidCurrency(string(p.Moneda)),
	}
	suspicious := p.Referencia == "" && p.CuitPagador == "" && p.CuitBeneficiario == ""
	p.Confidence, p.NeedsReview = score(required, suspicious)
	return p, nil
}

type receiptDTO struct {
	TipoRecibo             string `json:"tipoRecibo"`
	NombreEmpleado         string `json:"nombreEmpleado"`
	CuilEmpleado           string `json:"cuilEmpleado"`
	Legajo                 string `json:"legajo"`
	PeriodoAbonado         string `json:"periodoAbonado"`
	FechaPago              string `json:"fechaPago"`
	SubtotalRemuneraciones amount `json:"subtotalRemuneraciones"`
	SubtotalDescuentos     amount `json:"subtotalDescuentos"`
	TotalNeto              amount `json:"totalNeto"`
}

// ParseReceipt parses a salary receipt extraction reply.
func ParseReceipt(text string) (document.Receipt, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return document.Receipt{}, err
	}
	var dto receiptDTO
	if err := json.Unmarshal([]byte(raw), &dto); err != nil {
		return document.Receipt{}, fmt.Errorf("parse receipt: %w", err)
	}

	r := document.Receipt{
		Tipo:                   document.ReceiptType(strings.TrimSpace(strings.ToLower(dto.TipoRecibo))),
		NombreEmpleado:         strings.TrimSpace(dto.NombreEmpleado),
		CuilEmpleado:           document.NormalizeCUIT(dto.CuilEmpleado),
		Legajo:                 strings.TrimSpace(dto.Legajo),
		CuitEmpleador:          document.AdvaCUIT,
		PeriodoAbonado:         strings.TrimSpace(dto.PeriodoAbonado),
		SubtotalRemuneraciones: dto.SubtotalRemuneraciones.Decimal,
		SubtotalDescuentos:     dto.SubtotalDescuentos.Decimal,
		TotalNeto:              dto.TotalNeto.Decimal,
	}
	if r.Tipo != document.ReceiptLiquidacionFinal {
		r.Tipo = document.ReceiptSueldo
	}
	if dto.FechaPago != "" {
		if r.FechaPago, err = document.ParseDate(dto.FechaPago); err != nil {
			return document.Receipt{}, fmt.Errorf("parse receipt: %w", err)
		}
	}

	required := []bool{
		r.NombreEmpleado != "",
		r.CuilEmpleado != "",
		r.PeriodoAbonado != "",
		!r.TotalNeto.IsZero(),
	}
	suspicious := r.Legajo == "" || r.SubtotalRemuneraciones.IsZero()
	r.Confidence, r.NeedsReview = score(required, suspicious)
	return r, nil
}

type movementDTO struct {
	Fecha      string  `json:"fecha"`
	FechaValor string  `json:"fechaValor"`
	Concepto   string  `json:"concepto"`
	Codigo     string  `json:"codigo"`
	Oficina    string  `json:"oficina"`
	Debito     *amount `json:"debito"`
	Credito    *amount `json:"credito"`
	Saldo      amount  `json:"saldo"`
}

type statementDTO struct {
	Banco        string        `json:"banco"`
	NumeroCuenta string        `json:"numeroCuenta"`
	Moneda       string        `json:"moneda"`
	PeriodoDesde string        `json:"periodoDesde"`
	PeriodoHasta string        `json:"periodoHasta"`
	Movimientos  []movementDTO `json:"movimientos"`
}

// ParseStatement parses a bank statement extraction reply. Period dates may
// legitimately be absent (the caller routes such files to sin_procesar), so a
// missing or unparseable period is not an error here.
func ParseStatement(text string) (document.Statement, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return document.Statement{}, err
	}
	var dto statementDTO
	if err := json.Unmarshal([]byte(raw), &dto); err != nil {
		return document.Statement{}, fmt.Errorf("parse statement: %w", err)
	}

	s := document.Statement{
		Banco:        strings.TrimSpace(dto.Banco),
		NumeroCuenta: strings.TrimSpace(dto.NumeroCuenta),
		Moneda:       document.Currency(strings.ToUpper(strings.TrimSpace(dto.Moneda))),
	}
	if dto.PeriodoDesde != "" {
		s.FechaDesde, _ = document.ParseDate(dto.PeriodoDesde)
	}
	if dto.PeriodoHasta != "" {
		s.FechaHasta, _ = document.ParseDate(dto.PeriodoHasta)
	}

	for i, mv := range dto.Movimientos {
		m := document.BankMovement{
			Concepto: strings.TrimSpace(mv.Concepto),
			Codigo:   strings.TrimSpace(mv.Codigo),
			Oficina:  strings.TrimSpace(mv.Oficina),
			Saldo:    mv.Saldo.Decimal,
		}
		if mv.Fecha != "" {
			if m.Fecha, err = document.ParseDate(mv.Fecha); err != nil {
				return document.Statement{}, fmt.Errorf("parse statement: movimiento %d: %w", i, err)
			}
		}
		if mv.FechaValor != "" {
			m.FechaValor, _ = document.ParseDate(mv.FechaValor)
		}
		if mv.Debito != nil {
			d := mv.Debito.Decimal
			m.Debito = &d
		}
		if mv.Credito != nil {
			c := mv.Credito.Decimal
			m.Credito = &c
		}
		if !m.Valid() {
			return document.Statement{}, fmt.Errorf("parse statement: movimiento %d: exactly one of debito/credito", i)
		}
		s.Movimientos = append(s.Movimientos, m)
	}
	s.CantidadMovimientos = len(s.Movimientos)

	if n := len(s.Movimientos); n > 0 {
		first, last := s.Movimientos[0], s.Movimientos[n-1]
		s.SaldoFinal = last.Saldo
		s.SaldoInicial = first.Saldo.Add(firstDelta(first))
	}

	required := []bool{
		s.Banco != "",
		!s.FechaDesde.IsZero(),
		!s.FechaHasta.IsZero(),
		len(s.Movimientos) > 0,
	}
	suspicious := s.NumeroCuenta == ""
	s.Confidence, s.NeedsReview = score(required, suspicious)
	return s, nil
}

// firstDelta undoes the first movement's effect on the balance, recovering
// the opening balance the statement header would have shown.
func firstDelta(m document.BankMovement) decimal.Decimal {
	if m.Debito != nil {
		return *m.Debito
	}
	if m.Credito != nil {
		return m.Credito.Neg()
	}
	return decimal.Zero
}

// score computes extraction confidence as the present fraction of required
// fields, floored at 0.5, and decides whether the row needs manual review.
func score(required []bool, suspiciousEmptyOptional bool) (float64, bool) {
	present := 0
	for _, ok := range required {
		if ok {
			present++
		}
	}
	confidence := float64(present) / float64(len(required))
	if confidence < confidenceFloor {
		confidence = confidenceFloor
	}
	if confidence > 1 {
		confidence = 1
	}
	anyMissing := present < len(required)
	needsReview := confidence <= reviewThreshold && (anyMissing || suspiciousEmptyOptional)
	return confidence, needsReview
}
