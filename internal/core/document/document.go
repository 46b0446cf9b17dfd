package document

import (
	"time"

	"github.com/shopspring/decimal"
)

// AdvaCUIT is the CUIT of the reference organization. A document's direction
// (emitida/recibida, enviado/recibido) is derived from which side of the
// operation carries this CUIT.
const AdvaCUIT = "30709076783"

// Currency identifies the currency of an amount.
type Currency string

const (
	CurrencyARS Currency = "ARS"
	CurrencyUSD Currency = "USD"
)

// ValidCurrency reports whether s is one of the supported currency codes.
func ValidCurrency(s string) bool {
	return s == string(CurrencyARS) || s == string(CurrencyUSD)
}

// Type classifies a document after LLM classification. The value doubles as
// the directional role relative to ADVA.
type Type string

const (
	TypeFacturaEmitida  Type = "factura_emitida"
	TypeFacturaRecibida Type = "factura_recibida"
	TypePagoEnviado     Type = "pago_enviado"
	TypePagoRecibido    Type = "pago_recibido"
	TypeRecibo          Type = "recibo"
	TypeResumenBancario Type = "resumen_bancario"
	TypeUnrecognized    Type = "unrecognized"
)

// InvoiceType enumerates the Argentine electronic invoice classes.
type InvoiceType string

const (
	InvoiceA  InvoiceType = "A"
	InvoiceB  InvoiceType = "B"
	InvoiceC  InvoiceType = "C"
	InvoiceE  InvoiceType = "E"
	InvoiceNC InvoiceType = "NC"
	InvoiceND InvoiceType = "ND"
)

// ValidInvoiceType reports whether s names a known comprobante type.
func ValidInvoiceType(s string) bool {
	switch InvoiceType(s) {
	case InvoiceA, InvoiceB, InvoiceC, InvoiceE, InvoiceNC, InvoiceND:
		return true
	}
	return false
}

// MatchConfidence grades a match between two documents.
type MatchConfidence string

const (
	ConfidenceHigh   MatchConfidence = "HIGH"
	ConfidenceMedium MatchConfidence = "MEDIUM"
	ConfidenceLow    MatchConfidence = "LOW"
	ConfidenceNone   MatchConfidence = ""
)

// Rank orders confidences for comparison: HIGH > MEDIUM > LOW > none.
func (c MatchConfidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	}
	return 0
}

// Degrade lowers a confidence one step. Cross-currency matches are capped this
// way: HIGH becomes MEDIUM, MEDIUM becomes LOW.
func (c MatchConfidence) Degrade() MatchConfidence {
	switch c {
	case ConfidenceHigh:
		return ConfidenceMedium
	case ConfidenceMedium:
		return ConfidenceLow
	}
	return ConfidenceLow
}

// Meta carries the bookkeeping fields every persisted entity shares.
type Meta struct {
	FileID      string    `json:"fileId"`
	FileName    string    `json:"fileName"`
	ProcessedAt time.Time `json:"processedAt"`
	Confidence  float64   `json:"confidence"`
	NeedsReview bool      `json:"needsReview"`
}

// Invoice is an Argentine electronic invoice (factura A/B/C/E, NC, ND).
type Invoice struct {
	Meta
	Tipo                InvoiceType     `json:"tipoComprobante"`
	Numero              string          `json:"nroFactura"` // e.g. "00003-00001957"
	FechaEmision        time.Time       `json:"fechaEmision"`
	CuitEmisor          string          `json:"cuitEmisor"`
	RazonSocialEmisor   string          `json:"razonSocialEmisor"`
	CuitReceptor        string          `json:"cuitReceptor,omitempty"`
	RazonSocialReceptor string          `json:"razonSocialReceptor,omitempty"`
	ImporteNeto         decimal.Decimal `json:"importeNeto"`
	ImporteIVA          decimal.Decimal `json:"importeIva"`
	ImporteTotal        decimal.Decimal `json:"importeTotal"`
	Moneda              Currency        `json:"moneda"`
	Concepto            string          `json:"concepto,omitempty"`
	CAE                 string          `json:"cae,omitempty"`

	MatchedPagoFileID string          `json:"matchedPagoFileId,omitempty"`
	MatchConfidence   MatchConfidence `json:"matchConfidence,omitempty"`
}

// Emitida reports whether ADVA issued this invoice (credit side of the ledger).
func (i Invoice) Emitida() bool {
	return i.CuitEmisor == AdvaCUIT
}

// Payment is a bank transfer receipt (comprobante de transferencia).
type Payment struct {
	Meta
	Banco             string          `json:"banco"`
	FechaPago         time.Time       `json:"fechaPago"`
	ImportePagado     decimal.Decimal `json:"importePagado"`
	Moneda            Currency        `json:"moneda"`
	Referencia        string          `json:"referencia,omitempty"`
	CuitPagador       string          `json:"cuitPagador,omitempty"`
	NombrePagador     string          `json:"nombrePagador,omitempty"`
	CuitBeneficiario  string          `json:"cuitBeneficiario,omitempty"`
	NombreBeneficiario string         `json:"nombreBeneficiario,omitempty"`
	Concepto          string          `json:"concepto,omitempty"`

	MatchedFacturaFileID string          `json:"matchedFacturaFileId,omitempty"`
	MatchConfidence      MatchConfidence `json:"matchConfidence,omitempty"`
}

// Enviado reports whether ADVA sent this payment. ADVA appearing as
// beneficiary marks the payment as received; any other shape is a send.
func (p Payment) Enviado() bool {
	return p.CuitBeneficiario != AdvaCUIT
}

// ReceiptType distinguishes monthly salary slips from final settlements.
type ReceiptType string

const (
	ReceiptSueldo           ReceiptType = "sueldo"
	ReceiptLiquidacionFinal ReceiptType = "liquidacion_final"
)

// Receipt is a salary receipt (recibo de sueldo o liquidación final).
type Receipt struct {
	Meta
	Tipo                   ReceiptType     `json:"tipo"`
	NombreEmpleado         string          `json:"nombreEmpleado"`
	CuilEmpleado           string          `json:"cuilEmpleado"`
	Legajo                 string          `json:"legajo"`
	CuitEmpleador          string          `json:"cuitEmpleador"`
	PeriodoAbonado         string          `json:"periodoAbonado"` // "YYYY-MM"
	FechaPago              time.Time       `json:"fechaPago"`
	SubtotalRemuneraciones decimal.Decimal `json:"subtotalRemuneraciones"`
	SubtotalDescuentos     decimal.Decimal `json:"subtotalDescuentos"`
	TotalNeto              decimal.Decimal `json:"totalNeto"`
	TareaDesempenada       string          `json:"tareaDesempenada,omitempty"`

	MatchedPagoFileID string          `json:"matchedPagoFileId,omitempty"`
	MatchConfidence   MatchConfidence `json:"matchConfidence,omitempty"`
}

// Statement is a bank account statement header (resumen bancario).
type Statement struct {
	Meta
	Banco               string          `json:"banco"`
	NumeroCuenta        string          `json:"numeroCuenta"`
	FechaDesde          time.Time       `json:"fechaDesde"`
	FechaHasta          time.Time       `json:"fechaHasta"`
	SaldoInicial        decimal.Decimal `json:"saldoInicial"`
	SaldoFinal          decimal.Decimal `json:"saldoFinal"`
	Moneda              Currency        `json:"moneda"`
	CantidadMovimientos int             `json:"cantidadMovimientos"`
	Movimientos         []BankMovement  `json:"movimientos,omitempty"`
}

// BankMovement is one row of a bank statement. Exactly one of Credito/Debito
// is non-nil.
type BankMovement struct {
	Fecha      time.Time        `json:"fecha"`
	FechaValor time.Time        `json:"fechaValor"`
	Concepto   string           `json:"concepto"`
	Codigo     string           `json:"codigo,omitempty"`
	Oficina    string           `json:"oficina,omitempty"`
	Credito    *decimal.Decimal `json:"credito,omitempty"`
	Debito     *decimal.Decimal `json:"debito,omitempty"`
	Saldo      decimal.Decimal  `json:"saldo"`
	Detalle    string           `json:"detalle,omitempty"`

	MatchedFileID string `json:"matchedFileId,omitempty"`
}

// IsDebit reports whether the movement is a debit (egreso).
func (m BankMovement) IsDebit() bool {
	return m.Debito != nil
}

// Amount returns the movement's magnitude regardless of direction.
func (m BankMovement) Amount() decimal.Decimal {
	if m.Debito != nil {
		return *m.Debito
	}
	if m.Credito != nil {
		return *m.Credito
	}
	return decimal.Zero
}

// Valid checks the exactly-one-side invariant.
func (m BankMovement) Valid() bool {
	return (m.Credito != nil) != (m.Debito != nil)
}

// Withholding is a retención certificate used to adjust credit-side matches:
// the bank credits the invoice total minus withheld tax.
type Withholding struct {
	Meta
	CuitAgenteRetencion string          `json:"cuitAgenteRetencion"`
	FechaEmision        time.Time       `json:"fechaEmision"`
	MontoRetencion      decimal.Decimal `json:"montoRetencion"`
}

// Classification is the result of the first LLM pass over a file.
type Classification struct {
	Type       Type     `json:"documentType"`
	Confidence float64  `json:"confidence"`
	Indicators []string `json:"indicators,omitempty"`
}
