package document

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	advaPatternRe   = regexp.MustCompile(`(?i)ASOC.*CIVIL.*DESARROLL`)
	forbiddenRunes  = strings.NewReplacer("<", "", ">", "", ":", "", `"`, "", "|", "", "?", "", "*", "")
	multiSpaceRe    = regexp.MustCompile(`\s+`)
)

// IsAdvaName reports whether a free-text name refers to the reference
// organization. OCR output is noisy, so the civil-association pattern allows
// arbitrary text between the anchor words (e.g. "DESARROLLARODES").
func IsAdvaName(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	upper := strings.ToUpper(name)
	if strings.Contains(upper, "ADVA") {
		return true
	}
	if strings.Contains(upper, "VIDEOJUEGO") {
		return true
	}
	return advaPatternRe.MatchString(name)
}

// StripAccents removes combining marks after NFD normalization, turning
// "Liquidación" into "Liquidacion".
func StripAccents(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SanitizeFileName makes a name safe for the document store: slashes become
// dashes, reserved characters are dropped, accents are stripped, and
// whitespace collapses.
func SanitizeFileName(name string) string {
	s := strings.ReplaceAll(name, "/", "-")
	s = forbiddenRunes.Replace(s)
	s = StripAccents(s)
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CanonicalInvoiceName builds the filed name of an invoice PDF.
// Received: "YYYY-MM-DD - Factura Recibida - <nro> - <emisor>[ - <concepto>].pdf"
// Issued:   "YYYY-MM-DD - Factura Emitida - <nro> - <receptor>[ - <concepto>].pdf"
func CanonicalInvoiceName(inv Invoice) string {
	date := inv.FechaEmision.Format("2006-01-02")
	var kind, counterparty string
	if inv.Emitida() {
		kind = "Factura Emitida"
		counterparty = inv.RazonSocialReceptor
	} else {
		kind = "Factura Recibida"
		counterparty = inv.RazonSocialEmisor
	}
	name := fmt.Sprintf("%s - %s - %s - %s", date, kind, inv.Numero, counterparty)
	if inv.Concepto != "" {
		name += " - " + inv.Concepto
	}
	return SanitizeFileName(name) + ".pdf"
}

// CanonicalPaymentName builds the filed name of a payment PDF.
func CanonicalPaymentName(p Payment) string {
	date := p.FechaPago.Format("2006-01-02")
	var kind, counterparty string
	if p.Enviado() {
		kind = "Pago Enviado"
		counterparty = p.NombreBeneficiario
	} else {
		kind = "Pago Recibido"
		counterparty = p.NombrePagador
	}
	name := fmt.Sprintf("%s - %s - %s", date, kind, counterparty)
	if p.Concepto != "" {
		name += " - " + p.Concepto
	}
	return SanitizeFileName(name) + ".pdf"
}

// CanonicalReceiptName builds the filed name of a salary receipt PDF:
// "YYYY-MM - Recibo de Sueldo - <empleado>.pdf". The period comes from
// PeriodoAbonado when parseable, otherwise from the payment date.
func CanonicalReceiptName(r Receipt) string {
	period := r.PeriodoAbonado
	if _, err := time.Parse("2006-01", period); err != nil {
		period = r.FechaPago.Format("2006-01")
	}
	return SanitizeFileName(fmt.Sprintf("%s - Recibo de Sueldo - %s", period, r.NombreEmpleado)) + ".pdf"
}

// CanonicalStatementName builds the filed name of a bank statement PDF:
// "YYYY-MM - Resumen - <banco> - <cuenta> <moneda>.pdf".
func CanonicalStatementName(s Statement) string {
	period := s.FechaDesde.Format("2006-01")
	return SanitizeFileName(fmt.Sprintf("%s - Resumen - %s - %s %s", period, s.Banco, s.NumeroCuenta, s.Moneda)) + ".pdf"
}
