package match

import (
	"regexp"
	"strings"

	"adva/ms_conciliacion_core/internal/core/document"
)

// Bank statements prefix some movement descriptions with the originating
// branch, e.g. "D 123 TRANSFERENCIA ...". The prefix carries no identity.
var bankOriginPrefixRe = regexp.MustCompile(`^D\s+\d{2,3}\s+`)

// feePrefixes are concepto openings the bank itself generates: taxes on bank
// credits/debits (ley 25413), account and transfer fees, and their VAT.
var feePrefixes = []string{
	"IMPUESTO LEY",
	"IMP.LEY 25413",
	"LEY NRO 25.4",
	"COMISION ",
	"COM MANT ",
	"COMI TRANSFERENCIA",
	"COM.TRANSF",
	"IVA TASA",
	"GP-COM.OPAGO",
	"GP-IVA TASA",
}

var cardBrands = []string{"VISA", "MASTERCARD", "AMEX", "NARANJA", "CABAL"}

var cardDigitsRe = regexp.MustCompile(`^PAGO TARJETA\s*\d`)

// StripBankPrefix removes the branch-origin prefix from a concepto.
func StripBankPrefix(concepto string) string {
	return bankOriginPrefixRe.ReplaceAllString(strings.TrimSpace(concepto), "")
}

// IsBankFee reports whether a concepto is a bank-generated fee or tax.
func IsBankFee(concepto string) bool {
	c := strings.ToUpper(StripBankPrefix(concepto))
	for _, p := range feePrefixes {
		if strings.HasPrefix(c, p) {
			return true
		}
	}
	return false
}

// IsCardPayment reports whether a concepto is a credit-card bill payment.
func IsCardPayment(concepto string) bool {
	c := strings.ToUpper(StripBankPrefix(concepto))
	if cardDigitsRe.MatchString(c) {
		return true
	}
	if !strings.HasPrefix(c, "PAGO TARJETA") {
		return false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(c, "PAGO TARJETA"))
	for _, brand := range cardBrands {
		if strings.HasPrefix(rest, brand) {
			return true
		}
	}
	return false
}

// ordenPagoRe matches the 7-digit ORDEN-DE-PAGO reference banks embed in
// transfer conceptos, e.g. "1234567.01.2025".
var ordenPagoRe = regexp.MustCompile(`(\d{7})\.\d{2}\.\d{4}`)

// ExtractPaymentRef pulls the first payment-order reference out of a
// concepto.
func ExtractPaymentRef(concepto string) string {
	m := ordenPagoRe.FindStringSubmatch(concepto)
	if m == nil {
		return ""
	}
	return m[1]
}

// jargon holds concepto tokens carrying no counterparty identity.
var jargon = map[string]bool{
	"DEBITO": true, "CREDITO": true, "TRANSFERENCIA": true, "TRANSFERENCI": true,
	"PAGO": true, "COBRO": true, "OG": true, "DI": true, "AUT": true, "AUTO": true,
	"DIR": true, "REF": true, "NRO": true, "NUM": true, "CTA": true, "CBU": true,
}

var (
	tokenSplitRe     = regexp.MustCompile(`[\s\-.]+`)
	digitLetterRe    = regexp.MustCompile(`(\d)([A-Za-z])`)
	letterDigitRe    = regexp.MustCompile(`([A-Za-z])(\d)`)
	pureNumericRe    = regexp.MustCompile(`^\d+$`)
	nonWordBoundary  = `(^|[^A-Z0-9])`
	nonWordBoundary2 = `($|[^A-Z0-9])`
)

// Tokenize extracts identity-bearing tokens from a movement concepto: the
// branch prefix goes, parts split on separators and digit/letter boundaries,
// everything is uppercased and de-accented, and short, numeric or jargon
// tokens are dropped.
func Tokenize(concepto string) []string {
	s := StripBankPrefix(concepto)
	s = digitLetterRe.ReplaceAllString(s, "$1 $2")
	s = letterDigitRe.ReplaceAllString(s, "$1 $2")

	var out []string
	for _, part := range tokenSplitRe.Split(s, -1) {
		tok := strings.ToUpper(document.StripAccents(part))
		if len(tok) < 3 || pureNumericRe.MatchString(tok) || jargon[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// MinKeywordScore is the lowest keyword score that counts as a partial
// identity signal.
const MinKeywordScore = 2

// KeywordScore scores concepto tokens against a document's entity name and
// concepto field. Each token matching a whole word in either is worth two
// points.
func KeywordScore(tokens []string, entityName, conceptoField string) int {
	name := strings.ToUpper(document.StripAccents(entityName))
	field := strings.ToUpper(document.StripAccents(conceptoField))

	score := 0
	for _, tok := range tokens {
		pattern := nonWordBoundary + regexp.QuoteMeta(tok) + nonWordBoundary2
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		if name != "" && re.MatchString(name) {
			score += 2
		}
		if field != "" && re.MatchString(field) {
			score += 2
		}
	}
	return score
}
