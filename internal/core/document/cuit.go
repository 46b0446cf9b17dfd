package document

import (
	"regexp"
	"strings"
)

// cuitWeights are the mod-11 weights applied to the first ten digits.
var cuitWeights = [10]int{5, 4, 3, 2, 7, 6, 5, 4, 3, 2}

// validCuitPrefixes are the type prefixes ARCA assigns (personas físicas y
// jurídicas).
var validCuitPrefixes = map[string]bool{
	"20": true, "23": true, "24": true, "27": true,
	"30": true, "33": true, "34": true,
}

var (
	cuitSeparators = strings.NewReplacer("-", "", " ", "", "/", "")

	labeledCuitRe   = regexp.MustCompile(`(?i)CUI[TL][:\s]*(\d{2}[-\s]?\d{8}[-\s]?\d)`)
	separatedCuitRe = regexp.MustCompile(`(\d{2})[-\s](\d{8})[-\s](\d)`)
	plainCuitRe     = regexp.MustCompile(`\d{11}`)
	digitsOnlyRe    = regexp.MustCompile(`^\d+$`)
)

// NormalizeCUIT strips dashes, spaces and slashes from a CUIT/CUIL.
func NormalizeCUIT(raw string) string {
	return cuitSeparators.Replace(strings.TrimSpace(raw))
}

// ValidCUIT reports whether raw is an 11-digit CUIT/CUIL with a correct
// mod-11 check digit and a known type prefix.
func ValidCUIT(raw string) bool {
	cuit := NormalizeCUIT(raw)
	if len(cuit) != 11 || !digitsOnlyRe.MatchString(cuit) {
		return false
	}
	if !validCuitPrefixes[cuit[:2]] {
		return false
	}

	sum := 0
	for i, w := range cuitWeights {
		sum += int(cuit[i]-'0') * w
	}
	check := 11 - sum%11
	switch check {
	case 11:
		check = 0
	case 10:
		check = 9
	}
	return check == int(cuit[10]-'0')
}

// ValidDNI reports whether raw looks like a DNI: 7 or 8 decimal digits.
func ValidDNI(raw string) bool {
	s := strings.TrimSpace(raw)
	return (len(s) == 7 || len(s) == 8) && digitsOnlyRe.MatchString(s)
}

// DNIFromCUIT returns the DNI embedded in positions 2..10 of a valid CUIT,
// with leading zeros stripped. Returns "" when the input is not a valid CUIT.
func DNIFromCUIT(raw string) string {
	cuit := NormalizeCUIT(raw)
	if !ValidCUIT(cuit) {
		return ""
	}
	return strings.TrimLeft(cuit[2:10], "0")
}

// IdentifiersMatch reports whether two identifiers refer to the same person or
// company. Both may be CUITs, or one may be a DNI textually contained in the
// other's CUIT.
func IdentifiersMatch(a, b string) bool {
	na, nb := NormalizeCUIT(a), NormalizeCUIT(b)
	if na == "" || nb == "" {
		return false
	}
	if len(na) == 11 && len(nb) == 11 {
		return na == nb
	}
	if ValidDNI(na) && len(nb) == 11 {
		return strings.TrimLeft(na, "0") == DNIFromCUIT(nb)
	}
	if ValidDNI(nb) && len(na) == 11 {
		return strings.TrimLeft(nb, "0") == DNIFromCUIT(na)
	}
	return false
}

// ExtractCUIT pulls the first checksum-valid CUIT out of free text. Candidates
// are tried labeled first ("CUIT: 30-70907678-3"), then dash/space separated,
// then any contiguous 11-digit run.
func ExtractCUIT(text string) string {
	for _, m := range labeledCuitRe.FindAllStringSubmatch(text, -1) {
		if cuit := NormalizeCUIT(m[1]); ValidCUIT(cuit) {
			return cuit
		}
	}
	for _, m := range separatedCuitRe.FindAllStringSubmatch(text, -1) {
		if cuit := m[1] + m[2] + m[3]; ValidCUIT(cuit) {
			return cuit
		}
	}
	for _, m := range plainCuitRe.FindAllString(text, -1) {
		if ValidCUIT(m) {
			return m
		}
	}
	return ""
}

// FormatCUIT renders a normalized CUIT in the conventional XX-XXXXXXXX-X form.
// Inputs that are not 11 digits are returned unchanged.
func FormatCUIT(raw string) string {
	cuit := NormalizeCUIT(raw)
	if len(cuit) != 11 || !digitsOnlyRe.MatchString(cuit) {
		return raw
	}
	return cuit[:2] + "-" + cuit[2:10] + "-" + cuit[10:]
}
