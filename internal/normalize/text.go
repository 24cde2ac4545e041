package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var merchantPrefixes = []string{"COMPRA EN ", "PAGO A ", "PURCHASE AT "}

// Whitespace collapses runs of whitespace into single spaces and trims the ends.
func Whitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Merchant canonicalizes a merchant name: NFC form, single spaces, and no
// generic "purchase at" style prefix. Case is preserved.
func Merchant(s string) string {
	m := Whitespace(norm.NFC.String(s))
	upper := strings.ToUpper(m)
	for _, prefix := range merchantPrefixes {
		if strings.HasPrefix(upper, prefix) {
			m = m[len(prefix):]
			break
		}
	}
	return strings.TrimSpace(m)
}

// Fold lower-cases s and strips diacritics so "Notificación" matches "notificacion".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(Whitespace(folded))
}

var last4Patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:\*+|[Xx]{2,}|#)\s*(\d{4})\b`),
	regexp.MustCompile(`(?i)terminad[ao]\s+en\s+(\d{4})\b`),
	regexp.MustCompile(`(?i)ending\s+in\s+(\d{4})\b`),
	regexp.MustCompile(`(\d{4})\s*$`),
}

// Last4 extracts the last four digits of a masked card or account number.
func Last4(s string) (string, bool) {
	for _, re := range last4Patterns {
		if m := re.FindStringSubmatch(s); m != nil {
			return m[1], true
		}
	}
	return "", false
}
