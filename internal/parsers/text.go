package parsers

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/cleared-dev/mailledger/internal/model"
	"github.com/cleared-dev/mailledger/internal/normalize"
)

var (
	amountRe = regexp.MustCompile(`(?i)\b(?:monto|amount|total)\s*:?\s*((?:USD|CRC|US\$|₡|\$)?\s*\d[\d.,]*(?:\s*(?:USD|CRC|colones|d[oó]lares))?)`)
	dateRe   = regexp.MustCompile(`(?i)\b(?:fecha|date)\s*:?\s*(\d{1,2}[/-]\d{1,2}[/-]\d{4}(?:\s+\d{1,2}:\d{2}(?::\d{2})?(?:\s*[ap]\.?\s?m\.?)?)?)`)
	cardRe   = regexp.MustCompile(`(?i)\b(?:tarjeta|card)\b[^\n]*`)

	// currencyAmountRe matches an unlabeled amount next to a currency marker,
	// e.g. "USD 25.00", "$5.25" or "3.500,00 colones".
	currencyAmountRe = regexp.MustCompile(`(?i)(?:\bUS\$|\bUSD|\bCRC|₡|\$)\s*\d(?:[\d.,]*\d)?|\d(?:[\d.,]*\d)?\s*(?:USD|CRC|colones|d[oó]lares)\b`)
)

// htmlText reduces an HTML document to its visible text, one block per line.
func htmlText(doc string) string {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
		case html.ElementNode:
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && isBlock(n.DataAtom) {
			b.WriteByte('\n')
		}
	}
	walk(root)

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = normalize.Whitespace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Br, atom.Tr, atom.Li, atom.Table, atom.H1, atom.H2, atom.H3, atom.Td, atom.Th:
		return true
	}
	return false
}

// nodeText is the whitespace-collapsed text content of n.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return normalize.Whitespace(b.String())
}

// findAmount reads the first labeled amount in text, falling back to the
// first amount written next to a currency marker. Currency comes from the
// amount itself, then from anywhere in text, then defaults to USD.
func findAmount(text string) (decimal.Decimal, model.Currency, bool) {
	fallback, ok := normalize.DetectCurrency(text)
	if !ok {
		fallback = model.CurrencyUSD
	}
	if m := amountRe.FindStringSubmatch(text); m != nil {
		if amount, currency, err := normalize.ParseAmountWithCurrency(m[1], fallback); err == nil {
			return amount, currency, true
		}
	}
	for _, candidate := range currencyAmountRe.FindAllString(text, -1) {
		if amount, currency, err := normalize.ParseAmountWithCurrency(candidate, fallback); err == nil {
			return amount, currency, true
		}
	}
	return decimal.Zero, "", false
}

// findCard reads the last four digits from the first line mentioning a card.
func findCard(text string) (string, bool) {
	for _, line := range cardRe.FindAllString(text, -1) {
		if last4, ok := normalize.Last4(line); ok {
			return last4, true
		}
	}
	return "", false
}

// findDate reads a labeled date in loc.
func findDate(text string, loc *time.Location) (time.Time, bool) {
	m := dateRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	t, err := normalize.ParseDateTime(m[1], loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// namedGroup returns the submatch called name, or "".
func namedGroup(re *regexp.Regexp, match []string, name string) string {
	i := re.SubexpIndex(name)
	if match == nil || i < 0 || i >= len(match) {
		return ""
	}
	return strings.TrimSpace(match[i])
}
