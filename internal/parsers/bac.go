package parsers

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/cleared-dev/mailledger/internal/mail"
	"github.com/cleared-dev/mailledger/internal/model"
	"github.com/cleared-dev/mailledger/internal/normalize"
)

const bacSubject = "notificacion de transaccion"

// Label cells in BAC notification tables, matched after folding.
var (
	bacMerchantLabels = []string{"comercio", "merchant"}
	bacAmountLabels   = []string{"monto", "amount"}
	bacCardLabels     = []string{"tarjeta", "card"}
	bacDateLabels     = []string{"fecha", "date"}
)

// BAC parses BAC Credomatic HTML transaction notifications. Each field is a
// table row with a label cell followed by a value cell.
type BAC struct {
	loc *time.Location
}

// NewBAC creates the BAC strategy. Body dates are read in loc.
func NewBAC(loc *time.Location) *BAC {
	return &BAC{loc: locationOrUTC(loc)}
}

func (p *BAC) Institution() string { return "BAC" }

func (p *BAC) CanParse(msg mail.Message) bool {
	return strings.Contains(normalize.Fold(msg.Subject), bacSubject)
}

func (p *BAC) Parse(msg mail.Message) (model.Transaction, error) {
	if msg.HTMLBody == "" {
		return model.Transaction{}, unparseable(p.Institution(), msg, "no HTML body")
	}
	doc, err := html.Parse(strings.NewReader(msg.HTMLBody))
	if err != nil {
		return model.Transaction{}, unparseable(p.Institution(), msg, "parsing HTML: %v", err)
	}
	cells := labeledCells(doc)
	text := htmlText(msg.HTMLBody)

	merchant := normalize.Merchant(cells.lookup(bacMerchantLabels))
	if merchant == "" {
		return model.Transaction{}, unparseable(p.Institution(), msg, "merchant not found")
	}

	amount, currency, ok := p.amount(cells.lookup(bacAmountLabels), text)
	if !ok {
		return model.Transaction{}, unparseable(p.Institution(), msg, "amount not found")
	}

	last4, ok := normalize.Last4(cells.lookup(bacCardLabels))
	if !ok {
		if last4, ok = findCard(text); !ok {
			return model.Transaction{}, unparseable(p.Institution(), msg, "card number not found")
		}
	}

	ts, ok := p.timestamp(cells.lookup(bacDateLabels), msg)
	if !ok {
		return model.Transaction{}, unparseable(p.Institution(), msg, "no usable date")
	}

	return model.Transaction{
		Timestamp:         ts,
		Merchant:          merchant,
		Amount:            amount,
		Currency:          currency,
		Institution:       p.Institution(),
		PaymentInstrument: last4,
	}, nil
}

func (p *BAC) amount(cell, text string) (decimal.Decimal, model.Currency, bool) {
	if cell != "" {
		fallback, ok := normalize.DetectCurrency(text)
		if !ok {
			fallback = model.CurrencyUSD
		}
		if amount, currency, err := normalize.ParseAmountWithCurrency(cell, fallback); err == nil {
			return amount, currency, true
		}
	}
	return findAmount(text)
}

func (p *BAC) timestamp(cell string, msg mail.Message) (time.Time, bool) {
	if cell != "" {
		if t, err := normalize.ParseDateTime(cell, p.loc); err == nil {
			return t, true
		}
	}
	return receivedAt(msg, p.loc)
}

// cellMap maps folded label text to the text of the cell that follows it.
type cellMap map[string]string

func (c cellMap) lookup(labels []string) string {
	for _, label := range labels {
		if v, ok := c[label]; ok {
			return v
		}
	}
	return ""
}

// labeledCells collects every td whose next sibling td holds a value. The
// first occurrence of a label wins.
func labeledCells(doc *html.Node) cellMap {
	cells := cellMap{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Td {
			label := strings.TrimSpace(strings.TrimRight(normalize.Fold(nodeText(n)), ":"))
			if next := nextCell(n); label != "" && next != nil {
				if _, seen := cells[label]; !seen {
					cells[label] = nodeText(next)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return cells
}

func nextCell(n *html.Node) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode && s.DataAtom == atom.Td {
			return s
		}
	}
	return nil
}
