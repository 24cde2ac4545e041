package parsers

import (
	"regexp"
	"strings"
	"time"

	"github.com/cleared-dev/mailledger/internal/mail"
	"github.com/cleared-dev/mailledger/internal/model"
	"github.com/cleared-dev/mailledger/internal/normalize"
)

// Sender domains owned by Davivienda. Subdomains count.
var daviviendaDomains = []string{"davivienda.com", "davivienda.cr"}

var (
	daviviendaMerchantRe = regexp.MustCompile(`(?im)^\s*(?:comercio|establecimiento)\s*:\s*(?P<merchant>.+?)\s*$`)
	daviviendaInlineRe   = regexp.MustCompile(`(?i)\bcompra\s+en\s+(?P<merchant>[^\n,]+?)\s+por\b`)
)

// Davivienda parses Davivienda purchase notices. Messages are owned by
// sender domain rather than subject, since the subject line varies.
type Davivienda struct {
	loc *time.Location
}

// NewDavivienda creates the Davivienda strategy. Body dates are read in loc.
func NewDavivienda(loc *time.Location) *Davivienda {
	return &Davivienda{loc: locationOrUTC(loc)}
}

func (p *Davivienda) Institution() string { return "Davivienda" }

func (p *Davivienda) CanParse(msg mail.Message) bool {
	domain := msg.SenderDomain()
	for _, d := range daviviendaDomains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

func (p *Davivienda) Parse(msg mail.Message) (model.Transaction, error) {
	text := msg.TextBody
	if strings.TrimSpace(text) == "" {
		text = htmlText(msg.HTMLBody)
	}
	if text == "" {
		return model.Transaction{}, unparseable(p.Institution(), msg, "empty body")
	}

	merchant := namedGroup(daviviendaMerchantRe, daviviendaMerchantRe.FindStringSubmatch(text), "merchant")
	if merchant == "" {
		merchant = namedGroup(daviviendaInlineRe, daviviendaInlineRe.FindStringSubmatch(text), "merchant")
	}
	merchant = normalize.Merchant(merchant)
	if merchant == "" {
		return model.Transaction{}, unparseable(p.Institution(), msg, "merchant not found")
	}

	amount, currency, ok := findAmount(text)
	if !ok {
		return model.Transaction{}, unparseable(p.Institution(), msg, "amount not found")
	}

	last4, ok := findCard(text)
	if !ok {
		return model.Transaction{}, unparseable(p.Institution(), msg, "card number not found")
	}

	ts, ok := findDate(text, p.loc)
	if !ok {
		if ts, ok = receivedAt(msg, p.loc); !ok {
			return model.Transaction{}, unparseable(p.Institution(), msg, "no usable date")
		}
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
