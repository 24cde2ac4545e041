package parsers

import (
	"regexp"
	"strings"
	"time"

	"github.com/cleared-dev/mailledger/internal/mail"
	"github.com/cleared-dev/mailledger/internal/model"
	"github.com/cleared-dev/mailledger/internal/normalize"
)

const davibankSubject = "alerta transaccion tarjeta de credito titular"

var (
	davibankPurchaseRe = regexp.MustCompile(`(?i)transacci[oó]n\s+realizada\s+en\s+(?P<merchant>.+?),\s*el\s+d[ií]a\s+(?P<date>\d{1,2}/\d{1,2}/\d{4})(?:\s+a\s+las?\s+(?P<time>\d{1,2}:\d{2})(?:\s*(?P<ampm>[ap]\.?\s?m\.?))?)?`)
	davibankMerchantRe = regexp.MustCompile(`(?im)^\s*(?:comercio|establecimiento)\s*:\s*(?P<merchant>.+?)\s*$`)
)

// Davibank parses Davibank credit card alerts. The body is a sentence of the
// form "transacción realizada en <merchant>, el día dd/mm/yyyy a las hh:mm PM".
type Davibank struct {
	loc *time.Location
}

// NewDavibank creates the Davibank strategy. Body dates are read in loc.
func NewDavibank(loc *time.Location) *Davibank {
	return &Davibank{loc: locationOrUTC(loc)}
}

func (p *Davibank) Institution() string { return "Davibank" }

func (p *Davibank) CanParse(msg mail.Message) bool {
	return strings.Contains(normalize.Fold(msg.Subject), davibankSubject)
}

func (p *Davibank) Parse(msg mail.Message) (model.Transaction, error) {
	text := msg.TextBody
	if strings.TrimSpace(text) == "" {
		text = htmlText(msg.HTMLBody)
	}
	if text == "" {
		return model.Transaction{}, unparseable(p.Institution(), msg, "empty body")
	}

	match := davibankPurchaseRe.FindStringSubmatch(text)
	merchant := namedGroup(davibankPurchaseRe, match, "merchant")
	if merchant == "" {
		merchant = namedGroup(davibankMerchantRe, davibankMerchantRe.FindStringSubmatch(text), "merchant")
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

	ts, ok := p.timestamp(match, text, msg)
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

func (p *Davibank) timestamp(match []string, text string, msg mail.Message) (time.Time, bool) {
	if date := namedGroup(davibankPurchaseRe, match, "date"); date != "" {
		stamp := strings.TrimSpace(strings.Join([]string{
			date,
			namedGroup(davibankPurchaseRe, match, "time"),
			namedGroup(davibankPurchaseRe, match, "ampm"),
		}, " "))
		if t, err := normalize.ParseDateTime(stamp, p.loc); err == nil {
			return t, true
		}
	}
	if t, ok := findDate(text, p.loc); ok {
		return t, true
	}
	return receivedAt(msg, p.loc)
}
