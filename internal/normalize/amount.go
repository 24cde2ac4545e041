// Package normalize turns the loosely formatted values found in bank
// notification emails into canonical Go types.
package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/cleared-dev/mailledger/internal/model"
)

// ErrInvalidAmount is returned when no positive amount can be read from a string.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount reads a positive monetary amount, rounded to 2 decimal places.
// Currency symbols, codes and spaces are ignored. Both "1,234.56" and
// "1.234,56" styles are accepted; a single comma followed by one or two
// digits is a decimal separator ("12,50").
func ParseAmount(s string) (decimal.Decimal, error) {
	numeric := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == '.' || r == ',' {
			return r
		}
		return -1
	}, s)
	numeric = strings.Trim(numeric, ".,")
	if numeric == "" {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	lastComma := strings.LastIndex(numeric, ",")
	lastDot := strings.LastIndex(numeric, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			numeric = strings.ReplaceAll(numeric, ".", "")
			numeric = strings.Replace(numeric, ",", ".", 1)
		} else {
			numeric = strings.ReplaceAll(numeric, ",", "")
		}
	case lastComma >= 0:
		frac := numeric[lastComma+1:]
		if strings.Count(numeric, ",") == 1 && len(frac) <= 2 {
			numeric = strings.Replace(numeric, ",", ".", 1)
		} else {
			numeric = strings.ReplaceAll(numeric, ",", "")
		}
	case strings.Count(numeric, ".") > 1:
		numeric = strings.ReplaceAll(numeric, ".", "")
	}

	amount, err := decimal.NewFromString(numeric)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %q is not positive", ErrInvalidAmount, s)
	}
	return amount, nil
}

// DetectCurrency looks for a currency code, symbol or name in s.
// Colones are checked first; "US$" and "$" mean dollars.
func DetectCurrency(s string) (model.Currency, bool) {
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "crc"), strings.Contains(lower, "₡"), strings.Contains(lower, "colones"):
		return model.CurrencyCRC, true
	case strings.Contains(lower, "usd"), strings.Contains(lower, "$"),
		strings.Contains(lower, "dólares"), strings.Contains(lower, "dolares"):
		return model.CurrencyUSD, true
	}
	return "", false
}

// ParseAmountWithCurrency parses an amount and the currency written next to it.
// fallback is used when s carries no currency marker.
func ParseAmountWithCurrency(s string, fallback model.Currency) (decimal.Decimal, model.Currency, error) {
	amount, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero, "", err
	}
	currency, ok := DetectCurrency(s)
	if !ok {
		currency = fallback
	}
	return amount, currency, nil
}

var displayPrinter = message.NewPrinter(language.English)

// FormatAmount renders an amount for display, e.g. "$1,234.50" or "₡12,345".
// Colón amounts of 100 or more are shown without decimals.
func FormatAmount(amount decimal.Decimal, currency model.Currency) string {
	f := amount.InexactFloat64()
	switch currency {
	case model.CurrencyCRC:
		if amount.GreaterThanOrEqual(decimal.NewFromInt(100)) {
			return displayPrinter.Sprintf("₡%.0f", f)
		}
		return displayPrinter.Sprintf("₡%.2f", f)
	case model.CurrencyUSD:
		return displayPrinter.Sprintf("$%.2f", f)
	default:
		return displayPrinter.Sprintf("%s %.2f", currency, f)
	}
}
