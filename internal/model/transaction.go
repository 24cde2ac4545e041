package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Currency is an ISO-like 3-letter currency code.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyCRC Currency = "CRC"
)

// Currencies lists the known currency codes.
var Currencies = []Currency{CurrencyUSD, CurrencyCRC}

// Valid reports whether c is a known currency code.
func (c Currency) Valid() bool {
	for _, known := range Currencies {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCurrency converts a code such as "usd" or " CRC" into a known Currency.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown currency %q", s)
	}
	return c, nil
}

// Transaction is one row in the ledger.
type Transaction struct {
	GlobalID          string          `json:"global_id"`
	Timestamp         time.Time       `json:"timestamp"`
	Merchant          string          `json:"merchant"`
	Amount            decimal.Decimal `json:"amount"` // magnitude only, always > 0
	Currency          Currency        `json:"currency"`
	Institution       string          `json:"institution"`
	PaymentInstrument string          `json:"payment_instrument"` // last digits of card/account, may be empty
	Notes             string          `json:"notes"`
	Category          string          `json:"category,omitempty"` // "" = not set
}

// HasCategory reports whether a category has been assigned.
func (t Transaction) HasCategory() bool {
	return t.Category != ""
}

// Validate checks the field-level invariants of a transaction. GlobalID is not checked.
func (t Transaction) Validate() error {
	var errs []error
	if t.Timestamp.IsZero() {
		errs = append(errs, errors.New("timestamp is required"))
	}
	if strings.TrimSpace(t.Merchant) == "" {
		errs = append(errs, errors.New("merchant is required"))
	}
	if !t.Amount.IsPositive() {
		errs = append(errs, fmt.Errorf("amount must be positive, got %s", t.Amount))
	}
	if !t.Currency.Valid() {
		errs = append(errs, fmt.Errorf("unknown currency %q", t.Currency))
	}
	if strings.TrimSpace(t.Institution) == "" {
		errs = append(errs, errors.New("institution is required"))
	}
	if !validInstrument(t.PaymentInstrument) {
		errs = append(errs, fmt.Errorf("payment instrument %q must be at most 4 digits", t.PaymentInstrument))
	}
	return errors.Join(errs...)
}

func validInstrument(s string) bool {
	if len(s) > 4 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
