package id

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/cleared-dev/mailledger/internal/model"
)

func sample() model.Transaction {
	return model.Transaction{
		Timestamp:         time.Date(2025, 1, 5, 10, 0, 0, 0, time.UTC),
		Merchant:          "Super X",
		Amount:            decimal.RequireFromString("10.99"),
		Currency:          model.CurrencyUSD,
		Institution:       "BAC",
		PaymentInstrument: "1234",
	}
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "BAC|2025-01-05T10:00Z|super x|10.99|USD|1234", Canonical(sample()))
}

func TestGlobalID_Deterministic(t *testing.T) {
	first := GlobalID(sample())
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, GlobalID(sample()))
	}
	assert.Len(t, first, Length)
	assert.True(t, Valid(first))
}

func TestGlobalID_IgnoresUserFields(t *testing.T) {
	base := GlobalID(sample())

	edited := sample()
	edited.Notes = "split with Ana"
	edited.Category = "Groceries"
	edited.GlobalID = "something else"
	assert.Equal(t, base, GlobalID(edited))
}

func TestGlobalID_CanonicalizesInputs(t *testing.T) {
	base := GlobalID(sample())

	tests := []struct {
		name   string
		mutate func(*model.Transaction)
	}{
		{"merchant case and spacing", func(t *model.Transaction) { t.Merchant = "  SUPER   x " }},
		{"seconds truncated", func(t *model.Transaction) { t.Timestamp = t.Timestamp.Add(59 * time.Second) }},
		{"same instant other zone", func(t *model.Transaction) {
			t.Timestamp = t.Timestamp.In(time.FixedZone("CST", -6*60*60))
		}},
		{"amount scale", func(t *model.Transaction) { t.Amount = decimal.RequireFromString("10.990") }},
		{"currency case", func(t *model.Transaction) { t.Currency = "usd" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := sample()
			tt.mutate(&txn)
			assert.Equal(t, base, GlobalID(txn))
		})
	}
}

func TestGlobalID_UnicodeNormalization(t *testing.T) {
	composed := sample()
	composed.Merchant = "Caf\u00e9 Britt"
	decomposed := sample()
	decomposed.Merchant = "Cafe\u0301 Britt"
	assert.Equal(t, GlobalID(composed), GlobalID(decomposed))
}

func TestGlobalID_DistinctTransactions(t *testing.T) {
	base := GlobalID(sample())

	tests := []struct {
		name   string
		mutate func(*model.Transaction)
	}{
		{"merchant", func(t *model.Transaction) { t.Merchant = "Super Y" }},
		{"minute", func(t *model.Transaction) { t.Timestamp = t.Timestamp.Add(time.Minute) }},
		{"amount", func(t *model.Transaction) { t.Amount = decimal.RequireFromString("11.00") }},
		{"currency", func(t *model.Transaction) { t.Currency = model.CurrencyCRC }},
		{"institution", func(t *model.Transaction) { t.Institution = "Davibank" }},
		{"instrument", func(t *model.Transaction) { t.PaymentInstrument = "4321" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := sample()
			tt.mutate(&txn)
			assert.NotEqual(t, base, GlobalID(txn))
		})
	}
}

func TestAssign(t *testing.T) {
	txn := Assign(sample())
	assert.Equal(t, GlobalID(sample()), txn.GlobalID)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(strings.Repeat("a", Length)))
	assert.False(t, Valid(""))
	assert.False(t, Valid(strings.Repeat("A", Length)), "upper case")
	assert.False(t, Valid(strings.Repeat("g", Length)))
	assert.False(t, Valid(strings.Repeat("a", Length-1)))
}
