// Package id derives the deterministic global ID that identifies a
// transaction in the ledger and deduplicates re-parsed emails.
package id

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/cleared-dev/mailledger/internal/model"
)

// Length is the number of hex characters in a global ID.
const Length = sha256.Size * 2

// timestampFormat is the canonical minute-precision UTC form used for hashing.
const timestampFormat = "2006-01-02T15:04Z"

// Canonical returns the string that GlobalID hashes. It covers the identity
// fields only; notes and category never contribute.
//
//	institution|2025-01-05T16:00Z|super x|10.99|USD|1234
func Canonical(txn model.Transaction) string {
	fields := []string{
		strings.TrimSpace(txn.Institution),
		txn.Timestamp.UTC().Truncate(time.Minute).Format(timestampFormat),
		canonicalMerchant(txn.Merchant),
		txn.Amount.StringFixed(2),
		strings.ToUpper(strings.TrimSpace(string(txn.Currency))),
		strings.TrimSpace(txn.PaymentInstrument),
	}
	return strings.Join(fields, "|")
}

func canonicalMerchant(m string) string {
	return strings.ToLower(strings.Join(strings.Fields(norm.NFC.String(m)), " "))
}

// GlobalID returns the hex SHA-256 of the transaction's canonical form.
func GlobalID(txn model.Transaction) string {
	sum := sha256.Sum256([]byte(Canonical(txn)))
	return hex.EncodeToString(sum[:])
}

// Assign returns a copy of txn with GlobalID filled in.
func Assign(txn model.Transaction) model.Transaction {
	txn.GlobalID = GlobalID(txn)
	return txn
}

// Valid reports whether s looks like a global ID (64 lower-case hex characters).
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
