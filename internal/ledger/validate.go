package ledger

import (
	"errors"
	"fmt"

	"github.com/cleared-dev/mailledger/internal/id"
	"github.com/cleared-dev/mailledger/internal/model"
)

var (
	// ErrNotFound is returned when no record has the requested global id.
	ErrNotFound = errors.New("transaction not found")
	// ErrCorrupt is returned when the ledger file fails structural validation.
	// A corrupt ledger is never partially loaded or repaired.
	ErrCorrupt = errors.New("ledger is corrupt")
)

// CorruptError locates a structural problem in the ledger file. Row 1 is the header.
type CorruptError struct {
	Row    int
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("ledger is corrupt at row %d: %s", e.Row, e.Reason)
}

func (e *CorruptError) Unwrap() error { return ErrCorrupt }

// Validate checks loaded records: well-formed unique ids, positive amounts,
// and the required fields. Row numbers assume a header on row 1.
func Validate(txns []model.Transaction) error {
	seen := make(map[string]int, len(txns))
	for i, txn := range txns {
		row := i + 2
		if !id.Valid(txn.GlobalID) {
			return &CorruptError{Row: row, Reason: fmt.Sprintf("malformed global_id %q", txn.GlobalID)}
		}
		if first, dup := seen[txn.GlobalID]; dup {
			return &CorruptError{Row: row, Reason: fmt.Sprintf("duplicate global_id %s (first on row %d)", txn.GlobalID, first)}
		}
		seen[txn.GlobalID] = row
		if err := txn.Validate(); err != nil {
			return &CorruptError{Row: row, Reason: err.Error()}
		}
	}
	return nil
}
