package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/mailledger/internal/model"
)

// Header is the CSV header of the ledger file.
const Header = "global_id,timestamp,merchant,amount,currency,institution,payment_instrument,notes,category"

// TimestampFormat is how timestamps are stored. Seconds are always zero.
const TimestampFormat = time.RFC3339

const (
	numFields     = 9
	colGlobalID   = 0
	colTimestamp  = 1
	colMerchant   = 2
	colAmount     = 3
	colCurrency   = 4
	colInstitute  = 5
	colInstrument = 6
	colNotes      = 7
	colCategory   = 8
)

// ReadTransactions reads and validates a whole ledger. An empty reader is an
// empty ledger. Any structural problem returns a *CorruptError.
func ReadTransactions(r io.Reader) ([]model.Transaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		row := 0
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			row = perr.StartLine
		}
		return nil, &CorruptError{Row: row, Reason: err.Error()}
	}
	if len(records) == 0 {
		return nil, nil
	}
	if strings.Join(records[0], ",") != Header {
		return nil, &CorruptError{Row: 1, Reason: fmt.Sprintf("unexpected header %q", strings.Join(records[0], ","))}
	}

	txns := make([]model.Transaction, 0, len(records)-1)
	for i, rec := range records[1:] {
		txn, err := UnmarshalTransaction(rec)
		if err != nil {
			return nil, &CorruptError{Row: i + 2, Reason: err.Error()}
		}
		txns = append(txns, txn)
	}
	if err := Validate(txns); err != nil {
		return nil, err
	}
	return txns, nil
}

// WriteTransactions writes the header and every transaction.
func WriteTransactions(w io.Writer, txns []model.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, txn := range txns {
		if err := cw.Write(MarshalTransaction(txn)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalTransaction converts a transaction to a CSV row.
func MarshalTransaction(txn model.Transaction) []string {
	row := make([]string, numFields)
	row[colGlobalID] = txn.GlobalID
	row[colTimestamp] = txn.Timestamp.Truncate(time.Minute).Format(TimestampFormat)
	row[colMerchant] = txn.Merchant
	row[colAmount] = txn.Amount.StringFixed(2)
	row[colCurrency] = string(txn.Currency)
	row[colInstitute] = txn.Institution
	row[colInstrument] = txn.PaymentInstrument
	row[colNotes] = txn.Notes
	row[colCategory] = txn.Category
	return row
}

// UnmarshalTransaction converts a CSV row to a transaction.
func UnmarshalTransaction(record []string) (model.Transaction, error) {
	if len(record) != numFields {
		return model.Transaction{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(TimestampFormat, record[colTimestamp])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}

	amount, err := decimal.NewFromString(record[colAmount])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing amount %q: %w", record[colAmount], err)
	}

	currency, err := model.ParseCurrency(record[colCurrency])
	if err != nil {
		return model.Transaction{}, err
	}

	return model.Transaction{
		GlobalID:          record[colGlobalID],
		Timestamp:         ts.Truncate(time.Minute),
		Merchant:          record[colMerchant],
		Amount:            amount,
		Currency:          currency,
		Institution:       record[colInstitute],
		PaymentInstrument: record[colInstrument],
		Notes:             record[colNotes],
		Category:          record[colCategory],
	}, nil
}
