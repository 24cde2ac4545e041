package ledger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/mailledger/internal/id"
	"github.com/cleared-dev/mailledger/internal/model"
)

var costaRica = time.FixedZone("CST", -6*60*60)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sample(merchant, amount string) model.Transaction {
	return model.Transaction{
		Timestamp:         time.Date(2025, 1, 5, 10, 0, 0, 0, costaRica),
		Merchant:          merchant,
		Amount:            dec(amount),
		Currency:          model.CurrencyUSD,
		Institution:       "BAC",
		PaymentInstrument: "1234",
	}
}

func openTemp(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "ledger.csv"))
	require.NoError(t, err)
	return repo
}

func TestRepository_MissingFileIsEmpty(t *testing.T) {
	repo := openTemp(t)

	txns, err := repo.ListAll()
	require.NoError(t, err)
	assert.Empty(t, txns)

	ok, err := repo.Exists(strings.Repeat("a", 64))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepository_InsertAndRoundTrip(t *testing.T) {
	repo := openTemp(t)
	txn := sample("Super X", "10.99")
	txn.Notes = "groceries, weekly\n2nd line"

	inserted, err := repo.Insert(txn)
	require.NoError(t, err)
	assert.True(t, inserted)

	got, err := repo.ListAll()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id.GlobalID(txn), got[0].GlobalID)
	assert.Equal(t, "Super X", got[0].Merchant)
	assert.Equal(t, "10.99", got[0].Amount.StringFixed(2))
	assert.Equal(t, "groceries, weekly\n2nd line", got[0].Notes)
	assert.True(t, txn.Timestamp.Equal(got[0].Timestamp))
	assert.False(t, got[0].HasCategory())

	data, err := os.ReadFile(repo.Path())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), Header+"\n"))
	assert.Contains(t, string(data), "2025-01-05T10:00:00-06:00")
}

func TestRepository_InsertDuplicateSkipped(t *testing.T) {
	repo := openTemp(t)
	txn := sample("Super X", "10.99")

	inserted, err := repo.Insert(txn)
	require.NoError(t, err)
	require.True(t, inserted)

	// Same identity fields with user fields set: still a duplicate, never overwrites.
	again := txn
	again.Merchant = "  super   x "
	again.Notes = "should not land"
	inserted, err = repo.Insert(again)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := repo.ListAll()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].Notes)
}

func TestRepository_InsertRejectsInvalid(t *testing.T) {
	repo := openTemp(t)

	bad := sample("Super X", "0")
	_, err := repo.Insert(bad)
	assert.Error(t, err)

	mismatched := sample("Super X", "10.99")
	mismatched.GlobalID = strings.Repeat("0", 64)
	_, err = repo.Insert(mismatched)
	assert.ErrorContains(t, err, "does not match")

	assert.NoFileExists(t, repo.Path())
}

func TestRepository_UpdateKeepsID(t *testing.T) {
	repo := openTemp(t)
	txn := sample("Super X", "10.99")
	_, err := repo.Insert(txn)
	require.NoError(t, err)
	gid := id.GlobalID(txn)

	edited := txn
	edited.Amount = dec("11.50")
	edited.Notes = "corrected"
	edited.Category = "groceries"
	updated, err := repo.Update(gid, edited)
	require.NoError(t, err)
	assert.Equal(t, gid, updated.GlobalID)

	got, err := repo.Get(gid)
	require.NoError(t, err)
	assert.Equal(t, "11.50", got.Amount.StringFixed(2))
	assert.Equal(t, "corrected", got.Notes)
	assert.Equal(t, "groceries", got.Category)
	assert.NotEqual(t, id.GlobalID(got), got.GlobalID, "stored id no longer matches fields")

	// The original email still dedups against the edited record.
	inserted, err := repo.Insert(txn)
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestRepository_UpdateNotFound(t *testing.T) {
	repo := openTemp(t)
	_, err := repo.Update(strings.Repeat("b", 64), sample("Super X", "1.00"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_Delete(t *testing.T) {
	repo := openTemp(t)
	a, b := sample("Super X", "10.99"), sample("Farmacia", "5.00")
	for _, txn := range []model.Transaction{a, b} {
		_, err := repo.Insert(txn)
		require.NoError(t, err)
	}

	require.NoError(t, repo.Delete(id.GlobalID(a)))

	ok, err := repo.Exists(id.GlobalID(a))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.ListAll()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Farmacia", got[0].Merchant)

	assert.ErrorIs(t, repo.Delete(id.GlobalID(a)), ErrNotFound)

	_, err = repo.Get(id.GlobalID(a))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_CorruptFile(t *testing.T) {
	valid := MarshalTransaction(id.Assign(sample("Super X", "10.99")))
	tests := []struct {
		name    string
		content string
		row     int
	}{
		{"bad header", "id,when\n", 1},
		{"short row", Header + "\nabc,2025-01-05T10:00:00Z\n", 2},
		{"bad id", Header + "\n" + strings.Join(append([]string{"xyz"}, valid[1:]...), ",") + "\n", 2},
		{"bad timestamp", Header + "\n" + strings.Join(append([]string{valid[0], "yesterday"}, valid[2:]...), ",") + "\n", 2},
		{"duplicate id", Header + "\n" + strings.Join(valid, ",") + "\n" + strings.Join(valid, ",") + "\n", 3},
		{"bare quote", Header + "\n" + `a"b,c` + "\n", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := openTemp(t)
			require.NoError(t, os.WriteFile(repo.Path(), []byte(tt.content), 0o644))

			_, err := repo.ListAll()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCorrupt)
			var cerr *CorruptError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.row, cerr.Row)

			// Mutations refuse to touch a corrupt file.
			_, err = repo.Insert(sample("Other", "1.00"))
			assert.ErrorIs(t, err, ErrCorrupt)
			data, err := os.ReadFile(repo.Path())
			require.NoError(t, err)
			assert.Equal(t, tt.content, string(data))
		})
	}
}

func TestRepository_FailedCommitLeavesFileIntact(t *testing.T) {
	repo := openTemp(t)
	_, err := repo.Insert(sample("Super X", "10.99"))
	require.NoError(t, err)
	before, err := os.ReadFile(repo.Path())
	require.NoError(t, err)

	crash := errors.New("simulated crash")
	repo.beforeCommit = func() error { return crash }

	_, err = repo.Insert(sample("Farmacia", "5.00"))
	assert.ErrorIs(t, err, crash)

	after, err := os.ReadFile(repo.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	entries, err := os.ReadDir(filepath.Dir(repo.Path()))
	require.NoError(t, err)
	for _, e := range entries {
		assert.Contains(t, []string{"ledger.csv", "ledger.csv.lock"}, e.Name(), "temp file cleaned up")
	}
}

func TestRepository_ConcurrentInserts(t *testing.T) {
	repo := openTemp(t)
	other, err := Open(repo.Path())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := repo
			if i%2 == 1 {
				r = other
			}
			_, err := r.Insert(sample("Shop", decimal.NewFromInt(int64(i+1)).StringFixed(2)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := repo.ListAll()
	require.NoError(t, err)
	assert.Len(t, got, 20)
}

func TestRepository_LockTimeout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.csv")
	holder := flock.New(path + ".lock")
	require.NoError(t, holder.Lock())
	defer holder.Unlock()

	repo, err := Open(path, WithLockTimeout(100*time.Millisecond))
	require.NoError(t, err)
	_, err = repo.Insert(sample("Super X", "10.99"))
	assert.ErrorIs(t, err, ErrLocked)
}

func TestSummary(t *testing.T) {
	repo := openTemp(t)
	txns := []model.Transaction{
		sample("Super X", "10.00"),
		sample("Super Y", "5.50"),
		{Timestamp: time.Date(2025, 1, 6, 9, 0, 0, 0, costaRica), Merchant: "Soda", Amount: dec("3000"), Currency: model.CurrencyCRC, Institution: "Davibank"},
	}
	txns[1].Category = "food"
	for _, txn := range txns {
		_, err := repo.Insert(txn)
		require.NoError(t, err)
	}

	s, err := repo.Summary()
	require.NoError(t, err)
	assert.Equal(t, 3, s.Count)
	require.Len(t, s.Groups, 3)
	assert.Equal(t, "BAC", s.Groups[0].Institution)
	assert.Equal(t, "food", s.Groups[0].Category)
	assert.Equal(t, 1, s.Groups[0].Count)
	assert.True(t, s.Groups[0].Total.Equal(dec("5.50")))
	assert.Equal(t, Uncategorized, s.Groups[1].Category)
	assert.Equal(t, "Davibank", s.Groups[2].Institution)
	assert.True(t, s.Totals[model.CurrencyUSD].Equal(dec("15.50")))
	assert.True(t, s.Totals[model.CurrencyCRC].Equal(dec("3000")))

	require.Len(t, s.ByInstitution, 2)
	assert.Equal(t, "BAC", s.ByInstitution[0].Key)
	assert.Equal(t, 2, s.ByInstitution[0].Count)
	assert.True(t, s.ByInstitution[0].Totals[model.CurrencyUSD].Equal(dec("15.50")))
	assert.Equal(t, "Davibank", s.ByInstitution[1].Key)
	assert.Equal(t, 1, s.ByInstitution[1].Count)
	assert.True(t, s.ByInstitution[1].Totals[model.CurrencyCRC].Equal(dec("3000")))

	require.Len(t, s.ByCurrency, 2)
	assert.Equal(t, "CRC", s.ByCurrency[0].Key)
	assert.Equal(t, 1, s.ByCurrency[0].Count)
	assert.Equal(t, "USD", s.ByCurrency[1].Key)
	assert.Equal(t, 2, s.ByCurrency[1].Count)
	assert.True(t, s.ByCurrency[1].Totals[model.CurrencyUSD].Equal(dec("15.50")))

	require.Len(t, s.ByCategory, 2)
	assert.Equal(t, "food", s.ByCategory[0].Key)
	assert.Equal(t, 1, s.ByCategory[0].Count)
	assert.Equal(t, Uncategorized, s.ByCategory[1].Key)
	assert.Equal(t, 2, s.ByCategory[1].Count)
	assert.True(t, s.ByCategory[1].Totals[model.CurrencyUSD].Equal(dec("10.00")))
	assert.True(t, s.ByCategory[1].Totals[model.CurrencyCRC].Equal(dec("3000")))
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.Count)
	assert.Empty(t, s.ByInstitution)
	assert.Empty(t, s.ByCurrency)
	assert.Empty(t, s.ByCategory)
}

func TestFilter(t *testing.T) {
	a := sample("Super X", "10.00")
	b := sample("Soda", "2.00")
	b.Institution = "Davibank"
	b.Category = "food"
	b.Timestamp = time.Date(2025, 2, 1, 12, 0, 0, 0, costaRica)
	txns := []model.Transaction{a, b}

	assert.Len(t, Select(txns, Filter{}), 2)
	assert.Equal(t, []model.Transaction{b}, Select(txns, Filter{Institution: "davibank"}))
	assert.Equal(t, []model.Transaction{a}, Select(txns, Filter{Category: Uncategorized}))
	assert.Equal(t, []model.Transaction{b}, Select(txns, Filter{Since: time.Date(2025, 2, 1, 0, 0, 0, 0, costaRica)}))
	assert.Equal(t, []model.Transaction{a}, Select(txns, Filter{Until: time.Date(2025, 2, 1, 0, 0, 0, 0, costaRica)}))
}

func TestWriteReadTransactions(t *testing.T) {
	txns := []model.Transaction{id.Assign(sample("Super X", "10.99")), id.Assign(sample("Café Britt", "3.00"))}
	txns[1].Category = "coffee"

	var buf bytes.Buffer
	require.NoError(t, WriteTransactions(&buf, txns))

	got, err := ReadTransactions(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, txns[1].GlobalID, got[1].GlobalID)
	assert.Equal(t, "coffee", got[1].Category)
	assert.Equal(t, "Café Britt", got[1].Merchant)
}
