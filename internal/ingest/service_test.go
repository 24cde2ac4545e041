package ingest

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/mailledger/internal/categories"
	"github.com/cleared-dev/mailledger/internal/id"
	"github.com/cleared-dev/mailledger/internal/ledger"
	"github.com/cleared-dev/mailledger/internal/logger"
	"github.com/cleared-dev/mailledger/internal/mail"
	"github.com/cleared-dev/mailledger/internal/model"
	"github.com/cleared-dev/mailledger/internal/parsers"
)

const fixtures = "../../testdata/mail"

var costaRica = time.FixedZone("CST", -6*60*60)

// mailDir copies every fixture into a fresh directory.
func mailDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	entries, err := os.ReadDir(fixtures)
	require.NoError(t, err)
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(fixtures, e.Name()))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, e.Name()), data, 0o644))
	}
	return dir
}

func loadMessage(t *testing.T, name string) mail.Message {
	t.Helper()
	f, err := os.Open(filepath.Join(fixtures, name))
	require.NoError(t, err)
	defer f.Close()
	msg, err := mail.Parse(f)
	require.NoError(t, err)
	msg.UID = name
	return msg
}

func openLedger(t *testing.T) *ledger.Repository {
	t.Helper()
	repo, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.csv"))
	require.NoError(t, err)
	return repo
}

// staticSource returns the same messages on every fetch.
type staticSource struct {
	msgs []mail.Message
	err  error
}

func (s *staticSource) Fetch(mail.Criteria) ([]mail.Message, error) {
	return s.msgs, s.err
}

type brokenLedger struct{ err error }

func (b brokenLedger) Exists(string) (bool, error)             { return false, b.err }
func (b brokenLedger) Insert(model.Transaction) (bool, error) { return false, b.err }

func TestSync_DirSource(t *testing.T) {
	repo := openLedger(t)
	svc := NewService(mail.NewDirSource(mailDir(t)), parsers.DefaultRegistry(costaRica), repo)

	res, err := svc.Sync()
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.Unrecognized)
	assert.Equal(t, 0, res.Duplicates)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, res.Messages, 5)
	assert.NotEmpty(t, res.RunID)

	txns, err := repo.ListAll()
	require.NoError(t, err)
	require.Len(t, txns, 3)
	for _, txn := range txns {
		assert.Equal(t, id.GlobalID(txn), txn.GlobalID)
	}

	// Everything was marked seen; a second sync has nothing to do.
	res, err = svc.Sync()
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed+res.Skipped+res.Errors)

	txns, err = repo.ListAll()
	require.NoError(t, err)
	assert.Len(t, txns, 3)
}

func TestSync_RedeliveryIsIdempotent(t *testing.T) {
	repo := openLedger(t)
	bac := loadMessage(t, "bac_purchase.eml")
	resent := bac
	resent.UID = "resent"
	src := &staticSource{msgs: []mail.Message{bac, resent}}
	svc := NewService(src, parsers.DefaultRegistry(costaRica), repo)

	res, err := svc.Sync()
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Duplicates)

	res, err = svc.Sync()
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, 2, res.Duplicates)
	assert.Equal(t, 2, res.Skipped)
	for _, mr := range res.Messages {
		assert.ErrorIs(t, mr.Err, ErrDuplicateTransaction)
	}

	txns, err := repo.ListAll()
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

func TestBackfill_AfterSyncOnlyDuplicates(t *testing.T) {
	repo := openLedger(t)
	svc := NewService(mail.NewDirSource(mailDir(t)), parsers.DefaultRegistry(costaRica), repo)

	_, err := svc.Sync()
	require.NoError(t, err)

	res, err := svc.Backfill(
		time.Date(2025, 1, 1, 0, 0, 0, 0, costaRica),
		time.Date(2026, 1, 31, 0, 0, 0, 0, costaRica),
	)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, 3, res.Duplicates)
	assert.Equal(t, 1, res.Unrecognized)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, "backfill 2025-01-01..2026-01-31", res.Mode)

	txns, err := repo.ListAll()
	require.NoError(t, err)
	assert.Len(t, txns, 3)
}

func TestBackfill_TwiceOverOverlappingRanges(t *testing.T) {
	dir := mailDir(t)
	late := `From: "Davivienda Costa Rica" <notificaciones@davivienda.com>
Subject: Aviso de compra con su tarjeta
Date: Fri, 10 Jan 2025 23:58:00 -0600
MIME-Version: 1.0
Content-Type: text/plain; charset=UTF-8

Comercio: AUTOMERCADO
Monto: USD 7.10
Fecha: 10/01/2025 23:57
Tarjeta terminada en 9012
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "davivienda_late.eml"), []byte(late), 0o644))

	repo := openLedger(t)
	svc := NewService(mail.NewDirSource(dir), parsers.DefaultRegistry(costaRica), repo)
	day := func(d int) time.Time { return time.Date(2025, 1, d, 0, 0, 0, 0, costaRica) }

	first, err := svc.Backfill(day(1), day(10))
	require.NoError(t, err)
	assert.Equal(t, 3, first.Processed, "message received late on the end day is included")
	assert.Equal(t, 1, first.Unrecognized)
	assert.Equal(t, 1, first.Errors)

	second, err := svc.Backfill(day(1), day(10))
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, first.Processed, second.Duplicates)
	assert.Equal(t, first.Processed+first.Unrecognized, second.Skipped)
	assert.Equal(t, first.Errors, second.Errors)

	overlap, err := svc.Backfill(day(8), day(12))
	require.NoError(t, err)
	assert.Equal(t, 0, overlap.Processed)
	assert.Equal(t, 2, overlap.Duplicates)
	assert.Equal(t, 1, overlap.Unrecognized)

	txns, err := repo.ListAll()
	require.NoError(t, err)
	assert.Len(t, txns, 3)
	assert.Equal(t, "AUTOMERCADO", txns[2].Merchant)
}

func TestBackfill_InvalidRange(t *testing.T) {
	svc := NewService(&staticSource{}, parsers.DefaultRegistry(costaRica), openLedger(t))
	_, err := svc.Backfill(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorContains(t, err, "before start date")
}

func TestSync_UnrecognizedOnly(t *testing.T) {
	repo := openLedger(t)
	src := &staticSource{msgs: []mail.Message{loadMessage(t, "unknown_sender.eml")}}
	res, err := NewService(src, parsers.DefaultRegistry(costaRica), repo).Sync()
	require.NoError(t, err)
	assert.Equal(t, Result{RunID: res.RunID, Mode: "sync", Skipped: 1, Unrecognized: 1, Messages: res.Messages}, res)
	assert.Equal(t, OutcomeUnrecognized, res.Messages[0].Outcome)
	assert.ErrorIs(t, res.Messages[0].Err, parsers.ErrUnrecognizedSender)

	txns, err := repo.ListAll()
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestSync_FetchFailure(t *testing.T) {
	repo := openLedger(t)
	dial := errors.New("dial tcp: connection refused")
	svc := NewService(&staticSource{err: dial}, parsers.DefaultRegistry(costaRica), repo)

	res, err := svc.Sync()
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorIs(t, err, dial)
	assert.NotEmpty(t, res.RunID, "run id survives for the run log")
	assert.Equal(t, "sync", res.Mode)
	assert.Zero(t, res.Processed+res.Skipped+res.Errors)
	assert.Empty(t, res.Messages)
	assert.NoFileExists(t, repo.Path())
}

func TestSync_LedgerFailureAborts(t *testing.T) {
	boom := errors.New("disk on fire")
	src := &staticSource{msgs: []mail.Message{loadMessage(t, "bac_purchase.eml")}}
	res, err := NewService(src, parsers.DefaultRegistry(costaRica), brokenLedger{err: boom}).Sync()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Result{RunID: res.RunID, Mode: "sync"}, res)
	assert.NotEmpty(t, res.RunID)
}

func TestSync_CorruptLedgerAborts(t *testing.T) {
	repo := openLedger(t)
	require.NoError(t, os.WriteFile(repo.Path(), []byte("not,a,ledger\n"), 0o644))

	src := &staticSource{msgs: []mail.Message{loadMessage(t, "bac_purchase.eml")}}
	_, err := NewService(src, parsers.DefaultRegistry(costaRica), repo).Sync()
	assert.ErrorIs(t, err, ledger.ErrCorrupt)
}

func TestBackfill_EditedRecordKeepsIdentity(t *testing.T) {
	repo := openLedger(t)
	msg := loadMessage(t, "bac_purchase.eml")
	svc := NewService(&staticSource{msgs: []mail.Message{msg}}, parsers.DefaultRegistry(costaRica), repo)

	_, err := svc.Sync()
	require.NoError(t, err)
	txns, err := repo.ListAll()
	require.NoError(t, err)
	require.Len(t, txns, 1)
	original := txns[0]

	edited := original
	edited.Merchant = "Super X Escazú"
	edited.Notes = "weekly groceries"
	edited.Category = "groceries"
	_, err = repo.Update(original.GlobalID, edited)
	require.NoError(t, err)

	res, err := svc.Backfill(time.Date(2025, 1, 5, 0, 0, 0, 0, costaRica), time.Date(2025, 1, 5, 0, 0, 0, 0, costaRica))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 0, res.Processed)

	got, err := repo.Get(original.GlobalID)
	require.NoError(t, err)
	assert.Equal(t, "Super X Escazú", got.Merchant)
	assert.Equal(t, "weekly groceries", got.Notes)
}

func TestSync_AppliesLearnedCategory(t *testing.T) {
	repo := openLedger(t)
	cats, err := categories.Load(filepath.Join(t.TempDir(), "categories.csv"))
	require.NoError(t, err)
	require.NoError(t, cats.Set("super x", "Groceries"))

	src := &staticSource{msgs: []mail.Message{loadMessage(t, "bac_purchase.eml"), loadMessage(t, "davivienda_purchase.eml")}}
	_, err = NewService(src, parsers.DefaultRegistry(costaRica), repo, WithCategories(cats)).Sync()
	require.NoError(t, err)

	txns, err := repo.ListAll()
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "Groceries", txns[0].Category)
	assert.Equal(t, id.GlobalID(txns[0]), txns[0].GlobalID, "category does not affect identity")
	assert.False(t, txns[1].HasCategory())
}

func TestSync_LogsPhases(t *testing.T) {
	var buf bytes.Buffer
	src := &staticSource{msgs: []mail.Message{loadMessage(t, "bac_purchase.eml")}}
	res, err := NewService(src, parsers.DefaultRegistry(costaRica), openLedger(t), WithLogger(logger.NewWithWriter(&buf))).Sync()
	require.NoError(t, err)

	out := buf.String()
	for _, p := range []Phase{PhaseFetching, PhaseParsing, PhaseDeduping, PhasePersisting, PhaseDone} {
		assert.Contains(t, out, `"phase":"`+string(p)+`"`)
	}
	assert.Contains(t, out, `"run_id":"`+res.RunID+`"`)
	assert.Contains(t, out, `"outcome":"persisted"`)
}

func TestResult_Detail(t *testing.T) {
	r := Result{Duplicates: 2, Unrecognized: 1, Errors: 3}
	assert.Equal(t, "duplicates=2 unrecognized=1 unparseable=3", r.Detail())
}
