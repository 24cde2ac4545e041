// Package ledger stores normalized transactions in a single flat CSV file.
// Records are keyed by global id; the file is rewritten atomically on every
// mutation so readers never observe a partial write.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"

	"github.com/cleared-dev/mailledger/internal/id"
	"github.com/cleared-dev/mailledger/internal/model"
)

// ErrLocked is returned when the ledger lock cannot be acquired in time.
var ErrLocked = errors.New("ledger is locked by another process")

const lockRetryDelay = 50 * time.Millisecond

// Repository is the only component that reads or writes the ledger file.
type Repository struct {
	path        string
	lockTimeout time.Duration

	mu   sync.Mutex
	lock *flock.Flock

	// beforeCommit runs after the new contents are written to the temp file
	// and before the rename. Tests use it to simulate a crash.
	beforeCommit func() error
}

// Option configures a Repository.
type Option func(*Repository)

// WithLockTimeout bounds how long a mutation waits for the file lock.
// Zero waits indefinitely.
func WithLockTimeout(d time.Duration) Option {
	return func(r *Repository) { r.lockTimeout = d }
}

// Open returns a repository for the ledger at path. The file need not exist.
func Open(path string, opts ...Option) (*Repository, error) {
	if path == "" {
		return nil, errors.New("ledger path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving ledger path: %w", err)
	}
	r := &Repository{
		path: abs,
		lock: flock.New(abs + ".lock"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Path returns the absolute ledger file path.
func (r *Repository) Path() string { return r.path }

// ListAll returns every record in file order. A missing file is an empty ledger.
func (r *Repository) ListAll() ([]model.Transaction, error) {
	return r.load()
}

// Get returns the record with the given global id.
func (r *Repository) Get(globalID string) (model.Transaction, error) {
	txns, err := r.load()
	if err != nil {
		return model.Transaction{}, err
	}
	if i := indexOf(txns, globalID); i >= 0 {
		return txns[i], nil
	}
	return model.Transaction{}, fmt.Errorf("%w: %s", ErrNotFound, globalID)
}

// Exists reports whether a record with the given global id is stored.
func (r *Repository) Exists(globalID string) (bool, error) {
	txns, err := r.load()
	if err != nil {
		return false, err
	}
	return indexOf(txns, globalID) >= 0, nil
}

// Insert appends txn unless a record with the same global id exists. It
// returns false when the insert was skipped. An existing record is never
// overwritten. The global id is computed when txn has none.
func (r *Repository) Insert(txn model.Transaction) (bool, error) {
	txn, err := prepare(txn)
	if err != nil {
		return false, err
	}

	inserted := false
	err = r.mutate(func(txns []model.Transaction) ([]model.Transaction, bool, error) {
		if indexOf(txns, txn.GlobalID) >= 0 {
			return txns, false, nil
		}
		inserted = true
		return append(txns, txn), true, nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// Update replaces every field of the record globalID with txn's. The stored
// record keeps globalID even when identity fields change.
func (r *Repository) Update(globalID string, txn model.Transaction) (model.Transaction, error) {
	txn.GlobalID = globalID
	txn.Timestamp = txn.Timestamp.Truncate(time.Minute)
	if err := txn.Validate(); err != nil {
		return model.Transaction{}, fmt.Errorf("invalid transaction: %w", err)
	}

	err := r.mutate(func(txns []model.Transaction) ([]model.Transaction, bool, error) {
		i := indexOf(txns, globalID)
		if i < 0 {
			return nil, false, fmt.Errorf("%w: %s", ErrNotFound, globalID)
		}
		txns[i] = txn
		return txns, true, nil
	})
	if err != nil {
		return model.Transaction{}, err
	}
	return txn, nil
}

// Delete removes the record globalID.
func (r *Repository) Delete(globalID string) error {
	return r.mutate(func(txns []model.Transaction) ([]model.Transaction, bool, error) {
		i := indexOf(txns, globalID)
		if i < 0 {
			return nil, false, fmt.Errorf("%w: %s", ErrNotFound, globalID)
		}
		return append(txns[:i], txns[i+1:]...), true, nil
	})
}

func prepare(txn model.Transaction) (model.Transaction, error) {
	txn.Timestamp = txn.Timestamp.Truncate(time.Minute)
	if err := txn.Validate(); err != nil {
		return model.Transaction{}, fmt.Errorf("invalid transaction: %w", err)
	}
	computed := id.GlobalID(txn)
	if txn.GlobalID != "" && txn.GlobalID != computed {
		return model.Transaction{}, fmt.Errorf("global id %s does not match transaction fields", txn.GlobalID)
	}
	txn.GlobalID = computed
	return txn, nil
}

// mutate runs a read-modify-write cycle under the process mutex and the file
// lock. fn reports whether anything changed; unchanged ledgers are not rewritten.
func (r *Repository) mutate(fn func([]model.Transaction) ([]model.Transaction, bool, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.acquire(); err != nil {
		return err
	}
	defer r.lock.Unlock()

	txns, err := r.load()
	if err != nil {
		return err
	}
	next, changed, err := fn(txns)
	if err != nil || !changed {
		return err
	}
	return r.commit(next)
}

func (r *Repository) acquire() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("creating ledger dir: %w", err)
	}
	if r.lockTimeout <= 0 {
		if err := r.lock.Lock(); err != nil {
			return fmt.Errorf("locking ledger: %w", err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.lockTimeout)
	defer cancel()
	ok, err := r.lock.TryLockContext(ctx, lockRetryDelay)
	if ok {
		return nil
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("locking ledger: %w", err)
	}
	return ErrLocked
}

func (r *Repository) load() ([]model.Transaction, error) {
	f, err := os.Open(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", r.path, err)
	}
	defer f.Close()

	txns, err := ReadTransactions(f)
	if err != nil {
		return nil, fmt.Errorf("reading ledger %s: %w", r.path, err)
	}
	return txns, nil
}

// commit writes txns to a temp file beside the ledger and renames it into place.
func (r *Repository) commit(txns []model.Transaction) error {
	pf, err := renameio.NewPendingFile(r.path,
		renameio.WithTempDir(filepath.Dir(r.path)),
		renameio.WithPermissions(0o644),
	)
	if err != nil {
		return fmt.Errorf("creating temp ledger: %w", err)
	}
	defer pf.Cleanup()

	if err := WriteTransactions(pf, txns); err != nil {
		return fmt.Errorf("writing ledger: %w", err)
	}
	if r.beforeCommit != nil {
		if err := r.beforeCommit(); err != nil {
			return err
		}
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replacing ledger: %w", err)
	}
	return nil
}

func indexOf(txns []model.Transaction, globalID string) int {
	for i, txn := range txns {
		if txn.GlobalID == globalID {
			return i
		}
	}
	return -1
}
