// Package categories remembers which category the user gave each merchant so
// new transactions from the same merchant can be categorized automatically.
package categories

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"

	"github.com/cleared-dev/mailledger/internal/normalize"
)

// Mapping is one learned merchant→category pair.
type Mapping struct {
	Merchant string
	Category string
}

// Service is an in-memory view of the mappings file. Writes hold an
// exclusive lock on <path>.lock and re-read the file first, so concurrent
// processes never drop each other's mappings.
type Service struct {
	path string
	lock *flock.Flock

	mu       sync.RWMutex
	mappings map[string]string
}

// Key normalizes a merchant name for lookup.
func Key(merchant string) string {
	return strings.ToLower(normalize.Whitespace(merchant))
}

func normalizeCategory(c string) string {
	return normalize.Whitespace(c)
}

// Load reads the mappings file at path. A missing file yields an empty set.
func Load(path string) (*Service, error) {
	m, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return &Service{path: path, lock: flock.New(path + ".lock"), mappings: m}, nil
}

func readFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening categories: %w", err)
	}
	defer f.Close()

	m, err := ReadMappings(f)
	if err != nil {
		return nil, fmt.Errorf("reading categories %s: %w", path, err)
	}
	return m, nil
}

// Get returns the category learned for merchant.
func (s *Service) Get(merchant string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.mappings[Key(merchant)]
	return c, ok
}

// Set records merchant→category and persists the file. Empty input is ignored.
// Mappings written by other processes since Load are kept.
func (s *Service) Set(merchant, category string) error {
	key, category := Key(merchant), normalizeCategory(category)
	if key == "" || category == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	current, err := readFile(s.path)
	if err != nil {
		return err
	}
	s.mappings = current
	if s.mappings[key] == category {
		return nil
	}
	s.mappings[key] = category
	return s.save()
}

// All returns every mapping sorted by merchant.
func (s *Service) All() []Mapping {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Mapping, 0, len(s.mappings))
	for k, v := range s.mappings {
		out = append(out, Mapping{Merchant: k, Category: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Merchant < out[j].Merchant })
	return out
}

// Save writes the mappings file atomically.
func (s *Service) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	unlock, err := s.acquire()
	if err != nil {
		return err
	}
	defer unlock()
	return s.save()
}

func (s *Service) acquire() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("creating categories dir: %w", err)
	}
	if err := s.lock.Lock(); err != nil {
		return nil, fmt.Errorf("locking categories: %w", err)
	}
	return func() { _ = s.lock.Unlock() }, nil
}

func (s *Service) save() error {
	pf, err := renameio.NewPendingFile(s.path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("creating categories file: %w", err)
	}
	defer pf.Cleanup()

	if err := WriteMappings(pf, s.mappings); err != nil {
		return fmt.Errorf("writing categories: %w", err)
	}
	return pf.CloseAtomicallyReplace()
}
