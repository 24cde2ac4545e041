package commands

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/mailledger/internal/categories"
	"github.com/cleared-dev/mailledger/internal/config"
	"github.com/cleared-dev/mailledger/internal/gitops"
	"github.com/cleared-dev/mailledger/internal/ledger"
	"github.com/cleared-dev/mailledger/internal/logger"
	"github.com/cleared-dev/mailledger/internal/output"
	"github.com/cleared-dev/mailledger/internal/parsers"
)

// env is everything a command needs once the config is loaded.
type env struct {
	cfg        *config.Config
	loc        *time.Location
	ledger     *ledger.Repository
	categories *categories.Service
	log        zerolog.Logger
}

func (g *globals) load(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	repo, err := ledger.Open(cfg.LedgerPath(), ledger.WithLockTimeout(30*time.Second))
	if err != nil {
		return nil, err
	}
	cats, err := categories.Load(cfg.CategoriesPath())
	if err != nil {
		return nil, err
	}

	log := logger.New(cmd.ErrOrStderr(), g.verbose)
	cmd.SetContext(logger.WithContext(cmd.Context(), log))

	return &env{cfg: cfg, loc: loc, ledger: repo, categories: cats, log: log}, nil
}

func (e *env) registry() *parsers.Registry {
	return parsers.DefaultRegistry(e.loc)
}

// commit records data dir changes in git when auto-commit is on. Failures
// are reported but never fail the command; the data is already saved.
func (e *env) commit(cmd *cobra.Command, message string) {
	if !e.cfg.Git.AutoCommit || !gitops.IsRepo(e.cfg.Dir()) {
		return
	}
	rel, err := filepath.Rel(e.cfg.Dir(), e.cfg.DataDir())
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = e.cfg.DataDir()
	}
	author := gitops.Author{Name: e.cfg.Git.AuthorName, Email: e.cfg.Git.AuthorEmail}
	hash, err := gitops.Commit(e.cfg.Dir(), message, author, rel)
	switch {
	case errors.Is(err, gitops.ErrNothingToCommit):
	case err != nil:
		output.Warning(cmd.ErrOrStderr(), "git commit failed: %v", err)
	default:
		e.log.Debug().Str("commit", hash).Msg("committed data dir")
	}
}

// resolveID expands a global id prefix to a full id.
func (e *env) resolveID(prefix string) (string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", errors.New("transaction id is required")
	}
	txns, err := e.ledger.ListAll()
	if err != nil {
		return "", err
	}
	var matches []string
	for _, t := range txns {
		if strings.HasPrefix(t.GlobalID, prefix) {
			matches = append(matches, t.GlobalID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ledger.ErrNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("id prefix %s is ambiguous (%d matches)", prefix, len(matches))
	}
}
