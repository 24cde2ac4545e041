package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/mailledger/internal/config"
	"github.com/cleared-dev/mailledger/internal/gitops"
	"github.com/cleared-dev/mailledger/internal/output"
	"github.com/cleared-dev/mailledger/internal/runlog"
)

type initOptions struct {
	timezone string
	source   string
	noGit    bool
}

func newInitCommand() *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new mailledger project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			return runInit(cmd.OutOrStdout(), absDir, opts)
		},
	}

	cmd.Flags().StringVar(&opts.timezone, "timezone", "America/Costa_Rica", "IANA zone bank emails are written in")
	cmd.Flags().StringVar(&opts.source, "source", config.SourceDir, "mail source (dir or imap)")
	cmd.Flags().BoolVar(&opts.noGit, "no-git", false, "do not create a git repository")

	return cmd
}

func runInit(w io.Writer, dir string, opts initOptions) error {
	cfgPath := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("%s already exists", cfgPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking config: %w", err)
	}

	cfg := config.Default(dir)
	cfg.Timezone = opts.timezone
	cfg.Mail.Source = opts.source
	if opts.source == config.SourceIMAP {
		// Placeholders so the file documents what to fill in.
		cfg.Mail.Host = "imap.example.com"
		cfg.Mail.Username = "you@example.com"
		cfg.Mail.PasswordEnv = "MAILLEDGER_IMAP_PASSWORD"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dirs := []string{cfg.DataDir(), filepath.Join(cfg.DataDir(), filepath.Dir(runlog.File))}
	if cfg.Mail.Source == config.SourceDir {
		dirs = append(dirs, cfg.MailDir())
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	// Raw mail and lock files stay out of history.
	gitignore := cfg.Mail.Dir + "/\n*.lock\n"
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(gitignore), 0o644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.DataDir(), ".gitkeep"), []byte{}, 0o644); err != nil {
		return fmt.Errorf("writing .gitkeep: %w", err)
	}

	if opts.noGit || gitops.IsRepo(dir) {
		output.Success(w, "Initialized mailledger project at %s", dir)
		return nil
	}

	if err := gitops.Init(dir); err != nil {
		return fmt.Errorf("git init: %w", err)
	}
	author := gitops.Author{Name: cfg.Git.AuthorName, Email: cfg.Git.AuthorEmail}
	hash, err := gitops.Commit(dir, "init: mailledger project", author)
	if err != nil {
		return fmt.Errorf("initial commit: %w", err)
	}

	output.Success(w, "Initialized mailledger project at %s (%s)", dir, hash)
	return nil
}
