package commands

import (
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/mailledger/internal/config"
	"github.com/cleared-dev/mailledger/internal/output"
	"github.com/cleared-dev/mailledger/internal/runlog"
)

func newCategoriesCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List learned merchant categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.load(cmd)
			if err != nil {
				return err
			}
			return output.Mappings(cmd.OutOrStdout(), e.categories.All())
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <merchant> <category>",
		Short: "Categorize future transactions from a merchant",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.load(cmd)
			if err != nil {
				return err
			}
			if err := e.categories.Set(args[0], args[1]); err != nil {
				return err
			}
			output.Success(cmd.OutOrStdout(), "%s → %s", args[0], args[1])
			e.commit(cmd, "categories: "+args[0])
			return nil
		},
	})
	return cmd
}

func newRunsCommand(g *globals) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show sync and backfill history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.load(cmd)
			if err != nil {
				return err
			}
			entries, err := runlog.Read(e.cfg.DataDir())
			if err != nil {
				return err
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}
			return output.Runs(cmd.OutOrStdout(), entries)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "most recent runs to show (0 for all)")
	return cmd
}

// locationFor uses the configured zone when a config exists, else UTC.
func locationFor(g *globals) (*time.Location, error) {
	cfg, err := config.Load(g.configPath)
	if errors.Is(err, os.ErrNotExist) {
		return time.UTC, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg.Location()
}
