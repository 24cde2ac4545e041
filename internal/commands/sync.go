package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/mailledger/internal/ingest"
	"github.com/cleared-dev/mailledger/internal/logger"
	"github.com/cleared-dev/mailledger/internal/normalize"
	"github.com/cleared-dev/mailledger/internal/output"
	"github.com/cleared-dev/mailledger/internal/runlog"
)

func newSyncCommand(g *globals) *cobra.Command {
	var details bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import transactions from unseen notification emails",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.load(cmd)
			if err != nil {
				return err
			}
			return e.ingest(cmd, details, func(svc *ingest.Service) (ingest.Result, error) {
				return svc.Sync()
			}, "sync")
		},
	}

	cmd.Flags().BoolVar(&details, "details", false, "list every message that was not imported")
	return cmd
}

func newBackfillCommand(g *globals) *cobra.Command {
	var details bool

	cmd := &cobra.Command{
		Use:   "backfill <start> <end>",
		Short: "Re-import every email received between two dates (YYYY-MM-DD, inclusive)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.load(cmd)
			if err != nil {
				return err
			}
			start, err := normalize.ParseDate(args[0], e.loc)
			if err != nil {
				return err
			}
			end, err := normalize.ParseDate(args[1], e.loc)
			if err != nil {
				return err
			}
			return e.ingest(cmd, details, func(svc *ingest.Service) (ingest.Result, error) {
				return svc.Backfill(start, end)
			}, "backfill "+args[0]+".."+args[1])
		},
	}

	cmd.Flags().BoolVar(&details, "details", false, "list every message that was not imported")
	return cmd
}

// ingest builds the pipeline, runs it, records the run and commits new data.
func (e *env) ingest(cmd *cobra.Command, details bool, run func(*ingest.Service) (ingest.Result, error), mode string) error {
	source, err := e.cfg.Source()
	if err != nil {
		return err
	}
	svc := ingest.NewService(source, e.registry(), e.ledger,
		ingest.WithCategories(e.categories),
		ingest.WithLogger(logger.FromContext(cmd.Context())),
	)

	res, runErr := run(svc)

	entry := runlog.Entry{Timestamp: time.Now().UTC().Truncate(time.Second), RunID: res.RunID, Mode: mode}
	if runErr != nil {
		entry.Detail = runErr.Error()
	} else {
		entry.Processed, entry.Skipped, entry.Errors = res.Processed, res.Skipped, res.Errors
		entry.Detail = res.Detail()
	}
	if err := runlog.Append(e.cfg.DataDir(), entry); err != nil {
		output.Warning(cmd.ErrOrStderr(), "writing run log: %v", err)
	}

	if runErr != nil {
		return runErr
	}

	output.RunResult(cmd.OutOrStdout(), res, details)
	e.commit(cmd, fmt.Sprintf("%s: %d new (%s)", mode, res.Processed, res.Detail()))
	return nil
}
