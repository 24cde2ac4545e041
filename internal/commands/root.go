package commands

import (
	"github.com/spf13/cobra"

	"github.com/cleared-dev/mailledger/internal/buildinfo"
	"github.com/cleared-dev/mailledger/internal/config"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	verbose    bool
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:     "mailledger",
		Short:   "Turn bank notification emails into a transaction ledger",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", config.FileName, "path to "+config.FileName)
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(
		newInitCommand(),
		newSyncCommand(g),
		newBackfillCommand(g),
		newListCommand(g),
		newShowCommand(g),
		newUpdateCommand(g),
		newDeleteCommand(g),
		newSummaryCommand(g),
		newCategoriesCommand(g),
		newRunsCommand(g),
		newInstitutionsCommand(g),
	)

	return rootCmd
}
