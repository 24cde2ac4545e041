package main

import (
	"os"

	"github.com/cleared-dev/mailledger/internal/commands"
	"github.com/cleared-dev/mailledger/internal/output"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		output.Error(os.Stderr, err)
		os.Exit(1)
	}
}
