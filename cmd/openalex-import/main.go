package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/OFFIS-RIT/openalex-import/internal/util"
	"github.com/OFFIS-RIT/openalex-import/pkg/logger"
	"github.com/OFFIS-RIT/openalex-import/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	root := importCmd()
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
			Debug:  util.GetEnvBool("DEBUG", false),
			Format: util.GetEnv("LOG_FORMAT"),
		}))
	}
	root.SilenceUsage = true
	root.AddCommand(replayCmd())

	if err := root.Execute(); err != nil {
		logger.Error("Import failed", "err", err)
		os.Exit(1)
	}
}
