package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "fundscout",
	Short: "Answer startup funding questions over a funded-company knowledge base",
	Long: `fundscout routes funding questions to a research or an advice pipeline
backed by a semantic index of funded companies, a structured company store and
live web lookups.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if os.Getenv("NO_COLOR") != "" {
			noColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(
		serveCmd,
		stopCmd,
		statusCmd,
		askCmd,
		ragCmd,
		searchCmd,
		ingestCmd,
		importCmd,
		sectorsCmd,
		interactionsCmd,
		configCmd,
		mcpCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
