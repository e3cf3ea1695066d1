package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "0.1.0"

type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "tableflow",
		Short: "Concurrent table import into a document store",
		Long: `tableflow reads one or more tables (CSV, JSON, NDJSON; local or over HTTP),
keeps the rows that pass the configured filters, transforms them, and inserts
them into a collection of the configured storage backend.

Tables are processed concurrently and every row gets exactly one outcome:
stored, skipped or failed. A failing row or table never stops the others.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.envFile == "" {
				return nil
			}
			// Variables already set in the environment win over the file.
			if err := godotenv.Load(opts.envFile); err != nil {
				return fmt.Errorf("env file %s: %w", opts.envFile, err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "configs/pipelines/sample.yaml", "pipeline config file (YAML or JSON)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file with TABLEFLOW_* overrides")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newValidateCmd(opts))
	return root
}
