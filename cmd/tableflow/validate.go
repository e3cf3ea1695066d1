package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tableflow/internal/config"
	"tableflow/internal/transformer"
)

var errInvalidConfig = errors.New("configuration is invalid")

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Lint a pipeline config without running it",
		Long: `Decode the pipeline config, apply environment overrides, and report
errors and warnings. Filter and transform steps are also built, so bad step
options are caught here rather than at run time.

Examples:
  tableflow validate -c pipelines/nightly.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if err := checkPipeline(cmd.ErrOrStderr(), p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid: %s\n", opts.configPath)
			return nil
		},
	}
}

// checkPipeline prints lint issues to w and fails on any error-level issue
// or on steps that cannot be built.
func checkPipeline(w io.Writer, p config.Pipeline) error {
	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return errInvalidConfig
	}
	if _, _, err := transformer.Build(p); err != nil {
		fmt.Fprintf(w, "%s: %v\n", config.SeverityError, err)
		return errInvalidConfig
	}
	return nil
}
