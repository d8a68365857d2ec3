package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AnatoleLucet/loom/internal/trace"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "validate [scenario.yaml...]",
		Short:        "Check that scenarios parse",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := rootOpts.logger(cmd)
			for _, path := range args {
				if _, err := trace.LoadScenario(path); err != nil {
					return err
				}
				log.WithField("path", path).Debug("scenario parsed")
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
