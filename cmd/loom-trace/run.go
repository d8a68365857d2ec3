package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/AnatoleLucet/loom"
	"github.com/AnatoleLucet/loom/internal/trace"
)

// RunOptions holds the flags of the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath string
	Concurrent bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:          "run [scenario.yaml...]",
		Short:        "Run scenarios and print the host operations of every step",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to a YAML root configuration")
	cmd.Flags().BoolVar(&opts.Concurrent, "concurrent", false, "Render every scenario in concurrent mode")

	return cmd
}

func runScenarios(opts *RunOptions, paths []string, cmd *cobra.Command) error {
	cfg := loom.DefaultConfig()
	if opts.ConfigPath != "" {
		var err error
		if cfg, err = loom.LoadConfig(opts.ConfigPath); err != nil {
			return err
		}
	}
	if opts.Concurrent {
		cfg.ConcurrentMode = true
	}

	log := opts.logger(cmd)
	out := cmd.OutOrStdout()
	for i, path := range paths {
		s, err := trace.LoadScenario(path)
		if err != nil {
			return err
		}
		res, err := trace.Run(s, cfg, log.WithField("scenario", s.Name))
		if err != nil {
			return errors.Wrap(err, s.Name)
		}

		if i > 0 {
			if _, err := fmt.Fprintln(out); err != nil {
				return err
			}
		}
		if err := trace.Format(out, res); err != nil {
			return err
		}
	}
	return nil
}
