package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RootOptions holds the flags shared by every command.
type RootOptions struct {
	Verbose bool
}

// logger writes to the command's stderr so traces on stdout stay clean.
func (o *RootOptions) logger(cmd *cobra.Command) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(cmd.ErrOrStderr())
	l.SetLevel(logrus.WarnLevel)
	if o.Verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	return logrus.NewEntry(l).WithField("component", "loom-trace")
}

// NewRootCommand creates the loom-trace command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:          "loom-trace",
		Short:        "Replay render scenarios against an in-memory host",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Log render and commit events")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}
