package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// app holds state shared by the subcommands.
type app struct {
	verbose bool
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	root := &cobra.Command{
		Use:           "nxconvert",
		Short:         "Convert instrument geometry into NeXus files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelWarn
			if a.verbose {
				level = slog.LevelDebug
			}
			a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log progress to stderr")

	root.AddCommand(
		newBuildCmd(a),
		newExportOFFCmd(a),
		newProfileCmd(a),
		newDumpCmd(),
	)
	return root
}
