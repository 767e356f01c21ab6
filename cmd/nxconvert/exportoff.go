package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/scigolib/nexus"
)

func newExportOFFCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export-off <file.nxs> [out.off]",
		Short: "Write the geometry of a NeXus file as one OFF mesh",
		Long: `Export-off places every solid geometry and grid shape group in the lab
frame, repeating pixel shapes at each pixel offset, and writes the combined
mesh to out.off or to stdout.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			var w io.Writer = cmd.OutOrStdout()
			if len(args) == 2 {
				f, err := os.Create(args[1])
				if err != nil {
					return err
				}
				defer func() {
					if cerr := f.Close(); err == nil {
						err = cerr
					}
				}()
				w = f
			}
			placed, err := nexus.ExportOFF(args[0], w)
			if err != nil {
				return err
			}
			a.logger.Info("exported geometry", "file", args[0], "shapes", placed)
			return nil
		},
	}
}
