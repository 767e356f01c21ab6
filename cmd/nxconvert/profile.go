package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/scigolib/nexus"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
)

func newProfileCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "profile <file.h5>",
		Short: "Show which datasets take up the space in an HDF5 file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sizes, total, err := nexus.Profile(args[0])
			if err != nil {
				return err
			}
			a.logger.Debug("profiled file", "file", args[0], "datasets", len(sizes))
			if limit > 0 && len(sizes) > limit {
				sizes = sizes[:limit]
			}
			cmd.Println(profileTable(sizes))
			cmd.Printf("total %s in %s\n", humanBytes(total), args[0])
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "show at most n datasets, 0 for all")
	return cmd
}

func profileTable(sizes []nexus.DatasetSize) string {
	rows := make([][]string, 0, len(sizes))
	for _, s := range sizes {
		dims := make([]string, len(s.Dims))
		for i, d := range s.Dims {
			dims[i] = fmt.Sprint(d)
		}
		shape := "scalar"
		if len(dims) > 0 {
			shape = strings.Join(dims, "x")
		}
		rows = append(rows, []string{
			s.Path, s.Class, shape, humanBytes(s.Bytes), fmt.Sprintf("%.1f%%", s.Percent),
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("DATASET", "TYPE", "SHAPE", "SIZE", "SHARE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col >= 3:
				return numberStyle
			}
			return cellStyle
		}).
		String()
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
