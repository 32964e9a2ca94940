package internal

import (
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/goplus/archbuild/internal/library"
)

var libsCmd = &cobra.Command{
	Use:   "libs",
	Short: "List the libraries archbuild can build",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printLibraries(cmd.OutOrStdout(), library.Registry(), library.Default)
	},
}

func init() {
	rootCmd.AddCommand(libsCmd)
}

// printLibraries writes one row per library of t. Libraries built when none
// are configured are marked with "*".
func printLibraries(w io.Writer, t library.Table, defaults []string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSYSTEM\tVERSION\tFEATURE\tLICENSE\tDEFAULT")
	for _, name := range t.Names() {
		s := t[name]
		def := ""
		if slices.Contains(defaults, name) {
			def = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", s.Name, s.Kind, s.DefaultVersion, s.Feature, s.License, def)
	}
	return tw.Flush()
}
