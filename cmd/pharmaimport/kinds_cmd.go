package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/pharmaimport/internal/core"
)

func newKindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List import kinds with their columns and required parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tENDPOINT\tREQUIRED\tCOLUMNS")
			for _, def := range core.All() {
				required := strings.Join(def.RequiredParams, ",")
				if required == "" {
					required = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					def.Key, def.Path, required,
					strings.Join(def.Aliases.CanonicalHeaders(), ", "))
			}
			return tw.Flush()
		},
	}
}
