package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/pharmaimport/internal/core"
)

type templateOptions struct {
	Format string
	Out    string
}

func newTemplateCmd() *cobra.Command {
	var opts templateOptions

	cmd := &cobra.Command{
		Use:   "template <kind> [--format xlsx|csv] [--out <path>]",
		Short: "Write an empty import template with example rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := core.Lookup(args[0])
			if err != nil {
				return err
			}
			format, err := core.ParseTemplateFormat(opts.Format)
			if err != nil {
				return err
			}
			data, err := core.ExportTemplate(def, format)
			if err != nil {
				return err
			}

			out := opts.Out
			if out == "" {
				out = core.TemplateFileName(def, format)
			}
			if out == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if dir := filepath.Dir(out); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create output dir: %w", err)
				}
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write template: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Format, "format", "xlsx", "template format: xlsx or csv")
	cmd.Flags().StringVar(&opts.Out, "out", "", "output path, - for stdout (default <kind>_template.<format>)")
	return cmd
}
