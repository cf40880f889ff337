package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pharmaimport",
		Short:         "Bulk import doctors and specialties from spreadsheets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newKindsCmd())
	cmd.AddCommand(newTemplateCmd())
	cmd.AddCommand(newImportCmd())
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}
