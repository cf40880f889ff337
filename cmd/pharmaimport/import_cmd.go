package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/pharmaimport/internal/config"
	"github.com/JonMunkholm/pharmaimport/internal/core"
	"github.com/JonMunkholm/pharmaimport/internal/logging"
	"github.com/JonMunkholm/pharmaimport/internal/submit"
)

type importOptions struct {
	File        string
	Country     string
	Categories  []string
	Specialty   string
	BaseURL     string
	Token       string
	ReportPath  string
	DryRun      bool
	PreviewRows int
}

// exitRowsFailed is returned when the upload finished with failed rows.
const exitRowsFailed = 2

func newImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import <kind> --file <path> [--country <id>] [--categories <id,...>] [--specialty <id>]",
		Short: "Parse a spreadsheet and submit it in paced batches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(opts.File) == "" {
				return fmt.Errorf("--file is required")
			}
			def, err := core.Lookup(args[0])
			if err != nil {
				return err
			}

			_ = godotenv.Load()
			cfg, err := config.LoadFrom(overrideLookup(map[string]string{
				"API_BASE_URL": opts.BaseURL,
				"API_TOKEN":    opts.Token,
			}))
			if err != nil {
				return err
			}
			logger := logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
			core.MaxFileSize = cfg.Import.MaxFileSize

			data, err := os.ReadFile(opts.File)
			if err != nil {
				return fmt.Errorf("read %s: %w", opts.File, err)
			}

			out := cmd.OutOrStdout()
			sess := core.NewSession(uuid.NewString(), def, core.SessionOptions{
				Scheduler: core.SchedulerConfig{
					BatchSize:   cfg.Import.BatchSize,
					PacingDelay: cfg.Import.PacingDelay,
				},
				OnProgress: func(p core.Progress) {
					if p.State == core.StateUploading && p.BatchesDone > 0 {
						fmt.Fprintf(cmd.ErrOrStderr(), "batch %d/%d  %3d%%  created=%d failed=%d\n",
							p.BatchesDone, p.BatchesTotal, p.Percent, p.SuccessCount, p.FailedCount)
					}
				},
				OnSuccess: func(r core.AggregateReport) {
					logger.Info("records created", "kind", def.Key, "created", r.SuccessCount)
				},
				Logger: logger,
			})

			if err := sess.SetParams(core.SharedParams{
				CountryID:   opts.Country,
				CategoryIDs: opts.Categories,
				SpecialtyID: opts.Specialty,
			}); err != nil {
				return err
			}
			if err := sess.Parse(cmd.Context(), filepath.Base(opts.File), data); err != nil {
				return fmt.Errorf("%s", core.FormatUserError(err))
			}

			snap := sess.Snapshot()
			fmt.Fprintf(out, "parsed %d rows from %s\n", snap.RowCount, snap.FileName)
			if len(snap.Unmatched) > 0 {
				fmt.Fprintf(out, "ignored columns: %s\n", strings.Join(snap.Unmatched, ", "))
			}

			if opts.DryRun {
				return printPreview(out, sess.Preview(opts.PreviewRows))
			}

			client, err := submit.New(submit.Config{
				BaseURL:         cfg.Submission.BaseURL,
				Token:           cfg.Submission.Token,
				Timeout:         cfg.Submission.Timeout,
				RequestIDHeader: cfg.Submission.RequestIDHeader,
				Logger:          logger,
			})
			if err != nil {
				return err
			}

			report, err := sess.Upload(cmd.Context(), client)
			printReport(out, report)
			if opts.ReportPath != "" {
				if werr := writeReport(opts.ReportPath, report); werr != nil {
					return werr
				}
			}
			if err != nil {
				return fmt.Errorf("%s", core.FormatUserError(err))
			}
			if report.FailedCount > 0 {
				return &exitError{code: exitRowsFailed, err: fmt.Errorf("%d of %d rows failed", report.FailedCount, report.Total)}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.File, "file", "", "spreadsheet to import (.xlsx or .csv)")
	f.StringVar(&opts.Country, "country", "", "country id applied to every record")
	f.StringSliceVar(&opts.Categories, "categories", nil, "category ids applied to every record")
	f.StringVar(&opts.Specialty, "specialty", "", "specialty id for rows without a specialty")
	f.StringVar(&opts.BaseURL, "base-url", "", "submission API base URL (overrides API_BASE_URL)")
	f.StringVar(&opts.Token, "token", "", "submission API bearer token (overrides API_TOKEN)")
	f.StringVar(&opts.ReportPath, "report", "", "write the final report as JSON to this path")
	f.BoolVar(&opts.DryRun, "dry-run", false, "parse and map only, print a preview")
	f.IntVar(&opts.PreviewRows, "preview", 5, "records shown by --dry-run")
	return cmd
}

// overrideLookup consults non-empty overrides before the environment.
func overrideLookup(overrides map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v := overrides[key]; v != "" {
			return v, true
		}
		return os.LookupEnv(key)
	}
}

func printPreview(w io.Writer, records []core.MappedRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func printReport(w io.Writer, r core.AggregateReport) {
	fmt.Fprintf(w, "total=%d created=%d failed=%d\n", r.Total, r.SuccessCount, r.FailedCount)
	for _, e := range r.Errors {
		if e.Batch > 0 {
			fmt.Fprintf(w, "  row %d (batch %d): %s\n", e.RowNumber, e.Batch, e.Message)
			continue
		}
		fmt.Fprintf(w, "  row %d: %s\n", e.RowNumber, e.Message)
	}
}

func writeReport(path string, r core.AggregateReport) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
