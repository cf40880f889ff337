package core

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// TemplateFormat selects the template file type.
type TemplateFormat string

const (
	TemplateXLSX TemplateFormat = "xlsx"
	TemplateCSV  TemplateFormat = "csv"
)

// ParseTemplateFormat accepts "xlsx" (default for "") and "csv".
func ParseTemplateFormat(s string) (TemplateFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "xlsx":
		return TemplateXLSX, nil
	case "csv":
		return TemplateCSV, nil
	default:
		return "", fmt.Errorf("unsupported template format %q", s)
	}
}

// ContentType returns the MIME type of the format.
func (f TemplateFormat) ContentType() string {
	if f == TemplateCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// TemplateFileName returns the download name for def in format f.
func TemplateFileName(def Definition, f TemplateFormat) string {
	return fmt.Sprintf("%s_template.%s", def.Key, f)
}

const (
	templateDataSheet = "Data"
	templateHelpSheet = "Columns"
)

// ExportTemplate renders a file whose header row uses the canonical column
// names of def, followed by its example rows. Ingesting the result yields
// one record per example row.
func ExportTemplate(def Definition, f TemplateFormat) ([]byte, error) {
	switch f {
	case TemplateCSV:
		return exportCSVTemplate(def)
	case TemplateXLSX:
		return exportXLSXTemplate(def)
	default:
		return nil, fmt.Errorf("unsupported template format %q", f)
	}
}

func exportCSVTemplate(def Definition) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(def.Aliases.CanonicalHeaders()); err != nil {
		return nil, err
	}
	for _, ex := range def.Examples {
		if err := w.Write(padRow(ex, len(def.Aliases))); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// exportXLSXTemplate writes the data sheet first, so ingestion of the
// template reads it, plus a second sheet listing accepted header spellings.
func exportXLSXTemplate(def Definition) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), templateDataSheet); err != nil {
		return nil, err
	}

	headers := def.Aliases.CanonicalHeaders()
	if err := setRow(f, templateDataSheet, 1, headers); err != nil {
		return nil, err
	}
	for i, ex := range def.Examples {
		if err := setRow(f, templateDataSheet, i+2, padRow(ex, len(headers))); err != nil {
			return nil, err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if len(headers) > 0 {
		last, err := excelize.CoordinatesToCellName(len(headers), 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(templateDataSheet, "A1", last, bold); err != nil {
			return nil, err
		}
		lastCol, _ := excelize.ColumnNumberToName(len(headers))
		if err := f.SetColWidth(templateDataSheet, "A", lastCol, 20); err != nil {
			return nil, err
		}
	}

	if _, err := f.NewSheet(templateHelpSheet); err != nil {
		return nil, err
	}
	if err := setRow(f, templateHelpSheet, 1, []string{"Column", "Accepted headers"}); err != nil {
		return nil, err
	}
	for i, a := range def.Aliases {
		if err := setRow(f, templateHelpSheet, i+2, []string{a.Canonical(), strings.Join(a.Headers, ", ")}); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(templateHelpSheet, "A1", "B1", bold); err != nil {
		return nil, err
	}

	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return f.SetSheetRow(sheet, cell, &vals)
}

func padRow(row []string, width int) []string {
	if len(row) >= width {
		return row[:width]
	}
	out := make([]string, width)
	copy(out, row)
	return out
}
