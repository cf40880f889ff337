package core

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// MaxFileSize is the maximum accepted spreadsheet size (10MB).
var MaxFileSize int64 = 10 * 1024 * 1024

var (
	zipMagic = []byte{'P', 'K', 0x03, 0x04}
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Ingest decodes raw file content into rows. XLSX workbooks are detected by
// their ZIP signature and only the first sheet is read; anything else is
// decoded as CSV. The first non-blank row is the header; fully blank rows
// after it are skipped.
//
// Ingest is atomic: on failure it returns a *ParseError and no rows.
func Ingest(ctx context.Context, fileName string, data []byte) ([]RawRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if int64(len(data)) > MaxFileSize {
		return nil, &ParseError{
			FileName: fileName,
			Reason:   fmt.Sprintf("file too large: %d bytes exceeds %d", len(data), MaxFileSize),
		}
	}

	var (
		records [][]string
		err     error
	)
	switch {
	case bytes.HasPrefix(data, zipMagic):
		records, err = readFirstSheet(data)
	case bytes.HasPrefix(data, oleMagic):
		return nil, &ParseError{FileName: fileName, Reason: "legacy xls workbooks are not supported"}
	case bytes.IndexByte(data, 0) >= 0:
		return nil, &ParseError{FileName: fileName, Reason: "not a spreadsheet: binary content"}
	default:
		records, err = readCSV(data)
	}
	if err != nil {
		return nil, &ParseError{FileName: fileName, Reason: "corrupt or unreadable content", Err: err}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := buildRows(records)
	if err != nil {
		return nil, &ParseError{FileName: fileName, Reason: err.Error()}
	}
	return rows, nil
}

// readFirstSheet returns the cell grid of the workbook's first sheet.
func readFirstSheet(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(wrapCSVSource(bytes.NewReader(data)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.Comma = detectDelimiter(data)
	return r.ReadAll()
}

// detectDelimiter picks the most frequent of ',', ';' and tab in the first
// line. Excel writes ';' under Spanish locales and tab for "Text" exports.
// Ties go to ','.
func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// buildRows turns a cell grid into RawRows keyed by the header row.
func buildRows(records [][]string) ([]RawRow, error) {
	headerAt := -1
	for i, rec := range records {
		if !isBlankRecord(rec) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, errors.New("empty file: no header row")
	}

	header := make([]string, len(records[headerAt]))
	for i, h := range records[headerAt] {
		header[i] = CollapseSpaces(h)
	}

	rows := make([]RawRow, 0, len(records)-headerAt-1)
	for _, rec := range records[headerAt+1:] {
		if isBlankRecord(rec) {
			continue
		}
		row := NewRawRow(header, rec)
		if row.IsBlank() {
			// Values only under unnamed columns.
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// HeaderOf returns the header names shared by rows, or nil for no rows.
func HeaderOf(rows []RawRow) []string {
	if len(rows) == 0 {
		return nil
	}
	return rows[0].Columns()
}
