package core

import (
	"bytes"
	"encoding/json"
)

// RawRow is one decoded spreadsheet row: an ordered mapping of header name to
// cell value. Headers that are absent from the row read as "".
type RawRow struct {
	columns []string
	values  map[string]string
	folded  map[string]string // FoldHeader(column) -> column
}

// NewRawRow pairs header names with cells. Empty header names are skipped,
// repeated names keep their first cell, and missing trailing cells are "".
func NewRawRow(header, cells []string) RawRow {
	r := RawRow{
		columns: make([]string, 0, len(header)),
		values:  make(map[string]string, len(header)),
		folded:  make(map[string]string, len(header)),
	}
	for i, name := range header {
		if name == "" {
			continue
		}
		if _, dup := r.values[name]; dup {
			continue
		}
		var cell string
		if i < len(cells) {
			cell = CleanCell(cells[i])
		}
		r.columns = append(r.columns, name)
		r.values[name] = cell
		if key := FoldHeader(name); key != "" {
			if _, taken := r.folded[key]; !taken {
				r.folded[key] = name
			}
		}
	}
	return r
}

// Columns returns the header names in file order.
func (r RawRow) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Len returns the number of columns.
func (r RawRow) Len() int { return len(r.columns) }

// Get returns the value for an exact header name, or "".
func (r RawRow) Get(column string) string {
	return r.values[column]
}

// Lookup returns the value for an exact header name and whether the header exists.
func (r RawRow) Lookup(column string) (string, bool) {
	v, ok := r.values[column]
	return v, ok
}

// lookupFolded finds a column by its folded header form.
func (r RawRow) lookupFolded(key string) (string, bool) {
	col, ok := r.folded[key]
	if !ok {
		return "", false
	}
	return r.values[col], true
}

// IsBlank reports whether every cell is empty.
func (r RawRow) IsBlank() bool {
	for _, v := range r.values {
		if v != "" {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the row as an object preserving column order.
func (r RawRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.values[col])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
