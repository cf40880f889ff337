package core

// ColumnAlias lists every header spelling accepted for one field. The first
// header is canonical and is the one written to exported templates.
type ColumnAlias struct {
	Field   string
	Headers []string
}

// Canonical returns the header used in exported templates.
func (a ColumnAlias) Canonical() string {
	if len(a.Headers) == 0 {
		return a.Field
	}
	return a.Headers[0]
}

// AliasTable resolves fields against a RawRow. Lookups compare folded
// headers, so case, accents and spacing do not matter.
type AliasTable []ColumnAlias

// Resolve returns the value of field in row using the first alias present.
// An unknown field or a row with none of its headers yields "".
func (t AliasTable) Resolve(row RawRow, field string) string {
	for _, a := range t {
		if a.Field != field {
			continue
		}
		for _, h := range a.Headers {
			if v, ok := row.lookupFolded(FoldHeader(h)); ok {
				return v
			}
		}
		return ""
	}
	return ""
}

// Present reports whether any header of field exists in row, even when the
// cell is empty.
func (t AliasTable) Present(row RawRow, field string) bool {
	for _, a := range t {
		if a.Field != field {
			continue
		}
		for _, h := range a.Headers {
			if _, ok := row.lookupFolded(FoldHeader(h)); ok {
				return true
			}
		}
	}
	return false
}

// Fields returns field names in declaration order.
func (t AliasTable) Fields() []string {
	out := make([]string, len(t))
	for i, a := range t {
		out[i] = a.Field
	}
	return out
}

// CanonicalHeaders returns the template header row.
func (t AliasTable) CanonicalHeaders() []string {
	out := make([]string, len(t))
	for i, a := range t {
		out[i] = a.Canonical()
	}
	return out
}

// Unmatched returns the columns of header that no alias recognizes.
func (t AliasTable) Unmatched(header []string) []string {
	known := make(map[string]bool)
	for _, a := range t {
		for _, h := range a.Headers {
			known[FoldHeader(h)] = true
		}
	}
	var out []string
	for _, h := range header {
		if h != "" && !known[FoldHeader(h)] {
			out = append(out, h)
		}
	}
	return out
}
