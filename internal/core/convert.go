package core

// convert.go provides cell and header clean-up for spreadsheet data.
//
// Spreadsheets authored by hand carry the usual artifacts:
//   - Excel text guards (="00123")
//   - Surrounding whitespace
//   - Headers typed with or without accents, in any case
//
// None of these functions reject input; they only normalize it. Cell
// content is otherwise kept as decoded: quotes, apostrophes and a leading
// '=' are data.

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CleanCell trims whitespace and unwraps the Excel text guard ="...".
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 3 && strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) {
		s = strings.TrimSpace(s[2 : len(s)-1])
	}
	return s
}

// FoldHeader reduces a header to its comparison form: lower case, accents
// removed, inner whitespace collapsed. "  Teléfono  Móvil" -> "telefono movil".
func FoldHeader(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return CollapseSpaces(strings.ToLower(folded))
}

// CollapseSpaces trims s and replaces every whitespace run with one space.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// StripSpaces removes all whitespace from s.
func StripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// SplitList splits a cell holding several values separated by commas or
// semicolons. Empty items are dropped.
func SplitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// isBlankRecord reports whether every cell of a decoded record is empty.
func isBlankRecord(cells []string) bool {
	for _, v := range cells {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
