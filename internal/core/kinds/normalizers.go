package kinds

import (
	"strings"

	"github.com/JonMunkholm/pharmaimport/internal/core"
)

// NormalizeEmail trims and lower-cases an address. It does not validate.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone removes every whitespace character, keeping signs,
// dashes and parentheses as typed.
func NormalizePhone(s string) string {
	return core.StripSpaces(s)
}

// NormalizeCode upper-cases a short catalogue code.
func NormalizeCode(s string) string {
	return strings.ToUpper(core.StripSpaces(s))
}

// Text collapses inner whitespace of free text.
func Text(s string) string {
	return core.CollapseSpaces(s)
}

// categories returns a non-nil copy so payloads always encode an array.
func categories(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
