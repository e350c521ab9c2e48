package config

import (
	"strings"
	"unicode"
)

// SplitQuotedFields splits in at white space, except inside areas
// delimited by quote. A quoted area may be empty, which yields an empty
// field, and may contain quote escaped with a backslash. Outside of quoted
// areas backslashes have no special meaning, so Windows paths need no
// escaping.
func SplitQuotedFields(in string, quote rune) []string {
	fields := []string{}
	var cur strings.Builder
	var inQuote, escaped, sawQuote bool

	for _, ch := range in {
		switch {
		case escaped:
			cur.WriteRune(ch)
			escaped = false
		case inQuote && ch == '\\':
			escaped = true
		case ch == quote:
			inQuote = !inQuote
			sawQuote = true
		case !inQuote && unicode.IsSpace(ch):
			if cur.Len() > 0 || sawQuote {
				fields = append(fields, cur.String())
			}
			cur.Reset()
			sawQuote = false
		default:
			cur.WriteRune(ch)
		}
	}
	if cur.Len() > 0 || sawQuote {
		fields = append(fields, cur.String())
	}
	return fields
}
