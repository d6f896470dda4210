package types

import "unicode/utf8"

// Ellipsis is appended to text cut by TruncateRunes.
const Ellipsis = "..."

// TruncateRunes returns s unchanged when it has at most limit runes,
// otherwise its first limit runes followed by Ellipsis. A negative limit
// disables truncation.
func TruncateRunes(s string, limit int) string {
	if limit < 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + Ellipsis
		}
		n++
	}
	return s
}
