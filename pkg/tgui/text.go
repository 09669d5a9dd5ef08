package tgui

import "strings"

// TruncRunes cuts s to n runes, marking the cut with "…".
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n]) + "…"
}

// OneLine collapses runs of whitespace, newlines included, into single spaces.
// Provider headlines often carry stray line breaks.
func OneLine(s string) string { return strings.Join(strings.Fields(s), " ") }
