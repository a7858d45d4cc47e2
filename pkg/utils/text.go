package utils

import (
	"strings"
	"unicode/utf8"
)

// CollapseWhitespace replaces every run of whitespace in s with a single
// space and trims leading/trailing whitespace.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Clip returns s cut to at most max bytes. Unlike Truncate it appends
// nothing; context budgets are hard limits. The cut backs up to a rune
// boundary so clipped text stays valid UTF-8.
func Clip(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Truncate returns s truncated to maxLen characters, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
