// Package strutil provides string helpers shared across the ai packages.
package strutil

import "unicode"

// Truncate truncates a string to a maximum number of runes.
// Rune-level truncation keeps multi-byte characters (Chinese, emoji) intact.
// Returns empty string if maxLen <= 0 to prevent slice bounds panic.
func Truncate(s string, maxLen int) string {
	if s == "" || maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// CountAlphaWords counts whitespace-separated words that contain at least
// one letter. Pure punctuation or numeric tokens do not count.
func CountAlphaWords(s string) int {
	count := 0
	inWord := false
	hasLetter := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if inWord && hasLetter {
				count++
			}
			inWord, hasLetter = false, false
			continue
		}
		inWord = true
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	if inWord && hasLetter {
		count++
	}
	return count
}
