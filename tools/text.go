package tools

import (
	"strings"
	"unicode/utf8"
)

// TruncateUTF8 cuts s to at most maxBytes without splitting a rune. Invalid
// byte sequences are dropped so the result is always valid UTF-8.
func TruncateUTF8(s string, maxBytes int) string {
	s = strings.ToValidUTF8(s, "")
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
