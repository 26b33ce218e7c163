package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StripNonASCII drops every rune outside 7-bit ASCII. Transcripts are folded
// this way before they reach the LLM.
func StripNonASCII(text string) string {
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, text)
}

// KeyToken turns value into a lowercase token safe for object keys and file
// names. Accents are folded ("Zoë" becomes "zoe"), anything outside
// [a-z0-9_-] becomes "_", and an empty result is "unknown".
func KeyToken(value string) string {
	// Chains carry state, so each call builds its own.
	dropMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(dropMarks, strings.TrimSpace(value))
	if err != nil {
		folded = value
	}
	token := strings.Map(func(r rune) rune {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, folded)
	if token = strings.Trim(token, "_-"); token == "" {
		return "unknown"
	}
	return token
}
