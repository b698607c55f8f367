package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeSubject cleans a user- or filename-derived meeting subject into a
// display title: separators collapse to single spaces, control characters are
// dropped, and the result is title-cased. An empty input returns "".
func NormalizeSubject(raw string) string {
	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range raw {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	subject := strings.TrimSpace(cleaned.String())
	if subject == "" {
		return ""
	}
	return cases.Title(language.Und).String(subject)
}

// SanitizeSegment makes a string safe to use as a single path segment:
// separators become underscores and anything outside letters, numbers,
// dash, and underscore is dropped. Empty results fall back to "untitled".
func SanitizeSegment(raw string) string {
	cleaned := strings.Builder{}
	for _, r := range raw {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' || r == '_':
			cleaned.WriteRune(r)
		case unicode.IsSpace(r) || r == '.':
			cleaned.WriteRune('_')
		}
	}
	segment := strings.Trim(cleaned.String(), "_")
	if segment == "" {
		return "untitled"
	}
	return segment
}

// Truncate shortens a string to at most max runes, appending an ellipsis when
// anything was cut. A max <= 3 returns the bare truncation.
func Truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
