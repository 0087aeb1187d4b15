// Package sanitize cleans provider-supplied profile text before it is stored
// or used for inference.
package sanitize

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// MaxTextLength bounds any single profile text field
const MaxTextLength = 255

var strict = bluemonday.StrictPolicy()

// Text strips all markup, unescapes entities, collapses whitespace and
// truncates to MaxTextLength runes.
func Text(s string) string {
	if s == "" {
		return ""
	}
	cleaned := html.UnescapeString(strict.Sanitize(s))
	cleaned = strings.Join(strings.FieldsFunc(cleaned, unicode.IsSpace), " ")

	runes := []rune(cleaned)
	if len(runes) > MaxTextLength {
		cleaned = strings.TrimSpace(string(runes[:MaxTextLength]))
	}
	return cleaned
}

// URL keeps only absolute http(s) URLs; anything else becomes empty
func URL(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://") {
		if strings.ContainsAny(s, " \t\r\n<>\"") {
			return ""
		}
		return s
	}
	return ""
}
