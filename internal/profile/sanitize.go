package profile

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const maxNameLength = 100

var strict = bluemonday.StrictPolicy()

// SanitizeName strips markup from a user supplied display name and bounds its
// length. The result is plain text; entities escaped by the policy are decoded.
func SanitizeName(s string) string {
	s = strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
	if utf8.RuneCountInString(s) > maxNameLength {
		s = string([]rune(s)[:maxNameLength])
	}
	return s
}

// NormalizeLanguage keeps the supported language tags and falls back to French.
func NormalizeLanguage(lang string) string {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "en", "en-us", "en-gb":
		return "en"
	default:
		return "fr"
	}
}
