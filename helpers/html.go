package helpers

import (
	"html"
	"regexp"
	"strings"
)

var (
	htmlTagRegex     = regexp.MustCompile(`<[^>]*>`)
	htmlCommentRegex = regexp.MustCompile(`<!--[\s\S]*?-->`)
	multiSpaceRegex  = regexp.MustCompile(`\s+`)

	brTagRegex    = regexp.MustCompile(`<br\s*/?>`)
	blockEndRegex = regexp.MustCompile(`</(?:p|div|li|h[1-6]|blockquote|tr)>`)
)

// StripHTML removes HTML tags from a string and decodes HTML entities.
// Harvested abstracts frequently carry markup that agencies reject.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}

	s = htmlCommentRegex.ReplaceAllString(s, "")

	// Block-level closing tags become spaces so words do not run together
	s = blockEndRegex.ReplaceAllString(s, " ")
	s = brTagRegex.ReplaceAllString(s, " ")

	s = htmlTagRegex.ReplaceAllString(s, "")
	s = html.UnescapeString(s)

	return NormalizeWhitespace(s)
}

// IsHTML checks if a string appears to contain HTML markup.
func IsHTML(s string) bool {
	return htmlTagRegex.MatchString(s)
}

// NormalizeWhitespace collapses all whitespace to single spaces and trims.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(multiSpaceRegex.ReplaceAllString(s, " "))
}

// TruncateText truncates text to a maximum length, adding ellipsis if needed.
func TruncateText(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}

	truncated := s[:maxLen-3]
	lastSpace := strings.LastIndex(truncated, " ")
	if lastSpace > maxLen/2 {
		truncated = truncated[:lastSpace]
	}

	return truncated + "..."
}
