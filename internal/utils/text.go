package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// Characters invalid in filenames on most filesystems
	invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	// Runs of whitespace to collapse
	multipleSpaces = regexp.MustCompile(`\s+`)
)

// Snippet collapses whitespace and shortens s to at most max characters,
// marking a cut with an ellipsis. It never splits a multi-byte character.
func Snippet(s string, max int) string {
	s = strings.TrimSpace(multipleSpaces.ReplaceAllString(s, " "))
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}

// SanitizeFilename makes name safe to use as a file name.
func SanitizeFilename(name string) string {
	name = invalidFilenameChars.ReplaceAllString(name, "")
	name = strings.TrimSpace(multipleSpaces.ReplaceAllString(name, " "))
	name = strings.ReplaceAll(name, " ", "-")

	// Limit length (most filesystems support 255, but leave room for extension)
	if utf8.RuneCountInString(name) > 200 {
		name = string([]rune(name)[:200])
	}
	name = strings.Trim(name, ".-")

	if name == "" {
		name = "export"
	}
	return name
}
