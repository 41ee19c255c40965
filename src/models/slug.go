package models

import (
	"regexp"
	"strings"
)

var reSlugJunk = regexp.MustCompile(`[^a-z0-9]+`)

// Lowercase ASCII letters and digits separated by single dashes. Anything else
// becomes a separator.
func GenerateSlug(name string) string {
	slug := reSlugJunk.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(slug, "-")
}
