package store

import (
	"regexp"
	"strings"
)

// DefaultSlug is used when nothing of a name survives slugging
const DefaultSlug = "default-slug"

var (
	slugSpaceRe   = regexp.MustCompile(`[\s\p{Zs}.]+`)
	slugInvalidRe = regexp.MustCompile(`[^a-z0-9\-\x{4e00}-\x{9fff}]`)
	slugDashesRe  = regexp.MustCompile(`-+`)
)

// Slugify returns a URL-safe slug for name. Lower-case ASCII letters, digits
// and CJK unified ideographs are kept; whitespace and dots become dashes.
func Slugify(name string) string {
	s := strings.ToLower(name)
	s = slugSpaceRe.ReplaceAllString(s, "-")
	s = slugInvalidRe.ReplaceAllString(s, "")
	s = slugDashesRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return DefaultSlug
	}
	return s
}
