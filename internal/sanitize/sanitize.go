// Package sanitize cleans free text supplied by callers before it is stored.
package sanitize

import (
	"html"
	"regexp"
	"strings"

	"github.com/gosimple/unidecode"
	"github.com/microcosm-cc/bluemonday"
)

var (
	strict     = bluemonday.StrictPolicy()
	nonAlnum   = regexp.MustCompile(`[^a-z0-9\s]`)
	spaceRuns  = regexp.MustCompile(`\s+`)
	fullNameRe = regexp.MustCompile(`^[\p{L}]+(?:[\s'-][\p{L}]+)*$`)
)

// maxUnescapeRounds bounds nested entity encodings such as &amp;lt;.
const maxUnescapeRounds = 4

// Text strips every HTML element from s and trims it. Entities are decoded
// and the result sanitized again until nothing changes, so encoded markup
// cannot come back as live tags.
func Text(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	current := s
	for i := 0; i < maxUnescapeRounds; i++ {
		next := html.UnescapeString(strict.Sanitize(current))
		if next == current {
			return strings.TrimSpace(next)
		}
		current = next
	}
	// Still unstable: keep the policy output with its entities intact.
	return strings.TrimSpace(strict.Sanitize(current))
}

// ASCIIKey folds s into a lowercase ASCII search key: "Şirket Adı 123" -> "sirket adi 123".
func ASCIIKey(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	folded := strings.ToLower(unidecode.Unidecode(strings.TrimSpace(s)))
	folded = nonAlnum.ReplaceAllString(folded, "")
	return strings.TrimSpace(spaceRuns.ReplaceAllString(folded, " "))
}

// Email lowercases and trims an address for case-insensitive uniqueness.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsFullName accepts letters separated by single spaces, apostrophes or hyphens.
func IsFullName(s string) bool {
	return fullNameRe.MatchString(strings.TrimSpace(s))
}
