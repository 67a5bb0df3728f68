// Package htmlsanitize cleans user- and admin-supplied text before it is
// stored and later shown in the notification list and emails.
package htmlsanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/dalemusser/waffle/pantry/urlutil"
	"github.com/microcosm-cc/bluemonday"
)

var (
	strictOnce sync.Once
	strict     *bluemonday.Policy
)

func strictPolicy() *bluemonday.Policy {
	strictOnce.Do(func() { strict = bluemonday.StrictPolicy() })
	return strict
}

// PlainText strips every tag from s and returns unescaped text, trimmed.
// Renderers escape on output, so the stored value must not be pre-escaped.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strictPolicy().Sanitize(s)))
}

// Link returns s when it is a site-relative path or an absolute http(s)
// URL, and "" otherwise.
func Link(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return ""
	case strings.HasPrefix(s, "/") && !strings.HasPrefix(s, "//") && !strings.ContainsAny(s, "\\\r\n"):
		return s
	case urlutil.IsValidAbsHTTPURL(s):
		return s
	default:
		return ""
	}
}
