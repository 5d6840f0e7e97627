package feature

import (
	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer cleans every string interpolated into rendered markup.
type Sanitizer struct {
	text *bluemonday.Policy
	body *bluemonday.Policy
}

// NewSanitizer returns a Sanitizer with a strict policy for field values and a
// body-content policy for attribution text.
func NewSanitizer() *Sanitizer {
	body := bluemonday.NewPolicy()
	body.AllowStandardURLs()
	body.AllowAttrs("href", "title").OnElements("a")
	body.AllowAttrs("target").Matching(bluemonday.SpaceSeparatedTokens).OnElements("a")
	body.AllowElements("a", "b", "strong", "i", "em", "span", "br", "small", "sup")
	body.RequireNoReferrerOnFullyQualifiedLinks(true)
	return &Sanitizer{
		text: bluemonday.StrictPolicy(),
		body: body,
	}
}

// Text strips all markup and escapes the remainder.
func (s *Sanitizer) Text(v string) string {
	return s.text.Sanitize(v)
}

// Body keeps inline formatting and hyperlinks, for attribution HTML.
func (s *Sanitizer) Body(v string) string {
	return s.body.Sanitize(v)
}
