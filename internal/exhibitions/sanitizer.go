package exhibitions

import "github.com/microcosm-cc/bluemonday"

// Sanitizer strips unsafe markup before it is persisted.
type Sanitizer interface {
	Sanitize(rawMarkup string) string
}

// HTMLSanitizer is an allow-list sanitizer for curator-authored day markup.
type HTMLSanitizer struct {
	policy *bluemonday.Policy
}

// NewHTMLSanitizer builds the allow-list used for exhibition markup.
func NewHTMLSanitizer() *HTMLSanitizer {
	policy := bluemonday.NewPolicy()
	policy.AllowElements(
		"section", "article", "div", "span", "p",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li", "strong", "em", "b", "i", "u",
		"figure", "figcaption", "blockquote", "hr", "br",
	)
	policy.AllowAttrs("href", "title", "target", "rel").OnElements("a")
	policy.AllowAttrs("src", "alt", "title", "width", "height", "loading").OnElements("img")
	policy.AllowAttrs("src", "poster", "controls", "preload", "muted", "loop", "autoplay").OnElements("video")
	policy.AllowAttrs("src", "type").OnElements("source")
	policy.AllowAttrs("class", "id", "style").Globally()
	policy.AllowStyles(
		"color", "background-color", "opacity",
		"font-family", "font-size", "font-style", "font-weight", "line-height", "letter-spacing",
		"text-align", "text-decoration", "text-transform",
		"margin", "margin-top", "margin-right", "margin-bottom", "margin-left",
		"padding", "padding-top", "padding-right", "padding-bottom", "padding-left",
		"border", "border-radius", "width", "max-width", "height", "display",
	).Globally()
	policy.AllowDataAttributes()
	policy.AllowURLSchemes("http", "https")
	policy.AllowDataURIImages()
	policy.RequireParseableURLs(true)
	return &HTMLSanitizer{policy: policy}
}

// Sanitize returns the markup with disallowed elements, attributes and URL schemes removed.
func (s *HTMLSanitizer) Sanitize(rawMarkup string) string {
	if rawMarkup == "" {
		return ""
	}
	return s.policy.Sanitize(rawMarkup)
}
