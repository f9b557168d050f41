package render

import "strings"

// htmlEscaper rewrites the characters with reserved meaning in HTML
// content to their entity forms.
var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// attrEscaper additionally rewrites whitespace that could break out of a
// quoted attribute value.
var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
	"\n", "&#10;",
	"\r", "&#13;",
	"\t", "&#9;",
)

// EscapeHTML escapes text for safe inclusion in HTML content. Handlers
// that assemble Raw fragments by hand use it on the untrusted pieces.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// EscapeAttr escapes text for safe inclusion in a quoted HTML attribute
// value.
func EscapeAttr(s string) string {
	return attrEscaper.Replace(s)
}

// Raw marks a string as already-escaped HTML that templates must not
// escape again.
type Raw string
