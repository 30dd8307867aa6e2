// Package conv normalizes block content for summarization: markdown is
// rendered, sanitized and flattened to plain text so sentence truncation
// never cuts through formatting syntax.
package conv

import (
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/inbucket/html2text"
	"github.com/microcosm-cc/bluemonday"
)

var (
	extensions = parser.CommonExtensions | parser.NoEmptyLineBeforeBlock
	htmlFlags  = html.CommonFlags
	policy     = bluemonday.UGCPolicy()
)

// MarkdownToText flattens markdown content to plain text. On conversion
// failure the input is returned unchanged; a summary of raw markdown is
// still better than no summary.
func MarkdownToText(md string) string {
	p := parser.NewWithExtensions(extensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: htmlFlags})
	unsafeHTML := markdown.Render(p.Parse([]byte(md)), renderer)

	sanitized := policy.SanitizeBytes(unsafeHTML)

	text, err := html2text.FromString(string(sanitized), html2text.Options{TextOnly: true})
	if err != nil {
		return md
	}
	return strings.TrimSpace(text)
}
