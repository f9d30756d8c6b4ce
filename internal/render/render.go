// Package render converts raw message text to sanitized HTML for display.
// The order is fixed: markdown conversion first, sanitization second, and no
// path around the sanitizer exists.
package render

import (
	"bytes"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Pipeline is safe for concurrent use once constructed.
type Pipeline struct {
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
}

// New builds the pipeline. Hard wraps keep single newlines visible, matching
// how chat text is written; the UGC policy strips everything executable, and
// absolute links are forced to open in a new browsing context without a
// window reference back to us.
func New() *Pipeline {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)

	policy := bluemonday.UGCPolicy()
	policy.AddTargetBlankToFullyQualifiedLinks(true)
	policy.RequireNoReferrerOnLinks(true)

	return &Pipeline{markdown: md, policy: policy}
}

// Render produces sanitized HTML for one message.
func (p *Pipeline) Render(raw string) (string, error) {
	var buf bytes.Buffer
	if err := p.markdown.Convert([]byte(raw), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return p.policy.Sanitize(buf.String()), nil
}
