// Package conversion renders agent replies for display.
package conversion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/inercia/twinbridge/internal/client"
)

// Format selects how a reply is rendered.
type Format string

const (
	FormatText Format = "text"
	FormatHTML Format = "html"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name. An empty name means FormatText.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatHTML, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text, html or json)", s)
	}
}

// Converter turns agent markdown into HTML.
type Converter struct {
	style     string
	sanitizer *bluemonday.Policy
	md        goldmark.Markdown
}

// Option configures the Converter.
type Option func(*Converter)

// WithHighlighting sets the chroma style for fenced code. An empty style
// disables highlighting.
func WithHighlighting(style string) Option {
	return func(c *Converter) {
		c.style = style
	}
}

// WithSanitization sets the policy applied to the rendered HTML. A nil
// policy disables sanitization.
func WithSanitization(policy *bluemonday.Policy) Option {
	return func(c *Converter) {
		c.sanitizer = policy
	}
}

// NewConverter creates a Converter. Without options it renders GFM with
// highlighting in the "monokai" style and sanitizes with Sanitizer().
func NewConverter(opts ...Option) *Converter {
	c := &Converter{
		style:     "monokai",
		sanitizer: Sanitizer(),
	}
	for _, opt := range opts {
		opt(c)
	}

	extensions := []goldmark.Extender{extension.GFM}
	if c.style != "" {
		extensions = append(extensions, highlighting.NewHighlighting(highlighting.WithStyle(c.style)))
	}
	c.md = goldmark.New(
		goldmark.WithExtensions(extensions...),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(gmhtml.WithHardWraps(), gmhtml.WithXHTML()),
	)
	return c
}

// Sanitizer returns the policy used for agent replies: user-generated content
// plus the class and id attributes emitted by highlighting and heading IDs.
func Sanitizer() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre", "span", "div")
	p.AllowAttrs("style").OnElements("pre", "span")
	p.AllowAttrs("id").Matching(bluemonday.Paragraph).OnElements("h1", "h2", "h3", "h4", "h5", "h6")
	return p
}

// Convert converts markdown to HTML.
func (c *Converter) Convert(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := c.md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	out := buf.String()
	if c.sanitizer != nil {
		out = c.sanitizer.Sanitize(out)
	}
	return out, nil
}

// SafeHTML converts markdown, falling back to an escaped <pre> block.
func (c *Converter) SafeHTML(markdown string) string {
	out, err := c.Convert(markdown)
	if err != nil {
		return "<pre>" + html.EscapeString(markdown) + "</pre>"
	}
	return out
}

// Render formats a reply. FormatJSON prints the undecoded payload when it is
// available so no server field is lost.
func (c *Converter) Render(reply *client.AgentReply, format Format) (string, error) {
	if reply == nil {
		return "", nil
	}
	switch format {
	case FormatText, "":
		return reply.Text(), nil
	case FormatHTML:
		return c.SafeHTML(reply.Text()), nil
	case FormatJSON:
		return IndentJSON(reply.Raw, reply)
	default:
		return "", fmt.Errorf("unknown format %q", format)
	}
}

// IndentJSON pretty-prints raw, or v when raw is empty.
func IndentJSON(raw json.RawMessage, v any) (string, error) {
	if len(raw) > 0 {
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err == nil {
			return buf.String(), nil
		}
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
