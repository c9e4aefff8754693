// Package export renders stored notes as Markdown, plain text or sanitized HTML.
package export

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"

	"github.com/starford/notechain/internal/apperr"
	"github.com/starford/notechain/internal/models"
)

// Format selects an export representation.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatText     Format = "txt"
	FormatHTML     Format = "html"
)

// ParseFormat maps a query value to a Format. Empty means Markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	case "html":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("export: unknown format %q: %w", s, apperr.ErrInvalidArgument)
}

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatText:
		return "text/plain; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	}
	return "text/markdown; charset=utf-8"
}

// Render exports n in the given format.
func Render(n *models.Note, f Format) ([]byte, error) {
	switch f {
	case FormatMarkdown:
		return ToMarkdown(n)
	case FormatText:
		return []byte(ToText(n)), nil
	case FormatHTML:
		return ToHTML(n), nil
	}
	return nil, fmt.Errorf("export: unknown format %q: %w", f, apperr.ErrInvalidArgument)
}

type frontmatter struct {
	Labels []string `yaml:"labels,omitempty"`
	Pinned bool     `yaml:"pinned,omitempty"`
}

// ToMarkdown renders n as a Markdown document that the importer reads back
// into the same title, body, spans, labels and items.
func ToMarkdown(n *models.Note) ([]byte, error) {
	var buf bytes.Buffer
	if len(n.Labels) > 0 || n.Pinned {
		fm, err := yaml.Marshal(frontmatter{Labels: n.Labels, Pinned: n.Pinned})
		if err != nil {
			return nil, fmt.Errorf("export: marshal frontmatter: %w", err)
		}
		buf.WriteString("---\n")
		buf.Write(fm)
		buf.WriteString("---\n")
	}
	if n.Title != "" {
		buf.WriteString("# ")
		buf.WriteString(n.Title)
		buf.WriteString("\n\n")
	}
	buf.WriteString(markdownBody(n))
	return buf.Bytes(), nil
}

func markdownBody(n *models.Note) string {
	if n.Kind == models.KindChecklist {
		var b strings.Builder
		for _, it := range sortedItems(n.Items) {
			if it.IsChild {
				b.WriteString("  ")
			}
			if it.Checked {
				b.WriteString("- [x] ")
			} else {
				b.WriteString("- [ ] ")
			}
			b.WriteString(it.Body)
			b.WriteByte('\n')
		}
		return b.String()
	}
	return Inline(n.Body, n.Spans)
}

// ToText renders n without any markup.
func ToText(n *models.Note) string {
	var b strings.Builder
	if n.Title != "" {
		b.WriteString(n.Title)
		b.WriteString("\n\n")
	}
	if n.Kind != models.KindChecklist {
		b.WriteString(n.Body)
		return b.String()
	}
	for _, it := range sortedItems(n.Items) {
		if it.IsChild {
			b.WriteString("    ")
		}
		if it.Checked {
			b.WriteString("[x] ")
		} else {
			b.WriteString("[ ] ")
		}
		b.WriteString(it.Body)
		b.WriteByte('\n')
	}
	return b.String()
}

// ToHTML renders n to an HTML fragment and sanitizes it. Raw HTML in the body
// is passed to the sanitizer, never trusted.
func ToHTML(n *models.Note) []byte {
	var md strings.Builder
	if n.Title != "" {
		md.WriteString("# ")
		md.WriteString(escape(n.Title))
		md.WriteString("\n\n")
	}
	md.WriteString(markdownBody(n))

	extensions := parser.CommonExtensions | parser.HardLineBreak | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(md.String()))

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags})
	out := markdown.Render(doc, renderer)

	policy := bluemonday.UGCPolicy()
	policy.AllowURLSchemes("http", "https", "mailto", "note")
	policy.AllowElements("pre", "code", "del")
	return policy.SanitizeBytes(out)
}

func sortedItems(items []models.Item) []models.Item {
	out := append([]models.Item(nil), items...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

const escapable = "\\*_~`[]()#"

func escape(s string) string {
	if !strings.ContainsAny(s, escapable) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(escapable, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
