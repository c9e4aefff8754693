// Package parser turns Markdown files with YAML frontmatter into notes: plain
// body text plus formatting spans, title, labels and checklist items.
package parser

import (
	"bytes"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/notechain/internal/models"
)

var (
	tagRe  = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	taskRe = regexp.MustCompile(`^(\s*)[-*+] \[([ xX])\] (.*)$`)
)

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]interface{}
	Title       string
	Kind        models.Kind
	Body        string
	Spans       []models.Span
	Items       []models.Item
	Labels      []string
	Pinned      bool
}

// Note converts the result into an unsaved note.
func (r *Result) Note() *models.Note {
	return &models.Note{
		Kind:   r.Kind,
		Folder: models.FolderNotes,
		Title:  r.Title,
		Body:   r.Body,
		Spans:  r.Spans,
		Items:  r.Items,
		Labels: r.Labels,
		Pinned: r.Pinned,
	}
}

// Parse extracts frontmatter, title, labels and formatted body from raw Markdown bytes.
// A document made only of task list lines ("- [ ] item") becomes a checklist.
func Parse(data []byte) (*Result, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	title, body := deriveTitle(fm, body)
	r := &Result{
		Frontmatter: fm,
		Title:       title,
		Kind:        models.KindText,
		Labels:      extractLabels(body, fm),
		Pinned:      boolField(fm, "pinned"),
	}

	if items, ok := parseTasks(body); ok {
		r.Kind = models.KindChecklist
		r.Items = items
		return r, nil
	}
	r.Body, r.Spans = Inline(strings.TrimRight(body, "\n"))
	return r, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]interface{}, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), nil
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Invalid YAML: treat the whole file as body.
		return nil, string(data), nil
	}

	return fm, body, nil
}

// extractLabels collects labels from the frontmatter "labels" and "tags"
// fields and from inline #tags, deduplicated in order of appearance.
func extractLabels(body string, fm map[string]interface{}) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	for _, key := range []string{"labels", "tags"} {
		switch v := fm[key].(type) {
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		case string:
			for _, s := range strings.Split(v, ",") {
				add(s)
			}
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// line when it is an H1 heading, which is then removed from the body.
func deriveTitle(fm map[string]interface{}, body string) (string, string) {
	if t, ok := fm["title"].(string); ok && t != "" {
		return t, body
	}
	first, rest, _ := strings.Cut(body, "\n")
	if trimmed := strings.TrimSpace(first); strings.HasPrefix(trimmed, "# ") {
		return strings.TrimSpace(trimmed[2:]), strings.TrimLeft(rest, "\n")
	}
	return "", body
}

func boolField(fm map[string]interface{}, key string) bool {
	b, _ := fm[key].(bool)
	return b
}

// parseTasks returns checklist items when every non-blank line is a task item.
func parseTasks(body string) ([]models.Item, bool) {
	var items []models.Item
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := taskRe.FindStringSubmatch(line)
		if m == nil {
			return nil, false
		}
		items = append(items, models.Item{
			Body:    m[3],
			Checked: m[2] != " ",
			IsChild: len(m[1]) > 0,
			Order:   len(items),
		})
	}
	return items, len(items) > 0
}
