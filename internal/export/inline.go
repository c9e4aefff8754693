package export

import (
	"strings"

	"github.com/starford/notechain/internal/models"
)

// style is the formatting of a single rune.
type style struct {
	link                       string
	bold, italic, strike, code bool
}

// Inline re-emits body with spans as inline Markdown markers. Spans may
// overlap arbitrarily: emphasis markers toggle independently at run
// boundaries, links close and reopen every emphasis they cut through, and
// code is always innermost.
func Inline(body string, spans []models.Span) string {
	if len(spans) == 0 {
		return escape(body)
	}
	runes := []rune(body)

	var (
		b   strings.Builder
		cur style
	)
	toggle := func(next style) {
		if cur.bold != next.bold {
			b.WriteString("**")
		}
		if cur.italic != next.italic {
			b.WriteString("*")
		}
		if cur.strike != next.strike {
			b.WriteString("~~")
		}
		cur.bold, cur.italic, cur.strike = next.bold, next.italic, next.strike
	}

	for start := 0; start < len(runes); {
		want := styleAt(runes, spans, start)
		end := start + 1
		for end < len(runes) && styleAt(runes, spans, end) == want {
			end++
		}

		if want.link != cur.link {
			toggle(style{})
			if cur.link != "" {
				b.WriteString("](" + cur.link + ")")
			}
			if want.link != "" {
				b.WriteString("[")
			}
			cur.link = want.link
		}
		toggle(want)

		text := string(runes[start:end])
		if want.code {
			b.WriteString("`" + text + "`")
		} else {
			b.WriteString(escape(text))
		}
		start = end
	}
	toggle(style{})
	if cur.link != "" {
		b.WriteString("](" + cur.link + ")")
	}
	return b.String()
}

// styleAt folds every span covering rune pos. The first link span wins when
// links overlap. Code is dropped for a backtick, which inline code cannot hold.
func styleAt(runes []rune, spans []models.Span, pos int) style {
	var s style
	for _, sp := range spans {
		if pos < sp.Start || pos >= sp.End {
			continue
		}
		if sp.Link && s.link == "" {
			s.link = sp.LinkData
		}
		s.bold = s.bold || sp.Bold
		s.italic = s.italic || sp.Italic
		s.strike = s.strike || sp.Strikethrough
		s.code = s.code || sp.Monospace
	}
	if s.code && runes[pos] == '`' {
		s.code = false
	}
	return s
}
