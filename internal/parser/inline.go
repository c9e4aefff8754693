package parser

import (
	"strings"
	"unicode"

	"github.com/starford/notechain/internal/models"
)

const escapable = "\\*_~`[]()#"

// Inline strips inline Markdown markers from s and returns the plain text with
// one span per formatted run: **bold**, *italic* or _italic_, ~~strike~~,
// `code` and [text](url) links. Span offsets count code points of the result.
// Unmatched markers are kept as literal text.
func Inline(s string) (string, []models.Span) {
	in := []rune(s)
	p := &inlineParser{in: in, out: make([]rune, 0, len(in)), bold: -1, italic: -1, strike: -1}
	p.run()
	return string(p.out), p.spans
}

type inlineParser struct {
	in, out []rune
	spans   []models.Span

	bold, italic, strike int // open positions in out, -1 when closed
	italicMarker         rune
}

func (p *inlineParser) run() {
	for i := 0; i < len(p.in); {
		r := p.in[i]
		switch {
		case r == '\\' && i+1 < len(p.in) && strings.ContainsRune(escapable, p.in[i+1]):
			p.out = append(p.out, p.in[i+1])
			i += 2
		case r == '`':
			end := p.find(i+1, "`")
			if end < 0 {
				p.out = append(p.out, r)
				i++
				continue
			}
			start := len(p.out)
			p.out = append(p.out, p.in[i+1:end]...)
			p.add(models.Span{Start: start, End: len(p.out), Monospace: true})
			i = end + 1
		case r == '*' && p.at(i, "**"):
			i = p.toggle(&p.bold, i, "**", func(sp *models.Span) { sp.Bold = true })
		case r == '~' && p.at(i, "~~"):
			i = p.toggle(&p.strike, i, "~~", func(sp *models.Span) { sp.Strikethrough = true })
		case (r == '*' || r == '_') && (p.italic < 0 || p.italicMarker == r):
			if r == '_' && p.italic < 0 && i > 0 && isWord(p.in[i-1]) {
				p.out = append(p.out, r)
				i++
				continue
			}
			if p.italic < 0 {
				p.italicMarker = r
			}
			i = p.toggle(&p.italic, i, string(r), func(sp *models.Span) { sp.Italic = true })
		case r == '[':
			if next, ok := p.link(i); ok {
				i = next
				continue
			}
			p.out = append(p.out, r)
			i++
		default:
			p.out = append(p.out, r)
			i++
		}
	}
}

// toggle opens or closes a delimited run at position i. A run only opens when
// a closing marker follows; otherwise the marker is literal text.
func (p *inlineParser) toggle(open *int, i int, marker string, flag func(*models.Span)) int {
	n := len([]rune(marker))
	if *open >= 0 {
		sp := models.Span{Start: *open, End: len(p.out)}
		flag(&sp)
		p.add(sp)
		*open = -1
		return i + n
	}
	if p.find(i+n, marker) < 0 {
		p.out = append(p.out, p.in[i:i+n]...)
		return i + n
	}
	*open = len(p.out)
	return i + n
}

// link parses [text](url) starting at i.
func (p *inlineParser) link(i int) (int, bool) {
	closeText := p.find(i+1, "](")
	if closeText < 0 {
		return 0, false
	}
	closeURL := p.find(closeText+2, ")")
	if closeURL < 0 {
		return 0, false
	}
	url := string(p.in[closeText+2 : closeURL])
	if url == "" {
		return 0, false
	}
	text, spans := Inline(string(p.in[i+1 : closeText]))
	start := len(p.out)
	p.out = append(p.out, []rune(text)...)
	for _, sp := range spans {
		sp.Start += start
		sp.End += start
		p.add(sp)
	}
	p.add(models.Span{Start: start, End: len(p.out), Link: true, LinkData: url})
	return closeURL + 1, true
}

func (p *inlineParser) add(sp models.Span) {
	if sp.End > sp.Start {
		p.spans = append(p.spans, sp)
	}
}

func (p *inlineParser) at(i int, marker string) bool {
	m := []rune(marker)
	if i+len(m) > len(p.in) {
		return false
	}
	for k, r := range m {
		if p.in[i+k] != r {
			return false
		}
	}
	return true
}

func (p *inlineParser) find(from int, marker string) int {
	for i := from; i < len(p.in); i++ {
		if p.at(i, marker) {
			return i
		}
	}
	return -1
}

func isWord(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
