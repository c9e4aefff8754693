package split

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/starford/notechain/internal/models"
	"github.com/starford/notechain/internal/noteref"
)

// Part is one planned piece of a split note. Parts with HasNext get the
// navigation link once the id of the following part is known.
type Part struct {
	Index   int
	Title   string
	Body    string
	Spans   []models.Span
	HasNext bool
}

// Plan computes the parts of n for a size ceiling of maxLen without touching
// any store. A note that fits yields one part equal to the note.
func Plan(n *models.Note, maxLen int) ([]Part, error) {
	chunks, err := SliceIntoChunks(n.Body, n.Spans, maxLen, LinkTextLen)
	if err != nil {
		return nil, err
	}
	parts := make([]Part, len(chunks))
	for i, c := range chunks {
		parts[i] = Part{
			Index:   i,
			Title:   PartTitle(n.Title, i),
			Body:    c.Body,
			Spans:   c.Spans,
			HasNext: i < len(chunks)-1,
		}
	}
	return parts, nil
}

// PartTitle returns the title of part index of a note titled title.
func PartTitle(title string, index int) string {
	if index == 0 {
		return title
	}
	return fmt.Sprintf("%s (%d)", title, index)
}

// Note materialises the part as a new note carrying src's metadata. next is
// the id of the following part and is ignored for the final part.
func (p Part) Note(src *models.Note, next int64) *models.Note {
	out := src.Clone()
	out.ID = 0
	out.Title = p.Title
	out.Body = p.Body
	out.Spans = append([]models.Span(nil), p.Spans...)
	out.Items = nil
	if p.HasNext {
		out.Body += LinkText
		out.Spans = append(out.Spans, NavigationLink(utf8.RuneCountInString(p.Body), next, src.Kind))
	}
	return out
}

// NavigationLink returns the link span for a navigation link whose separator
// starts at offset textLen.
func NavigationLink(textLen int, next int64, kind models.Kind) models.Span {
	start := textLen + len(LinkSeparator)
	return models.Span{
		Start:    start,
		End:      start + len(LinkDisplayText),
		Link:     true,
		LinkData: noteref.Encode(next, kind),
	}
}

// NextPart returns the id of the part following n, read from its trailing
// navigation link.
func NextPart(n *models.Note) (int64, bool) {
	if len(n.Spans) == 0 || !strings.HasSuffix(n.Body, LinkText) {
		return 0, false
	}
	want := n.BodyLen() - len(LinkDisplayText)
	for i := len(n.Spans) - 1; i >= 0; i-- {
		s := n.Spans[i]
		if !s.Link || s.Start != want || s.End != want+len(LinkDisplayText) {
			continue
		}
		id, _, err := noteref.Parse(s.LinkData)
		if err != nil {
			return 0, false
		}
		return id, true
	}
	return 0, false
}
