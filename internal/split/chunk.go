// Package split keeps text notes under the body size ceiling by cutting them
// into a chain of parts joined by trailing "Open next part" links.
//
// Every length and offset in this package counts Unicode code points.
package split

import (
	"errors"
	"fmt"

	"github.com/starford/notechain/internal/models"
)

// Navigation link appended to every part except the last. The link span covers
// LinkDisplayText only, never the separator.
const (
	LinkSeparator   = "\n\n"
	LinkDisplayText = "Open next part"
	LinkText        = LinkSeparator + LinkDisplayText

	// LinkTextLen is the budget reserved on each non-final part (ASCII, so
	// byte and code point counts agree).
	LinkTextLen = len(LinkText)
)

var (
	// ErrInvalidChunkConfig reports a reserved link budget that leaves no room for text.
	ErrInvalidChunkConfig = errors.New("split: reserved link length must be smaller than max length")
	// ErrNotSplittable is returned when asked to split a checklist.
	ErrNotSplittable = errors.New("split: only text notes can be split")
)

// Chunk is one planned slice of a body with its spans re-based to start at 0.
type Chunk struct {
	Body  string
	Spans []models.Span
}

// SliceSpans keeps the spans intersecting [rangeStart, rangeEnd), clipped to
// that range and moved by shift. Flags and link data are copied unchanged and
// input order is preserved. Spans that become empty after clipping are dropped.
func SliceSpans(spans []models.Span, rangeStart, rangeEnd, shift int) []models.Span {
	if len(spans) == 0 {
		return nil
	}
	out := make([]models.Span, 0, len(spans))
	for _, s := range spans {
		if s.End <= rangeStart || s.Start >= rangeEnd {
			continue
		}
		start := max(s.Start, rangeStart) + shift
		end := min(s.End, rangeEnd) + shift
		if end <= start {
			continue
		}
		s.Start, s.End = start, end
		out = append(out, s)
	}
	return out
}

// SliceIntoChunks cuts body into chunks no longer than maxLen. While more than
// maxLen code points remain, a chunk of exactly maxLen-reservedLinkLen is
// emitted, leaving room for a navigation link; the rest becomes the final
// chunk. A body that already fits comes back as a single, unchanged chunk.
func SliceIntoChunks(body string, spans []models.Span, maxLen, reservedLinkLen int) ([]Chunk, error) {
	if reservedLinkLen < 0 || reservedLinkLen >= maxLen {
		return nil, fmt.Errorf("%w (max %d, reserved %d)", ErrInvalidChunkConfig, maxLen, reservedLinkLen)
	}
	runes := []rune(body)
	if len(runes) <= maxLen {
		return []Chunk{{Body: body, Spans: append([]models.Span(nil), spans...)}}, nil
	}

	budget := maxLen - reservedLinkLen
	chunks := make([]Chunk, 0, (len(runes)-maxLen+budget-1)/budget+1)
	start := 0
	for len(runes)-start > maxLen {
		end := start + budget
		chunks = append(chunks, Chunk{
			Body:  string(runes[start:end]),
			Spans: SliceSpans(spans, start, end, -start),
		})
		start = end
	}
	chunks = append(chunks, Chunk{
		Body:  string(runes[start:]),
		Spans: SliceSpans(spans, start, len(runes), -start),
	})
	return chunks, nil
}
