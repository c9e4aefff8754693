package split

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/notechain/internal/apperr"
	"github.com/starford/notechain/internal/models"
)

// Repair makes an unreadable row readable again: the body is truncated to the
// ceiling inside the store, the spans are clipped to the shorter body and the
// row is written back.
func (s *Splitter) Repair(ctx context.Context, st Store, id int64) error {
	return atomically(ctx, st, func() error {
		if err := st.TruncateBody(ctx, id, s.maxLen); err != nil {
			return fmt.Errorf("split: truncate note %d: %w", id, err)
		}
		n, err := st.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("split: reread note %d: %w", id, err)
		}
		n.Spans = SliceSpans(n.Spans, 0, n.BodyLen(), 0)
		if _, err := st.Insert(ctx, n); err != nil {
			return fmt.Errorf("split: rewrite note %d: %w", id, err)
		}
		s.logger.Warn("split: truncated unreadable note",
			slog.Int64("id", id),
			slog.Int("max_len", s.maxLen))
		return nil
	})
}

// LoadForProcessing reads a note, repairing and re-reading it when the store
// refuses the row as oversized. repaired reports whether a repair happened.
func (s *Splitter) LoadForProcessing(ctx context.Context, st Store, id int64) (n *models.Note, repaired bool, err error) {
	n, err = st.Get(ctx, id)
	if err == nil {
		return n, false, nil
	}
	if !errors.Is(err, apperr.ErrOversizedRead) {
		return nil, false, err
	}
	if err := s.Repair(ctx, st, id); err != nil {
		return nil, false, err
	}
	n, err = st.Get(ctx, id)
	if err != nil {
		return nil, true, fmt.Errorf("split: read repaired note %d: %w", id, err)
	}
	return n, true, nil
}
