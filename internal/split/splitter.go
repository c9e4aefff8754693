package split

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/notechain/internal/models"
)

// Store is the note-store surface the splitter works against.
type Store interface {
	Get(ctx context.Context, id int64) (*models.Note, error)
	// Insert allocates a new id when n.ID is 0 and replaces the row otherwise.
	Insert(ctx context.Context, n *models.Note) (int64, error)
	UpdateSpans(ctx context.Context, id int64, spans []models.Span) error
	// TruncateBody must succeed even when Get on the row fails.
	TruncateBody(ctx context.Context, id int64, maxLen int) error
}

// savepointer is implemented by stores able to undo a unit of work inside an
// enclosing transaction.
type savepointer interface {
	Savepoint(ctx context.Context, fn func() error) error
}

// Splitter splits oversized text notes for one size ceiling.
type Splitter struct {
	maxLen int
	logger *slog.Logger
}

// New returns a Splitter for bodies of at most maxLen code points.
func New(maxLen int, logger *slog.Logger) (*Splitter, error) {
	if maxLen <= LinkTextLen {
		return nil, fmt.Errorf("%w (max %d, reserved %d)", ErrInvalidChunkConfig, maxLen, LinkTextLen)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Splitter{maxLen: maxLen, logger: logger}, nil
}

// MaxLen returns the size ceiling.
func (s *Splitter) MaxLen() int { return s.maxLen }

// Oversized reports whether n is a text note above the ceiling.
func (s *Splitter) Oversized(n *models.Note) bool {
	return n.Splittable() && n.BodyLen() > s.maxLen
}

// Inserted is one stored part. Next is the id its navigation link points at,
// 0 for the final part.
type Inserted struct {
	ID    int64
	Spans []models.Span
	Next  int64
}

// Result describes the parts written for one note, in insertion order (tail first).
type Result struct {
	FirstID  int64
	Inserted []Inserted
}

// SplitForInsert stores a never-persisted note, splitting it when its body is
// over the ceiling. Parts are inserted tail first so that each navigation link
// targets a real id; the last insert is the head, whose id is FirstID.
func (s *Splitter) SplitForInsert(ctx context.Context, st Store, n *models.Note) (Result, error) {
	if !n.Splittable() {
		return Result{}, ErrNotSplittable
	}
	parts, err := Plan(n, s.maxLen)
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = atomically(ctx, st, func() error {
		res = Result{Inserted: make([]Inserted, 0, len(parts))}
		var next int64
		for i := len(parts) - 1; i >= 0; i-- {
			part := parts[i].Note(n, next)
			id, err := st.Insert(ctx, part)
			if err != nil {
				return fmt.Errorf("split: insert part %d of %q: %w", i, n.Title, err)
			}
			res.Inserted = append(res.Inserted, Inserted{ID: id, Spans: part.Spans, Next: next})
			next = id
		}
		res.FirstID = next
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if len(parts) > 1 {
		s.logger.Info("split: note stored in parts",
			slog.Int64("id", res.FirstID),
			slog.Int("parts", len(parts)))
	}
	return res, nil
}

// SplitExisting splits a stored note in place. The head part keeps n.ID so
// references to the note stay valid; the remaining parts get fresh ids. It
// returns the number of parts created besides the head and is a no-op for
// checklists and for notes already within the ceiling, which makes re-running
// it on a split chain harmless.
func (s *Splitter) SplitExisting(ctx context.Context, st Store, n *models.Note) (int, error) {
	if !s.Oversized(n) {
		return 0, nil
	}
	if n.ID == 0 {
		return 0, fmt.Errorf("split: note %q has no id", n.Title)
	}
	parts, err := Plan(n, s.maxLen)
	if err != nil {
		return 0, err
	}

	err = atomically(ctx, st, func() error {
		var next int64
		for i := len(parts) - 1; i >= 0; i-- {
			part := parts[i].Note(n, next)
			if i == 0 {
				part.ID = n.ID
			}
			id, err := st.Insert(ctx, part)
			if err != nil {
				return fmt.Errorf("split: write part %d of note %d: %w", i, n.ID, err)
			}
			next = id
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("split: existing note split",
		slog.Int64("id", n.ID),
		slog.Int("created", len(parts)-1))
	return len(parts) - 1, nil
}

// SplitStored loads a stored note, repairing it first when it cannot be read,
// and splits it in place.
func (s *Splitter) SplitStored(ctx context.Context, st Store, id int64) (created int, repaired bool, err error) {
	n, repaired, err := s.LoadForProcessing(ctx, st, id)
	if err != nil {
		return 0, repaired, err
	}
	created, err = s.SplitExisting(ctx, st, n)
	return created, repaired, err
}

func atomically(ctx context.Context, st Store, fn func() error) error {
	if sp, ok := st.(savepointer); ok {
		return sp.Savepoint(ctx, fn)
	}
	return fn()
}
