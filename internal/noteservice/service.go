package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/starford/notechain/internal/apperr"
	"github.com/starford/notechain/internal/models"
	"github.com/starford/notechain/internal/parser"
	"github.com/starford/notechain/internal/split"
	"github.com/starford/notechain/internal/store"
)

// Event kinds passed to the Notifier.
const (
	EventCreated  = "note.created"
	EventUpdated  = "note.updated"
	EventDeleted  = "note.deleted"
	EventSplit    = "note.split"
	EventImported = "backup.imported"
)

// Notifier receives note change events.
type Notifier interface {
	PublishNoteEvent(kind string, id int64)
}

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	models.Note
	// NextPart is the id the note's navigation link points at, 0 for the last part.
	NextPart int64 `json:"next_part,omitempty"`
	// Parts lists every part id, head first, when the operation split the note.
	Parts    []int64 `json:"parts,omitempty"`
	Repaired bool    `json:"repaired,omitempty"`
}

// ETag returns the optimistic-concurrency token accepted by UpdateNote.
func (d *NoteDetail) ETag() string {
	return strconv.FormatInt(d.ModifiedAt.UnixMilli(), 10)
}

// Service coordinates the note store and the splitter.
type Service struct {
	db       *store.DB
	splitter *split.Splitter
	logger   *slog.Logger
	notifier Notifier
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier publishes note events to n.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new note service.
func NewService(db *store.DB, splitter *split.Splitter, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{db: db, splitter: splitter, logger: logger, now: func() time.Time { return time.Now().UTC() }}
	for _, o := range opts {
		o(s)
	}
	return s
}

// MaxBodyChars returns the size ceiling notes are split at.
func (s *Service) MaxBodyChars() int { return s.splitter.MaxLen() }

func (s *Service) publish(kind string, id int64) {
	if s.notifier != nil {
		s.notifier.PublishNoteEvent(kind, id)
	}
}

// GetNote reads a note. A row the store refuses as oversized is repaired in
// place and the repaired note returned.
func (s *Service) GetNote(ctx context.Context, id int64) (*NoteDetail, error) {
	n, repaired, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if repaired {
		s.publish(EventUpdated, id)
	}
	return detail(n, repaired), nil
}

func (s *Service) load(ctx context.Context, id int64) (*models.Note, bool, error) {
	n, err := s.db.Queries().Get(ctx, id)
	if !errors.Is(err, apperr.ErrOversizedRead) {
		return n, false, err
	}
	var repaired bool
	err = s.db.InTx(ctx, func(q *store.Queries) error {
		var err error
		n, repaired, err = s.splitter.LoadForProcessing(ctx, q, id)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return n, repaired, nil
}

func detail(n *models.Note, repaired bool) *NoteDetail {
	d := &NoteDetail{Note: *n, Repaired: repaired}
	d.Spans = nonNilSlice(d.Spans)
	d.Items = nonNilSlice(d.Items)
	d.Labels = nonNilSlice(d.Labels)
	if next, ok := split.NextPart(n); ok {
		d.NextPart = next
	}
	return d
}

// CreateNote stores a new note, splitting it into a chain of parts when its
// body is over the ceiling. The returned detail is the head part.
func (s *Service) CreateNote(ctx context.Context, n *models.Note) (*NoteDetail, error) {
	c, err := s.prepare(n)
	if err != nil {
		return nil, err
	}
	now := s.now()
	c.ID, c.CreatedAt, c.ModifiedAt = 0, now, now

	var res split.Result
	err = s.db.InTx(ctx, func(q *store.Queries) error {
		if err := q.InsertLabels(ctx, c.Labels...); err != nil {
			return err
		}
		if c.Splittable() {
			var err error
			res, err = s.splitter.SplitForInsert(ctx, q, c)
			return err
		}
		id, err := q.Insert(ctx, c)
		res = split.Result{FirstID: id, Inserted: []split.Inserted{{ID: id}}}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("noteservice: create note: %w", err)
	}

	d, err := s.GetNote(ctx, res.FirstID)
	if err != nil {
		return nil, err
	}
	s.publish(EventCreated, res.FirstID)
	if len(res.Inserted) > 1 {
		d.Parts = make([]int64, 0, len(res.Inserted))
		for i := len(res.Inserted) - 1; i >= 0; i-- {
			d.Parts = append(d.Parts, res.Inserted[i].ID)
		}
		s.publish(EventSplit, res.FirstID)
	}
	return d, nil
}

// CreateMarkdown parses a Markdown document and stores it as a new note.
// fallbackTitle is used when the document has no title of its own.
func (s *Service) CreateMarkdown(ctx context.Context, data []byte, fallbackTitle string) (*NoteDetail, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("noteservice: parse markdown: %w: %w", apperr.ErrInvalidArgument, err)
	}
	n := res.Note()
	if n.Title == "" {
		n.Title = fallbackTitle
	}
	return s.CreateNote(ctx, n)
}

// UpdateNote replaces a stored note. ifMatch, when set, must equal the
// current ETag. An edit that takes the body over the ceiling splits the note
// in place: the note keeps its id and the overflow moves to new parts.
func (s *Service) UpdateNote(ctx context.Context, id int64, n *models.Note, ifMatch string) (*NoteDetail, error) {
	c, err := s.prepare(n)
	if err != nil {
		return nil, err
	}

	var created int
	err = s.db.InTx(ctx, func(q *store.Queries) error {
		cur, _, err := s.splitter.LoadForProcessing(ctx, q, id)
		if err != nil {
			return err
		}
		if ifMatch != "" && ifMatch != strconv.FormatInt(cur.ModifiedAt.UnixMilli(), 10) {
			return fmt.Errorf("note %d was modified: %w", id, apperr.ErrConflict)
		}
		c.ID, c.CreatedAt, c.ModifiedAt = id, cur.CreatedAt, s.now()
		if err := q.InsertLabels(ctx, c.Labels...); err != nil {
			return err
		}
		if s.splitter.Oversized(c) {
			created, err = s.splitter.SplitExisting(ctx, q, c)
			return err
		}
		_, err = q.Insert(ctx, c)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("noteservice: update note %d: %w", id, err)
	}

	d, err := s.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(EventUpdated, id)
	if created > 0 {
		chain, err := s.Chain(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, p := range chain {
			d.Parts = append(d.Parts, p.ID)
		}
		s.publish(EventSplit, id)
	}
	return d, nil
}

// prepare validates n and returns a normalised copy.
func (s *Service) prepare(n *models.Note) (*models.Note, error) {
	if n == nil {
		return nil, fmt.Errorf("noteservice: missing note: %w", apperr.ErrInvalidArgument)
	}
	c := n.Clone()
	if c.Kind == "" {
		c.Kind = models.KindText
	}
	if c.Folder == "" {
		c.Folder = models.FolderNotes
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Chain returns the parts of a split note starting at id and following the
// navigation links. A missing part ends the chain early.
func (s *Service) Chain(ctx context.Context, id int64) ([]*NoteDetail, error) {
	var out []*NoteDetail
	seen := make(map[int64]bool)
	for next := id; next != 0 && !seen[next]; {
		seen[next] = true
		d, err := s.GetNote(ctx, next)
		if errors.Is(err, apperr.ErrNotFound) && len(out) > 0 {
			s.logger.Warn("noteservice: chain ends at missing part",
				slog.Int64("head", id),
				slog.Int64("missing", next))
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, d)
		next = d.NextPart
	}
	return out, nil
}

// ListNotes returns paginated note summaries.
func (s *Service) ListNotes(ctx context.Context, limit, offset int, label string, folder models.Folder, sort string) ([]models.NoteSummary, int, error) {
	if folder != "" && !folder.Valid() {
		return nil, 0, fmt.Errorf("unknown folder %q: %w", folder, apperr.ErrInvalidArgument)
	}
	items, total, err := s.db.Queries().ListNotes(ctx, limit, offset, label, folder, sort)
	if err != nil {
		return nil, 0, err
	}
	for i := range items {
		items[i].Labels = nonNilSlice(items[i].Labels)
	}
	return nonNilSlice(items), total, nil
}

// Search runs a full-text search over titles, bodies and labels.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	res, err := s.db.Queries().Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(res), nil
}

// DeleteNote moves a note to the DELETED folder. The purge worker removes it
// for good later.
func (s *Service) DeleteNote(ctx context.Context, id int64) error {
	return s.MoveNote(ctx, id, models.FolderDeleted)
}

// MoveNote moves a note to another folder.
func (s *Service) MoveNote(ctx context.Context, id int64, folder models.Folder) error {
	if !folder.Valid() {
		return fmt.Errorf("unknown folder %q: %w", folder, apperr.ErrInvalidArgument)
	}
	if err := s.db.Queries().MoveToFolder(ctx, id, folder, s.now()); err != nil {
		return err
	}
	if folder == models.FolderDeleted {
		s.publish(EventDeleted, id)
	} else {
		s.publish(EventUpdated, id)
	}
	return nil
}

// PurgeNote removes a note permanently.
func (s *Service) PurgeNote(ctx context.Context, id int64) error {
	q := s.db.Queries()
	if _, err := q.ModifiedAt(ctx, id); err != nil {
		return err
	}
	if err := q.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(EventDeleted, id)
	return nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
