package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/notechain/internal/apperr"
	"github.com/starford/notechain/internal/models"
)

// Queries runs note-store statements against either the database or an open
// transaction.
type Queries struct {
	db        dbtx
	readLimit int64
	inTx      bool
	savepoint int
}

// Savepoint runs fn inside a nested savepoint when q belongs to a transaction,
// so a failing fn leaves the enclosing transaction untouched. Outside a
// transaction fn simply runs.
func (q *Queries) Savepoint(ctx context.Context, fn func() error) error {
	if !q.inTx {
		return fn()
	}
	q.savepoint++
	name := fmt.Sprintf("sp_%d", q.savepoint)
	if _, err := q.db.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("store: savepoint: %w", err)
	}
	if err := fn(); err != nil {
		_, _ = q.db.ExecContext(ctx, "ROLLBACK TO "+name)
		_, _ = q.db.ExecContext(ctx, "RELEASE "+name)
		return err
	}
	if _, err := q.db.ExecContext(ctx, "RELEASE "+name); err != nil {
		return fmt.Errorf("store: release savepoint: %w", err)
	}
	return nil
}

// Get loads a full note. Rows whose body exceeds the read limit are refused
// with apperr.ErrOversizedRead; a missing row yields apperr.ErrNotFound.
func (q *Queries) Get(ctx context.Context, id int64) (*models.Note, error) {
	var (
		n                          models.Note
		size                       int64
		body, spans, items, labels string
		pinned                     int
		created, modified          int64
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id, kind, folder, title,
		       length(CAST(body AS BLOB)),
		       CASE WHEN ? > 0 AND length(CAST(body AS BLOB)) > ? THEN '' ELSE body END,
		       CASE WHEN ? > 0 AND length(CAST(body AS BLOB)) > ? THEN '[]' ELSE spans END,
		       items, labels, pinned, created_at, modified_at
		FROM notes WHERE id = ?
	`, q.readLimit, q.readLimit, q.readLimit, q.readLimit, id).Scan(
		&n.ID, &n.Kind, &n.Folder, &n.Title, &size, &body, &spans, &items, &labels, &pinned, &created, &modified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: get note %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get note %d: %w", id, err)
	}
	if q.readLimit > 0 && size > q.readLimit {
		return nil, fmt.Errorf("store: get note %d (%d bytes): %w", id, size, apperr.ErrOversizedRead)
	}
	n.Body = body
	n.Pinned = pinned != 0
	n.CreatedAt = fromMillis(created)
	n.ModifiedAt = fromMillis(modified)
	if err := decodeColumns(&n, spans, items, labels); err != nil {
		return nil, fmt.Errorf("store: get note %d: %w", id, err)
	}
	return &n, nil
}

// Insert persists n. A zero ID allocates a fresh identifier; a non-zero ID
// replaces the stored row with that identifier (or creates it). The note's
// identifier is returned either way.
func (q *Queries) Insert(ctx context.Context, n *models.Note) (int64, error) {
	spans, items, labels, err := encodeColumns(n)
	if err != nil {
		return 0, fmt.Errorf("store: insert note: %w", err)
	}
	now := time.Now().UTC()
	created, modified := n.CreatedAt, n.ModifiedAt
	if created.IsZero() {
		created = now
	}
	if modified.IsZero() {
		modified = created
	}
	kind, folder := n.Kind, n.Folder
	if kind == "" {
		kind = models.KindText
	}
	if folder == "" {
		folder = models.FolderNotes
	}

	id := n.ID
	if id == 0 {
		res, err := q.db.ExecContext(ctx, `
			INSERT INTO notes (kind, folder, title, body, spans, items, labels, pinned, created_at, modified_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, kind, folder, n.Title, n.Body, spans, items, labels, boolInt(n.Pinned), created.UnixMilli(), modified.UnixMilli())
		if err != nil {
			return 0, fmt.Errorf("store: insert note: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("store: insert note: %w", err)
		}
	} else {
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO notes (id, kind, folder, title, body, spans, items, labels, pinned, created_at, modified_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				kind        = excluded.kind,
				folder      = excluded.folder,
				title       = excluded.title,
				body        = excluded.body,
				spans       = excluded.spans,
				items       = excluded.items,
				labels      = excluded.labels,
				pinned      = excluded.pinned,
				created_at  = excluded.created_at,
				modified_at = excluded.modified_at
		`, id, kind, folder, n.Title, n.Body, spans, items, labels, boolInt(n.Pinned), created.UnixMilli(), modified.UnixMilli())
		if err != nil {
			return 0, fmt.Errorf("store: replace note %d: %w", id, err)
		}
	}

	if err := ftsSync(ctx, q.db, id); err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateSpans rewrites only the span list of a stored note.
func (q *Queries) UpdateSpans(ctx context.Context, id int64, spans []models.Span) error {
	if spans == nil {
		spans = []models.Span{}
	}
	b, err := json.Marshal(spans)
	if err != nil {
		return fmt.Errorf("store: update spans: %w", err)
	}
	return q.execOne(ctx, "update spans", id, `UPDATE notes SET spans = ? WHERE id = ?`, string(b), id)
}

// UpdateLabels rewrites only the label list of a stored note.
func (q *Queries) UpdateLabels(ctx context.Context, id int64, labels []string) error {
	if labels == nil {
		labels = []string{}
	}
	b, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("store: update labels: %w", err)
	}
	if err := q.execOne(ctx, "update labels", id, `UPDATE notes SET labels = ? WHERE id = ?`, string(b), id); err != nil {
		return err
	}
	return ftsSync(ctx, q.db, id)
}

// TruncateBody cuts the stored body to its first maxLen code points without
// reading it into the process.
func (q *Queries) TruncateBody(ctx context.Context, id int64, maxLen int) error {
	if err := q.execOne(ctx, "truncate body", id,
		`UPDATE notes SET body = substr(body, 1, ?) WHERE id = ?`, maxLen, id); err != nil {
		return err
	}
	return ftsSync(ctx, q.db, id)
}

// MoveToFolder sets a note's folder and modification time.
func (q *Queries) MoveToFolder(ctx context.Context, id int64, folder models.Folder, at time.Time) error {
	return q.execOne(ctx, "move note", id,
		`UPDATE notes SET folder = ?, modified_at = ? WHERE id = ?`, folder, at.UnixMilli(), id)
}

// Delete permanently removes the given notes and their FTS entries.
func (q *Queries) Delete(ctx context.Context, ids ...int64) error {
	for _, id := range ids {
		ftsDelete(ctx, q.db, id)
		if _, err := q.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id); err != nil {
			return fmt.Errorf("store: delete note %d: %w", id, err)
		}
	}
	return nil
}

// DeletedBefore returns the ids of notes in the DELETED folder last modified before cutoff.
func (q *Queries) DeletedBefore(ctx context.Context, cutoff time.Time) ([]int64, error) {
	return q.ids(ctx, `SELECT id FROM notes WHERE folder = 'DELETED' AND modified_at < ? ORDER BY id`, cutoff.UnixMilli())
}

// AllIDs returns every stored note id in ascending order.
func (q *Queries) AllIDs(ctx context.Context) ([]int64, error) {
	return q.ids(ctx, `SELECT id FROM notes ORDER BY id`)
}

// ModifiedAt returns the stored modification time of a note without loading its body.
func (q *Queries) ModifiedAt(ctx context.Context, id int64) (time.Time, error) {
	var ms int64
	err := q.db.QueryRowContext(ctx, `SELECT modified_at FROM notes WHERE id = ?`, id).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("store: note %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("store: modified_at: %w", err)
	}
	return fromMillis(ms), nil
}

// ListNotes returns a page of note summaries and the total match count.
// An empty folder lists every folder except DELETED; an empty label disables
// label filtering. sort is one of "title", "created" or "modified" (default).
func (q *Queries) ListNotes(ctx context.Context, limit, offset int, label string, folder models.Folder, sort string) ([]models.NoteSummary, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		where []string
		args  []any
	)
	if folder == "" {
		where = append(where, "folder != 'DELETED'")
	} else {
		where = append(where, "folder = ?")
		args = append(args, folder)
	}
	if label != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(notes.labels) WHERE value = ?)")
		args = append(args, label)
	}
	cond := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count notes: %w", err)
	}

	order := "modified_at DESC"
	switch sort {
	case "title":
		order = "title COLLATE NOCASE ASC"
	case "created":
		order = "created_at DESC"
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, kind, folder, title, labels, pinned, length(body), created_at, modified_at
		FROM notes`+cond+`
		ORDER BY pinned DESC, `+order+`, id ASC
		LIMIT ? OFFSET ?
	`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list notes: %w", err)
	}
	defer rows.Close()

	var out []models.NoteSummary
	for rows.Next() {
		var (
			s                 models.NoteSummary
			labels            string
			pinned            int
			created, modified int64
		)
		if err := rows.Scan(&s.ID, &s.Kind, &s.Folder, &s.Title, &labels, &pinned, &s.BodyChars, &created, &modified); err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal([]byte(labels), &s.Labels); err != nil {
			return nil, 0, fmt.Errorf("store: decode labels of %d: %w", s.ID, err)
		}
		s.Pinned = pinned != 0
		s.CreatedAt = fromMillis(created)
		s.ModifiedAt = fromMillis(modified)
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// ListByLabel returns the label projection of every note carrying label.
func (q *Queries) ListByLabel(ctx context.Context, label string) ([]models.NoteLabels, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, labels FROM notes
		WHERE EXISTS (SELECT 1 FROM json_each(notes.labels) WHERE value = ?)
		ORDER BY id
	`, label)
	if err != nil {
		return nil, fmt.Errorf("store: list by label: %w", err)
	}
	defer rows.Close()

	var out []models.NoteLabels
	for rows.Next() {
		var (
			nl  models.NoteLabels
			raw string
		)
		if err := rows.Scan(&nl.ID, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &nl.Labels); err != nil {
			return nil, fmt.Errorf("store: decode labels of %d: %w", nl.ID, err)
		}
		out = append(out, nl)
	}
	return out, rows.Err()
}

func (q *Queries) execOne(ctx context.Context, op string, id int64, query string, args ...any) error {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store: %s %d: %w", op, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: %s %d: %w", op, id, apperr.ErrNotFound)
	}
	return nil
}

func (q *Queries) ids(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list ids: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func encodeColumns(n *models.Note) (spans, items, labels string, err error) {
	enc := func(v any) string {
		if err != nil {
			return ""
		}
		var b []byte
		b, err = json.Marshal(v)
		return string(b)
	}
	s, i, l := n.Spans, n.Items, n.Labels
	if s == nil {
		s = []models.Span{}
	}
	if i == nil {
		i = []models.Item{}
	}
	if l == nil {
		l = []string{}
	}
	return enc(s), enc(i), enc(l), err
}

func decodeColumns(n *models.Note, spans, items, labels string) error {
	if err := json.Unmarshal([]byte(spans), &n.Spans); err != nil {
		return fmt.Errorf("decode spans: %w", err)
	}
	if err := json.Unmarshal([]byte(items), &n.Items); err != nil {
		return fmt.Errorf("decode items: %w", err)
	}
	if err := json.Unmarshal([]byte(labels), &n.Labels); err != nil {
		return fmt.Errorf("decode labels: %w", err)
	}
	return nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
