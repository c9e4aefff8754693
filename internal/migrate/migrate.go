// Package migrate brings stored notes up to the current data schema and
// repairs rows the store can no longer read.
package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/notechain/internal/apperr"
	"github.com/starford/notechain/internal/models"
	"github.com/starford/notechain/internal/split"
	"github.com/starford/notechain/internal/store"
)

// LatestDataSchema is the data schema version written after a full run.
//
//	1: spans clipped to their body and meaningless spans dropped
//	2: oversized text notes split into chained parts
const LatestDataSchema = 2

// Progress is reported once per processed note and once when a step finishes.
type Progress struct {
	Step    int    `json:"step"`
	Title   string `json:"title"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Done    bool   `json:"done"`
}

// ProgressFunc receives progress updates. It is called from the migrating goroutine.
type ProgressFunc func(Progress)

// Failure is a note that could not be migrated.
type Failure struct {
	ID    int64  `json:"id"`
	Step  int    `json:"step"`
	Error string `json:"error"`
}

// Report summarises a migration or repair run.
type Report struct {
	From       int       `json:"from"`
	To         int       `json:"to"`
	Normalised int       `json:"normalised"`
	Split      int       `json:"split"`
	Created    int       `json:"created"`
	Repaired   int       `json:"repaired"`
	Failed     []Failure `json:"failed,omitempty"`
}

// Migrator runs data migrations one note at a time, each in its own
// transaction, so an interrupted run can simply be started again.
type Migrator struct {
	db       *store.DB
	splitter *split.Splitter
	logger   *slog.Logger
	progress ProgressFunc
	running  sync.Mutex
}

// New creates a Migrator.
func New(db *store.DB, splitter *split.Splitter, logger *slog.Logger, progress ProgressFunc) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	if progress == nil {
		progress = func(Progress) {}
	}
	return &Migrator{db: db, splitter: splitter, logger: logger, progress: progress}
}

type step struct {
	version int
	title   string
	apply   func(ctx context.Context, q *store.Queries, id int64, r *Report) error
}

func (m *Migrator) steps() []step {
	return []step{
		{version: 1, title: "Normalising formatting", apply: m.normalise},
		{version: 2, title: "Splitting oversized notes", apply: m.splitNote},
	}
}

// Run applies every step above the persisted data schema version. The version
// is advanced after each completed step.
func (m *Migrator) Run(ctx context.Context) (*Report, error) {
	if !m.running.TryLock() {
		return nil, fmt.Errorf("migrate: already running: %w", apperr.ErrConflict)
	}
	defer m.running.Unlock()

	q := m.db.Queries()
	from, err := q.DataSchema(ctx)
	if err != nil {
		return nil, err
	}
	report := &Report{From: from, To: from}
	if from >= LatestDataSchema {
		return report, nil
	}
	m.logger.Info("migrate: starting",
		slog.Int("from", from),
		slog.Int("to", LatestDataSchema))

	for _, st := range m.steps() {
		if st.version <= from {
			continue
		}
		if err := m.forEachNote(ctx, st.version, st.title, report, st.apply); err != nil {
			return report, err
		}
		if err := q.SetDataSchema(ctx, st.version); err != nil {
			return report, err
		}
		report.To = st.version
	}

	m.logger.Info("migrate: finished",
		slog.Int("version", report.To),
		slog.Int("split", report.Split),
		slog.Int("created", report.Created),
		slog.Int("repaired", report.Repaired),
		slog.Int("failed", len(report.Failed)))
	return report, nil
}

// RepairAll scans every note and repairs the ones the store refuses to read.
func (m *Migrator) RepairAll(ctx context.Context) (*Report, error) {
	if !m.running.TryLock() {
		return nil, fmt.Errorf("migrate: already running: %w", apperr.ErrConflict)
	}
	defer m.running.Unlock()

	report := &Report{}
	err := m.forEachNote(ctx, 0, "Repairing notes", report, func(ctx context.Context, q *store.Queries, id int64, r *Report) error {
		_, repaired, err := m.splitter.LoadForProcessing(ctx, q, id)
		if repaired {
			r.Repaired++
		}
		return err
	})
	if err != nil {
		return report, err
	}
	if v, err := m.db.Queries().DataSchema(ctx); err == nil {
		report.From, report.To = v, v
	}
	m.logger.Info("repair: finished",
		slog.Int("repaired", report.Repaired),
		slog.Int("failed", len(report.Failed)))
	return report, nil
}

// forEachNote runs fn for every stored note, one transaction per note. Notes
// that fail are logged and recorded; only context cancellation and scan
// errors stop the run.
func (m *Migrator) forEachNote(ctx context.Context, version int, title string, report *Report, fn func(context.Context, *store.Queries, int64, *Report) error) error {
	ids, err := m.db.Queries().AllIDs(ctx)
	if err != nil {
		return err
	}
	total := len(ids)
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.progress(Progress{Step: version, Title: title, Current: i, Total: total})

		err := m.db.InTx(ctx, func(q *store.Queries) error {
			return fn(ctx, q, id, report)
		})
		if err != nil {
			m.logger.Warn("migrate: note failed",
				slog.Int64("id", id),
				slog.Int("step", version),
				slog.String("error", err.Error()))
			report.Failed = append(report.Failed, Failure{ID: id, Step: version, Error: err.Error()})
		}
	}
	m.progress(Progress{Step: version, Title: title, Current: total, Total: total, Done: true})
	return nil
}

func (m *Migrator) normalise(ctx context.Context, q *store.Queries, id int64, r *Report) error {
	n, repaired, err := m.splitter.LoadForProcessing(ctx, q, id)
	if repaired {
		r.Repaired++
	}
	if err != nil {
		return err
	}
	spans, changed := NormaliseSpans(n)
	if !changed {
		return nil
	}
	if err := q.UpdateSpans(ctx, id, spans); err != nil {
		return err
	}
	r.Normalised++
	return nil
}

func (m *Migrator) splitNote(ctx context.Context, q *store.Queries, id int64, r *Report) error {
	created, repaired, err := m.splitter.SplitStored(ctx, q, id)
	if repaired {
		r.Repaired++
	}
	if err != nil {
		return err
	}
	if created > 0 {
		r.Split++
		r.Created += created
	}
	return nil
}

// NormaliseSpans clips n's spans to its body and drops spans that carry no
// formatting. changed reports whether the result differs from n.Spans.
func NormaliseSpans(n *models.Note) (spans []models.Span, changed bool) {
	clipped := split.SliceSpans(n.Spans, 0, n.BodyLen(), 0)
	spans = make([]models.Span, 0, len(clipped))
	for _, s := range clipped {
		if s.Meaningful() {
			spans = append(spans, s)
		}
	}
	if len(spans) != len(n.Spans) {
		return spans, true
	}
	for i := range spans {
		if spans[i] != n.Spans[i] {
			return spans, true
		}
	}
	return spans, false
}
