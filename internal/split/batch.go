package split

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/notechain/internal/models"
)

// SourceNote is a note from an import batch with the id it had at its source.
// OriginalID 0 means the source carried no id; such notes cannot be link targets.
type SourceNote struct {
	OriginalID int64
	Note       *models.Note
}

// Failure records a note that could not be processed.
type Failure struct {
	OriginalID int64
	ID         int64
	Title      string
	Err        error
}

// ImportReport summarises a batch import.
type ImportReport struct {
	IDMap    IDMap
	Inserted []Inserted
	Relinked int
	Failed   []Failure
}

// ImportBatch inserts every note of batch, splitting oversized text notes,
// then retargets links between the imported notes. Relinking only runs after
// all notes are stored because a link may point at a note later in the batch.
// A note that fails validation or storage is logged and recorded in the
// report; the rest of the batch carries on.
func (s *Splitter) ImportBatch(ctx context.Context, st Store, batch []SourceNote) (*ImportReport, error) {
	report := &ImportReport{IDMap: make(IDMap, len(batch))}

	for _, src := range batch {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := s.insertOne(ctx, st, src.Note)
		if err != nil {
			s.logger.Warn("import: note failed",
				slog.Int64("original_id", src.OriginalID),
				slog.String("title", src.Note.Title),
				slog.String("error", err.Error()))
			report.Failed = append(report.Failed, Failure{OriginalID: src.OriginalID, Title: src.Note.Title, Err: err})
			continue
		}
		if src.OriginalID != 0 {
			if prev, dup := report.IDMap[src.OriginalID]; dup {
				s.logger.Warn("import: duplicate source id",
					slog.Int64("original_id", src.OriginalID),
					slog.Int64("replaced", prev))
			}
			report.IDMap[src.OriginalID] = res.FirstID
		}
		report.Inserted = append(report.Inserted, res.Inserted...)
	}

	for i, ins := range report.Inserted {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		// Navigation links already hold new ids; only content spans are remapped.
		content, nav := ins.Spans, []models.Span(nil)
		if ins.Next != 0 && len(content) > 0 {
			content, nav = content[:len(content)-1], content[len(content)-1:]
		}
		changed, remapped := RemapLinks(content, report.IDMap)
		if !changed {
			continue
		}
		spans := append(remapped, nav...)
		if err := st.UpdateSpans(ctx, ins.ID, spans); err != nil {
			s.logger.Warn("import: relink failed",
				slog.Int64("id", ins.ID),
				slog.String("error", err.Error()))
			report.Failed = append(report.Failed, Failure{ID: ins.ID, Err: fmt.Errorf("relink: %w", err)})
			continue
		}
		report.Inserted[i].Spans = spans
		report.Relinked++
	}
	return report, nil
}

func (s *Splitter) insertOne(ctx context.Context, st Store, n *models.Note) (Result, error) {
	if n == nil {
		return Result{}, fmt.Errorf("split: nil note")
	}
	if err := n.Validate(); err != nil {
		return Result{}, fmt.Errorf("split: %q: %w", n.Title, err)
	}
	if n.Splittable() {
		return s.SplitForInsert(ctx, st, n)
	}
	c := n.Clone()
	c.ID = 0
	var id int64
	err := atomically(ctx, st, func() error {
		var err error
		id, err = st.Insert(ctx, c)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("split: insert %q: %w", n.Title, err)
	}
	return Result{FirstID: id, Inserted: []Inserted{{ID: id, Spans: c.Spans}}}, nil
}
