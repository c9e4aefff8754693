package noteservice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/notechain/internal/apperr"
	"github.com/starford/notechain/internal/backup"
	"github.com/starford/notechain/internal/checksum"
	"github.com/starford/notechain/internal/export"
	"github.com/starford/notechain/internal/models"
	"github.com/starford/notechain/internal/split"
	"github.com/starford/notechain/internal/store"
)

// ImportSummary reports the outcome of importing one backup file.
type ImportSummary struct {
	Name     string          `json:"name"`
	Checksum string          `json:"checksum"`
	Notes    int             `json:"notes"`
	Imported int             `json:"imported"`
	Parts    int             `json:"parts"`
	Relinked int             `json:"relinked"`
	IDMap    map[int64]int64 `json:"id_map"`
	Failed   []ImportFailure `json:"failed"`
}

// ImportFailure describes a note of a backup that could not be stored.
type ImportFailure struct {
	OriginalID int64  `json:"original_id,omitempty"`
	ID         int64  `json:"id,omitempty"`
	Title      string `json:"title,omitempty"`
	Error      string `json:"error"`
}

// ImportFile decodes a backup file and imports all of its notes in one
// transaction. Oversized notes are split and links between the imported
// notes are retargeted to their new ids. A file whose content was imported
// before is refused with apperr.ErrAlreadyExists.
func (s *Service) ImportFile(ctx context.Context, name string, data []byte) (*ImportSummary, error) {
	sum := checksum.Sum(data)
	doc, err := backup.Decode(name, data)
	if err != nil {
		return nil, fmt.Errorf("noteservice: import %s: %w: %w", name, apperr.ErrInvalidArgument, err)
	}

	var report *split.ImportReport
	err = s.db.InTx(ctx, func(q *store.Queries) error {
		seen, err := q.HasImport(ctx, sum)
		if err != nil {
			return err
		}
		if seen {
			return fmt.Errorf("content %s: %w", checksum.Short(sum), apperr.ErrAlreadyExists)
		}
		if err := q.InsertLabels(ctx, doc.AllLabels()...); err != nil {
			return err
		}
		if report, err = s.splitter.ImportBatch(ctx, q, doc.Sources()); err != nil {
			return err
		}
		return q.RecordImport(ctx, sum, name, s.now())
	})
	if err != nil {
		return nil, fmt.Errorf("noteservice: import %s: %w", name, err)
	}

	summary := &ImportSummary{
		Name:     name,
		Checksum: sum,
		Notes:    len(doc.Notes),
		Imported: len(doc.Notes),
		Parts:    len(report.Inserted),
		Relinked: report.Relinked,
		IDMap:    report.IDMap,
		Failed:   []ImportFailure{},
	}
	for _, f := range report.Failed {
		if f.ID == 0 {
			summary.Imported--
		}
		summary.Failed = append(summary.Failed, ImportFailure{
			OriginalID: f.OriginalID,
			ID:         f.ID,
			Title:      f.Title,
			Error:      f.Err.Error(),
		})
	}
	s.logger.Info("noteservice: backup imported",
		slog.String("name", name),
		slog.String("checksum", checksum.Short(sum)),
		slog.Int("notes", summary.Notes),
		slog.Int("parts", summary.Parts),
		slog.Int("relinked", summary.Relinked),
		slog.Int("failed", len(summary.Failed)))
	s.publish(EventImported, 0)
	return summary, nil
}

// ImportFunc adapts ImportFile for the inbox watcher.
func (s *Service) ImportFunc() backup.ImportFunc {
	return func(ctx context.Context, name string, data []byte) error {
		_, err := s.ImportFile(ctx, name, data)
		return err
	}
}

// ExportBackup writes every note and the label catalogue as a JSON backup
// that ImportFile accepts.
func (s *Service) ExportBackup(ctx context.Context) ([]byte, error) {
	ids, err := s.db.Queries().AllIDs(ctx)
	if err != nil {
		return nil, err
	}
	notes := make([]*models.Note, 0, len(ids))
	for _, id := range ids {
		n, _, err := s.load(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("noteservice: export note %d: %w", id, err)
		}
		notes = append(notes, n)
	}
	labels, err := s.db.Queries().ListLabels(ctx)
	if err != nil {
		return nil, err
	}
	return backup.Encode(notes, labels)
}

// ExportNote renders one note in the given format.
func (s *Service) ExportNote(ctx context.Context, id int64, format export.Format) ([]byte, error) {
	d, err := s.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	return export.Render(&d.Note, format)
}
