package store

import (
	"context"
	"time"

	"github.com/starford/notechain/internal/models"
)

// NoteStore lists the note-store operations available on Queries.
// Consumers should depend on narrower interfaces of their own where they can.
type NoteStore interface {
	Get(ctx context.Context, id int64) (*models.Note, error)
	Insert(ctx context.Context, n *models.Note) (int64, error)
	UpdateSpans(ctx context.Context, id int64, spans []models.Span) error
	UpdateLabels(ctx context.Context, id int64, labels []string) error
	TruncateBody(ctx context.Context, id int64, maxLen int) error
	MoveToFolder(ctx context.Context, id int64, folder models.Folder, at time.Time) error
	Delete(ctx context.Context, ids ...int64) error
	DeletedBefore(ctx context.Context, cutoff time.Time) ([]int64, error)
	AllIDs(ctx context.Context) ([]int64, error)
	ModifiedAt(ctx context.Context, id int64) (time.Time, error)
	ListNotes(ctx context.Context, limit, offset int, label string, folder models.Folder, sort string) ([]models.NoteSummary, int, error)
	ListByLabel(ctx context.Context, label string) ([]models.NoteLabels, error)
	Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error)
	ListLabels(ctx context.Context) ([]string, error)
	InsertLabels(ctx context.Context, names ...string) error
	DeleteLabel(ctx context.Context, name string) error
	RenameLabel(ctx context.Context, from, to string) error
	DataSchema(ctx context.Context) (int, error)
	SetDataSchema(ctx context.Context, version int) error
	HasImport(ctx context.Context, checksum string) (bool, error)
	RecordImport(ctx context.Context, checksum, name string, at time.Time) error
	Savepoint(ctx context.Context, fn func() error) error
}

// Verify *Queries satisfies NoteStore at compile time.
var _ NoteStore = (*Queries)(nil)
