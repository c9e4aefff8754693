//go:build !sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/notechain/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; full-text search uses LIKE on the notes table.
	return nil
}

func ftsSync(_ context.Context, _ dbtx, _ int64) error { return nil }

func ftsDelete(_ context.Context, _ dbtx, _ int64) {}

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
// Deleted notes are excluded.
func (q *Queries) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, title, substr(body, 1, 200)
		FROM notes
		WHERE folder != 'DELETED' AND (title LIKE ? OR body LIKE ? OR labels LIKE ?)
		ORDER BY modified_at DESC
		LIMIT ?
	`, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	var out []models.SearchResult
	for rows.Next() {
		var r models.SearchResult
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
