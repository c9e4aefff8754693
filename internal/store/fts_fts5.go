//go:build sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/notechain/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			id UNINDEXED,
			title,
			body,
			labels,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

// ftsSync copies the current row into the FTS table. It reads the row inside
// SQLite, so it works even for rows that exceed the read limit.
func ftsSync(ctx context.Context, db dbtx, id int64) error {
	_, _ = db.ExecContext(ctx, `DELETE FROM notes_fts WHERE id = ?`, id)
	_, err := db.ExecContext(ctx, `
		INSERT INTO notes_fts (id, title, body, labels)
		SELECT id, title, body, labels FROM notes WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("store: sync fts: %w", err)
	}
	return nil
}

func ftsDelete(ctx context.Context, db dbtx, id int64) {
	_, _ = db.ExecContext(ctx, `DELETE FROM notes_fts WHERE id = ?`, id)
}

// Search performs an FTS5 full-text search and returns matching results with snippets.
func (q *Queries) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT f.id,
		       f.title,
		       snippet(notes_fts, 2, '<b>', '</b>', '...', 64)
		FROM notes_fts f
		JOIN notes n ON n.id = f.id
		WHERE notes_fts MATCH ? AND n.folder != 'DELETED'
		ORDER BY rank
		LIMIT ?
	`, query, limit)
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
