package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ListLabels returns every known label name in ascending order.
func (q *Queries) ListLabels(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT name FROM labels ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("store: list labels: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// InsertLabels registers label names; existing names are left alone.
func (q *Queries) InsertLabels(ctx context.Context, names ...string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, err := q.db.ExecContext(ctx, `INSERT OR IGNORE INTO labels (name) VALUES (?)`, name); err != nil {
			return fmt.Errorf("store: insert label %q: %w", name, err)
		}
	}
	return nil
}

// DeleteLabel removes a label name from the label table.
func (q *Queries) DeleteLabel(ctx context.Context, name string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM labels WHERE name = ?`, name); err != nil {
		return fmt.Errorf("store: delete label %q: %w", name, err)
	}
	return nil
}

// RenameLabel renames a label in the label table. Renaming onto an existing
// name merges the two.
func (q *Queries) RenameLabel(ctx context.Context, from, to string) error {
	if err := q.InsertLabels(ctx, to); err != nil {
		return err
	}
	return q.DeleteLabel(ctx, from)
}

const dataSchemaKey = "data_schema_id"

// DataSchema returns the persisted data schema version, 0 when never set.
func (q *Queries) DataSchema(ctx context.Context) (int, error) {
	var v string
	err := q.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, dataSchemaKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: read data schema: %w", err)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("store: bad data schema %q: %w", v, err)
	}
	return n, nil
}

// SetDataSchema persists the data schema version.
func (q *Queries) SetDataSchema(ctx context.Context, version int) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, dataSchemaKey, strconv.Itoa(version))
	if err != nil {
		return fmt.Errorf("store: write data schema: %w", err)
	}
	return nil
}

// HasImport reports whether a backup with this checksum was already imported.
func (q *Queries) HasImport(ctx context.Context, checksum string) (bool, error) {
	var one int
	err := q.db.QueryRowContext(ctx, `SELECT 1 FROM imports WHERE checksum = ?`, checksum).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: lookup import: %w", err)
	}
	return true, nil
}

// RecordImport remembers an imported backup by checksum.
func (q *Queries) RecordImport(ctx context.Context, checksum, name string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO imports (checksum, name, imported_at) VALUES (?, ?, ?)
	`, checksum, name, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("store: record import: %w", err)
	}
	return nil
}
