// Package purge permanently removes notes that have sat in the DELETED folder
// longer than the retention period.
package purge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/notechain/internal/store"
)

// Notifier receives one event per purged note.
type Notifier interface {
	PublishNoteEvent(kind string, id int64)
}

// Purger deletes expired notes.
type Purger struct {
	db       *store.DB
	after    time.Duration
	interval time.Duration
	logger   *slog.Logger
	notifier Notifier
}

// New returns a Purger removing notes deleted more than afterDays days ago,
// checking every interval. afterDays 0 disables purging.
func New(db *store.DB, afterDays int, interval time.Duration, logger *slog.Logger, notifier Notifier) *Purger {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Purger{
		db:       db,
		after:    time.Duration(afterDays) * 24 * time.Hour,
		interval: interval,
		logger:   logger,
		notifier: notifier,
	}
}

// Enabled reports whether the purger removes anything.
func (p *Purger) Enabled() bool { return p.after > 0 }

// RunOnce removes every note deleted before now minus the retention period
// and returns how many were removed.
func (p *Purger) RunOnce(ctx context.Context, now time.Time) (int, error) {
	if !p.Enabled() {
		return 0, nil
	}
	var ids []int64
	err := p.db.InTx(ctx, func(q *store.Queries) error {
		var err error
		if ids, err = q.DeletedBefore(ctx, now.Add(-p.after)); err != nil {
			return err
		}
		return q.Delete(ctx, ids...)
	})
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	if len(ids) > 0 {
		p.logger.Info("purge: removed deleted notes", slog.Int("count", len(ids)))
	}
	if p.notifier != nil {
		for _, id := range ids {
			p.notifier.PublishNoteEvent("note.purged", id)
		}
	}
	return len(ids), nil
}

// Run purges once immediately and then every interval until ctx is cancelled.
// Failures are logged and retried on the next tick.
func (p *Purger) Run(ctx context.Context) error {
	if !p.Enabled() {
		p.logger.Info("purge: disabled")
		return nil
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.RunOnce(ctx, time.Now().UTC()); err != nil && ctx.Err() == nil {
			p.logger.Warn("purge: run failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
