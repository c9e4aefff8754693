package backup

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/notechain/internal/apperr"
	"github.com/starford/notechain/internal/storage"
)

// ImportFunc imports one backup file. Returning an error wrapping
// apperr.ErrAlreadyExists marks the file as a duplicate of an earlier import.
type ImportFunc func(ctx context.Context, name string, data []byte) error

// EventCallback is called after each processed file. kind is "imported",
// "duplicate" or "failed".
type EventCallback func(kind string, path string)

const debounce = 300 * time.Millisecond

// ErrorSuffix is appended to a failed file's name to form the name of the
// note holding the import error.
const ErrorSuffix = ".error.txt"

// Watch imports every file already waiting in the inbox, then watches the
// inbox root until ctx is cancelled. Each file is imported once its writes
// have settled. Imported files move to imported/, failed ones to failed/
// with the error written beside them, and duplicates are deleted.
func Watch(ctx context.Context, inbox storage.Provider, root string, logger *slog.Logger, importFn ImportFunc, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", root))

	ScanOnce(ctx, inbox, logger, importFn, cb)

	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			names := make([]string, 0, len(pending))
			for p := range pending {
				names = append(names, p)
			}
			sort.Strings(names)
			clear(pending)
			for _, rel := range names {
				processFile(ctx, inbox, rel, logger, importFn, cb)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !storage.Importable(ev.Name) {
				continue
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			pending[rel] = struct{}{}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// ScanOnce imports every file currently in the inbox.
func ScanOnce(ctx context.Context, inbox storage.Provider, logger *slog.Logger, importFn ImportFunc, cb EventCallback) {
	files, err := inbox.List("")
	if err != nil {
		logger.Warn("watcher: list failed", slog.String("error", err.Error()))
		return
	}
	for _, f := range files {
		if ctx.Err() != nil {
			return
		}
		processFile(ctx, inbox, f.Path, logger, importFn, cb)
	}
}

func processFile(ctx context.Context, inbox storage.Provider, rel string, logger *slog.Logger, importFn ImportFunc, cb EventCallback) {
	data, err := inbox.Read(rel)
	if err != nil {
		// Already moved, or removed before it settled.
		logger.Debug("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}

	base := filepath.ToSlash(filepath.Base(rel))
	kind := "imported"
	switch err := importFn(ctx, rel, data); {
	case errors.Is(err, apperr.ErrAlreadyExists):
		// Content already in the database; nothing worth keeping.
		kind = "duplicate"
		logger.Info("watcher: already imported", slog.String("path", rel))
		if err := inbox.Delete(rel); err != nil {
			logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
	case err != nil:
		kind = "failed"
		logger.Warn("watcher: import failed", slog.String("path", rel), slog.String("error", err.Error()))
		moveTo(inbox, rel, path.Join(storage.FailedDir, base), logger)
		// The reason sits next to the file so it can be fixed and dropped back in.
		if err := inbox.Write(path.Join(storage.FailedDir, base+ErrorSuffix), []byte(err.Error()+"\n")); err != nil {
			logger.Warn("watcher: write error note failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
	default:
		logger.Info("watcher: imported", slog.String("path", rel))
		moveTo(inbox, rel, path.Join(storage.ImportedDir, base), logger)
	}

	if cb != nil {
		cb(kind, rel)
	}
}

func moveTo(inbox storage.Provider, rel, target string, logger *slog.Logger) {
	if err := inbox.Move(rel, target); err != nil {
		logger.Warn("watcher: move failed", slog.String("path", rel), slog.String("error", err.Error()))
	}
}
