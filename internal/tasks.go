package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/notechain/internal/apperr"
	"github.com/starford/notechain/internal/mcpserver"
	"github.com/starford/notechain/internal/migrate"
	"github.com/starford/notechain/internal/noteservice"
	"github.com/starford/notechain/internal/storage"
)

// RunMigrate brings the store up to the latest data schema and writes the
// report to out as JSON.
func RunMigrate(ctx context.Context, out io.Writer, opts ...Option) error {
	c, err := open(os.Stderr, opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	report, err := migrate.New(c.db, c.splitter, c.logger, nil).Run(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return writeReport(out, report)
}

// RunRepair truncates every stored note the store can no longer read.
func RunRepair(ctx context.Context, out io.Writer, opts ...Option) error {
	c, err := open(os.Stderr, opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	report, err := migrate.New(c.db, c.splitter, c.logger, nil).RepairAll(ctx)
	if err != nil {
		return fmt.Errorf("repair: %w", err)
	}
	return writeReport(out, report)
}

// RunImport imports backup files. Files that were imported before are
// skipped; any other failure stops the run.
func RunImport(ctx context.Context, files []string, out io.Writer, opts ...Option) error {
	c, err := open(os.Stderr, opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	svc := noteservice.NewService(c.db, c.splitter, c.logger)
	summaries := make([]*noteservice.ImportSummary, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}
		sum, err := svc.ImportFile(ctx, filepath.Base(f), data)
		if errors.Is(err, apperr.ErrAlreadyExists) {
			c.logger.Info("import: already imported", slog.String("path", f))
			continue
		}
		if err != nil {
			return err
		}
		summaries = append(summaries, sum)
	}
	return writeReport(out, summaries)
}

// RunExport writes a JSON backup of every note to path, or to out when path
// is empty or "-".
func RunExport(ctx context.Context, path string, out io.Writer, opts ...Option) error {
	c, err := open(os.Stderr, opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	data, err := noteservice.NewService(c.db, c.splitter, c.logger).ExportBackup(ctx)
	if err != nil {
		return err
	}
	if path == "" || path == "-" {
		_, err = out.Write(data)
		return err
	}
	dir, err := storage.NewFS(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := dir.Write(filepath.Base(path), data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	c.logger.Info("export: written", slog.String("path", path), slog.Int("bytes", len(data)))
	return nil
}

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr.
func RunMCP(_ context.Context, opts ...Option) error {
	c, err := open(os.Stderr, opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	svc := noteservice.NewService(c.db, c.splitter, c.logger)
	return mcpserver.New(svc).ServeStdio()
}

func writeReport(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
