// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/notechain/internal/api"
	"github.com/starford/notechain/internal/apperr"
	"github.com/starford/notechain/internal/backup"
	"github.com/starford/notechain/internal/migrate"
	"github.com/starford/notechain/internal/noteservice"
	"github.com/starford/notechain/internal/purge"
	"github.com/starford/notechain/internal/split"
	"github.com/starford/notechain/internal/sse"
	"github.com/starford/notechain/internal/storage"
	"github.com/starford/notechain/internal/store"
)

// core is the state shared by the server and the one-shot commands.
type core struct {
	cfg      *Config
	logger   *slog.Logger
	db       *store.DB
	splitter *split.Splitter
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
}

// open applies opts, installs the logger and opens the note store.
func open(logOut io.Writer, opts ...Option) (*core, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(cfg, logOut)
	slog.SetDefault(logger)

	splitter, err := split.New(cfg.Notes.MaxBodyChars, logger)
	if err != nil {
		return nil, fmt.Errorf("init splitter: %w", err)
	}
	db, err := store.Open(cfg.SQLite.Path, store.WithReadLimit(cfg.Notes.ReadLimitBytes))
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	return &core{cfg: cfg, logger: logger, db: db, splitter: splitter}, nil
}

func (c *core) Close() error {
	return c.db.Close()
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	c, err := open(os.Stdout, opts...)
	if err != nil {
		return err
	}
	defer c.Close()
	cfg, logger := c.cfg, c.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Int("max_body_chars", cfg.Notes.MaxBodyChars),
		slog.Int64("read_limit_bytes", cfg.Notes.ReadLimitBytes),
		slog.Bool("inbox_enabled", cfg.Inbox.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(500 * time.Millisecond)
	defer broker.Close()

	migrator := migrate.New(c.db, c.splitter, logger, func(p migrate.Progress) {
		broker.PublishProgress(p, p.Done)
	})

	svc := noteservice.NewService(c.db, c.splitter, logger, noteservice.WithNotifier(broker))
	apiRouter := api.NewRouter(svc, migrator, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.db.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	// Bind before migrating so SSE clients can follow the startup migration.
	ln, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", httpServer.Addr, err)
	}
	defer ln.Close()

	g, gCtx := errgroup.WithContext(ctx)

	// Inbox watcher.
	if cfg.Inbox.Enabled {
		if err := os.MkdirAll(cfg.Inbox.Path, 0o755); err != nil {
			return fmt.Errorf("create inbox dir: %w", err)
		}
		inbox, err := storage.NewFS(cfg.Inbox.Path)
		if err != nil {
			return fmt.Errorf("init inbox: %w", err)
		}
		g.Go(func() error {
			return backup.Watch(gCtx, inbox, inbox.Root(), logger, svc.ImportFunc(), func(kind, path string) {
				broker.Publish(sse.Event{Type: "inbox." + kind, Data: map[string]string{"path": path}})
			})
		})
	}

	// Purge worker.
	purger := purge.New(c.db, cfg.Purge.AfterDays, cfg.Purge.Interval, logger, broker)
	g.Go(func() error {
		return purger.Run(gCtx)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Bring stored notes up to the current data schema in the background.
	g.Go(func() error {
		return runStartupMigration(gCtx, migrator, logger)
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// runStartupMigration migrates stored notes while the server is already
// serving. A migration started through the API first is left to finish.
func runStartupMigration(ctx context.Context, m *migrate.Migrator, logger *slog.Logger) error {
	report, err := m.Run(ctx)
	switch {
	case err == nil:
		if report.From != report.To {
			logger.Info("Startup migration complete",
				slog.Int("from", report.From),
				slog.Int("to", report.To))
		}
		return nil
	case errors.Is(err, apperr.ErrConflict):
		logger.Info("Startup migration skipped, another run is in progress")
		return nil
	case ctx.Err() != nil:
		return nil
	}
	return fmt.Errorf("migrate: %w", err)
}
