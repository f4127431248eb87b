// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/zettenote/internal/api"
	"github.com/starford/zettenote/internal/backup"
	"github.com/starford/zettenote/internal/inbox"
	"github.com/starford/zettenote/internal/kvstore"
	"github.com/starford/zettenote/internal/mcpserver"
	"github.com/starford/zettenote/internal/noteservice"
	"github.com/starford/zettenote/internal/schema"
	"github.com/starford/zettenote/internal/sse"
	"github.com/starford/zettenote/internal/storage"
)

// errShutdown stops the remaining workers once the server has shut down.
var errShutdown = errors.New("shutdown")

// Run starts the HTTP server with the given options and blocks until ctx
// is cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_path", cfg.Store.Path),
		slog.String("backup_dir", cfg.Backup.Dir),
		slog.String("inbox_dir", cfg.Backup.Inbox),
		slog.String("log_level", cfg.App.LogLevel.String()))

	archive, err := openArchive(cfg.Backup.Dir)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	// SSE broker.
	broker := sse.NewBroker(sse.WithGraphThrottle(2 * time.Second))
	defer broker.Close()

	svc := noteservice.New(store, noteservice.WithPublisher(broker))
	apiRouter := api.NewRouter(svc, archive, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Ready(r.Context()); err != nil {
			logger.Warn("readiness check failed", slog.String("error", err.Error()))
			writeHealth(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeHealth(w, http.StatusOK, "ok")
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Backup.Inbox != "" {
		if err := os.MkdirAll(cfg.Backup.Inbox, 0o755); err != nil {
			return fmt.Errorf("create inbox dir: %w", err)
		}
		g.Go(func() error {
			return inbox.Watch(gCtx, svc, cfg.Backup.Inbox, logger, nil)
		})
	}

	if cfg.Backup.Interval > 0 {
		g.Go(func() error {
			snapshotLoop(gCtx, svc, archive, cfg.Backup.Interval, cfg.Backup.Keep, logger, broker.PublishBackup)
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
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

		// Ends open event streams so Shutdown does not wait on them.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// Export writes a backup of every note to out and returns the path
// written. An empty out writes into the archive directory under the
// dated backup name.
func Export(ctx context.Context, out string, opts ...Option) (string, error) {
	app, err := newApplication(opts)
	if err != nil {
		return "", err
	}
	cfg := app.config
	logger := app.logger()

	store, err := openStore(ctx, cfg.Store.Path)
	if err != nil {
		return "", err
	}
	defer store.Close()

	payload, err := noteservice.New(store).Export(ctx)
	if err != nil {
		return "", err
	}
	data, err := payload.Encode()
	if err != nil {
		return "", err
	}

	dir, name := cfg.Backup.Dir, backup.FileName(time.Now())
	if out != "" {
		dir, name = filepath.Dir(out), filepath.Base(out)
	}
	target, err := openArchive(dir)
	if err != nil {
		return "", err
	}
	if err := target.Write(name, data); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	if out == "" {
		prune(target, cfg.Backup.Keep, logger)
	}

	path := filepath.Join(target.Root(), name)
	logger.Info("backup exported", slog.String("path", path), slog.Int("notes", payload.NoteCount))
	return path, nil
}

// Import merges or replaces the store contents with the backup at path.
func Import(ctx context.Context, path string, mode backup.Mode, opts ...Option) (int, error) {
	app, err := newApplication(opts)
	if err != nil {
		return 0, err
	}
	cfg := app.config
	logger := app.logger()

	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read backup: %w", err)
	}

	store, err := openStore(ctx, cfg.Store.Path)
	if err != nil {
		return 0, err
	}
	defer store.Close()

	n, err := noteservice.New(store).Import(ctx, raw, mode)
	if err != nil {
		return 0, err
	}
	logger.Info("backup imported", slog.String("path", path), slog.String("mode", string(mode)), slog.Int("notes", n))
	return n, nil
}

// ServeMCP serves the MCP tools over stdin/stdout until the client
// disconnects. Logs go to stderr unless WithLogOutput says otherwise.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.logger()

	store, err := openStore(ctx, app.config.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	logger.Info("MCP server starting", slog.String("store_path", app.config.Store.Path))
	return mcpserver.New(noteservice.New(store)).ServeStdio()
}

func openStore(ctx context.Context, path string) (*kvstore.Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	store, err := schema.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	return store, nil
}

func openArchive(dir string) (*storage.FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	archive, err := storage.NewFS(dir)
	if err != nil {
		return nil, fmt.Errorf("init backup archive: %w", err)
	}
	return archive, nil
}

// snapshotLoop archives a snapshot every interval until ctx is done and
// reports each new archive name to notify.
func snapshotLoop(ctx context.Context, svc *noteservice.Service, archive *storage.FS, interval time.Duration, keep int, logger *slog.Logger, notify func(name string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			entry, err := svc.Snapshot(ctx, archive)
			if err != nil {
				logger.Error("snapshot failed", slog.String("error", err.Error()))
				continue
			}
			logger.Info("snapshot written", slog.String("name", entry.Name), slog.Int64("size", entry.Size))
			notify(entry.Name)
			prune(archive, keep, logger)
		}
	}
}

func prune(archive *storage.FS, keep int, logger *slog.Logger) {
	removed, err := archive.Prune(keep)
	if err != nil {
		logger.Warn("prune backups failed", slog.String("error", err.Error()))
		return
	}
	for _, name := range removed {
		logger.Debug("pruned backup", slog.String("name", name))
	}
}

func writeHealth(w http.ResponseWriter, status int, state string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, state)
}
