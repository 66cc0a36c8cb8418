package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/app"
	"github.com/lazypower/recall/internal/server"
	"github.com/lazypower/recall/internal/watcher"
)

var (
	watchDir string
	noWatch  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&watchDir, "watch", "", "project directory to watch for code changes (default: current directory)")
	serveCmd.Flags().BoolVar(&noWatch, "no-watch", false, "disable the file watcher")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	a.Engine.StartRetentionTimer(cfg.Retention.Days, cfg.Retention.Interval)

	go func() {
		embedCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		if n, err := a.Engine.EmbedMissing(embedCtx); err != nil {
			slog.Warn("embed missing failed", "component", "cli", "err", err)
		} else if n > 0 {
			slog.Info("embedded missing memories", "component", "cli", "count", n)
		}
	}()

	if cfg.Watcher.Enabled && !noWatch {
		if err := startWatcher(ctx, a); err != nil {
			slog.Warn("file watcher disabled", "component", "cli", "err", err)
		}
	}

	addr := cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.New(a, VersionString()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("recall serving", "component", "cli", "addr", addr, "db", a.DB.Path)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	slog.Info("shutting down", "component", "cli")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func startWatcher(ctx context.Context, a *app.App) error {
	root := watchDir
	if root == "" {
		var err error
		if root, err = os.Getwd(); err != nil {
			return err
		}
	}
	w, err := watcher.New(root, cfg.Watcher.Debounce, a.Tracker, a.VCS)
	if err != nil {
		return err
	}
	go func() {
		if err := w.Run(ctx); err != nil {
			slog.Warn("file watcher stopped", "component", "cli", "err", err)
		}
	}()
	return nil
}
