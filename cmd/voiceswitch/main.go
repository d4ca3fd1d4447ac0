package main

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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/flowpbx/voiceswitch/internal/api"
	"github.com/flowpbx/voiceswitch/internal/config"
	"github.com/flowpbx/voiceswitch/internal/console"
	"github.com/flowpbx/voiceswitch/internal/database"
	"github.com/flowpbx/voiceswitch/internal/directory"
	"github.com/flowpbx/voiceswitch/internal/matcher"
	"github.com/flowpbx/voiceswitch/internal/metrics"
	"github.com/flowpbx/voiceswitch/internal/transport"
	"github.com/flowpbx/voiceswitch/internal/vnas"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting voiceswitch",
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
		"feed_enabled", cfg.FeedEnabled(),
	)

	// Open the directory store and run migrations.
	db, err := database.Open(cfg.DataDir, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Application context for detections and background lookups.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	dir, err := loadDirectory(appCtx, cfg, db)
	if err != nil {
		slog.Error("failed to load directory", "error", err)
		os.Exit(1)
	}
	slog.Info("directory loaded", "positions", dir.Count())

	var feed matcher.FeedSource
	if cfg.FeedEnabled() {
		feed = vnas.NewClient(cfg.FeedURL, cfg.FeedTimeout, logger)
	} else {
		slog.Warn("controller feed disabled, auto-detection limited to direct matches")
	}

	hub := transport.NewHub(logger)
	consoles := console.NewManager(appCtx, dir, matcher.New(feed, logger), hub.Sender, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		metrics.NewCollector(consoles, hub, db, time.Now()),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	handler, err := api.NewServer(cfg, db, consoles, hub, reg, logger)
	if err != nil {
		slog.Error("failed to create api server", "error", err)
		os.Exit(1)
	}
	defer handler.Close()

	// Identity detection waits on the controller feed, so the write
	// timeout leaves room for one fetch.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.FeedTimeout + 20*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr, "tls", cfg.TLSEnabled())
		var err error
		if cfg.TLSEnabled() {
			err = srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Cancel pending detections before draining connections.
	appCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down http server")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("voiceswitch stopped")
}

// loadDirectory imports the configured directory file, if any, and returns
// the directory held in the store. An empty store yields an empty directory.
func loadDirectory(ctx context.Context, cfg *config.Config, db *database.DB) (*directory.Facility, error) {
	repo := database.NewDirectoryRepository(db)

	if cfg.DirectoryFile != "" {
		data, err := os.ReadFile(cfg.DirectoryFile)
		if err != nil {
			return nil, fmt.Errorf("reading directory file: %w", err)
		}
		root, err := directory.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", cfg.DirectoryFile, err)
		}
		if err := root.Validate(); err != nil {
			return nil, fmt.Errorf("validating %s: %w", cfg.DirectoryFile, err)
		}
		if err := repo.Replace(ctx, root); err != nil {
			return nil, fmt.Errorf("importing directory: %w", err)
		}

		settings, err := database.NewSettingsRepository(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("creating settings repository: %w", err)
		}
		if err := settings.Set(ctx, database.SettingDirectorySource, "file:"+cfg.DirectoryFile); err != nil {
			return nil, fmt.Errorf("recording directory source: %w", err)
		}
		if err := settings.Set(ctx, database.SettingDirectoryUpdatedAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return nil, fmt.Errorf("recording directory update time: %w", err)
		}
		slog.Info("directory imported", "file", cfg.DirectoryFile, "positions", root.Count())
	}

	dir, err := repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	if dir == nil {
		slog.Warn("directory store is empty")
		dir = &directory.Facility{}
	}
	return dir, nil
}
