package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/analyzer"
	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/config"
	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/core"
	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/history"
	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/logging"
	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"provider", cfg.Analyzer.Provider,
		"model", cfg.Analyzer.Model,
		"cache_scope", cfg.Cache.Scope,
		"upload_ttl", cfg.Upload.TTL,
		"history", cfg.Database.Enabled(),
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	if err := run(cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// History is optional; without a database the service keeps no records.
	var store core.HistoryStore
	if cfg.Database.Enabled() {
		pool, err := history.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		rec := history.NewRecorder(pool)
		if err := rec.EnsureSchema(ctx); err != nil {
			return err
		}
		store = rec
	}

	layout, err := analyzer.New(cfg.Analyzer)
	if err != nil {
		return err
	}

	service, err := core.NewService(cfg, layout, core.NewPdftoppmRasterizer(cfg.Content.PdftoppmPath), store)
	if err != nil {
		return err
	}

	if err := service.StartSweeper(ctx); err != nil {
		return err
	}
	defer service.StopSweeper()

	server := web.NewServer(service, cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let a running model call finish so its result is not thrown away.
		if status := service.Status(); status.Gate.Active > 0 {
			slog.Info("waiting for conversion to complete")
			if err := service.WaitForConversions(shutdownCtx); err != nil {
				slog.Warn("conversion did not complete in time", "error", err)
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
			return err
		}
		return nil
	})

	err = g.Wait()
	slog.Info("server stopped")
	return err
}
