package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/surveypulse/internal/app"
	"github.com/ent0n29/surveypulse/internal/config"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if addr, _ := cmd.Flags().GetString("addr"); strings.TrimSpace(addr) != "" {
				cfg.BindAddr = strings.TrimSpace(addr)
			}
			if url, _ := cmd.Flags().GetString("database-url"); strings.TrimSpace(url) != "" {
				cfg.DatabaseURL = strings.TrimSpace(url)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config error: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (overrides APP_BIND_ADDR)")
	cmd.Flags().String("database-url", "", "Database URL (overrides DATABASE_URL)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	log := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	built, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			log.Error("cleanup failed", "error", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           built.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening",
			"addr", cfg.BindAddr,
			"store_mode", built.Backend.Mode,
			"bus_mode", built.BusMode,
			"feed_mode", built.Feed.Mode(),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen error: %w", err)
		}
		return nil
	})
	for _, run := range built.Background {
		g.Go(func() error { return run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("graceful shutdown failed", "error", err)
			_ = httpServer.Close()
		}
		// Live websocket viewers are hijacked connections; closing the feed
		// ends them.
		return built.Feed.Close()
	})

	err = g.Wait()
	log.Info("shutdown complete")
	return err
}
