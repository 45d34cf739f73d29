package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ent0n29/surveypulse/internal/aggregate"
	"github.com/ent0n29/surveypulse/internal/catalog"
	"github.com/ent0n29/surveypulse/internal/config"
	"github.com/ent0n29/surveypulse/internal/eventbus"
	"github.com/ent0n29/surveypulse/internal/httpapi"
	"github.com/ent0n29/surveypulse/internal/observability"
	"github.com/ent0n29/surveypulse/internal/results"
	"github.com/ent0n29/surveypulse/internal/session"
	"github.com/ent0n29/surveypulse/internal/storage"
	"github.com/ent0n29/surveypulse/internal/storage/postgres"
	"github.com/ent0n29/surveypulse/internal/survey"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Service  *survey.Service
	Registry *session.Registry
	Backend  *storage.Backend
	Feed     results.Feed
	Metrics  *observability.Metrics
	// BusMode is memory, postgres or none.
	BusMode string

	// Background holds long-running workers (the notification listener)
	// that must run for the lifetime of the server.
	Background []func(context.Context) error

	// Cleanup should be called on shutdown to release external resources (DB, feed trackers).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (*BuildResult, error) {
	if log == nil {
		log = slog.Default()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("catalog init failed: %w", err)
	}

	backend, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("store init failed: %w", err)
	}

	registry := session.NewRegistry(backend.Sessions, cat.ChoiceSetVersion())
	registry.SetChangeHook(func(s session.Session) {
		if s.Active() {
			metrics.ObserveSessionEvent("created")
		} else {
			metrics.ObserveSessionEvent("finished")
		}
		if n, err := registry.ActiveCount(context.Background()); err == nil {
			metrics.SetActiveSessions(n)
		}
	})
	if n, err := registry.ActiveCount(ctx); err == nil {
		metrics.SetActiveSessions(n)
	}

	bus, busMode, background, err := buildBus(cfg, backend, metrics, log)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	engine := aggregate.NewEngine(cat, registry, backend.Answers)
	feed, err := results.New(results.Config{
		Mode:              cfg.FeedMode,
		PollInterval:      cfg.FeedPollInterval,
		ReconcileInterval: cfg.FeedReconcileInterval,
	}, engine, bus, metrics, log.With("component", "results"))
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("results feed init failed: %w", err)
	}

	svc := survey.New(survey.Config{
		AcceptAfterFinish: cfg.AcceptAnswersAfterFinish,
	}, registry, backend.Answers, engine, bus, feed, metrics, log.With("component", "survey"))

	api := httpapi.New(cfg, svc, metrics, httpapi.Options{
		StoreMode: backend.Mode,
		Ready:     backend.Ping,
		Log:       log.With("component", "httpapi"),
	})

	cleanup := func() error {
		var errs []string
		if err := feed.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := backend.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:     cfg,
		API:        api,
		Service:    svc,
		Registry:   registry,
		Backend:    backend,
		Feed:       feed,
		Metrics:    metrics,
		BusMode:    busMode,
		Background: background,
		Cleanup:    cleanup,
	}, nil
}

// buildBus resolves EVENT_BUS. auto picks postgres LISTEN/NOTIFY when the
// answers live in postgres, so every replica sees every submission, and an
// in-process hub otherwise.
func buildBus(cfg config.Config, backend *storage.Backend, metrics *observability.Metrics, log *slog.Logger) (eventbus.Bus, string, []func(context.Context) error, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.EventBus))
	if mode == "" || mode == "auto" {
		mode = "memory"
		if backend.Pool != nil {
			mode = "postgres"
		}
	}

	hub := eventbus.NewHub(cfg.FeedSubscriberBuffer)
	hub.SetDropHook(func(string) { metrics.ObserveDroppedEvent() })

	switch mode {
	case "none":
		return nil, "none", nil, nil
	case "memory":
		return hub, "memory", nil, nil
	case "postgres":
		if backend.Pool == nil {
			return nil, "", nil, fmt.Errorf("EVENT_BUS=postgres requires a postgres DATABASE_URL")
		}
		nb := postgres.NewNotifyBus(backend.Pool, postgres.DefaultChannel, hub, log.With("component", "eventbus"))
		return nb, "postgres", []func(context.Context) error{nb.Run}, nil
	default:
		return nil, "", nil, fmt.Errorf("unknown EVENT_BUS %q", cfg.EventBus)
	}
}
