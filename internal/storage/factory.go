// Package storage selects the session and answer backends from a database
// URL.
package storage

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/surveypulse/internal/answers"
	"github.com/ent0n29/surveypulse/internal/session"
	"github.com/ent0n29/surveypulse/internal/storage/postgres"
	"github.com/ent0n29/surveypulse/internal/storage/sqlite"
)

const (
	ModeMemory   = "memory"
	ModeSQLite   = "sqlite"
	ModePostgres = "postgres"
)

// Backend bundles the stores opened for one database.
type Backend struct {
	Mode     string
	Sessions session.Store
	Answers  answers.Store
	// Pool is set for postgres only; the notification bus shares it.
	Pool *pgxpool.Pool

	ping  func(context.Context) error
	close func() error
}

// Ping reports whether the backend can serve requests.
func (b *Backend) Ping(ctx context.Context) error {
	if b == nil || b.ping == nil {
		return nil
	}
	return b.ping(ctx)
}

func (b *Backend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}

// Open creates a postgres-backed store for postgres:// URLs, an sqlite store
// for sqlite: and file: URLs, otherwise in-memory stores.
func Open(ctx context.Context, databaseURL string) (*Backend, error) {
	url := strings.TrimSpace(databaseURL)
	switch {
	case url == "":
		sessions := session.NewInMemoryStore()
		log := answers.NewInMemoryStore()
		return &Backend{
			Mode:     ModeMemory,
			Sessions: sessions,
			Answers:  log,
		}, nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		s, err := postgres.NewStore(ctx, url)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Mode:     ModePostgres,
			Sessions: s,
			Answers:  s,
			Pool:     s.Pool(),
			ping:     s.Ping,
			close:    s.Close,
		}, nil
	default:
		dsn := strings.TrimPrefix(url, "sqlite://")
		dsn = strings.TrimPrefix(dsn, "sqlite:")
		s, err := sqlite.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Mode:     ModeSQLite,
			Sessions: s,
			Answers:  s,
			ping:     s.Ping,
			close:    s.Close,
		}, nil
	}
}
