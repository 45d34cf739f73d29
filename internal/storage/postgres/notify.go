package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/surveypulse/internal/answers"
	"github.com/ent0n29/surveypulse/internal/eventbus"
	"github.com/ent0n29/surveypulse/internal/reliability"
)

const (
	DefaultChannel = "survey_answers"

	listenBackoffBase = 200 * time.Millisecond
	listenBackoffCap  = 10 * time.Second
)

// NotifyBus publishes answers with pg_notify so every process sharing the
// database sees them. Run relays received notifications into a local Hub,
// which serves Subscribe.
type NotifyBus struct {
	pool    *pgxpool.Pool
	channel string
	hub     *eventbus.Hub
	log     *slog.Logger
}

func NewNotifyBus(pool *pgxpool.Pool, channel string, hub *eventbus.Hub, log *slog.Logger) *NotifyBus {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = slog.Default()
	}
	return &NotifyBus{pool: pool, channel: channel, hub: hub, log: log}
}

func (b *NotifyBus) Publish(ctx context.Context, sessionID string, a answers.Answer) error {
	a.SessionID = sessionID
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("%w: encode answer: %v", eventbus.ErrPublishFailed, err)
	}
	if _, err := b.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, b.channel, string(payload)); err != nil {
		return fmt.Errorf("%w: pg_notify: %v", eventbus.ErrPublishFailed, err)
	}
	return nil
}

func (b *NotifyBus) Subscribe(sessionID string) *eventbus.Subscription {
	return b.hub.Subscribe(sessionID)
}

// Run listens until ctx is done, reconnecting with backoff. Notifications
// sent while disconnected are lost; local subscribers are told so through
// their drop counters.
func (b *NotifyBus) Run(ctx context.Context) error {
	attempt := 0
	for {
		err := b.listen(ctx, func() {
			if attempt > 0 {
				b.hub.MarkMissed()
				b.log.Info("answer listener reconnected", "channel", b.channel)
			}
			attempt = 0
		})
		if ctx.Err() != nil {
			return nil
		}
		delay := reliability.ExponentialBackoff(attempt, listenBackoffBase, listenBackoffCap)
		attempt++
		b.log.Warn("answer listener interrupted", "channel", b.channel, "error", err, "retry_in", delay)
		if reliability.Sleep(ctx, delay) != nil {
			return nil
		}
	}
}

func (b *NotifyBus) listen(ctx context.Context, onListening func()) error {
	conn, err := pgx.ConnectConfig(ctx, b.pool.Config().ConnConfig.Copy())
	if err != nil {
		return fmt.Errorf("connect listener: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{b.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", b.channel, err)
	}
	onListening()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		var a answers.Answer
		if err := json.Unmarshal([]byte(n.Payload), &a); err != nil {
			b.log.Warn("answer notification ignored", "error", err)
			continue
		}
		_ = b.hub.Publish(ctx, a.SessionID, a)
	}
}
