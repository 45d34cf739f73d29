// Package results serves live session aggregates to viewers. A feed yields
// the current aggregate on open, then a stream of newer aggregates until the
// viewer closes it. Two strategies implement Feed: push (driven by the event
// bus, with periodic reconciliation) and poll (interval resnapshot). Viewers
// cannot tell them apart.
package results

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/surveypulse/internal/aggregate"
	"github.com/ent0n29/surveypulse/internal/eventbus"
	"github.com/ent0n29/surveypulse/internal/observability"
)

const (
	ModePush = "push"
	ModePoll = "poll"
	ModeAuto = "auto"
)

var ErrFeedClosed = errors.New("results feed closed")

// Feed opens live result subscriptions.
type Feed interface {
	Open(ctx context.Context, sessionID string) (*Subscription, error)
	Mode() string
	Close() error
}

// Subscription is one viewer's live view of a session. Aggregates received
// from Updates are shared and must be treated as read-only.
type Subscription struct {
	SessionID string
	Mode      string
	Initial   aggregate.SessionAggregate

	updates chan aggregate.SessionAggregate
	once    sync.Once
	release func()

	mu       sync.Mutex
	stopWait func() bool
}

// Updates yields newer aggregates. Only the latest pending aggregate is kept
// for a viewer that reads slowly. The channel is closed after Close.
func (s *Subscription) Updates() <-chan aggregate.SessionAggregate {
	return s.updates
}

// Close stops delivery immediately. It does not emit a final value.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		stop := s.stopWait
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		if s.release != nil {
			s.release()
		}
	})
}

// bindContext closes the subscription when ctx is done. release must be set
// before it is called; a ctx that is already done closes synchronously.
func (s *Subscription) bindContext(ctx context.Context) {
	if ctx.Err() != nil {
		s.Close()
		return
	}
	stop := context.AfterFunc(ctx, s.Close)
	s.mu.Lock()
	s.stopWait = stop
	s.mu.Unlock()
}

// offer delivers agg, replacing any undelivered value. ch must have
// capacity 1 and a single sender.
func offer(ch chan aggregate.SessionAggregate, agg aggregate.SessionAggregate) {
	select {
	case ch <- agg:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- agg:
	default:
	}
}

// drain discards whatever is still buffered on a closed channel.
func drain(ch chan aggregate.SessionAggregate) {
	for range ch {
	}
}

// Config selects and tunes a Feed.
type Config struct {
	Mode              string
	PollInterval      time.Duration
	ReconcileInterval time.Duration
}

// New builds the feed strategy for the available collaborators. In auto mode
// a nil bus selects polling.
func New(cfg Config, engine *aggregate.Engine, bus eventbus.Bus, metrics *observability.Metrics, log *slog.Logger) (Feed, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = ModeAuto
	}
	switch mode {
	case ModeAuto:
		if bus == nil {
			return NewPollFeed(engine, cfg.PollInterval, metrics, log), nil
		}
		return NewPushFeed(engine, bus, cfg.ReconcileInterval, metrics, log), nil
	case ModePush:
		if bus == nil {
			return nil, errors.New("results: push mode requires an event bus")
		}
		return NewPushFeed(engine, bus, cfg.ReconcileInterval, metrics, log), nil
	case ModePoll:
		return NewPollFeed(engine, cfg.PollInterval, metrics, log), nil
	default:
		return nil, fmt.Errorf("results: invalid feed mode %q (expected auto|push|poll)", cfg.Mode)
	}
}

func loggerOrDefault(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.Default()
	}
	return log
}
