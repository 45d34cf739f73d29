package results

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/surveypulse/internal/aggregate"
	"github.com/ent0n29/surveypulse/internal/observability"
)

const defaultPollInterval = 2 * time.Second

// PollFeed resnapshots the session at a fixed interval for each viewer and
// emits the aggregate when it changed. Staleness is at most one interval.
type PollFeed struct {
	engine   *aggregate.Engine
	interval time.Duration
	metrics  *observability.Metrics
	log      *slog.Logger

	mu     sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPollFeed(engine *aggregate.Engine, interval time.Duration, metrics *observability.Metrics, log *slog.Logger) *PollFeed {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PollFeed{
		engine:   engine,
		interval: interval,
		metrics:  metrics,
		log:      loggerOrDefault(log),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (p *PollFeed) Mode() string { return ModePoll }

func (p *PollFeed) Open(ctx context.Context, sessionID string) (*Subscription, error) {
	sessionID = strings.TrimSpace(sessionID)
	start := time.Now()
	initial, err := p.engine.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	p.metrics.ObserveStage(observability.StageSnapshotLoad, time.Since(start))

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrFeedClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	loopCtx, stop := context.WithCancel(p.ctx)
	done := make(chan struct{})
	sub := &Subscription{
		SessionID: sessionID,
		Mode:      ModePoll,
		Initial:   initial,
		updates:   make(chan aggregate.SessionAggregate, 1),
	}
	sub.release = func() {
		stop()
		<-done
		drain(sub.updates)
		p.metrics.FeedClosed(ModePoll)
	}

	go func() {
		defer p.wg.Done()
		defer close(done)
		defer close(sub.updates)
		p.run(loopCtx, sub, initial)
	}()
	p.metrics.FeedOpened(ModePoll)
	sub.bindContext(ctx)
	return sub, nil
}

func (p *PollFeed) run(ctx context.Context, sub *Subscription, last aggregate.SessionAggregate) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			next, err := p.engine.Snapshot(ctx, sub.SessionID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.log.Warn("results poll failed", "session_id", sub.SessionID, "error", err)
				continue
			}
			p.metrics.ObserveStage(observability.StageSnapshotLoad, time.Since(start))
			if next.Equal(last) {
				continue
			}
			last = next
			if ctx.Err() != nil {
				return
			}
			offer(sub.updates, next)
		}
	}
}

// Close stops every open poll loop and waits for them to exit.
func (p *PollFeed) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()
	return nil
}
