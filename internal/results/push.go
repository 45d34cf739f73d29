package results

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/surveypulse/internal/aggregate"
	"github.com/ent0n29/surveypulse/internal/answers"
	"github.com/ent0n29/surveypulse/internal/eventbus"
	"github.com/ent0n29/surveypulse/internal/observability"
)

const defaultReconcileInterval = 10 * time.Second

// PushFeed keeps one tracker per session with at least one viewer. The
// tracker is the only writer of that session's live aggregate: it applies
// bus events in delivery order and resnapshots periodically, or as soon as
// the bus reports dropped events.
type PushFeed struct {
	engine    *aggregate.Engine
	bus       eventbus.Bus
	reconcile time.Duration
	metrics   *observability.Metrics
	log       *slog.Logger

	mu       sync.Mutex
	closed   bool
	trackers map[string]*tracker
}

func NewPushFeed(engine *aggregate.Engine, bus eventbus.Bus, reconcile time.Duration, metrics *observability.Metrics, log *slog.Logger) *PushFeed {
	if reconcile <= 0 {
		reconcile = defaultReconcileInterval
	}
	return &PushFeed{
		engine:    engine,
		bus:       bus,
		reconcile: reconcile,
		metrics:   metrics,
		log:       loggerOrDefault(log),
		trackers:  make(map[string]*tracker),
	}
}

func (p *PushFeed) Mode() string { return ModePush }

func (p *PushFeed) Open(ctx context.Context, sessionID string) (*Subscription, error) {
	sessionID = strings.TrimSpace(sessionID)
	tr, err := p.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	sub := tr.addViewer()
	if sub == nil {
		p.release(tr)
		return nil, ErrFeedClosed
	}
	inner := sub.release
	sub.release = func() {
		inner()
		p.release(tr)
		p.metrics.FeedClosed(ModePush)
	}
	p.metrics.FeedOpened(ModePush)
	sub.bindContext(ctx)
	return sub, nil
}

// Close stops every tracker. Open subscriptions see their channel closed.
func (p *PushFeed) Close() error {
	p.mu.Lock()
	p.closed = true
	trackers := make([]*tracker, 0, len(p.trackers))
	for id, tr := range p.trackers {
		trackers = append(trackers, tr)
		delete(p.trackers, id)
	}
	p.mu.Unlock()

	for _, tr := range trackers {
		tr.stop()
	}
	return nil
}

// ActiveTrackers returns the number of sessions with a running tracker.
func (p *PushFeed) ActiveTrackers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.trackers)
}

func (p *PushFeed) acquire(ctx context.Context, sessionID string) (*tracker, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrFeedClosed
	}
	tr, ok := p.trackers[sessionID]
	if !ok {
		tr = newTracker(p, sessionID)
		p.trackers[sessionID] = tr
	}
	tr.refs++
	p.mu.Unlock()

	if !ok {
		tr.start()
	}

	select {
	case <-tr.ready:
	case <-ctx.Done():
		p.release(tr)
		return nil, ctx.Err()
	}
	if tr.err != nil {
		p.release(tr)
		return nil, tr.err
	}
	return tr, nil
}

func (p *PushFeed) release(tr *tracker) {
	p.mu.Lock()
	tr.refs--
	last := tr.refs == 0
	if last && p.trackers[tr.sessionID] == tr {
		delete(p.trackers, tr.sessionID)
	}
	p.mu.Unlock()

	if last {
		tr.stop()
	}
}

type viewer struct {
	sub *Subscription
}

type tracker struct {
	feed      *PushFeed
	sessionID string
	refs      int // guarded by feed.mu

	ctx    context.Context
	cancel context.CancelFunc
	ready  chan struct{}
	done   chan struct{}
	err    error

	mu      sync.Mutex
	stopped bool
	current aggregate.SessionAggregate
	viewers map[int]*viewer
	nextID  int
}

func newTracker(feed *PushFeed, sessionID string) *tracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &tracker{
		feed:      feed,
		sessionID: sessionID,
		ctx:       ctx,
		cancel:    cancel,
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
		viewers:   make(map[int]*viewer),
	}
}

// start subscribes before loading the snapshot so no event published after
// the load can be missed; events already contained in the load are skipped
// by answer id.
func (t *tracker) start() {
	defer close(t.ready)

	sub := t.feed.bus.Subscribe(t.sessionID)
	begin := time.Now()
	agg, list, err := t.feed.engine.Load(t.ctx, t.sessionID)
	if err != nil {
		sub.Cancel()
		t.err = err
		close(t.done)
		return
	}
	t.feed.metrics.ObserveStage(observability.StageSnapshotLoad, time.Since(begin))
	t.current = agg

	go t.run(sub, seenSet(list))
}

func (t *tracker) run(sub *eventbus.Subscription, seen map[string]struct{}) {
	defer close(t.done)
	defer sub.Cancel()
	defer t.closeViewers()

	ticker := time.NewTicker(t.feed.reconcile)
	defer ticker.Stop()

	var dropped uint64
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			seen = t.resync("periodic", seen)
		case a, ok := <-sub.Events():
			if !ok {
				return
			}
			if d := sub.Dropped(); d != dropped {
				dropped = d
				seen = t.resync("events_dropped", seen)
			}
			if _, dup := seen[a.ID]; dup {
				continue
			}
			next, err := t.feed.engine.ApplyIncremental(t.snapshot(), a)
			if err != nil {
				t.feed.log.Warn("results apply failed", "session_id", t.sessionID, "answer_id", a.ID, "error", err)
				continue
			}
			if a.ID != "" {
				seen[a.ID] = struct{}{}
			}
			t.publish(next)
		}
	}
}

// resync replaces the live aggregate with a fresh snapshot when they differ.
func (t *tracker) resync(reason string, seen map[string]struct{}) map[string]struct{} {
	begin := time.Now()
	agg, list, err := t.feed.engine.Load(t.ctx, t.sessionID)
	if err != nil {
		if t.ctx.Err() == nil {
			t.feed.log.Warn("results reconcile failed", "session_id", t.sessionID, "reason", reason, "error", err)
		}
		return seen
	}
	t.feed.metrics.ObserveStage(observability.StageReconcile, time.Since(begin))

	drift := !agg.Equal(t.snapshot())
	t.feed.metrics.ObserveReconcile(reason, drift)
	if drift {
		t.feed.log.Info("results reconciled", "session_id", t.sessionID, "reason", reason,
			"total_responses", agg.TotalResponses)
		t.publish(agg)
	}
	return seenSet(list)
}

func (t *tracker) snapshot() aggregate.SessionAggregate {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

func (t *tracker) publish(agg aggregate.SessionAggregate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = agg
	for _, v := range t.viewers {
		offer(v.sub.updates, agg)
	}
}

func (t *tracker) addViewer() *Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return nil
	}
	t.nextID++
	id := t.nextID
	sub := &Subscription{
		SessionID: t.sessionID,
		Mode:      ModePush,
		Initial:   t.current,
		updates:   make(chan aggregate.SessionAggregate, 1),
	}
	t.viewers[id] = &viewer{sub: sub}
	sub.release = func() { t.removeViewer(id) }
	return sub
}

func (t *tracker) removeViewer(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.viewers[id]
	if !ok {
		return
	}
	delete(t.viewers, id)
	close(v.sub.updates)
	drain(v.sub.updates)
}

func (t *tracker) closeViewers() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for id, v := range t.viewers {
		delete(t.viewers, id)
		close(v.sub.updates)
	}
}

func (t *tracker) stop() {
	t.cancel()
	<-t.done
}

func seenSet(list []answers.Answer) map[string]struct{} {
	seen := make(map[string]struct{}, len(list))
	for _, a := range list {
		if a.ID != "" {
			seen[a.ID] = struct{}{}
		}
	}
	return seen
}
