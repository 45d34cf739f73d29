package eventbus

import (
	"context"
	"strings"
	"sync"

	"github.com/ent0n29/surveypulse/internal/answers"
)

const defaultBuffer = 64

// Hub is the in-process Bus. Each session has its own topic and lock, so
// traffic on one session never contends with another beyond a map lookup.
type Hub struct {
	buffer int

	mu     sync.RWMutex
	topics map[string]*topic
	onDrop func(sessionID string)
}

type topic struct {
	mu     sync.Mutex
	subs   map[int]*Subscription
	nextID int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		buffer: buffer,
		topics: make(map[string]*topic),
	}
}

// SetDropHook registers a callback invoked whenever an event is dropped for a
// slow subscriber.
func (h *Hub) SetDropHook(hook func(sessionID string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDrop = hook
}

func (h *Hub) Subscribe(sessionID string) *Subscription {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return closedSubscription(sessionID)
	}

	sub := &Subscription{SessionID: sessionID, ch: make(chan answers.Answer, h.buffer)}

	h.mu.Lock()
	t, ok := h.topics[sessionID]
	if !ok {
		t = &topic{subs: make(map[int]*Subscription)}
		h.topics[sessionID] = t
	}
	// Registering under h.mu keeps the topic from being pruned in between.
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.subs[id] = sub
	t.mu.Unlock()
	h.mu.Unlock()

	sub.cancel = func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		t.mu.Lock()
		defer t.mu.Unlock()
		if s, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(s.ch)
		}
		if len(t.subs) == 0 && h.topics[sessionID] == t {
			delete(h.topics, sessionID)
		}
	}
	return sub
}

// Publish never blocks on subscribers: a full buffer drops the event for that
// subscriber only.
func (h *Hub) Publish(_ context.Context, sessionID string, a answers.Answer) error {
	h.mu.RLock()
	t := h.topics[sessionID]
	hook := h.onDrop
	h.mu.RUnlock()
	if t == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, sub := range t.subs {
		select {
		case sub.ch <- a:
		default:
			sub.dropped.Add(1)
			if hook != nil {
				hook(sessionID)
			}
		}
	}
	return nil
}

// SubscriberCount returns the number of live subscriptions for a session.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	t := h.topics[sessionID]
	h.mu.RUnlock()
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// MarkMissed counts one dropped event against every live subscription. Relays
// call it after an outage so subscribers know to resynchronise.
func (h *Hub) MarkMissed() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, t := range h.topics {
		t.mu.Lock()
		for _, sub := range t.subs {
			sub.dropped.Add(1)
		}
		t.mu.Unlock()
	}
}
