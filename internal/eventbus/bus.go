// Package eventbus delivers "answer submitted" events to the viewers of a
// session. Delivery is best effort: a subscriber that falls behind loses
// events and is expected to resynchronise from a full snapshot.
package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ent0n29/surveypulse/internal/answers"
)

var ErrPublishFailed = errors.New("publish failed")

// Bus is a session-scoped publish/subscribe primitive.
type Bus interface {
	// Publish broadcasts a to the current subscribers of sessionID without
	// waiting for them to consume it.
	Publish(ctx context.Context, sessionID string, a answers.Answer) error
	// Subscribe returns a handle yielding the session's events in publish
	// order until Cancel is called.
	Subscribe(sessionID string) *Subscription
}

// Subscription is a cancellable, session-scoped event stream.
type Subscription struct {
	SessionID string

	ch      chan answers.Answer
	dropped atomic.Uint64
	once    sync.Once
	cancel  func()
}

// Events yields answers in publish order. The channel is closed on Cancel.
func (s *Subscription) Events() <-chan answers.Answer {
	return s.ch
}

// Dropped reports how many events were discarded because the buffer was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Cancel stops delivery and releases the subscription. Safe to call twice.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

func closedSubscription(sessionID string) *Subscription {
	ch := make(chan answers.Answer)
	close(ch)
	return &Subscription{SessionID: sessionID, ch: ch}
}
