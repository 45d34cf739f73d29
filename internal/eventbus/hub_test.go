package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/surveypulse/internal/answers"
)

func answer(session string, q int) answers.Answer {
	return answers.Answer{ID: session + "-" + time.Now().Format("150405.000000000"), SessionID: session, QuestionID: q, Choice: "A"}
}

func TestHubDeliversInPublishOrder(t *testing.T) {
	h := NewHub(16)
	sub := h.Subscribe("s1")
	defer sub.Cancel()

	for q := 1; q <= 10; q++ {
		require.NoError(t, h.Publish(context.Background(), "s1", answer("s1", q)))
	}
	for q := 1; q <= 10; q++ {
		got := <-sub.Events()
		assert.Equal(t, q, got.QuestionID)
	}
}

func TestHubScopesBySession(t *testing.T) {
	h := NewHub(4)
	s1 := h.Subscribe("s1")
	s2 := h.Subscribe("s2")
	defer s1.Cancel()
	defer s2.Cancel()

	_ = h.Publish(context.Background(), "s2", answer("s2", 7))

	select {
	case a := <-s2.Events():
		assert.Equal(t, 7, a.QuestionID)
	case <-time.After(time.Second):
		t.Fatal("s2 subscriber did not receive event")
	}
	select {
	case a := <-s1.Events():
		t.Fatalf("s1 received foreign event %+v", a)
	default:
	}
}

func TestHubFansOutToAllSubscribers(t *testing.T) {
	h := NewHub(4)
	a := h.Subscribe("s1")
	b := h.Subscribe("s1")
	defer a.Cancel()
	defer b.Cancel()
	assert.Equal(t, 2, h.SubscriberCount("s1"))

	_ = h.Publish(context.Background(), "s1", answer("s1", 3))
	assert.Equal(t, 3, (<-a.Events()).QuestionID)
	assert.Equal(t, 3, (<-b.Events()).QuestionID)
}

func TestHubDropsForSlowSubscriberWithoutBlocking(t *testing.T) {
	h := NewHub(2)
	var mu sync.Mutex
	drops := 0
	h.SetDropHook(func(string) {
		mu.Lock()
		drops++
		mu.Unlock()
	})
	sub := h.Subscribe("s1")
	defer sub.Cancel()

	done := make(chan struct{})
	go func() {
		for q := 1; q <= 5; q++ {
			_ = h.Publish(context.Background(), "s1", answer("s1", q))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a stalled subscriber")
	}

	assert.Equal(t, uint64(3), sub.Dropped())
	mu.Lock()
	assert.Equal(t, 3, drops)
	mu.Unlock()
	assert.Equal(t, 1, (<-sub.Events()).QuestionID)
	assert.Equal(t, 2, (<-sub.Events()).QuestionID)
}

func TestHubCancelClosesAndReleases(t *testing.T) {
	h := NewHub(4)
	sub := h.Subscribe("s1")
	sub.Cancel()
	sub.Cancel()

	_, ok := <-sub.Events()
	assert.False(t, ok, "events channel should be closed after Cancel")
	assert.Equal(t, 0, h.SubscriberCount("s1"))
	assert.NoError(t, h.Publish(context.Background(), "s1", answer("s1", 1)))
}

func TestHubEmptySessionIDYieldsClosedSubscription(t *testing.T) {
	h := NewHub(4)
	sub := h.Subscribe("  ")
	_, ok := <-sub.Events()
	assert.False(t, ok)
	sub.Cancel()
}

func TestHubConcurrentSubscribeCancelPublish(t *testing.T) {
	h := NewHub(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			_ = h.Publish(ctx, "s1", answer("s1", 1))
		}
	}()
	for i := 0; i < 200; i++ {
		sub := h.Subscribe("s1")
		sub.Cancel()
	}
	cancel()
	wg.Wait()
	assert.Equal(t, 0, h.SubscriberCount("s1"))
}

func TestHubMarkMissed(t *testing.T) {
	h := NewHub(4)
	a := h.Subscribe("s1")
	b := h.Subscribe("s2")
	defer a.Cancel()
	defer b.Cancel()

	h.MarkMissed()
	assert.Equal(t, uint64(1), a.Dropped())
	assert.Equal(t, uint64(1), b.Dropped())
}
