package survey

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/surveypulse/internal/aggregate"
	"github.com/ent0n29/surveypulse/internal/answers"
	"github.com/ent0n29/surveypulse/internal/catalog"
	"github.com/ent0n29/surveypulse/internal/eventbus"
	"github.com/ent0n29/surveypulse/internal/results"
	"github.com/ent0n29/surveypulse/internal/session"
)

// failingBus accepts subscriptions but refuses every publish.
type failingBus struct {
	*eventbus.Hub
	attempts int
}

func (b *failingBus) Publish(context.Context, string, answers.Answer) error {
	b.attempts++
	return eventbus.ErrPublishFailed
}

type fixture struct {
	svc   *Service
	store *answers.InMemoryStore
}

func newFixture(t *testing.T, cfg Config, bus eventbus.Bus) fixture {
	t.Helper()
	reg := session.NewRegistry(session.NewInMemoryStore(), 1)
	store := answers.NewInMemoryStore()
	engine := aggregate.NewEngine(catalog.Default(), reg, store)
	feed, err := results.New(results.Config{Mode: results.ModeAuto, ReconcileInterval: time.Hour, PollInterval: 20 * time.Millisecond}, engine, bus, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = feed.Close() })
	return fixture{svc: New(cfg, reg, store, engine, bus, feed, nil, nil), store: store}
}

func (f fixture) create(t *testing.T) session.Session {
	t.Helper()
	s, err := f.svc.CreateSession(context.Background(), session.CreateRequest{Name: "Turma A"})
	require.NoError(t, err)
	return s
}

func TestSubmitRecordsAndAggregates(t *testing.T) {
	f := newFixture(t, Config{}, eventbus.NewHub(16))
	ctx := context.Background()
	s := f.create(t)

	for _, c := range []string{catalog.ChoiceQuaseSempre, catalog.ChoiceQuaseSempre, catalog.ChoiceQuaseSempre, catalog.ChoiceQuaseNunca} {
		a, err := f.svc.Submit(ctx, SubmitRequest{SessionID: s.ID, QuestionID: 1, Choice: c})
		require.NoError(t, err)
		assert.NotEmpty(t, a.ID)
		assert.False(t, a.SubmittedAt.IsZero())
	}

	agg, err := f.svc.Snapshot(ctx, s.ID)
	require.NoError(t, err)
	q1, ok := agg.Tally(1)
	require.True(t, ok)
	assert.Equal(t, 4, q1.Total)
	assert.Equal(t, 75, q1.Percent(catalog.ChoiceQuaseSempre))
	assert.Equal(t, 25, q1.Percent(catalog.ChoiceQuaseNunca))
	q2, _ := agg.Tally(2)
	assert.Zero(t, q2.Total)
}

func TestSubmitRejectsInvalidInput(t *testing.T) {
	f := newFixture(t, Config{}, eventbus.NewHub(16))
	ctx := context.Background()
	s := f.create(t)

	_, err := f.svc.Submit(ctx, SubmitRequest{SessionID: "missing", QuestionID: 1, Choice: catalog.ChoiceQuaseSempre})
	assert.ErrorIs(t, err, session.ErrNotFound)

	_, err = f.svc.Submit(ctx, SubmitRequest{SessionID: s.ID, QuestionID: 21, Choice: catalog.ChoiceQuaseSempre})
	assert.ErrorIs(t, err, answers.ErrInvalidAnswer)
	assert.ErrorIs(t, err, catalog.ErrUnknownQuestion)

	_, err = f.svc.Submit(ctx, SubmitRequest{SessionID: s.ID, QuestionID: 1, Choice: "TALVEZ"})
	assert.ErrorIs(t, err, answers.ErrInvalidAnswer)
	assert.ErrorIs(t, err, catalog.ErrUnknownChoice)

	list, err := f.store.ListBySession(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSubmitToFinishedSession(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, Config{}, eventbus.NewHub(16))
	s := f.create(t)
	_, err := f.svc.FinishSession(ctx, s.ID)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, SubmitRequest{SessionID: s.ID, QuestionID: 1, Choice: catalog.ChoiceQuaseNunca})
	assert.ErrorIs(t, err, session.ErrFinished)

	lenient := newFixture(t, Config{AcceptAfterFinish: true}, eventbus.NewHub(16))
	s = lenient.create(t)
	_, err = lenient.svc.FinishSession(ctx, s.ID)
	require.NoError(t, err)
	_, err = lenient.svc.Submit(ctx, SubmitRequest{SessionID: s.ID, QuestionID: 1, Choice: catalog.ChoiceQuaseNunca})
	assert.NoError(t, err)
}

func TestPublishFailureDoesNotFailSubmit(t *testing.T) {
	bus := &failingBus{Hub: eventbus.NewHub(16)}
	f := newFixture(t, Config{}, bus)
	ctx := context.Background()
	s := f.create(t)

	a, err := f.svc.Submit(ctx, SubmitRequest{SessionID: s.ID, QuestionID: 5, Choice: catalog.ChoiceQuaseSempre})
	require.NoError(t, err)
	assert.Equal(t, 1, bus.attempts)

	list, err := f.store.ListBySession(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)
}

// stalledBus blocks every publish until its context ends.
type stalledBus struct {
	*eventbus.Hub
	errs chan error
}

func (b *stalledBus) Publish(ctx context.Context, _ string, _ answers.Answer) error {
	<-ctx.Done()
	b.errs <- ctx.Err()
	return fmt.Errorf("%w: %w", eventbus.ErrPublishFailed, ctx.Err())
}

func TestStalledBusDoesNotHoldSubmit(t *testing.T) {
	bus := &stalledBus{Hub: eventbus.NewHub(16), errs: make(chan error, 1)}
	f := newFixture(t, Config{PublishTimeout: 50 * time.Millisecond}, bus)
	s := f.create(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Submit(ctx, SubmitRequest{SessionID: s.ID, QuestionID: 1, Choice: catalog.ChoiceQuaseSempre})
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked on a stalled bus")
	}
	assert.ErrorIs(t, <-bus.errs, context.DeadlineExceeded)

	list, err := f.store.ListBySession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSubmitReachesOpenFeed(t *testing.T) {
	f := newFixture(t, Config{}, eventbus.NewHub(16))
	ctx := context.Background()
	s := f.create(t)
	assert.Equal(t, results.ModePush, f.svc.FeedMode())

	sub, err := f.svc.OpenFeed(ctx, s.ID)
	require.NoError(t, err)
	defer sub.Close()
	assert.Zero(t, sub.Initial.TotalResponses)

	_, err = f.svc.Submit(ctx, SubmitRequest{SessionID: s.ID, QuestionID: 7, Choice: catalog.ChoiceQuaseNunca, RespondentID: "r1"})
	require.NoError(t, err)

	select {
	case agg := <-sub.Updates():
		assert.Equal(t, 1, agg.TotalResponses)
		assert.Equal(t, 1, agg.Participants)
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not deliver the submission")
	}
}

func TestWithoutBusFallsBackToPolling(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	ctx := context.Background()
	s := f.create(t)
	assert.Equal(t, results.ModePoll, f.svc.FeedMode())

	sub, err := f.svc.OpenFeed(ctx, s.ID)
	require.NoError(t, err)
	defer sub.Close()

	_, err = f.svc.Submit(ctx, SubmitRequest{SessionID: s.ID, QuestionID: 7, Choice: catalog.ChoiceQuaseNunca})
	require.NoError(t, err)

	select {
	case agg := <-sub.Updates():
		assert.Equal(t, 1, agg.TotalResponses)
	case <-time.After(2 * time.Second):
		t.Fatal("poll feed did not deliver the submission")
	}
}

func TestSessionAdministration(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	ctx := context.Background()

	_, err := f.svc.CreateSession(ctx, session.CreateRequest{Name: "  "})
	assert.True(t, errors.Is(err, session.ErrInvalidName))

	s := f.create(t)
	got, err := f.svc.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	list, err := f.svc.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	done, err := f.svc.FinishSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusFinished, done.Status)
}

func TestLogsRedactRespondentText(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	reg := session.NewRegistry(session.NewInMemoryStore(), 1)
	store := answers.NewInMemoryStore()
	engine := aggregate.NewEngine(catalog.Default(), reg, store)
	svc := New(Config{}, reg, store, engine, nil, nil, nil, log)
	ctx := context.Background()

	s, err := svc.CreateSession(ctx, session.CreateRequest{Name: "Turma da prof@escola.pt"})
	require.NoError(t, err)
	_, err = svc.Submit(ctx, SubmitRequest{SessionID: s.ID, QuestionID: 999, Choice: catalog.ChoiceQuaseSempre, RespondentID: "aluno@escola.pt"})
	require.ErrorIs(t, err, answers.ErrInvalidAnswer)

	out := buf.String()
	assert.Contains(t, out, "session created")
	assert.Contains(t, out, "answer not recorded")
	assert.NotContains(t, out, "@escola.pt")
}
