// Package aggregate turns a session's answer log into per-question
// distributions, either from scratch or one answer at a time.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/surveypulse/internal/answers"
	"github.com/ent0n29/surveypulse/internal/catalog"
	"github.com/ent0n29/surveypulse/internal/session"
)

var ErrSessionMismatch = errors.New("answer belongs to a different session")

// SessionLookup resolves session metadata.
type SessionLookup interface {
	Get(ctx context.Context, id string) (session.Session, error)
}

// Engine computes SessionAggregates. It holds no per-session state and is
// safe for concurrent use.
type Engine struct {
	catalog  *catalog.Catalog
	sessions SessionLookup
	answers  answers.Store
}

func NewEngine(cat *catalog.Catalog, sessions SessionLookup, store answers.Store) *Engine {
	return &Engine{catalog: cat, sessions: sessions, answers: store}
}

func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// Empty returns the zero aggregate for a session: every question present,
// every count and percentage zero.
func (e *Engine) Empty(sessionID string) SessionAggregate {
	questions := e.catalog.Questions()
	choices := e.catalog.Choices()
	agg := SessionAggregate{
		SessionID:        sessionID,
		ChoiceSetVersion: choices.Version,
		Questions:        make([]QuestionTally, len(questions)),
		respondents:      make(map[string]int),
	}
	for i, q := range questions {
		counts := make([]ChoiceCount, len(choices.Choices))
		for j, c := range choices.Choices {
			counts[j] = ChoiceCount{Choice: c.Key, Label: c.Label}
		}
		agg.Questions[i] = QuestionTally{QuestionID: q.ID, Text: q.Text, Counts: counts}
	}
	return agg
}

// Snapshot recomputes the aggregate from the stored answers. It has no side
// effects; two calls without an intervening append return equal results.
func (e *Engine) Snapshot(ctx context.Context, sessionID string) (SessionAggregate, error) {
	agg, _, err := e.Load(ctx, sessionID)
	return agg, err
}

// Load is Snapshot that also returns the answers it was computed from.
func (e *Engine) Load(ctx context.Context, sessionID string) (SessionAggregate, []answers.Answer, error) {
	sessionID = strings.TrimSpace(sessionID)
	if _, err := e.sessions.Get(ctx, sessionID); err != nil {
		return SessionAggregate{}, nil, err
	}
	list, err := e.answers.ListBySession(ctx, sessionID)
	if err != nil {
		return SessionAggregate{}, nil, fmt.Errorf("list answers: %w", err)
	}
	agg := e.Empty(sessionID)
	for _, a := range list {
		e.apply(&agg, a)
	}
	return agg, list, nil
}

// ApplyIncremental returns agg advanced by one answer. The input is not
// modified. Answers whose question or choice is not in the catalog leave the
// aggregate unchanged, exactly as Snapshot skips them.
func (e *Engine) ApplyIncremental(agg SessionAggregate, a answers.Answer) (SessionAggregate, error) {
	if a.SessionID != agg.SessionID {
		return agg, fmt.Errorf("%w: aggregate %q, answer %q", ErrSessionMismatch, agg.SessionID, a.SessionID)
	}
	out := agg.clone()
	e.apply(&out, a)
	return out, nil
}

func (e *Engine) apply(agg *SessionAggregate, a answers.Answer) {
	qi, ok := e.catalog.QuestionPosition(a.QuestionID)
	if !ok || qi >= len(agg.Questions) {
		return
	}
	ci, ok := e.catalog.ChoicePosition(a.Choice)
	if !ok || ci >= len(agg.Questions[qi].Counts) {
		return
	}

	q := &agg.Questions[qi]
	q.Counts[ci].Count++
	q.Total++
	for i := range q.Counts {
		q.Counts[i].Percent = Percent(q.Counts[i].Count, q.Total)
	}

	agg.TotalResponses++
	agg.weightSum += e.catalog.Weight(a.Choice)
	agg.PositiveScore = Percent(agg.weightSum, 100*agg.TotalResponses)
	if a.RespondentID != "" {
		agg.respondents[a.RespondentID]++
		agg.Participants = len(agg.respondents)
	}
}
