// Package survey is the application service behind the HTTP and CLI
// surfaces: session administration, answer submission and results access.
package survey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ent0n29/surveypulse/internal/aggregate"
	"github.com/ent0n29/surveypulse/internal/answers"
	"github.com/ent0n29/surveypulse/internal/catalog"
	"github.com/ent0n29/surveypulse/internal/eventbus"
	"github.com/ent0n29/surveypulse/internal/observability"
	"github.com/ent0n29/surveypulse/internal/policy"
	"github.com/ent0n29/surveypulse/internal/results"
	"github.com/ent0n29/surveypulse/internal/session"
)

const (
	maxRespondentIDLength = 128
	defaultPublishTimeout = 2 * time.Second
)

type Config struct {
	// AcceptAfterFinish lets finished sessions keep recording answers.
	AcceptAfterFinish bool
	// PublishTimeout bounds how long a submission waits on the event bus.
	// Zero means 2s.
	PublishTimeout time.Duration
}

// SubmitRequest is one answer as sent by a respondent.
type SubmitRequest struct {
	SessionID    string `json:"-"`
	QuestionID   int    `json:"question_id"`
	Choice       string `json:"choice"`
	RespondentID string `json:"respondent_id,omitempty"`
}

type Service struct {
	cfg      Config
	registry *session.Registry
	answers  answers.Store
	engine   *aggregate.Engine
	bus      eventbus.Bus
	feed     results.Feed
	metrics  *observability.Metrics
	log      *slog.Logger
}

// New wires the service. bus may be nil, in which case answers are only
// visible through snapshots and the poll feed.
func New(cfg Config, registry *session.Registry, store answers.Store, engine *aggregate.Engine, bus eventbus.Bus, feed results.Feed, metrics *observability.Metrics, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	return &Service{
		cfg:      cfg,
		registry: registry,
		answers:  store,
		engine:   engine,
		bus:      bus,
		feed:     feed,
		metrics:  metrics,
		log:      log,
	}
}

func (s *Service) Catalog() *catalog.Catalog {
	return s.engine.Catalog()
}

func (s *Service) FeedMode() string {
	if s.feed == nil {
		return ""
	}
	return s.feed.Mode()
}

func (s *Service) CreateSession(ctx context.Context, req session.CreateRequest) (session.Session, error) {
	sess, err := s.registry.Create(ctx, req.Name)
	if err != nil {
		return session.Session{}, err
	}
	s.log.Info("session created", "session_id", sess.ID, "name", policy.Redacted(sess.Name))
	return sess, nil
}

func (s *Service) GetSession(ctx context.Context, id string) (session.Session, error) {
	return s.registry.Get(ctx, id)
}

func (s *Service) ListSessions(ctx context.Context) ([]session.Session, error) {
	return s.registry.List(ctx)
}

func (s *Service) FinishSession(ctx context.Context, id string) (session.Session, error) {
	sess, err := s.registry.Finish(ctx, id)
	if err != nil {
		return session.Session{}, err
	}
	s.log.Info("session finished", "session_id", sess.ID)
	return sess, nil
}

// Submit validates and durably records one answer, then announces it on the
// bus. A failed announcement does not fail the submission: the answer is
// stored and live views converge on their next reconciliation.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (answers.Answer, error) {
	begin := time.Now()
	a, err := s.submit(ctx, req)
	switch {
	case err == nil:
		s.metrics.ObserveAnswer("accepted")
	case errors.Is(err, answers.ErrInvalidAnswer):
		s.metrics.ObserveAnswer("invalid")
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrFinished):
		s.metrics.ObserveAnswer("rejected")
	default:
		s.metrics.ObserveAnswer("error")
	}
	if err != nil {
		s.log.Debug("answer not recorded",
			"session_id", req.SessionID,
			"question_id", req.QuestionID,
			"respondent_id", policy.Redacted(req.RespondentID),
			"error", err,
		)
		return answers.Answer{}, err
	}
	s.metrics.ObserveSubmitLatency(time.Since(begin))
	s.metrics.ObserveStage(observability.StageSubmitTotal, time.Since(begin))
	return a, nil
}

func (s *Service) submit(ctx context.Context, req SubmitRequest) (answers.Answer, error) {
	sess, err := s.registry.Get(ctx, req.SessionID)
	if err != nil {
		return answers.Answer{}, err
	}
	if !sess.Active() && !s.cfg.AcceptAfterFinish {
		return answers.Answer{}, session.ErrFinished
	}

	choice := strings.TrimSpace(req.Choice)
	if err := s.Catalog().Validate(req.QuestionID, choice); err != nil {
		return answers.Answer{}, fmt.Errorf("%w: %w", answers.ErrInvalidAnswer, err)
	}
	respondent := strings.TrimSpace(req.RespondentID)
	if utf8.RuneCountInString(respondent) > maxRespondentIDLength {
		return answers.Answer{}, fmt.Errorf("%w: respondent_id exceeds %d characters", answers.ErrInvalidAnswer, maxRespondentIDLength)
	}

	appendStart := time.Now()
	a, err := s.answers.Append(ctx, answers.Answer{
		SessionID:    sess.ID,
		QuestionID:   req.QuestionID,
		Choice:       choice,
		RespondentID: respondent,
	})
	if err != nil {
		return answers.Answer{}, err
	}
	s.metrics.ObserveStage(observability.StageStoreAppend, time.Since(appendStart))

	s.publish(ctx, a)
	return a, nil
}

func (s *Service) publish(ctx context.Context, a answers.Answer) {
	if s.bus == nil {
		return
	}
	// The answer is already durable; a caller hanging up must not suppress
	// the announcement, and a stalled bus must not hold the response.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PublishTimeout)
	defer cancel()
	begin := time.Now()
	if err := s.bus.Publish(ctx, a.SessionID, a); err != nil {
		s.metrics.ObservePublish("failed")
		s.log.Warn("answer publish failed", "session_id", a.SessionID, "answer_id", a.ID, "error", err)
		return
	}
	s.metrics.ObservePublish("ok")
	s.metrics.ObserveStage(observability.StagePublish, time.Since(begin))
}

func (s *Service) Snapshot(ctx context.Context, sessionID string) (aggregate.SessionAggregate, error) {
	begin := time.Now()
	agg, err := s.engine.Snapshot(ctx, sessionID)
	if err != nil {
		return aggregate.SessionAggregate{}, err
	}
	s.metrics.ObserveStage(observability.StageSnapshotLoad, time.Since(begin))
	return agg, nil
}

// OpenFeed starts a live results subscription for a session.
func (s *Service) OpenFeed(ctx context.Context, sessionID string) (*results.Subscription, error) {
	if s.feed == nil {
		return nil, results.ErrFeedClosed
	}
	return s.feed.Open(ctx, sessionID)
}
