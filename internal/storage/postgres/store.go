// Package postgres persists sessions and answers in PostgreSQL and relays
// answer events between processes with LISTEN/NOTIFY.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/surveypulse/internal/answers"
	"github.com/ent0n29/surveypulse/internal/reliability"
	"github.com/ent0n29/surveypulse/internal/session"
)

// Store implements session.Store and answers.Store on one pool.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS survey_sessions (
			seq BIGSERIAL UNIQUE,
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			choice_set_version INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS survey_answers (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			question_id INTEGER NOT NULL,
			choice TEXT NOT NULL,
			respondent_id TEXT NOT NULL DEFAULT '',
			submitted_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_survey_answers_session_seq ON survey_answers (session_id, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// Pool exposes the underlying pool for the notification relay.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) Ping(ctx context.Context) error {
	return reliability.StoreError("ping", s.pool.Ping(ctx))
}

func (s *Store) InsertSession(ctx context.Context, sess session.Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO survey_sessions (id, name, status, choice_set_version, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		sess.ID,
		sess.Name,
		string(sess.Status),
		sess.ChoiceSetVersion,
		sess.CreatedAt,
	)
	return reliability.StoreError("insert session", err)
}

const sessionColumns = `id, name, status, choice_set_version, created_at`

func scanSession(row pgx.Row) (session.Session, error) {
	var (
		sess   session.Session
		status string
	)
	if err := row.Scan(&sess.ID, &sess.Name, &status, &sess.ChoiceSetVersion, &sess.CreatedAt); err != nil {
		return session.Session{}, err
	}
	sess.Status = session.Status(status)
	sess.CreatedAt = sess.CreatedAt.UTC()
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (session.Session, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM survey_sessions WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return session.Session{}, session.ErrNotFound
	}
	if err != nil {
		return session.Session{}, reliability.StoreError("get session", err)
	}
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]session.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM survey_sessions ORDER BY created_at DESC, seq DESC`)
	if err != nil {
		return nil, reliability.StoreError("list sessions", err)
	}
	defer rows.Close()

	out := make([]session.Session, 0, 16)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, reliability.StoreError("scan session row", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, reliability.StoreError("iterate session rows", err)
	}
	return out, nil
}

func (s *Store) SetSessionStatus(ctx context.Context, id string, status session.Status) (session.Session, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx,
		`UPDATE survey_sessions SET status=$2 WHERE id=$1 RETURNING `+sessionColumns,
		id, string(status)))
	if errors.Is(err, pgx.ErrNoRows) {
		return session.Session{}, session.ErrNotFound
	}
	if err != nil {
		return session.Session{}, reliability.StoreError("set session status", err)
	}
	return sess, nil
}

func (s *Store) Append(ctx context.Context, a answers.Answer) (answers.Answer, error) {
	answers.Normalize(&a)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO survey_answers (id, session_id, question_id, choice, respondent_id, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID,
		a.SessionID,
		a.QuestionID,
		a.Choice,
		a.RespondentID,
		a.SubmittedAt,
	)
	if err != nil {
		return answers.Answer{}, reliability.StoreError("append answer", err)
	}
	return a, nil
}

func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]answers.Answer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, question_id, choice, respondent_id, submitted_at
		 FROM survey_answers WHERE session_id=$1 ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, reliability.StoreError("list answers", err)
	}
	defer rows.Close()

	out := make([]answers.Answer, 0, 64)
	for rows.Next() {
		var a answers.Answer
		if err := rows.Scan(&a.ID, &a.SessionID, &a.QuestionID, &a.Choice, &a.RespondentID, &a.SubmittedAt); err != nil {
			return nil, reliability.StoreError("scan answer row", err)
		}
		a.SubmittedAt = a.SubmittedAt.UTC()
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, reliability.StoreError("iterate answer rows", err)
	}
	return out, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
