// Package sqlite persists sessions and answers in an embedded SQLite
// database for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"

	"github.com/ent0n29/surveypulse/internal/answers"
	"github.com/ent0n29/surveypulse/internal/reliability"
	"github.com/ent0n29/surveypulse/internal/session"
)

// Store implements session.Store and answers.Store on one database handle.
type Store struct {
	db *sql.DB
}

// Open connects to the database at dsn, applies pragmas and creates the
// schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS survey_sessions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			choice_set_version INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS survey_answers (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			question_id INTEGER NOT NULL,
			choice TEXT NOT NULL,
			respondent_id TEXT NOT NULL DEFAULT '',
			submitted_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_survey_answers_session_seq ON survey_answers (session_id, seq)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// DB returns the underlying *sql.DB for raw queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	return reliability.StoreError("ping", s.db.PingContext(ctx))
}

// Timestamps are stored as unix microseconds.
func toMicros(t time.Time) int64 { return t.UTC().UnixMicro() }

func fromMicros(us int64) time.Time { return time.UnixMicro(us).UTC() }

func (s *Store) InsertSession(ctx context.Context, sess session.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO survey_sessions (id, name, status, choice_set_version, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.Name, string(sess.Status), sess.ChoiceSetVersion, toMicros(sess.CreatedAt),
	)
	return reliability.StoreError("insert session", err)
}

const sessionColumns = `id, name, status, choice_set_version, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (session.Session, error) {
	var (
		sess    session.Session
		status  string
		created int64
	)
	if err := row.Scan(&sess.ID, &sess.Name, &status, &sess.ChoiceSetVersion, &created); err != nil {
		return session.Session{}, err
	}
	sess.Status = session.Status(status)
	sess.CreatedAt = fromMicros(created)
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (session.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM survey_sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, session.ErrNotFound
	}
	if err != nil {
		return session.Session{}, reliability.StoreError("get session", err)
	}
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]session.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM survey_sessions ORDER BY created_at DESC, rowid DESC`)
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
	res, err := s.db.ExecContext(ctx, `UPDATE survey_sessions SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return session.Session{}, reliability.StoreError("set session status", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return session.Session{}, session.ErrNotFound
	}
	return s.GetSession(ctx, id)
}

func (s *Store) Append(ctx context.Context, a answers.Answer) (answers.Answer, error) {
	answers.Normalize(&a)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO survey_answers (id, session_id, question_id, choice, respondent_id, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, a.QuestionID, a.Choice, a.RespondentID, toMicros(a.SubmittedAt),
	)
	if err != nil {
		return answers.Answer{}, reliability.StoreError("append answer", err)
	}
	return a, nil
}

func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]answers.Answer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, question_id, choice, respondent_id, submitted_at
		 FROM survey_answers WHERE session_id = ? ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, reliability.StoreError("list answers", err)
	}
	defer rows.Close()

	out := make([]answers.Answer, 0, 64)
	for rows.Next() {
		var (
			a         answers.Answer
			submitted int64
		)
		if err := rows.Scan(&a.ID, &a.SessionID, &a.QuestionID, &a.Choice, &a.RespondentID, &submitted); err != nil {
			return nil, reliability.StoreError("scan answer row", err)
		}
		a.SubmittedAt = fromMicros(submitted)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, reliability.StoreError("iterate answer rows", err)
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
