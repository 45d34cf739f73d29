// Package answers is the append-only answer log. Records are never updated
// or deleted, which is what lets tallies be maintained by increments only.
package answers

import (
	"context"
	"errors"
	"time"

	"github.com/ent0n29/surveypulse/internal/reliability"
)

var (
	ErrStoreUnavailable = reliability.ErrStoreUnavailable
	ErrInvalidAnswer    = errors.New("invalid answer")
)

// Answer is one respondent's choice for one question in one session.
// RespondentID is an optional client token and is not verified.
type Answer struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	QuestionID   int       `json:"question_id"`
	Choice       string    `json:"choice"`
	RespondentID string    `json:"respondent_id,omitempty"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// Store is the durable answer log.
//
// Append assigns ID and SubmittedAt when empty and returns the stored record.
// Each call creates a new record; concurrent appends never merge.
// ListBySession returns answers in a stable order (submission order).
type Store interface {
	Append(ctx context.Context, a Answer) (Answer, error)
	ListBySession(ctx context.Context, sessionID string) ([]Answer, error)
}
