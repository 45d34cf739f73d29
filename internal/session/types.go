package session

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

var (
	ErrNotFound    = errors.New("session not found")
	ErrFinished    = errors.New("session is finished")
	ErrInvalidName = errors.New("invalid session name")
)

// Session is immutable after creation except for Status.
type Session struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Status           Status    `json:"status"`
	ChoiceSetVersion int       `json:"choice_set_version"`
	CreatedAt        time.Time `json:"created_at"`
}

func (s Session) Active() bool {
	return s.Status == StatusActive
}

// CreateRequest defines payload for creating a new session.
type CreateRequest struct {
	Name string `json:"name"`
}

// Store persists session metadata. Implementations return ErrNotFound for
// unknown ids and list sessions newest first.
type Store interface {
	InsertSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	ListSessions(ctx context.Context) ([]Session, error)
	SetSessionStatus(ctx context.Context, id string, status Status) (Session, error)
}
