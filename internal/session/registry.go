package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxNameLength = 200

// Registry creates and looks up sessions on top of a Store.
type Registry struct {
	store            Store
	choiceSetVersion int
	now              func() time.Time

	mu       sync.RWMutex
	onChange func(Session)
}

func NewRegistry(store Store, choiceSetVersion int) *Registry {
	if choiceSetVersion <= 0 {
		choiceSetVersion = 1
	}
	return &Registry{
		store:            store,
		choiceSetVersion: choiceSetVersion,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// SetChangeHook registers a callback invoked after a session is created or
// its status changes.
func (r *Registry) SetChangeHook(hook func(Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = hook
}

// Create registers a new active session. Ids are random UUIDv4 values.
func (r *Registry) Create(ctx context.Context, name string) (Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Session{}, fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return Session{}, fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}

	s := Session{
		ID:               uuid.NewString(),
		Name:             name,
		Status:           StatusActive,
		ChoiceSetVersion: r.choiceSetVersion,
		CreatedAt:        r.now().Truncate(time.Microsecond),
	}
	if err := r.store.InsertSession(ctx, s); err != nil {
		return Session{}, err
	}
	r.notify(s)
	return s, nil
}

func (r *Registry) Get(ctx context.Context, id string) (Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Session{}, ErrNotFound
	}
	return r.store.GetSession(ctx, id)
}

// List returns every session, newest first.
func (r *Registry) List(ctx context.Context) ([]Session, error) {
	return r.store.ListSessions(ctx)
}

// Finish marks a session finished. Finishing a finished session is a no-op.
func (r *Registry) Finish(ctx context.Context, id string) (Session, error) {
	s, err := r.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if s.Status == StatusFinished {
		return s, nil
	}
	s, err = r.store.SetSessionStatus(ctx, s.ID, StatusFinished)
	if err != nil {
		return Session{}, err
	}
	r.notify(s)
	return s, nil
}

// ActiveCount counts active sessions.
func (r *Registry) ActiveCount(ctx context.Context) (int, error) {
	all, err := r.store.ListSessions(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, s := range all {
		if s.Active() {
			count++
		}
	}
	return count, nil
}

func (r *Registry) notify(s Session) {
	r.mu.RLock()
	hook := r.onChange
	r.mu.RUnlock()
	if hook != nil {
		hook(s)
	}
}

func sortNewestFirst(sessions []Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
}
