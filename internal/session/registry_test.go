package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRegistryCreateGetFinish(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(NewInMemoryStore(), 1)

	s, err := r.Create(ctx, "  Turma A ")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if s.ID == "" {
		t.Fatalf("session ID should not be empty")
	}
	if s.Name != "Turma A" || s.Status != StatusActive || s.ChoiceSetVersion != 1 {
		t.Fatalf("unexpected session state: %+v", s)
	}

	got, err := r.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != s {
		t.Fatalf("Get() = %+v, want %+v", got, s)
	}

	finished, err := r.Finish(ctx, s.ID)
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if finished.Status != StatusFinished {
		t.Fatalf("finished status = %q, want %q", finished.Status, StatusFinished)
	}
	again, err := r.Finish(ctx, s.ID)
	if err != nil {
		t.Fatalf("second Finish() error = %v", err)
	}
	if again.Status != StatusFinished {
		t.Fatalf("second finish status = %q, want %q", again.Status, StatusFinished)
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry(NewInMemoryStore(), 1)
	if _, err := r.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	if _, err := r.Finish(context.Background(), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Finish() error = %v, want ErrNotFound", err)
	}
}

func TestRegistryRejectsInvalidNames(t *testing.T) {
	r := NewRegistry(NewInMemoryStore(), 1)
	for _, name := range []string{"", "   ", strings.Repeat("x", maxNameLength+1)} {
		if _, err := r.Create(context.Background(), name); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("Create(%q) error = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestRegistryListNewestFirst(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(NewInMemoryStore(), 1)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	r.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	a, _ := r.Create(ctx, "a")
	b, _ := r.Create(ctx, "b")
	c, _ := r.Create(ctx, "c")

	list, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len(List()) = %d, want 3", len(list))
	}
	if list[0].ID != c.ID || list[1].ID != b.ID || list[2].ID != a.ID {
		t.Fatalf("List() order = %v, want c,b,a", []string{list[0].Name, list[1].Name, list[2].Name})
	}
}

func TestRegistryConcurrentCreateUniqueIDs(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(NewInMemoryStore(), 1)

	const n = 200
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := r.Create(ctx, "load")
			if err != nil {
				t.Errorf("Create() error = %v", err)
				return
			}
			ids <- s.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, n)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate session id %q", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("created %d sessions, want %d", len(seen), n)
	}
}

func TestRegistryChangeHook(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(NewInMemoryStore(), 1)
	var events []Status
	r.SetChangeHook(func(s Session) { events = append(events, s.Status) })

	s, _ := r.Create(ctx, "hooked")
	_, _ = r.Finish(ctx, s.ID)
	_, _ = r.Finish(ctx, s.ID)

	if len(events) != 2 || events[0] != StatusActive || events[1] != StatusFinished {
		t.Fatalf("hook events = %v, want [active finished]", events)
	}
	n, err := r.ActiveCount(ctx)
	if err != nil || n != 0 {
		t.Fatalf("ActiveCount() = %d, %v; want 0, nil", n, err)
	}
}
