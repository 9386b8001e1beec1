package auth

import (
	"context"
	"testing"
	"time"
)

type countingResolver struct {
	id    Identity
	err   error
	calls int
}

func (r *countingResolver) Resolve(_ context.Context) (Identity, error) {
	r.calls++
	if r.err != nil {
		return Identity{}, r.err
	}
	return r.id, nil
}

func TestCachedResolverReusesWithinTTL(t *testing.T) {
	inner := &countingResolver{id: Identity{UserID: "u1"}}
	r := NewCachedResolver(inner, 30*time.Minute, nil)

	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	r.SetClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		id, err := r.Resolve(context.Background())
		if err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
		if id.UserID != "u1" {
			t.Fatalf("resolve %d: wrong identity %q", i, id.UserID)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 provider call, got %d", inner.calls)
	}

	now = now.Add(31 * time.Minute)
	if _, err := r.Resolve(context.Background()); err != nil {
		t.Fatalf("resolve after expiry: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected re-fetch after ttl, got %d calls", inner.calls)
	}
}

func TestCachedResolverInvalidatesOnAuthEvent(t *testing.T) {
	bus := NewBus()
	inner := &countingResolver{id: Identity{UserID: "u1"}}
	r := NewCachedResolver(inner, time.Hour, bus)

	if _, err := r.Resolve(context.Background()); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	bus.Publish(EventSignOut)
	if _, err := r.Resolve(context.Background()); err != nil {
		t.Fatalf("resolve after sign-out: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected cache drop on auth event, got %d calls", inner.calls)
	}
}

func TestSessionSignInOutPublishesSynchronously(t *testing.T) {
	bus := NewBus()
	var events []Event
	bus.Subscribe(func(e Event) { events = append(events, e) })

	s := NewSession(bus)
	if s.Authenticated() {
		t.Fatal("fresh session must be signed out")
	}
	if _, err := s.Resolve(context.Background()); err != ErrSignedOut {
		t.Fatalf("expected ErrSignedOut, got %v", err)
	}

	s.SignIn(Identity{UserID: "u1"})
	if !s.Authenticated() {
		t.Fatal("expected authenticated after sign-in")
	}
	id, err := s.Resolve(context.Background())
	if err != nil || id.UserID != "u1" {
		t.Fatalf("resolve: %v %v", id, err)
	}

	s.SignOut()
	if got := len(events); got != 2 {
		t.Fatalf("expected 2 events, got %d", got)
	}
	if events[0] != EventSignIn || events[1] != EventSignOut {
		t.Fatalf("unexpected event order: %v", events)
	}
}
