// Package auth holds the identity plumbing the remote store depends
// on. The actual authentication protocol lives with an external
// identity provider; this package only resolves, caches, and
// invalidates the current identity.
package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrSignedOut = errors.New("signed out")

// Identity is the resolved user the remote store scopes rows by.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
}

// Resolver produces the current identity, or ErrSignedOut.
type Resolver interface {
	Resolve(ctx context.Context) (Identity, error)
}

// Event is an auth-state transition. Every transition must
// invalidate user-scoped caches synchronously, so subscribers run
// inline in Publish.
type Event string

const (
	EventSignIn       Event = "sign_in"
	EventSignOut      Event = "sign_out"
	EventTokenRefresh Event = "token_refresh"
)

// Bus dispatches auth events to subscribers, in subscription order,
// on the publishing goroutine.
type Bus struct {
	mu       sync.Mutex
	handlers []func(Event)
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, fn)
}

func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	handlers := append([]func(Event){}, b.handlers...)
	b.mu.Unlock()
	for _, fn := range handlers {
		fn(e)
	}
}

// Session is a mutable sign-in state: a Resolver whose identity is
// set and cleared by the hosting application. Transitions publish on
// the bus so caches clear before the next storage call can run.
type Session struct {
	mu  sync.RWMutex
	id  *Identity
	bus *Bus
}

func NewSession(bus *Bus) *Session {
	return &Session{bus: bus}
}

func (s *Session) Resolve(_ context.Context) (Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.id == nil {
		return Identity{}, ErrSignedOut
	}
	return *s.id, nil
}

// Authenticated reports whether an identity is currently set.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id != nil
}

func (s *Session) SignIn(id Identity) {
	s.mu.Lock()
	s.id = &id
	s.mu.Unlock()
	if s.bus != nil {
		s.bus.Publish(EventSignIn)
	}
}

func (s *Session) SignOut() {
	s.mu.Lock()
	s.id = nil
	s.mu.Unlock()
	if s.bus != nil {
		s.bus.Publish(EventSignOut)
	}
}

// StaticResolver always resolves to one identity (tests, desktop
// single-user mode).
type StaticResolver struct {
	Identity Identity
}

func (r StaticResolver) Resolve(_ context.Context) (Identity, error) {
	return r.Identity, nil
}

// CachedResolver reuses a resolved identity for a fixed window to
// avoid redundant provider round-trips. Any auth event published on
// the bus invalidates it immediately.
type CachedResolver struct {
	inner Resolver
	ttl   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	cached    *Identity
	fetchedAt time.Time
}

// NewCachedResolver wraps inner with a ttl cache and subscribes its
// invalidation to the bus (bus may be nil).
func NewCachedResolver(inner Resolver, ttl time.Duration, bus *Bus) *CachedResolver {
	r := &CachedResolver{
		inner: inner,
		ttl:   ttl,
		now:   time.Now,
	}
	if bus != nil {
		bus.Subscribe(func(Event) { r.Invalidate() })
	}
	return r
}

func (r *CachedResolver) Resolve(ctx context.Context) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != nil && r.now().Sub(r.fetchedAt) < r.ttl {
		return *r.cached, nil
	}
	id, err := r.inner.Resolve(ctx)
	if err != nil {
		r.cached = nil
		return Identity{}, err
	}
	r.cached = &id
	r.fetchedAt = r.now()
	return id, nil
}

func (r *CachedResolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = nil
}

// SetClock overrides the cache clock; tests only.
func (r *CachedResolver) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}
