package state

import (
	"sync"
	"time"
)

// DefaultIdleTimeout is how long an untouched session stays registered.
const DefaultIdleTimeout = 30 * time.Minute

// Session is the state of one browser, identified by its device id.
type Session struct {
	Store  *Store
	Search *Debouncer

	lastSeen time.Time
}

// Sessions is the registry of live browser sessions. Entries idle for longer
// than the idle timeout are swept on access.
type Sessions struct {
	debounce time.Duration
	idle     time.Duration
	now      func() time.Time

	mu        sync.Mutex
	items     map[string]*Session
	lastSweep time.Time
}

type SessionsOption func(*Sessions)

func WithIdleTimeout(d time.Duration) SessionsOption {
	return func(r *Sessions) {
		if d > 0 {
			r.idle = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) SessionsOption {
	return func(r *Sessions) {
		if now != nil {
			r.now = now
		}
	}
}

func NewSessions(debounce time.Duration, opts ...SessionsOption) *Sessions {
	r := &Sessions{
		debounce: debounce,
		idle:     DefaultIdleTimeout,
		now:      time.Now,
		items:    make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.lastSweep = r.now()
	return r
}

// Lookup returns the registered session for id without creating one.
func (r *Sessions) Lookup(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.sweep(now)
	s, ok := r.items[id]
	if ok {
		s.lastSeen = now
	}
	return s, ok
}

// Get returns the session for id, creating it when missing. created reports
// whether this call made it.
func (r *Sessions) Get(id string) (sess *Session, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.sweep(now)
	if s, ok := r.items[id]; ok {
		s.lastSeen = now
		return s, false
	}
	s := &Session{Store: NewStore(InitialState()), Search: NewDebouncer(r.debounce), lastSeen: now}
	r.items[id] = s
	return s, true
}

func (r *Sessions) Drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
}

func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// sweep runs at most once per tenth of the idle timeout. r.mu must be held.
func (r *Sessions) sweep(now time.Time) {
	if now.Sub(r.lastSweep) < r.idle/10 {
		return
	}
	r.lastSweep = now
	for id, s := range r.items {
		if now.Sub(s.lastSeen) > r.idle {
			delete(r.items, id)
		}
	}
}
