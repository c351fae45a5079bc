// Package session maps session identifiers to player seats. A session
// outlives any single socket: the registry is what lets a reconnecting
// client take over the seat its previous connection held.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"

	"github.com/halma/sternd/internal/board"
)

var (
	// ErrUnknownSession is returned for ids the registry has never issued
	// or has already expired.
	ErrUnknownSession = errors.New("unknown session")
	// ErrSessionBusy is returned when the session's seat is still held by a
	// live connection.
	ErrSessionBusy = errors.New("session busy")
)

type entry struct {
	player    board.Player
	connected bool
	lastSeen  time.Time
}

// Registry is the process-wide SessionId -> seat index. All mutation happens
// under one mutex; the critical sections are O(1) map operations. Entries of
// disconnected seats expire after the reconnection grace window (never, if
// the window is zero).
type Registry struct {
	mu       sync.Mutex
	sessions *cache.Cache
	grace    time.Duration
	onExpire func(id uuid.UUID, p board.Player)
	now      func() time.Time
}

// NewRegistry creates a registry with the given reconnection grace window.
// grace <= 0 disables expiry entirely.
func NewRegistry(grace time.Duration) *Registry {
	cleanup := time.Minute
	if grace > 0 && grace < 4*cleanup {
		cleanup = grace / 4
	}

	r := &Registry{
		sessions: cache.New(cache.NoExpiration, cleanup),
		grace:    grace,
		now:      time.Now,
	}
	r.sessions.OnEvicted(func(key string, v interface{}) {
		e, ok := v.(entry)
		if !ok || e.connected || r.onExpire == nil {
			// Explicit releases also land here; only a disconnected seat
			// timing out is an expiry event.
			return
		}
		id, err := uuid.Parse(key)
		if err != nil {
			return
		}
		r.onExpire(id, e.player)
	})
	return r
}

// OnExpire registers the callback invoked when a disconnected session's
// grace window elapses. Must be set before any session can expire; the
// callback runs on the cache janitor goroutine.
func (r *Registry) OnExpire(fn func(id uuid.UUID, p board.Player)) {
	r.onExpire = fn
}

// Create issues a fresh session id bound to player p, marked connected.
func (r *Registry) Create(p board.Player) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New()
	r.sessions.Set(id.String(), entry{
		player:    p,
		connected: true,
		lastSeen:  r.now(),
	}, cache.NoExpiration)
	return id
}

// Rebind hands the seat of a disconnected session to a new connection. At
// most one connection can hold a session at any moment: a rebind against a
// connected seat fails with ErrSessionBusy.
func (r *Registry) Rebind(id uuid.UUID) (board.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.sessions.Get(id.String())
	if !ok {
		return 0, ErrUnknownSession
	}
	e := v.(entry)
	if e.connected {
		return 0, ErrSessionBusy
	}

	e.connected = true
	e.lastSeen = r.now()
	r.sessions.Set(id.String(), e, cache.NoExpiration)
	return e.player, nil
}

// MarkDisconnected records socket loss for a session without releasing the
// seat. The grace timer starts here.
func (r *Registry) MarkDisconnected(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.sessions.Get(id.String())
	if !ok {
		return
	}
	e := v.(entry)
	e.connected = false
	e.lastSeen = r.now()

	ttl := cache.NoExpiration
	if r.grace > 0 {
		ttl = r.grace
	}
	r.sessions.Set(id.String(), e, ttl)
}

// Connected reports whether the session exists and its seat is held by a
// live connection.
func (r *Registry) Connected(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.sessions.Get(id.String())
	return ok && v.(entry).connected
}

// Release drops a session, typically when the hub tears the game down.
func (r *Registry) Release(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := id.String()
	if v, ok := r.sessions.Get(key); ok {
		// Flag the entry as held before deleting it so the eviction callback
		// does not report a released seat as a grace expiry.
		e := v.(entry)
		e.connected = true
		r.sessions.Set(key, e, cache.NoExpiration)
	}
	r.sessions.Delete(key)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions.ItemCount()
}
