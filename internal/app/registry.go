package app

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/user-portal/internal/nav"
)

// Registry keeps one Session per client, keyed by an opaque id handed to the
// client. Every session owns its own guard and route history. Sessions idle
// for longer than the idle timeout are dropped.
type Registry struct {
	deps Deps
	idle time.Duration
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*registryEntry
}

type registryEntry struct {
	session  *Session
	lastSeen time.Time
}

// NewRegistry returns an empty registry. deps.Router is ignored: each session
// navigates through its own nav.History. A non-positive idle keeps sessions
// forever.
func NewRegistry(deps Deps, idle time.Duration) (*Registry, error) {
	if deps.Store == nil || deps.Auth == nil {
		return nil, errors.New("app: store and authenticator are required")
	}
	deps.Router = nil

	return &Registry{
		deps:     deps,
		idle:     idle,
		now:      time.Now,
		sessions: make(map[string]*registryEntry),
	}, nil
}

// Get returns the live session for id and marks it as used.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	now := r.now()
	if r.expired(e, now) {
		delete(r.sessions, id)
		return nil, false
	}
	e.lastSeen = now
	return e.session, true
}

// Create starts a session for a new client and returns its id.
func (r *Registry) Create() (string, *Session, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", nil, fmt.Errorf("generate session id: %w", err)
	}

	deps := r.deps
	deps.Router = &nav.History{}
	session, err := NewSession(deps)
	if err != nil {
		return "", nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweep(now)
	r.sessions[id.String()] = &registryEntry{session: session, lastSeen: now}
	return id.String(), session, nil
}

// Remove drops the session for id, if any.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) expired(e *registryEntry, now time.Time) bool {
	return r.idle > 0 && now.Sub(e.lastSeen) > r.idle
}

// sweep must be called with r.mu held.
func (r *Registry) sweep(now time.Time) {
	dropped := 0
	for id, e := range r.sessions {
		if r.expired(e, now) {
			delete(r.sessions, id)
			dropped++
		}
	}
	if dropped > 0 {
		log.Debug().Int("dropped", dropped).Int("live", len(r.sessions)).Msg("app: idle sessions dropped")
	}
}
