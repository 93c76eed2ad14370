package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	session  *Session
	lastSeen time.Time
}

// Registry maps browser tokens to their sessions. Sessions idle for longer
// than the registry's timeout are dropped by Sweep.
type Registry struct {
	auth     Authenticator
	idle     time.Duration
	now      func() time.Time
	onRemove func(token string)

	mu       sync.Mutex
	sessions map[string]*entry
}

func NewRegistry(auth Authenticator, idle time.Duration) *Registry {
	return &Registry{
		auth:     auth,
		idle:     idle,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// OnRemove registers fn to run after a session is removed or expires.
func (r *Registry) OnRemove(fn func(token string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRemove = fn
}

// New creates an unauthenticated session and returns its token.
func (r *Registry) New() (string, *Session) {
	token := uuid.NewString()
	s := NewSession(r.auth)

	r.mu.Lock()
	r.sessions[token] = &entry{session: s, lastSeen: r.now()}
	r.mu.Unlock()
	return token, s
}

// Get returns the session for token and marks it as used.
func (r *Registry) Get(token string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.lastSeen = r.now()
	return e.session, nil
}

// GetOrNew returns the session for token, creating a new one when the token
// is empty or unknown. The returned token is the one to hand back to the browser.
func (r *Registry) GetOrNew(token string) (string, *Session) {
	if token != "" {
		if s, err := r.Get(token); err == nil {
			return token, s
		}
	}
	return r.New()
}

// Remove logs the session out and forgets it.
func (r *Registry) Remove(token string) {
	r.mu.Lock()
	e, ok := r.sessions[token]
	delete(r.sessions, token)
	onRemove := r.onRemove
	r.mu.Unlock()

	if !ok {
		return
	}
	e.session.Logout()
	if onRemove != nil {
		onRemove(token)
	}
}

// Sweep removes every session idle for longer than the timeout and returns
// how many were dropped. A zero timeout keeps sessions forever.
func (r *Registry) Sweep() int {
	if r.idle <= 0 {
		return 0
	}

	r.mu.Lock()
	cutoff := r.now().Add(-r.idle)
	expired := make(map[string]*Session)
	for token, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			expired[token] = e.session
			delete(r.sessions, token)
		}
	}
	onRemove := r.onRemove
	r.mu.Unlock()

	for token, s := range expired {
		s.Logout()
		if onRemove != nil {
			onRemove(token)
		}
	}
	return len(expired)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
