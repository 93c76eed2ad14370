package auth

import "sync"

// Session is the admin state of one browser: whether the admin overlay is
// open, whether the user has logged in, and the login form inputs.
//
// A session is never authenticated while its login form is open and
// unsubmitted.
type Session struct {
	auth Authenticator

	mu            sync.Mutex
	authenticated bool
	open          bool
	name          string
	password      string
}

func NewSession(auth Authenticator) *Session {
	return &Session{auth: auth}
}

// SessionState is a copy of a session's visible state.
type SessionState struct {
	Authenticated bool `json:"authenticated"`
	Open          bool `json:"open"`
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionState{Authenticated: s.authenticated, Open: s.open}
}

func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Open shows the login form, or the admin panel if already logged in.
func (s *Session) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
}

// SetInput records the login form fields before submission.
func (s *Session) SetInput(name, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
	s.password = password
}

// Submit attempts a login with the recorded form fields.
func (s *Session) Submit() error {
	s.mu.Lock()
	name, password := s.name, s.password
	s.mu.Unlock()
	return s.Login(name, password)
}

// Login authenticates and opens the admin panel. On failure the session
// stays unauthenticated.
func (s *Session) Login(name, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.auth == nil || !s.auth.Authenticate(name, password) {
		s.authenticated = false
		return ErrInvalidCredentials
	}

	s.authenticated = true
	s.open = true
	s.name = ""
	s.password = ""
	return nil
}

// Close logs out and hides the admin overlay.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = false
	s.open = false
	s.name = ""
	s.password = ""
}

// Logout is Close.
func (s *Session) Logout() {
	s.Close()
}
