package letschat

import "sync"

// Session is the boundary supplying the current identity. The store uses
// it to interpret "own message" and "unread", and treats any identity
// change, including logout, as a full reset of its collections.
type Session struct {
	mu       sync.RWMutex
	user     *User
	onChange []func(*User)
}

// NewSession creates a session with an initial identity (nil = signed out).
func NewSession(user *User) *Session {
	return &Session{user: user}
}

// CurrentUser returns the active identity, or nil when signed out.
func (s *Session) CurrentUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// CurrentUserID returns the active identity's id, or "".
func (s *Session) CurrentUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.ID
}

// SetUser installs a new identity. Handlers fire only when the identity
// actually changes; pass nil to sign out.
func (s *Session) SetUser(user *User) {
	s.mu.Lock()
	prev := s.user
	s.user = user
	handlers := append([]func(*User){}, s.onChange...)
	s.mu.Unlock()

	if sameIdentity(prev, user) {
		return
	}
	for _, h := range handlers {
		h(user)
	}
}

// OnChange registers a handler invoked on identity change.
func (s *Session) OnChange(h func(*User)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, h)
	s.mu.Unlock()
}

func sameIdentity(a, b *User) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID == b.ID
}
