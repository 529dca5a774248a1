// Package session manages the short-lived QR login handshake: a token links
// the browser showing the QR code to the phone that scans and confirms it.
package session

import (
	"errors"
	"sync"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusScanned   Status = "scanned"
	StatusConfirmed Status = "confirmed"
	StatusExpired   Status = "expired"
)

// statusRank orders the forward-only state machine.
var statusRank = map[Status]int{
	StatusPending:   0,
	StatusScanned:   1,
	StatusConfirmed: 2,
	StatusExpired:   3,
}

var (
	ErrNotFound      = errors.New("login session not found")
	ErrStateConflict = errors.New("login session cannot move backwards")
)

const DefaultTTL = 5 * time.Minute

type UserInfo struct {
	UserID   string `json:"user_id"`
	Nickname string `json:"nickname,omitempty"`
}

type Session struct {
	Token     string    `json:"token"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	UserInfo  *UserInfo `json:"user_info,omitempty"`
}

// Store holds login sessions by token. Instances are constructor-injected so
// tests run against isolated stores; there is no package-level state.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create registers a new pending session for token, replacing any previous
// session under the same token.
func (s *Store) Create(token string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess := &Session{
		Token:     token,
		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.sessions[token] = sess
	return sess
}

// Get returns the session for token. Expiry is applied lazily on read: a
// non-terminal session past its deadline flips to expired before it is
// returned, so callers never observe a stale pending status.
func (s *Store) Get(token string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	s.expireLocked(sess)
	cp := *sess
	return &cp, nil
}

// UpdateStatus advances the session to status. Transitions are forward-only;
// an attempt to walk the handshake backwards is a state conflict. Updating an
// already-expired session is likewise rejected.
func (s *Store) UpdateStatus(token string, status Status, info *UserInfo) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	s.expireLocked(sess)
	if statusRank[status] < statusRank[sess.Status] {
		return nil, ErrStateConflict
	}
	if sess.Status == StatusExpired && status != StatusExpired {
		return nil, ErrStateConflict
	}
	sess.Status = status
	if info != nil {
		sess.UserInfo = info
	}
	cp := *sess
	return &cp, nil
}

// Delete removes the session for token, reporting whether it existed.
func (s *Store) Delete(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[token]
	delete(s.sessions, token)
	return ok
}

// CleanupExpired drops sessions whose deadline passed more than one TTL
// window ago and returns how many were removed. Lazy expiry on read already
// keeps answers correct; this only bounds memory across sweeps.
func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for token, sess := range s.sessions {
		if sess.ExpiresAt.Before(cutoff) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored sessions, expired or not.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) expireLocked(sess *Session) {
	if sess.Status == StatusConfirmed || sess.Status == StatusExpired {
		return
	}
	if s.now().After(sess.ExpiresAt) {
		sess.Status = StatusExpired
	}
}
