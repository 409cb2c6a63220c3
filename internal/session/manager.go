package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/roleboard/internal/models"
	"github.com/isdelr/roleboard/internal/secret"
)

// DefaultTTL is the absolute lifetime of a session.
const DefaultTTL = time.Hour

// csrfTokenBytes is the entropy of a per-session anti-forgery token.
const csrfTokenBytes = 16

// Manager creates, resolves and destroys server-side sessions. Records live
// in memory only; a restart logs everybody out.
type Manager struct {
	key []byte
	ttl time.Duration
	now func() time.Time

	// mu guards sessions and every record in it.
	mu       sync.Mutex
	sessions map[string]*models.Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager returns a Manager signing cookie tokens with key. A zero ttl
// means DefaultTTL.
func NewManager(key []byte, ttl time.Duration, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Manager{
		key:      key,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*models.Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create allocates a session for identity and returns it together with the
// token to hand to the client. Any session referenced by prior (the cookie
// the client presented, possibly empty) is destroyed first.
func (m *Manager) Create(identity models.Identity, prior string) (models.Session, string, error) {
	csrf, err := secret.Hex(csrfTokenBytes)
	if err != nil {
		return models.Session{}, "", fmt.Errorf("generate csrf token: %w", err)
	}

	now := m.now()
	sess := &models.Session{
		ID:        uuid.New().String(),
		Identity:  identity,
		CSRFToken: csrf,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	token, err := m.signToken(sess.ID, sess.CreatedAt, sess.ExpiresAt)
	if err != nil {
		return models.Session{}, "", fmt.Errorf("sign session token: %w", err)
	}

	m.Destroy(prior)

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	return *sess, token, nil
}

// Resolve returns the live session referenced by token. Missing, malformed,
// expired and destroyed sessions all yield false.
func (m *Manager) Resolve(token string) (models.Session, bool) {
	id, err := m.parseToken(token, false)
	if err != nil {
		return models.Session{}, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return models.Session{}, false
	}
	if sess.IsExpired(m.now()) {
		delete(m.sessions, id)
		return models.Session{}, false
	}
	return *sess, true
}

// Destroy removes the session referenced by token. Unknown or invalid
// tokens are ignored, so destroying twice is harmless.
func (m *Manager) Destroy(token string) {
	id, err := m.parseToken(token, true)
	if err != nil {
		return
	}
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Update applies fn to the live session with the given id while holding the
// manager lock. Concurrent updates are serialized; the last one wins. It
// reports whether the session still existed.
func (m *Manager) Update(id string, fn func(*models.Session)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok || sess.IsExpired(m.now()) {
		return false
	}
	fn(sess)
	return true
}

// Sweep drops every expired session and returns how many were removed.
func (m *Manager) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, sess := range m.sessions {
		if sess.IsExpired(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions, expired ones included.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
