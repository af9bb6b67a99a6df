// Package session holds the short-lived server-side state of the OAuth2
// handshake between "redirect to provider" and "callback received".
//
// It is deliberately separate from the access/refresh tokens in package
// auth: a handshake session is single use, lives for ten minutes and is
// never accepted as a credential anywhere else.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

// CookieName is the cookie that carries the signed session id.
const CookieName = "thoughts.sid"

// DefaultTTL bounds how long a user may take at the provider.
const DefaultTTL = 10 * time.Minute

var (
	// ErrNotFound means the session expired, was already used or never existed.
	ErrNotFound = errors.New("session: not found")
	// ErrInvalidCookie means the cookie signature or format is wrong.
	ErrInvalidCookie = errors.New("session: invalid cookie")
	// ErrStateMismatch means the callback state differs from the stored one.
	ErrStateMismatch = errors.New("session: state mismatch")
)

// Handshake is what is stored per session.
type Handshake struct {
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists handshakes. Take must delete what it returns.
type Store interface {
	Save(ctx context.Context, id string, h Handshake, ttl time.Duration) error
	Take(ctx context.Context, id string) (Handshake, error)
}

// Manager starts and finishes handshakes.
type Manager struct {
	store  Store
	secret []byte
	ttl    time.Duration
}

// NewManager signs session cookies with secret (at least 16 characters).
func NewManager(store Store, secret string, ttl time.Duration) (*Manager, error) {
	if len(secret) < 16 {
		return nil, errors.New("session: secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, secret: []byte(secret), ttl: ttl}, nil
}

// TTL is the lifetime of sessions and of their cookies.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Start creates a session and returns the signed cookie value plus the
// OAuth state to send to the provider.
func (m *Manager) Start(ctx context.Context) (cookie, state string, err error) {
	id := xid.New().String()
	state = xid.New().String()

	h := Handshake{State: state, CreatedAt: time.Now().UTC()}
	if err := m.store.Save(ctx, id, h, m.ttl); err != nil {
		return "", "", fmt.Errorf("session: saving handshake: %w", err)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	})
	cookie, err = token.SignedString(m.secret)
	if err != nil {
		return "", "", fmt.Errorf("session: signing cookie: %w", err)
	}
	return cookie, state, nil
}

// Finish verifies the cookie, consumes the session and checks state.
// A session can be finished at most once, even when the state is wrong.
func (m *Manager) Finish(ctx context.Context, cookie, state string) error {
	id, err := m.sessionID(cookie)
	if err != nil {
		return err
	}

	h, err := m.store.Take(ctx, id)
	if err != nil {
		return err
	}
	if state == "" || h.State != state {
		return ErrStateMismatch
	}
	return nil
}

func (m *Manager) sessionID(cookie string) (string, error) {
	var c jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(cookie, &c,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || c.Subject == "" {
		return "", ErrInvalidCookie
	}
	return c.Subject, nil
}
