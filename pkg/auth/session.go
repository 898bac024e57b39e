package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/crmgate/pkg/rbac"
)

// DefaultSessionTTL is used when NewSessionManager is given a zero TTL.
const DefaultSessionTTL = 12 * time.Hour

// SessionManager issues and verifies opaque session tokens.
type SessionManager struct {
	store     SessionStore
	generator *TokenGenerator
	ttl       time.Duration
	now       func() time.Time
}

// NewSessionManager creates a session manager over store.
func NewSessionManager(store SessionStore, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		store:     store,
		generator: NewTokenGenerator(),
		ttl:       ttl,
		now:       time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (m *SessionManager) WithClock(now func() time.Time) *SessionManager {
	m.now = now
	return m
}

// Issue creates a session for a user who has already proven their identity.
// The returned token is shown once; only its hash is persisted.
func (m *SessionManager) Issue(ctx context.Context, userID, tenantID string, role rbac.Role) (string, *Session, error) {
	if userID == "" || tenantID == "" || role.IsZero() {
		return "", nil, ErrIncompleteSubject
	}

	token, hash, err := m.generator.GenerateToken()
	if err != nil {
		return "", nil, err
	}

	now := m.now().UTC()
	s := &Session{
		ID:        uuid.NewString(),
		TokenHash: hash,
		UserID:    userID,
		TenantID:  tenantID,
		Role:      role.String(),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Save(ctx, s); err != nil {
		return "", nil, fmt.Errorf("failed to save session: %w", err)
	}
	return token, s, nil
}

// Authenticate implements Authenticator for session tokens.
func (m *SessionManager) Authenticate(ctx context.Context, token string) (Principal, error) {
	if !m.generator.IsSessionToken(token) {
		return Principal{}, ErrUnsupportedToken
	}
	if err := m.generator.ValidateTokenFormat(token); err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	s, err := m.store.Get(ctx, m.generator.HashToken(token))
	if err != nil {
		return Principal{}, err
	}
	now := m.now()
	if !now.Before(s.ExpiresAt) {
		return Principal{}, ErrSessionExpired
	}

	role, err := rbac.ParseRole(s.Role)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return newPrincipal(s.UserID, s.TenantID, role, s.ID, now)
}

// Revoke deletes the session behind token. Revoking an unknown token is not
// an error.
func (m *SessionManager) Revoke(ctx context.Context, token string) error {
	err := m.store.Delete(ctx, m.generator.HashToken(token))
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	return err
}

// Authenticators tries each authenticator in order, skipping those that
// report ErrUnsupportedToken.
type Authenticators []Authenticator

// Authenticate implements Authenticator.
func (as Authenticators) Authenticate(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrUnauthenticated
	}
	for _, a := range as {
		if a == nil {
			continue
		}
		p, err := a.Authenticate(ctx, token)
		if errors.Is(err, ErrUnsupportedToken) {
			continue
		}
		return p, err
	}
	return Principal{}, ErrInvalidToken
}

var (
	_ Authenticator = (*SessionManager)(nil)
	_ Authenticator = Authenticators(nil)
)
