// Package authtest mints principals for tests through a real in-memory
// session manager, so tests exercise the same path as production.
package authtest

import (
	"context"
	"testing"
	"time"

	"github.com/platinummonkey/crmgate/pkg/auth"
	"github.com/platinummonkey/crmgate/pkg/rbac"
)

// NewSessions returns a session manager backed by memory.
func NewSessions() *auth.SessionManager {
	return auth.NewSessionManager(auth.NewMemorySessionStore(1000, time.Hour), time.Hour)
}

// NewPrincipal issues a session for the triple and authenticates it.
func NewPrincipal(t testing.TB, role rbac.Role, userID, tenantID string) auth.Principal {
	t.Helper()
	_, p := NewToken(t, NewSessions(), role, userID, tenantID)
	return p
}

// NewToken issues a bearer token on sessions and returns it with the
// principal it resolves to.
func NewToken(t testing.TB, sessions *auth.SessionManager, role rbac.Role, userID, tenantID string) (string, auth.Principal) {
	t.Helper()
	ctx := context.Background()

	token, _, err := sessions.Issue(ctx, userID, tenantID, role)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	p, err := sessions.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("authenticate session: %v", err)
	}
	return token, p
}

// WithPrincipal returns ctx carrying a fresh principal for the triple.
func WithPrincipal(t testing.TB, ctx context.Context, role rbac.Role, userID, tenantID string) context.Context {
	t.Helper()
	return auth.WithPrincipal(ctx, NewPrincipal(t, role, userID, tenantID))
}
