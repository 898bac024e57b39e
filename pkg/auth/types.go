package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/platinummonkey/crmgate/pkg/contextkeys"
	"github.com/platinummonkey/crmgate/pkg/rbac"
)

var (
	ErrUnauthenticated   = errors.New("auth: unauthenticated")
	ErrInvalidToken      = errors.New("auth: invalid token")
	ErrUnsupportedToken  = errors.New("auth: token not handled by this authenticator")
	ErrSessionNotFound   = errors.New("auth: session not found")
	ErrSessionExpired    = errors.New("auth: session expired")
	ErrIncompleteSubject = errors.New("auth: subject missing user, tenant or role")
)

// Principal is the verified (role, user, tenant) triple for a request. Its
// fields are unexported: only authenticators in this package can produce a
// populated value, so identity is never taken from request bodies, query
// strings or headers other than the credential itself.
type Principal struct {
	userID          string
	tenantID        string
	role            rbac.Role
	sessionID       string
	authenticatedAt time.Time
}

func newPrincipal(userID, tenantID string, role rbac.Role, sessionID string, at time.Time) (Principal, error) {
	if userID == "" || tenantID == "" || role.IsZero() {
		return Principal{}, ErrIncompleteSubject
	}
	return Principal{
		userID:          userID,
		tenantID:        tenantID,
		role:            role,
		sessionID:       sessionID,
		authenticatedAt: at,
	}, nil
}

func (p Principal) UserID() string             { return p.userID }
func (p Principal) TenantID() string           { return p.tenantID }
func (p Principal) Role() rbac.Role            { return p.role }
func (p Principal) SessionID() string          { return p.sessionID }
func (p Principal) AuthenticatedAt() time.Time { return p.authenticatedAt }

// IsZero reports whether p is the unauthenticated zero value.
func (p Principal) IsZero() bool {
	return p.userID == "" || p.role.IsZero()
}

// Checker returns a permission checker bound to the principal.
func (p Principal) Checker() *rbac.Checker {
	return rbac.NewChecker(p.role, p.userID)
}

// Guard returns a record guard bound to the principal's tenant.
func (p Principal) Guard() *rbac.Guard {
	return rbac.NewGuard(p.Checker(), p.tenantID)
}

// MarshalJSON exposes the principal for /me style responses.
func (p Principal) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		UserID    string `json:"user_id"`
		TenantID  string `json:"tenant_id"`
		Role      string `json:"role"`
		SessionID string `json:"session_id,omitempty"`
	}{p.userID, p.tenantID, p.role.String(), p.sessionID})
}

// WithPrincipal stores p on the context. The zero principal is not stored.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if p.IsZero() {
		return ctx
	}
	return context.WithValue(ctx, contextkeys.PrincipalKey, p)
}

// PrincipalFromContext returns the request principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextkeys.PrincipalKey).(Principal)
	if !ok || p.IsZero() {
		return Principal{}, false
	}
	return p, true
}

// Authenticator turns a bearer credential into a Principal. Implementations
// return ErrUnsupportedToken for credentials they do not recognize.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Principal, error)
}

// Session is a server-side login session. Only the token hash is stored.
type Session struct {
	ID        string    `json:"id"`
	TokenHash string    `json:"token_hash"`
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionStore persists sessions keyed by token hash.
type SessionStore interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, tokenHash string) (*Session, error)
	Delete(ctx context.Context, tokenHash string) error
}
