package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/platinummonkey/crmgate/pkg/rbac"
)

// OIDCClaims are the custom claims an identity provider must issue for a
// CRM user. The subject claim carries the user id.
type OIDCClaims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"crm_role"`
}

// OIDCAuthenticator verifies ID tokens issued by an external provider.
type OIDCAuthenticator struct {
	verifier *oidc.IDTokenVerifier
	gen      *TokenGenerator
}

// NewOIDCAuthenticator wraps an existing verifier.
func NewOIDCAuthenticator(verifier *oidc.IDTokenVerifier) *OIDCAuthenticator {
	return &OIDCAuthenticator{verifier: verifier, gen: NewTokenGenerator()}
}

// DiscoverOIDC fetches the issuer's discovery document and builds an
// authenticator for clientID.
func DiscoverOIDC(ctx context.Context, issuer, clientID string) (*OIDCAuthenticator, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery for %s: %w", issuer, err)
	}
	return NewOIDCAuthenticator(provider.Verifier(&oidc.Config{ClientID: clientID})), nil
}

// Authenticate implements Authenticator for ID tokens.
func (a *OIDCAuthenticator) Authenticate(ctx context.Context, token string) (Principal, error) {
	if a.gen.IsSessionToken(token) {
		return Principal{}, ErrUnsupportedToken
	}

	idToken, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var claims OIDCClaims
	if err := idToken.Claims(&claims); err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	role, err := rbac.ParseRole(claims.Role)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return newPrincipal(idToken.Subject, claims.TenantID, role, "", time.Now())
}

var _ Authenticator = (*OIDCAuthenticator)(nil)
