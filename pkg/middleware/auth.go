package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/crmgate/pkg/auth"
	"github.com/platinummonkey/crmgate/pkg/httputil"
	"github.com/platinummonkey/crmgate/pkg/observability"
)

// AuthMiddleware verifies bearer tokens and attaches the Principal.
type AuthMiddleware struct {
	authn    auth.Authenticator
	tokens   *auth.TokenGenerator
	optional bool // If true, allow requests without auth
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authn auth.Authenticator, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		authn:    authn,
		tokens:   auth.NewTokenGenerator(),
		optional: optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		token, ok := bearerToken(authHeader)
		if !ok {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		principal, err := m.authn.Authenticate(r.Context(), token)
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).
				WithField("token_prefix", m.tokens.ExtractPrefix(token)).
				Info("Authentication failed")
			httputil.WriteUnauthorized(w, authFailureMessage(err))
			return
		}

		ctx := auth.WithPrincipal(r.Context(), principal)
		ctx = observability.WithUserID(ctx, principal.UserID())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken parses "Bearer <token>"; the scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func authFailureMessage(err error) string {
	if errors.Is(err, auth.ErrSessionExpired) {
		return "session expired"
	}
	return "invalid or expired token"
}
