// Package auth turns request credentials into a verified Principal.
//
// # Overview
//
// Every policy decision downstream (tenant gates, permission checks, record
// guards) trusts exactly one source of identity: the Principal produced here.
// A Principal carries the (role, user, tenant) triple with unexported fields,
// so no handler can assemble one from a request body or query string.
//
// # Authenticators
//
// Two authenticators are provided:
//
//	SessionManager     - opaque crm_ tokens backed by a SessionStore
//	OIDCAuthenticator  - ID tokens from an external identity provider
//
// Authenticators chains them. Each one declines credentials it does not
// recognize with ErrUnsupportedToken:
//
//	authn := auth.Authenticators{sessions, oidcAuth}
//	principal, err := authn.Authenticate(ctx, bearer)
//
// # Session Tokens
//
// Format: crm_<base64url(32 random bytes)>. The token is returned once from
// Issue; stores only ever see its SHA256 hash.
//
//	sessions := auth.NewSessionManager(auth.NewMemorySessionStore(10000, ttl), ttl)
//	token, session, err := sessions.Issue(ctx, userID, tenantID, rbac.RoleSalesRep)
//
// Session stores:
//
//	MemorySessionStore - expiring LRU (single instance, tests)
//	RedisSessionStore  - JSON values with TTL, shared across instances
//
// # OIDC Claims
//
// ID tokens must carry sub (user id), tenant_id and crm_role. Tokens missing
// any of them are rejected with ErrIncompleteSubject.
//
// # Request Context
//
//	ctx = auth.WithPrincipal(ctx, principal)
//	principal, ok := auth.PrincipalFromContext(ctx)
//	checker := principal.Checker()
//
// # Related Packages
//
//   - pkg/rbac: permission table and checker built from the principal
//   - pkg/middleware: AuthMiddleware extracts bearer tokens
//   - pkg/auth/authtest: principals for tests
package auth
