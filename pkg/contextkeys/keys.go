// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/crmgate/pkg/contextkeys"
//	ctx = context.WithValue(ctx, contextkeys.TenantKey, tenant)
//	tenant, _ := ctx.Value(contextkeys.TenantKey).(*tenants.Tenant)
//
// Prefer the typed accessors in the owning package (auth.PrincipalFromContext,
// tenants.FromContext) over reading keys directly.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains auth.Principal
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: gates, permission middleware, handlers
	// Type: auth.Principal
	PrincipalKey Key = "principal"

	// TenantKey contains *tenants.Tenant
	// Set by: middleware.TenantContextMiddleware (pkg/middleware/tenant.go)
	// Required by: gate chain, usage middleware
	// Type: *tenants.Tenant
	TenantKey Key = "tenant"

	// TenantLookupErrorKey contains the error returned by the resolver
	// Set by: middleware.TenantContextMiddleware when the tenant store fails
	// Used by: gate.RequireTenant to fail closed with tenant_lookup_failed
	// Type: error
	TenantLookupErrorKey Key = "tenant_lookup_error"

	// RequestIDKey contains request ID string (UUID)
	// Set by: middleware.RequestIDMiddleware
	// Used by: Logger, distributed tracing
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains user ID string
	// Set by: Auth middleware after user authentication
	// Used by: Logger
	// Type: string
	UserIDKey Key = "user_id"

	// TenantIDKey contains the resolved tenant ID string
	// Set by: middleware.TenantContextMiddleware
	// Used by: Logger
	// Type: string
	TenantIDKey Key = "tenant_id"

	// LoggerKey contains *observability.Logger
	// Set by: Observability middleware
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithTenantID adds tenant ID to the context
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

// GetTenantID retrieves tenant ID from context
func GetTenantID(ctx context.Context) string {
	if tenantID, ok := ctx.Value(TenantIDKey).(string); ok {
		return tenantID
	}
	return ""
}
