// Package middleware wires authentication, tenant resolution, tenant gates,
// usage metering and permission checks into net/http handlers.
//
// # CRITICAL: Middleware Ordering Requirements
//
// Each layer reads what the previous one put in the request context.
// Running them out of order makes later layers see an anonymous caller or a
// missing tenant, which they deny.
//
// REQUIRED ORDERING (outer to inner):
//  1. AuthMiddleware - verifies the bearer token and sets the Principal
//  2. TenantContextMiddleware - resolves the tenant (subdomain, header, then
//     the principal's tenant) and sets it, or the lookup failure
//  3. Policy.RequireGates - tenant, membership, subscription, plan and seat gates
//  4. UsageMiddleware.Meter - usage limit check; records after a 2xx/3xx response
//  5. Policy.RequirePermission - RBAC check for the route
//  6. Handler
//
// Example (correct):
//
//	api := router.PathPrefix("/api/v1").Subrouter()
//	api.Use(authMiddleware.Handler)
//	api.Use(tenantMiddleware.Handler)
//	api.Use(policy.RequireGates(gate.Chain{gate.RequireTenant(), gate.RequireMembership(), gate.RequireActiveSubscription()}))
//	api.Use(usageMiddleware.Meter(usage.APICalls))
//	api.Handle("/usage", policy.RequirePermission(rbac.ReportingView)(usageHandler))
//
// Denials are expected outcomes: they are logged at Info and written with
// httputil.WriteDenial. Store failures while metering are logged at Warn
// and the request proceeds.
package middleware
