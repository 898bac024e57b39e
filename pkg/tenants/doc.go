// Package tenants models CRM customer organizations and resolves the tenant
// for each request.
//
// # Tenant Model
//
// A tenant has a plan (starter, professional, enterprise), a lifecycle status
// (active, suspended, cancelled), a subscription status (trial, active,
// past_due, cancelled), a seat allowance and an immutable subdomain.
//
// Subdomains must match ^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$ and may not be one
// of the reserved words (www, api, app, admin, mail, ftp, localhost,
// staging, dev, test, demo).
//
// # Stores
//
//	MemoryStore  - tests and single-node development
//	SQLStore     - PostgreSQL via lib/pq (SQLite in tests)
//	CachedStore  - expiring LRU in front of any Store for per-request reads
//
// # Resolution
//
// Resolver.Resolve tries, in order:
//
//  1. the Host subdomain (three or more labels, first label not www, api,
//     app, admin or localhost)
//  2. the explicit tenant header
//  3. the authenticated session's tenant
//
// Not-found at any step falls through. A store failure stops resolution with
// a *TenantLookupFailedError; callers fail closed.
//
// # Lifecycle
//
// Lifecycle registers tenants on a 14-day trial and applies the payment and
// administrative transitions driven by billing webhooks and operators.
package tenants
