// Package api mounts the CRM policy core on an HTTP router.
//
// Routes:
//
//	POST   /api/v1/tenants      public signup, starts a trial
//	POST   /webhooks/stripe     billing events (signature verified)
//	PATCH  /api/v1/tenant/plan  billing:manage, reachable while lapsed, downgrades only
//	GET    /api/v1/me           caller, role, permissions, tenant
//	GET    /api/v1/usage        reporting:view, current period usage
//	POST   /api/v1/users        user:create, seat limited
//	DELETE /api/v1/users/{id}   user:delete:all
//	GET    /api/v1/audit        audit:view, the tenant's own audit trail
//
// Plan upgrades are refused with 402 billing_required; they take effect when
// the Stripe webhook confirms the new subscription.
//
// /api/v1/audit is mounted only when Deps.Audit is set. The audit middleware
// then records mutations and refusals on both tenant-scoped subrouters.
//
// Everything under /api/v1 except signup runs the standard middleware order
// (see pkg/middleware) and counts one api_calls unit per successful request.
//
//	srv := api.NewServer(api.Config{SeatHardCap: true}, api.Deps{
//		Authenticator: authn,
//		Tenants:       store,
//		Resolver:      resolver,
//		Lifecycle:     lifecycle,
//		Meter:         meter,
//	})
//	http.ListenAndServe(":8080", srv)
package api
