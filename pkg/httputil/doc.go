// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteCreated(w, resource)
//	httputil.WriteBadRequest(w, "Invalid input")
//	httputil.WriteUnauthorized(w, "Token expired")
//
// # Denials
//
// Policy outcomes from pkg/rbac, pkg/tenants, pkg/gate and pkg/usage all
// implement Denial. WriteDenial maps the code to a status and writes
//
//	{"error": "...", "code": "plan_upgrade_required", "details": {...}}
//
//	400  tenant_required
//	402  subscription_inactive, trial_expired
//	403  tenant_inactive, tenant_mismatch, plan_upgrade_required,
//	     seat_limit_reached, permission_denied
//	429  usage_limit_exceeded
//	503  tenant_lookup_failed
//
// # Request Parsing
//
//	var req AddUserRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
// # Related Packages
//
//   - pkg/middleware: authentication, tenant and policy middleware
package httputil
