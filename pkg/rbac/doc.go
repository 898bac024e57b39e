// Package rbac provides the role-based access control model for the CRM.
//
// # Overview
//
// Access is decided from two inputs: the caller's role, which fixes a set of
// permissions, and the owner of the record being touched. The package keeps
// those two concerns apart. Permission checks are pure lookups against a
// table built once at startup; ownership checks need the specific record and
// are performed after the caller has fetched it.
//
// # Roles
//
//	RoleAdmin     - every permission in the catalog
//	RoleManager   - sales rep permissions plus tenant-wide read/update/delete
//	RoleSalesRep  - create, read and update on records they own
//	RoleViewer    - read-only
//
// Role, Permission and Entity are closed types. Values exist only as the
// package variables declared here, so a misspelled permission is a compile
// error rather than a lookup that silently returns false.
//
// # Permissions
//
// Entity permissions come in own-record and tenant-wide pairs:
//
//	lead:read        lead:read:all
//	lead:update      lead:update:all
//	lead:delete      lead:delete:all
//
// Tenant settings, billing, reporting and system actions use bare verbs such
// as billing:manage or audit:view.
//
// # Checking Permissions
//
//	checker := rbac.NewChecker(rbac.RoleSalesRep, "user-1")
//	checker.HasPermission(rbac.LeadCreate)                                  // true
//	checker.CanModifyResource(lead.OwnerID, rbac.LeadUpdate, rbac.LeadUpdateAll)
//
// Production code should obtain a Checker from an authenticated principal
// (see package auth) and never build one from request data.
//
// # Record Guards
//
// Guard combines the checker with the caller's tenant and the entity's
// permission pair:
//
//	guard := rbac.NewGuard(checker, tenantID)
//	if err := guard.AuthorizeUpdate(rbac.Record{
//		Entity:   rbac.EntityLead,
//		TenantID: lead.TenantID,
//		OwnerID:  lead.OwnerID,
//	}); err != nil {
//		// err is a *PermissionDeniedError
//	}
//
// A record from another tenant is always denied with reason cross_tenant.
//
// # Related Packages
//
//   - pkg/auth: Principal carries the verified role and builds the Checker
//   - pkg/middleware: RequirePermission and friends for HTTP routes
//   - pkg/httputil: renders PermissionDeniedError as a 403 response
package rbac
