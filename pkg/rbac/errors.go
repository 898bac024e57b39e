package rbac

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownRole       = errors.New("rbac: unknown role")
	ErrUnknownPermission = errors.New("rbac: unknown permission")
)

// Denial reasons.
const (
	ReasonMissingPermission = "missing_permission"
	ReasonNotOwner          = "not_owner"
	ReasonCrossTenant       = "cross_tenant"
	ReasonRoleNotAllowed    = "role_not_allowed"
)

// PermissionDeniedError is the modeled outcome of a failed authorization.
// It is an expected result, not a fault.
type PermissionDeniedError struct {
	Role         Role
	Permissions  []Permission
	AllowedRoles []Role
	Reason       string
}

func (e *PermissionDeniedError) Error() string {
	if len(e.Permissions) == 0 && len(e.AllowedRoles) > 0 {
		return fmt.Sprintf("permission denied (%s): requires role %s", e.Reason, strings.Join(roleNames(e.AllowedRoles), " or "))
	}
	names := make([]string, len(e.Permissions))
	for i, p := range e.Permissions {
		names[i] = p.String()
	}
	return fmt.Sprintf("permission denied (%s): requires %s", e.Reason, strings.Join(names, " or "))
}

// DenialCode returns the stable machine-readable code for the denial.
func (e *PermissionDeniedError) DenialCode() string {
	return "permission_denied"
}

// DenialDetails returns structured fields describing the denial.
func (e *PermissionDeniedError) DenialDetails() map[string]any {
	names := make([]string, len(e.Permissions))
	for i, p := range e.Permissions {
		names[i] = p.String()
	}
	details := map[string]any{
		"required": names,
		"reason":   e.Reason,
	}
	if len(e.AllowedRoles) > 0 {
		details["allowed_roles"] = roleNames(e.AllowedRoles)
	}
	return details
}

func roleNames(roles []Role) []string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.String()
	}
	return names
}

// IsPermissionDenied reports whether err is a permission denial.
func IsPermissionDenied(err error) bool {
	var e *PermissionDeniedError
	return errors.As(err, &e)
}
