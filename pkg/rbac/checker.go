package rbac

// Checker answers permission questions for one principal. It is constructed
// from a verified (role, userID) pair and never from client input.
type Checker struct {
	role   Role
	userID string
	perms  PermissionSet
}

// NewChecker creates a checker for the given role and user.
func NewChecker(role Role, userID string) *Checker {
	return &Checker{
		role:   role,
		userID: userID,
		perms:  PermissionsFor(role),
	}
}

// Role returns the role the checker evaluates.
func (c *Checker) Role() Role { return c.role }

// UserID returns the caller's user id.
func (c *Checker) UserID() string { return c.userID }

// Permissions returns the caller's effective permissions.
func (c *Checker) Permissions() PermissionSet { return c.perms }

// HasPermission reports whether the role grants p.
func (c *Checker) HasPermission(p Permission) bool {
	return c.perms.Has(p)
}

// HasAnyPermission reports whether at least one of ps is granted. It is
// false for an empty list.
func (c *Checker) HasAnyPermission(ps ...Permission) bool {
	for _, p := range ps {
		if c.HasPermission(p) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every one of ps is granted. It is true
// for an empty list.
func (c *Checker) HasAllPermissions(ps ...Permission) bool {
	for _, p := range ps {
		if !c.HasPermission(p) {
			return false
		}
	}
	return true
}

// CanAccessResource is false whenever required is not granted. When
// requireOwnership is set the caller must also own the record.
func (c *Checker) CanAccessResource(ownerID string, required Permission, requireOwnership bool) bool {
	if !c.HasPermission(required) {
		return false
	}
	if requireOwnership {
		return c.owns(ownerID)
	}
	return true
}

// CanModifyResource is the decision for every mutating operation on a
// tenant-scoped record: updateAll grants it outright, updateOwn grants it
// only to the owner.
func (c *Checker) CanModifyResource(ownerID string, updateOwn, updateAll Permission) bool {
	if c.HasPermission(updateAll) {
		return true
	}
	return c.HasPermission(updateOwn) && c.owns(ownerID)
}

// AuthorizePermission returns a *PermissionDeniedError unless p is granted.
func (c *Checker) AuthorizePermission(p Permission) error {
	if c.HasPermission(p) {
		return nil
	}
	return c.deny(ReasonMissingPermission, p)
}

// AuthorizeAny returns a *PermissionDeniedError unless one of ps is granted.
func (c *Checker) AuthorizeAny(ps ...Permission) error {
	if c.HasAnyPermission(ps...) {
		return nil
	}
	return c.deny(ReasonMissingPermission, ps...)
}

// AuthorizeAll returns a *PermissionDeniedError naming the missing permissions.
func (c *Checker) AuthorizeAll(ps ...Permission) error {
	var missing []Permission
	for _, p := range ps {
		if !c.HasPermission(p) {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return c.deny(ReasonMissingPermission, missing...)
}

// AuthorizeAccess is the error-returning form of CanAccessResource.
func (c *Checker) AuthorizeAccess(ownerID string, required Permission, requireOwnership bool) error {
	if !c.HasPermission(required) {
		return c.deny(ReasonMissingPermission, required)
	}
	if requireOwnership && !c.owns(ownerID) {
		return c.deny(ReasonNotOwner, required)
	}
	return nil
}

// AuthorizeModify is the error-returning form of CanModifyResource.
func (c *Checker) AuthorizeModify(ownerID string, updateOwn, updateAll Permission) error {
	if c.CanModifyResource(ownerID, updateOwn, updateAll) {
		return nil
	}
	if c.HasPermission(updateOwn) {
		return c.deny(ReasonNotOwner, updateOwn, updateAll)
	}
	return c.deny(ReasonMissingPermission, updateOwn, updateAll)
}

// AuthorizeRole returns a denial unless the checker's role is one of roles.
func (c *Checker) AuthorizeRole(roles ...Role) error {
	for _, r := range roles {
		if r == c.role {
			return nil
		}
	}
	return &PermissionDeniedError{Role: c.role, AllowedRoles: roles, Reason: ReasonRoleNotAllowed}
}

// owns compares ids. An empty id never matches so a record with no owner
// cannot be claimed by an unidentified caller.
func (c *Checker) owns(ownerID string) bool {
	return c.userID != "" && ownerID == c.userID
}

func (c *Checker) deny(reason string, ps ...Permission) *PermissionDeniedError {
	return &PermissionDeniedError{Role: c.role, Permissions: ps, Reason: reason}
}
