package rbac

// Record describes the ownership facts of a tenant-scoped record. Callers
// fetch the record first and pass its owner and tenant references here.
type Record struct {
	Entity   Entity
	TenantID string
	OwnerID  string
}

// Guard applies ownership-aware authorization to records of one tenant.
type Guard struct {
	checker  *Checker
	tenantID string
}

// NewGuard binds a checker to the caller's tenant.
func NewGuard(checker *Checker, tenantID string) *Guard {
	return &Guard{checker: checker, tenantID: tenantID}
}

// Checker returns the underlying permission checker.
func (g *Guard) Checker() *Checker { return g.checker }

// AuthorizeCreate checks the entity's create permission for a new record in
// the caller's tenant.
func (g *Guard) AuthorizeCreate(rec Record) error {
	ep := PermissionsOf(rec.Entity)
	if err := g.sameTenant(rec, ep.Create); err != nil {
		return err
	}
	return g.checker.AuthorizePermission(ep.Create)
}

// AuthorizeRead allows tenant-wide readers, and owners holding the
// own-record read permission.
func (g *Guard) AuthorizeRead(rec Record) error {
	ep := PermissionsOf(rec.Entity)
	if err := g.sameTenant(rec, ep.Read, ep.ReadAll); err != nil {
		return err
	}
	if g.checker.CanAccessResource(rec.OwnerID, ep.ReadAll, false) {
		return nil
	}
	return g.checker.AuthorizeAccess(rec.OwnerID, ep.Read, true)
}

// AuthorizeUpdate gates a mutation with the entity's update pair.
func (g *Guard) AuthorizeUpdate(rec Record) error {
	ep := PermissionsOf(rec.Entity)
	if err := g.sameTenant(rec, ep.Update, ep.UpdateAll); err != nil {
		return err
	}
	return g.checker.AuthorizeModify(rec.OwnerID, ep.Update, ep.UpdateAll)
}

// AuthorizeDelete gates a deletion with the entity's delete pair.
func (g *Guard) AuthorizeDelete(rec Record) error {
	ep := PermissionsOf(rec.Entity)
	if err := g.sameTenant(rec, ep.Delete, ep.DeleteAll); err != nil {
		return err
	}
	return g.checker.AuthorizeModify(rec.OwnerID, ep.Delete, ep.DeleteAll)
}

// sameTenant denies any record outside the caller's tenant, whatever the role.
func (g *Guard) sameTenant(rec Record, ps ...Permission) error {
	if g.tenantID == "" || rec.TenantID != g.tenantID {
		return g.checker.deny(ReasonCrossTenant, ps...)
	}
	return nil
}
