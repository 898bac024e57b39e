package rbac

// PermissionSet is an immutable set of permissions.
type PermissionSet struct {
	m map[Permission]struct{}
}

// NewPermissionSet builds a set from the given permissions. Zero permissions
// are dropped.
func NewPermissionSet(ps ...Permission) PermissionSet {
	m := make(map[Permission]struct{}, len(ps))
	for _, p := range ps {
		if p.IsZero() {
			continue
		}
		m[p] = struct{}{}
	}
	return PermissionSet{m: m}
}

// Has reports membership.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s.m[p]
	return ok
}

// Len returns the number of permissions in the set.
func (s PermissionSet) Len() int {
	return len(s.m)
}

// Slice returns the members sorted by token.
func (s PermissionSet) Slice() []Permission {
	out := make([]Permission, 0, len(s.m))
	for p := range s.m {
		out = append(out, p)
	}
	sortPermissions(out)
	return out
}

// Strings returns the sorted member tokens.
func (s PermissionSet) Strings() []string {
	ps := s.Slice()
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.String()
	}
	return out
}

// IsSubsetOf reports whether every member of s is in other.
func (s PermissionSet) IsSubsetOf(other PermissionSet) bool {
	for p := range s.m {
		if !other.Has(p) {
			return false
		}
	}
	return true
}

// union returns a new set holding the members of s and ps.
func (s PermissionSet) union(ps ...Permission) PermissionSet {
	all := make([]Permission, 0, len(s.m)+len(ps))
	for p := range s.m {
		all = append(all, p)
	}
	return NewPermissionSet(append(all, ps...)...)
}

// rolePermissions is built once at package initialization and never mutated.
var rolePermissions = buildRolePermissions()

func buildRolePermissions() map[Role]PermissionSet {
	viewer := []Permission{UserRead}
	salesRep := []Permission{UserRead, UserUpdate, ReportingView}
	var managerExtra []Permission

	for _, e := range crmEntities() {
		ep := PermissionsOf(e)
		viewer = append(viewer, ep.Read, ep.ReadAll)
		salesRep = append(salesRep, ep.Create, ep.Read, ep.Update)
		managerExtra = append(managerExtra, ep.ReadAll, ep.UpdateAll, ep.Delete, ep.DeleteAll)
	}
	managerExtra = append(managerExtra, UserReadAll, ReportingExport, DataImport, DataExport)

	salesRepSet := NewPermissionSet(salesRep...)
	managerSet := salesRepSet.union(managerExtra...)

	return map[Role]PermissionSet{
		RoleAdmin:    NewPermissionSet(Catalog()...),
		RoleManager:  managerSet,
		RoleSalesRep: salesRepSet,
		RoleViewer:   NewPermissionSet(viewer...),
	}
}

// PermissionsFor returns the permissions granted to role. Unknown roles,
// including the zero Role, get the empty set.
func PermissionsFor(role Role) PermissionSet {
	s, ok := rolePermissions[role]
	if !ok {
		return PermissionSet{}
	}
	return s
}
