package rbac

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// Roles

// The set of roles a user can hold. A user has exactly one role at a time.
var (
	RoleAdmin    = newRole("admin")
	RoleManager  = newRole("manager")
	RoleSalesRep = newRole("sales_rep")
	RoleViewer   = newRole("viewer")
)

var roles = make(map[string]Role)

// Role is a closed enumeration. The zero value is not a valid role and holds
// no permissions.
type Role struct {
	name string
}

func newRole(name string) Role {
	r := Role{name}
	roles[name] = r
	return r
}

// String returns the wire name of the role.
func (r Role) String() string {
	return r.name
}

// IsZero reports whether r is the zero (invalid) role.
func (r Role) IsZero() bool {
	return r.name == ""
}

// MarshalText provides support for logging and JSON encoding.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.name), nil
}

// ParseRole parses a wire name into a Role.
func ParseRole(value string) (Role, error) {
	r, ok := roles[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		return Role{}, fmt.Errorf("%w: %q", ErrUnknownRole, value)
	}
	return r, nil
}

// MustParseRole is like ParseRole but panics on unknown names.
func MustParseRole(value string) Role {
	r, err := ParseRole(value)
	if err != nil {
		panic(err)
	}
	return r
}

// Roles returns all roles, most privileged first.
func Roles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleSalesRep, RoleViewer}
}

// =============================================================================
// Entities

// Tenant-scoped entity kinds that carry per-record permissions.
var (
	EntityUser        = newEntity("user")
	EntityLead        = newEntity("lead")
	EntityOpportunity = newEntity("opportunity")
	EntityAccount     = newEntity("account")
	EntityContact     = newEntity("contact")
	EntityActivity    = newEntity("activity")
)

var entities = make(map[string]Entity)

// Entity identifies a kind of tenant-scoped record.
type Entity struct {
	name string
}

func newEntity(name string) Entity {
	e := Entity{name}
	entities[name] = e
	return e
}

func (e Entity) String() string { return e.name }

// MarshalText provides support for logging and JSON encoding.
func (e Entity) MarshalText() ([]byte, error) {
	return []byte(e.name), nil
}

// ParseEntity parses an entity name.
func ParseEntity(value string) (Entity, error) {
	e, ok := entities[value]
	if !ok {
		return Entity{}, fmt.Errorf("rbac: unknown entity %q", value)
	}
	return e, nil
}

// crmEntities are the business records owned by individual users.
func crmEntities() []Entity {
	return []Entity{EntityLead, EntityOpportunity, EntityAccount, EntityContact, EntityActivity}
}

// =============================================================================
// Permissions

var permissions = make(map[string]Permission)

// Permission is a closed enumeration of fine-grained capabilities. Entity
// permissions without a qualifier apply to records the caller owns; the
// ":all" variants apply to every record in the tenant.
type Permission struct {
	name string
}

func newPermission(name string) Permission {
	p := Permission{name}
	permissions[name] = p
	return p
}

// The permission catalog.
var (
	UserCreate    = newPermission("user:create")
	UserRead      = newPermission("user:read")
	UserReadAll   = newPermission("user:read:all")
	UserUpdate    = newPermission("user:update")
	UserUpdateAll = newPermission("user:update:all")
	UserDelete    = newPermission("user:delete")
	UserDeleteAll = newPermission("user:delete:all")

	LeadCreate    = newPermission("lead:create")
	LeadRead      = newPermission("lead:read")
	LeadReadAll   = newPermission("lead:read:all")
	LeadUpdate    = newPermission("lead:update")
	LeadUpdateAll = newPermission("lead:update:all")
	LeadDelete    = newPermission("lead:delete")
	LeadDeleteAll = newPermission("lead:delete:all")

	OpportunityCreate    = newPermission("opportunity:create")
	OpportunityRead      = newPermission("opportunity:read")
	OpportunityReadAll   = newPermission("opportunity:read:all")
	OpportunityUpdate    = newPermission("opportunity:update")
	OpportunityUpdateAll = newPermission("opportunity:update:all")
	OpportunityDelete    = newPermission("opportunity:delete")
	OpportunityDeleteAll = newPermission("opportunity:delete:all")

	AccountCreate    = newPermission("account:create")
	AccountRead      = newPermission("account:read")
	AccountReadAll   = newPermission("account:read:all")
	AccountUpdate    = newPermission("account:update")
	AccountUpdateAll = newPermission("account:update:all")
	AccountDelete    = newPermission("account:delete")
	AccountDeleteAll = newPermission("account:delete:all")

	ContactCreate    = newPermission("contact:create")
	ContactRead      = newPermission("contact:read")
	ContactReadAll   = newPermission("contact:read:all")
	ContactUpdate    = newPermission("contact:update")
	ContactUpdateAll = newPermission("contact:update:all")
	ContactDelete    = newPermission("contact:delete")
	ContactDeleteAll = newPermission("contact:delete:all")

	ActivityCreate    = newPermission("activity:create")
	ActivityRead      = newPermission("activity:read")
	ActivityReadAll   = newPermission("activity:read:all")
	ActivityUpdate    = newPermission("activity:update")
	ActivityUpdateAll = newPermission("activity:update:all")
	ActivityDelete    = newPermission("activity:delete")
	ActivityDeleteAll = newPermission("activity:delete:all")

	SettingsView      = newPermission("settings:view")
	SettingsUpdate    = newPermission("settings:update")
	BillingManage     = newPermission("billing:manage")
	ReportingView     = newPermission("reporting:view")
	ReportingExport   = newPermission("reporting:export")
	AuditView         = newPermission("audit:view")
	WorkflowManage    = newPermission("workflow:manage")
	IntegrationManage = newPermission("integration:manage")
	DataImport        = newPermission("data:import")
	DataExport        = newPermission("data:export")
)

// String returns the permission token, e.g. "lead:update:all".
func (p Permission) String() string {
	return p.name
}

// IsZero reports whether p is the zero (invalid) permission.
func (p Permission) IsZero() bool {
	return p.name == ""
}

// IsRead reports whether p belongs to the read category.
func (p Permission) IsRead() bool {
	return strings.HasSuffix(p.name, ":read") || strings.HasSuffix(p.name, ":read:all")
}

// IsTenantWide reports whether p is an ":all" scoped permission.
func (p Permission) IsTenantWide() bool {
	return strings.HasSuffix(p.name, ":all")
}

// MarshalText provides support for logging and JSON encoding.
func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.name), nil
}

// ParsePermission looks a token up in the catalog.
func ParsePermission(value string) (Permission, error) {
	p, ok := permissions[value]
	if !ok {
		return Permission{}, fmt.Errorf("%w: %q", ErrUnknownPermission, value)
	}
	return p, nil
}

// Catalog returns every known permission, sorted.
func Catalog() []Permission {
	out := make([]Permission, 0, len(permissions))
	for _, p := range permissions {
		out = append(out, p)
	}
	sortPermissions(out)
	return out
}

// EntityPermissions groups the seven permissions defined for an entity.
type EntityPermissions struct {
	Create    Permission
	Read      Permission
	ReadAll   Permission
	Update    Permission
	UpdateAll Permission
	Delete    Permission
	DeleteAll Permission
}

var entityPermissions = map[Entity]EntityPermissions{
	EntityUser:        {UserCreate, UserRead, UserReadAll, UserUpdate, UserUpdateAll, UserDelete, UserDeleteAll},
	EntityLead:        {LeadCreate, LeadRead, LeadReadAll, LeadUpdate, LeadUpdateAll, LeadDelete, LeadDeleteAll},
	EntityOpportunity: {OpportunityCreate, OpportunityRead, OpportunityReadAll, OpportunityUpdate, OpportunityUpdateAll, OpportunityDelete, OpportunityDeleteAll},
	EntityAccount:     {AccountCreate, AccountRead, AccountReadAll, AccountUpdate, AccountUpdateAll, AccountDelete, AccountDeleteAll},
	EntityContact:     {ContactCreate, ContactRead, ContactReadAll, ContactUpdate, ContactUpdateAll, ContactDelete, ContactDeleteAll},
	EntityActivity:    {ActivityCreate, ActivityRead, ActivityReadAll, ActivityUpdate, ActivityUpdateAll, ActivityDelete, ActivityDeleteAll},
}

// PermissionsOf returns the permission group for an entity. The zero Entity
// yields zero permissions, which no role holds.
func PermissionsOf(e Entity) EntityPermissions {
	return entityPermissions[e]
}

func sortPermissions(ps []Permission) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].name < ps[j].name })
}
