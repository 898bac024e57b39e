package tenants

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Plan represents a subscription plan tier
type Plan string

const (
	PlanStarter      Plan = "starter"
	PlanProfessional Plan = "professional"
	PlanEnterprise   Plan = "enterprise"
)

// Plans returns all plans, cheapest first.
func Plans() []Plan {
	return []Plan{PlanStarter, PlanProfessional, PlanEnterprise}
}

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	switch p {
	case PlanStarter, PlanProfessional, PlanEnterprise:
		return true
	}
	return false
}

// Rank orders plans cheapest first. Unknown plans rank -1.
func (p Plan) Rank() int {
	for i, q := range Plans() {
		if q == p {
			return i
		}
	}
	return -1
}

// ParsePlan parses a plan name.
func ParsePlan(s string) (Plan, error) {
	p := Plan(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPlan, s)
	}
	return p, nil
}

// Status is the tenant lifecycle status. Suspension is an administrative
// override independent of the subscription.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
)

// SubscriptionStatus tracks payment state.
type SubscriptionStatus string

const (
	SubscriptionTrial     SubscriptionStatus = "trial"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// TrialPeriod is the length of the trial granted at registration.
const TrialPeriod = 14 * 24 * time.Hour

// DefaultSeats is the seat allowance a new tenant gets for its plan.
var DefaultSeats = map[Plan]int{
	PlanStarter:      5,
	PlanProfessional: 25,
	PlanEnterprise:   250,
}

// Tenant is one customer organization.
type Tenant struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Subdomain          string             `json:"subdomain"`
	Plan               Plan               `json:"plan"`
	Status             Status             `json:"status"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	MaxUsers           int                `json:"max_users"`
	TrialEndsAt        time.Time          `json:"trial_ends_at"`
	StripeCustomerID   string             `json:"stripe_customer_id,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// IsActive reports whether the lifecycle status is active.
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}

// TrialExpired reports whether t is on a trial that ended at or before now.
func (t *Tenant) TrialExpired(now time.Time) bool {
	return t.SubscriptionStatus == SubscriptionTrial && !now.Before(t.TrialEndsAt)
}

// Clone returns a copy safe to hand to callers.
func (t *Tenant) Clone() *Tenant {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Patch is a partial update. Nil fields are left unchanged. The subdomain
// cannot be patched: it is immutable once claimed.
type Patch struct {
	Name               *string
	Plan               *Plan
	Status             *Status
	SubscriptionStatus *SubscriptionStatus
	MaxUsers           *int
	TrialEndsAt        *time.Time
	StripeCustomerID   *string
}

// Apply writes the non-nil fields of p onto t.
func (p Patch) Apply(t *Tenant) {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Plan != nil {
		t.Plan = *p.Plan
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.SubscriptionStatus != nil {
		t.SubscriptionStatus = *p.SubscriptionStatus
	}
	if p.MaxUsers != nil {
		t.MaxUsers = *p.MaxUsers
	}
	if p.TrialEndsAt != nil {
		t.TrialEndsAt = *p.TrialEndsAt
	}
	if p.StripeCustomerID != nil {
		t.StripeCustomerID = *p.StripeCustomerID
	}
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

// Store is the tenant persistence boundary.
type Store interface {
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	GetTenantBySubdomain(ctx context.Context, subdomain string) (*Tenant, error)
	GetTenantUserCount(ctx context.Context, tenantID string) (int, error)
	UpdateTenant(ctx context.Context, id string, patch Patch) (*Tenant, error)

	CreateTenant(ctx context.Context, t *Tenant) error
	AddUser(ctx context.Context, tenantID, userID string) error
	RemoveUser(ctx context.Context, tenantID, userID string) error
	// DeleteTenant removes a tenant and its memberships, freeing the
	// subdomain.
	DeleteTenant(ctx context.Context, id string) error
	// ListExpiredTrials returns tenants still on trial whose trial ended
	// before the given time.
	ListExpiredTrials(ctx context.Context, before time.Time) ([]*Tenant, error)
}

var (
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrSubdomainTaken    = errors.New("subdomain already taken")
	ErrInvalidSubdomain  = errors.New("invalid subdomain")
	ErrReservedSubdomain = errors.New("subdomain is reserved")
	ErrInvalidPlan       = errors.New("invalid plan")
	ErrInvalidName       = errors.New("tenant name is required")
	ErrUserExists        = errors.New("user already belongs to tenant")
	ErrUserNotFound      = errors.New("user not found in tenant")
)
