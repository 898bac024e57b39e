package gate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/crmgate/pkg/tenants"
)

// TenantRequiredError means no tenant could be resolved for the request.
type TenantRequiredError struct{}

func (e *TenantRequiredError) Error() string                 { return "tenant context required" }
func (e *TenantRequiredError) DenialCode() string            { return "tenant_required" }
func (e *TenantRequiredError) DenialDetails() map[string]any { return nil }

// TenantInactiveError means the tenant is suspended or cancelled.
type TenantInactiveError struct {
	Status tenants.Status
}

func (e *TenantInactiveError) Error() string {
	return fmt.Sprintf("tenant is %s", e.Status)
}
func (e *TenantInactiveError) DenialCode() string { return "tenant_inactive" }
func (e *TenantInactiveError) DenialDetails() map[string]any {
	return map[string]any{"status": string(e.Status)}
}

// TenantMismatchError means the principal belongs to a different tenant than
// the one the request resolved to.
type TenantMismatchError struct {
	TenantID string
}

func (e *TenantMismatchError) Error() string {
	return fmt.Sprintf("principal is not a member of tenant %s", e.TenantID)
}
func (e *TenantMismatchError) DenialCode() string { return "tenant_mismatch" }
func (e *TenantMismatchError) DenialDetails() map[string]any {
	return map[string]any{"tenant_id": e.TenantID}
}

// SubscriptionInactiveError is a payment-required condition.
type SubscriptionInactiveError struct {
	Status tenants.SubscriptionStatus
}

func (e *SubscriptionInactiveError) Error() string {
	return fmt.Sprintf("subscription is %s", e.Status)
}
func (e *SubscriptionInactiveError) DenialCode() string { return "subscription_inactive" }
func (e *SubscriptionInactiveError) DenialDetails() map[string]any {
	return map[string]any{"subscription_status": string(e.Status)}
}

// TrialExpiredError is the payment-required condition for a lapsed trial.
type TrialExpiredError struct {
	ExpiredAt time.Time
}

func (e *TrialExpiredError) Error() string {
	return fmt.Sprintf("trial expired at %s", e.ExpiredAt.Format(time.RFC3339))
}
func (e *TrialExpiredError) DenialCode() string { return "trial_expired" }
func (e *TrialExpiredError) DenialDetails() map[string]any {
	return map[string]any{"trial_ends_at": e.ExpiredAt.UTC().Format(time.RFC3339)}
}

// PlanUpgradeRequiredError means the feature needs one of Allowed.
type PlanUpgradeRequiredError struct {
	Current tenants.Plan
	Allowed []tenants.Plan
}

func (e *PlanUpgradeRequiredError) Error() string {
	return fmt.Sprintf("plan %s does not include this feature; requires %s", e.Current, strings.Join(e.allowed(), " or "))
}
func (e *PlanUpgradeRequiredError) DenialCode() string { return "plan_upgrade_required" }
func (e *PlanUpgradeRequiredError) DenialDetails() map[string]any {
	return map[string]any{
		"current_plan":  string(e.Current),
		"allowed_plans": e.allowed(),
	}
}

func (e *PlanUpgradeRequiredError) allowed() []string {
	out := make([]string, len(e.Allowed))
	for i, p := range e.Allowed {
		out[i] = string(p)
	}
	return out
}

// BillingRequiredError means a plan upgrade was requested outside billing.
// Upgrades apply when the payment provider confirms the new subscription.
type BillingRequiredError struct {
	Current   tenants.Plan
	Requested tenants.Plan
}

func (e *BillingRequiredError) Error() string {
	return fmt.Sprintf("upgrading from %s to %s requires checkout", e.Current, e.Requested)
}
func (e *BillingRequiredError) DenialCode() string { return "billing_required" }
func (e *BillingRequiredError) DenialDetails() map[string]any {
	return map[string]any{
		"current_plan":   string(e.Current),
		"requested_plan": string(e.Requested),
	}
}

// SeatLimitReachedError means every seat is taken.
type SeatLimitReachedError struct {
	Current int
	Max     int
}

func (e *SeatLimitReachedError) Error() string {
	return fmt.Sprintf("seat limit reached (%d of %d)", e.Current, e.Max)
}
func (e *SeatLimitReachedError) DenialCode() string { return "seat_limit_reached" }
func (e *SeatLimitReachedError) DenialDetails() map[string]any {
	return map[string]any{"current_seats": e.Current, "max_seats": e.Max}
}

// IsPaymentRequired reports whether err is a subscription or trial denial.
func IsPaymentRequired(err error) bool {
	var sub *SubscriptionInactiveError
	var trial *TrialExpiredError
	return errors.As(err, &sub) || errors.As(err, &trial)
}
