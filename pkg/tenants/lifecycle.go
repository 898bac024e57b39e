package tenants

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/crmgate/pkg/observability"
)

// ErrInvalidTransition is returned when a status change does not apply to
// the tenant's current state.
var ErrInvalidTransition = errors.New("invalid tenant status transition")

// RegisterRequest is the input to Register.
type RegisterRequest struct {
	Name      string `json:"name"`
	Subdomain string `json:"subdomain"`
	Plan      Plan   `json:"plan"`
	// OwnerUserID, if set, takes the first seat.
	OwnerUserID string `json:"owner_user_id,omitempty"`
}

// LifecycleObserver is told about every applied transition.
type LifecycleObserver interface {
	LifecycleEvent(ctx context.Context, event, tenantID string)
}

// Lifecycle drives tenant registration and status transitions. Payment
// transitions are triggered by billing webhooks; suspension is an
// administrative override.
type Lifecycle struct {
	store     Store
	logger    *observability.Logger
	observers []LifecycleObserver
	now       func() time.Time
}

// NewLifecycle creates a lifecycle manager over store.
func NewLifecycle(store Store, logger *observability.Logger) *Lifecycle {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Lifecycle{store: store, logger: logger, now: time.Now}
}

// WithClock overrides the time source. Used by tests.
func (l *Lifecycle) WithClock(now func() time.Time) *Lifecycle {
	l.now = now
	return l
}

// WithObserver adds a transition observer.
func (l *Lifecycle) WithObserver(o LifecycleObserver) *Lifecycle {
	l.observers = append(l.observers, o)
	return l
}

// Register creates a tenant on a trial of TrialPeriod.
func (l *Lifecycle) Register(ctx context.Context, req RegisterRequest) (*Tenant, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrInvalidName
	}
	subdomain := strings.TrimSpace(req.Subdomain)
	if err := ValidateSubdomain(subdomain); err != nil {
		return nil, err
	}
	plan := req.Plan
	if plan == "" {
		plan = PlanStarter
	}
	if !plan.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlan, plan)
	}

	now := l.now().UTC()
	t := &Tenant{
		ID:                 uuid.NewString(),
		Name:               name,
		Subdomain:          subdomain,
		Plan:               plan,
		Status:             StatusActive,
		SubscriptionStatus: SubscriptionTrial,
		MaxUsers:           DefaultSeats[plan],
		TrialEndsAt:        now.Add(TrialPeriod),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := l.store.CreateTenant(ctx, t); err != nil {
		return nil, err
	}
	if req.OwnerUserID != "" {
		if err := l.store.AddUser(ctx, t.ID, req.OwnerUserID); err != nil {
			if delErr := l.store.DeleteTenant(ctx, t.ID); delErr != nil {
				l.logger.WithError(delErr).WithField("tenant_id", t.ID).Error("failed to remove tenant after owner insert failed")
			}
			return nil, fmt.Errorf("add owner: %w", err)
		}
	}

	l.logger.WithFields(map[string]interface{}{
		"tenant_id": t.ID,
		"subdomain": t.Subdomain,
		"plan":      t.Plan,
	}).Info("tenant registered")
	l.observe(ctx, "tenant registered", t.ID)
	return t, nil
}

// ActivateSubscription records a successful payment. A tenant cancelled for
// non-payment becomes active again; a suspended tenant stays suspended.
func (l *Lifecycle) ActivateSubscription(ctx context.Context, id string) (*Tenant, error) {
	t, err := l.store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	patch := Patch{SubscriptionStatus: ptr(SubscriptionActive)}
	if t.Status == StatusCancelled {
		patch.Status = ptr(StatusActive)
	}
	return l.apply(ctx, id, patch, "subscription activated")
}

// MarkPastDue records a failed payment.
func (l *Lifecycle) MarkPastDue(ctx context.Context, id string) (*Tenant, error) {
	return l.apply(ctx, id, Patch{SubscriptionStatus: ptr(SubscriptionPastDue)}, "subscription past due")
}

// CancelSubscription cancels both the subscription and the tenant.
func (l *Lifecycle) CancelSubscription(ctx context.Context, id string) (*Tenant, error) {
	return l.apply(ctx, id, Patch{
		SubscriptionStatus: ptr(SubscriptionCancelled),
		Status:             ptr(StatusCancelled),
	}, "subscription cancelled")
}

// ChangePlan moves the tenant to plan. The seat allowance becomes the plan
// default unless an operator override above the old plan's default is
// larger. A tenant left with more users than seats is reported with a
// "seats over limit" event; existing users are never removed.
func (l *Lifecycle) ChangePlan(ctx context.Context, id string, plan Plan) (*Tenant, error) {
	if !plan.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlan, plan)
	}
	current, err := l.store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	seats := DefaultSeats[plan]
	if current.MaxUsers > DefaultSeats[current.Plan] && current.MaxUsers > seats {
		seats = current.MaxUsers
	}

	t, err := l.apply(ctx, id, Patch{Plan: &plan, MaxUsers: &seats}, "plan changed")
	if err != nil {
		return nil, err
	}

	n, err := l.store.GetTenantUserCount(ctx, id)
	if err != nil {
		l.logger.WithError(err).WithField("tenant_id", id).Warn("failed to count seats after plan change")
		return t, nil
	}
	if n > t.MaxUsers {
		l.logger.WithFields(map[string]interface{}{
			"tenant_id": id,
			"plan":      t.Plan,
			"seats":     n,
			"max_users": t.MaxUsers,
		}).Warn("seats over limit")
		l.observe(ctx, "seats over limit", id)
	}
	return t, nil
}

// SetMaxUsers overrides the seat allowance.
func (l *Lifecycle) SetMaxUsers(ctx context.Context, id string, maxUsers int) (*Tenant, error) {
	if maxUsers < 0 {
		return nil, fmt.Errorf("max users must be non-negative, got %d", maxUsers)
	}
	return l.apply(ctx, id, Patch{MaxUsers: &maxUsers}, "seat limit changed")
}

// LinkStripeCustomer records the billing customer for the tenant.
func (l *Lifecycle) LinkStripeCustomer(ctx context.Context, id, customerID string) (*Tenant, error) {
	return l.apply(ctx, id, Patch{StripeCustomerID: &customerID}, "stripe customer linked")
}

// Suspend blocks an active tenant regardless of its subscription.
func (l *Lifecycle) Suspend(ctx context.Context, id string) (*Tenant, error) {
	t, err := l.store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusActive {
		return nil, fmt.Errorf("%w: cannot suspend %s tenant", ErrInvalidTransition, t.Status)
	}
	return l.apply(ctx, id, Patch{Status: ptr(StatusSuspended)}, "tenant suspended")
}

// Reinstate lifts a suspension.
func (l *Lifecycle) Reinstate(ctx context.Context, id string) (*Tenant, error) {
	t, err := l.store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusSuspended {
		return nil, fmt.Errorf("%w: cannot reinstate %s tenant", ErrInvalidTransition, t.Status)
	}
	return l.apply(ctx, id, Patch{Status: ptr(StatusActive)}, "tenant reinstated")
}

// ExpireTrials cancels the subscription of every tenant whose trial ended
// without payment. It returns the number of tenants changed.
func (l *Lifecycle) ExpireTrials(ctx context.Context) (int, error) {
	expired, err := l.store.ListExpiredTrials(ctx, l.now())
	if err != nil {
		return 0, fmt.Errorf("list expired trials: %w", err)
	}

	n := 0
	for _, t := range expired {
		if _, err := l.apply(ctx, t.ID, Patch{SubscriptionStatus: ptr(SubscriptionCancelled)}, "trial expired"); err != nil {
			l.logger.WithError(err).WithField("tenant_id", t.ID).Warn("failed to expire trial")
			continue
		}
		n++
	}
	return n, nil
}

func (l *Lifecycle) apply(ctx context.Context, id string, patch Patch, event string) (*Tenant, error) {
	t, err := l.store.UpdateTenant(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	l.logger.WithFields(map[string]interface{}{
		"tenant_id":           t.ID,
		"status":              t.Status,
		"subscription_status": t.SubscriptionStatus,
		"plan":                t.Plan,
	}).Info(event)
	l.observe(ctx, event, t.ID)
	return t, nil
}

func (l *Lifecycle) observe(ctx context.Context, event, tenantID string) {
	for _, o := range l.observers {
		o.LifecycleEvent(ctx, event, tenantID)
	}
}

func ptr[T any](v T) *T { return &v }
