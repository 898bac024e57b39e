package gate

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platinummonkey/crmgate/pkg/auth"
	"github.com/platinummonkey/crmgate/pkg/tenants"
)

const tracerName = "github.com/platinummonkey/crmgate/pkg/gate"

// Subject is what a gate inspects: the resolved tenant (nil if none), the
// verified principal (zero if anonymous), any resolution failure and the
// evaluation time.
type Subject struct {
	Tenant    *tenants.Tenant
	Principal auth.Principal
	LookupErr error
	Now       time.Time
}

// SubjectFromContext assembles a Subject from request context populated by
// the auth and tenant middleware.
func SubjectFromContext(ctx context.Context) Subject {
	s := Subject{
		LookupErr: tenants.LookupErrorFromContext(ctx),
		Now:       time.Now(),
	}
	if t, ok := tenants.FromContext(ctx); ok {
		s.Tenant = t
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		s.Principal = p
	}
	return s
}

func (s Subject) now() time.Time {
	if s.Now.IsZero() {
		return time.Now()
	}
	return s.Now
}

// Gate is one composable guard.
type Gate interface {
	Name() string
	Check(ctx context.Context, s Subject) error
}

type funcGate struct {
	name string
	fn   func(context.Context, Subject) error
}

func (g funcGate) Name() string                               { return g.name }
func (g funcGate) Check(ctx context.Context, s Subject) error { return g.fn(ctx, s) }

// New adapts a function into a named Gate.
func New(name string, fn func(ctx context.Context, s Subject) error) Gate {
	return funcGate{name: name, fn: fn}
}

// Chain evaluates gates in order and stops at the first failure; later gates
// are never invoked once one has failed.
type Chain []Gate

// Then returns a new chain with gates appended.
func (c Chain) Then(gates ...Gate) Chain {
	out := make(Chain, 0, len(c)+len(gates))
	out = append(out, c...)
	return append(out, gates...)
}

// Run evaluates the chain against s.
func (c Chain) Run(ctx context.Context, s Subject) error {
	_, err := c.Evaluate(ctx, s)
	return err
}

// Evaluate is Run that also reports the name of the gate that failed.
func (c Chain) Evaluate(ctx context.Context, s Subject) (string, error) {
	tracer := otel.Tracer(tracerName)
	for _, g := range c {
		gctx, span := tracer.Start(ctx, "gate."+g.Name())
		err := g.Check(gctx, s)
		if err != nil {
			span.SetAttributes(attribute.Bool("gate.denied", true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if err != nil {
			return g.Name(), err
		}
	}
	return "", nil
}

// RequireTenant fails when no tenant was resolved or the tenant is not
// active. A recorded store failure takes precedence over "no tenant" so the
// request fails closed with tenant_lookup_failed.
func RequireTenant() Gate {
	return New("require_tenant", func(_ context.Context, s Subject) error {
		if s.Tenant == nil {
			if s.LookupErr != nil {
				if tenants.IsTenantLookupFailed(s.LookupErr) {
					return s.LookupErr
				}
				return &tenants.TenantLookupFailedError{Err: s.LookupErr}
			}
			return &TenantRequiredError{}
		}
		if !s.Tenant.IsActive() {
			return &TenantInactiveError{Status: s.Tenant.Status}
		}
		return nil
	})
}

// RequireMembership fails when an authenticated principal belongs to a
// different tenant than the resolved one. Anonymous requests pass; require
// authentication separately.
func RequireMembership() Gate {
	return New("require_membership", func(_ context.Context, s Subject) error {
		if s.Tenant == nil {
			return &TenantRequiredError{}
		}
		if s.Principal.IsZero() {
			return nil
		}
		if s.Principal.TenantID() != s.Tenant.ID {
			return &TenantMismatchError{TenantID: s.Tenant.ID}
		}
		return nil
	})
}

// RequireActiveSubscription passes trial and active subscriptions, except a
// trial past its end.
func RequireActiveSubscription() Gate {
	return New("require_active_subscription", func(_ context.Context, s Subject) error {
		if s.Tenant == nil {
			return &TenantRequiredError{}
		}
		switch s.Tenant.SubscriptionStatus {
		case tenants.SubscriptionActive:
			return nil
		case tenants.SubscriptionTrial:
			if s.Tenant.TrialExpired(s.now()) {
				return &TrialExpiredError{ExpiredAt: s.Tenant.TrialEndsAt}
			}
			return nil
		default:
			return &SubscriptionInactiveError{Status: s.Tenant.SubscriptionStatus}
		}
	})
}

// RequirePlan passes only tenants on one of allowed.
func RequirePlan(allowed ...tenants.Plan) Gate {
	set := make(map[tenants.Plan]struct{}, len(allowed))
	for _, p := range allowed {
		set[p] = struct{}{}
	}
	return New("require_plan", func(_ context.Context, s Subject) error {
		if s.Tenant == nil {
			return &TenantRequiredError{}
		}
		if _, ok := set[s.Tenant.Plan]; ok {
			return nil
		}
		return &PlanUpgradeRequiredError{
			Current: s.Tenant.Plan,
			Allowed: append([]tenants.Plan(nil), allowed...),
		}
	})
}

// SeatCounter reports a tenant's current active user count.
type SeatCounter interface {
	GetTenantUserCount(ctx context.Context, tenantID string) (int, error)
}

// RequireUnderSeatLimit fails when the tenant already uses all its seats.
// The check and the subsequent insert are not atomic; concurrent requests
// may overshoot by a small amount. See handlers that re-verify after insert
// when a hard cap is configured.
func RequireUnderSeatLimit(counter SeatCounter, timeout time.Duration) Gate {
	if timeout <= 0 {
		timeout = tenants.DefaultLookupTimeout
	}
	return New("require_under_seat_limit", func(ctx context.Context, s Subject) error {
		if s.Tenant == nil {
			return &TenantRequiredError{}
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		n, err := counter.GetTenantUserCount(ctx, s.Tenant.ID)
		if err != nil {
			return &tenants.TenantLookupFailedError{Source: tenants.SourceSeatCount, Err: err}
		}
		if n >= s.Tenant.MaxUsers {
			return &SeatLimitReachedError{Current: n, Max: s.Tenant.MaxUsers}
		}
		return nil
	})
}
