package middleware

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/crmgate/pkg/auth"
	"github.com/platinummonkey/crmgate/pkg/gate"
	"github.com/platinummonkey/crmgate/pkg/httputil"
	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/platinummonkey/crmgate/pkg/rbac"
	"github.com/platinummonkey/crmgate/pkg/tenants"
)

// DenialObserver is notified of every policy denial.
type DenialObserver interface {
	GateDenied(gate, code string)
	PermissionDenied(permission string)
}

// Policy builds route guards for tenant gates and permissions.
type Policy struct {
	observer DenialObserver
}

// NewPolicy creates a Policy. observer may be nil.
func NewPolicy(observer DenialObserver) *Policy {
	return &Policy{observer: observer}
}

// RequireGates evaluates chain against the request's tenant and principal.
func (p *Policy) RequireGates(chain gate.Chain) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name, err := chain.Evaluate(r.Context(), gate.SubjectFromContext(r.Context()))
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}

			logger := observability.FromContext(r.Context()).WithError(err).WithField("gate", name)
			d, ok := httputil.AsDenial(err)
			if !ok {
				logger.Error("Gate evaluation failed")
				httputil.WriteInternalError(w)
				return
			}
			logger.WithField("code", d.DenialCode()).Info("Request denied by gate")
			if p.observer != nil {
				p.observer.GateDenied(name, d.DenialCode())
			}
			httputil.WriteDenial(w, d)
		})
	}
}

// RequireTenant rejects requests without an active tenant.
func (p *Policy) RequireTenant() func(http.Handler) http.Handler {
	return p.RequireGates(gate.Chain{gate.RequireTenant()})
}

// RequireActiveSubscription rejects tenants without a live subscription or
// trial.
func (p *Policy) RequireActiveSubscription() func(http.Handler) http.Handler {
	return p.RequireGates(gate.Chain{gate.RequireActiveSubscription()})
}

// RequirePlan restricts a route to the listed plans.
func (p *Policy) RequirePlan(allowed ...tenants.Plan) func(http.Handler) http.Handler {
	return p.RequireGates(gate.Chain{gate.RequirePlan(allowed...)})
}

// RequireUnderSeatLimit rejects when the tenant has no free seat.
func (p *Policy) RequireUnderSeatLimit(counter gate.SeatCounter) func(http.Handler) http.Handler {
	return p.RequireGates(gate.Chain{gate.RequireUnderSeatLimit(counter, 0)})
}

// RequirePermission requires the principal to hold perm.
func (p *Policy) RequirePermission(perm rbac.Permission) func(http.Handler) http.Handler {
	return p.authorize(perm.String(), func(c *rbac.Checker) error {
		return c.AuthorizePermission(perm)
	})
}

// RequireAnyPermission requires at least one of perms.
func (p *Policy) RequireAnyPermission(perms ...rbac.Permission) func(http.Handler) http.Handler {
	return p.authorize(permissionLabel(perms), func(c *rbac.Checker) error {
		return c.AuthorizeAny(perms...)
	})
}

// RequireAllPermissions requires every one of perms.
func (p *Policy) RequireAllPermissions(perms ...rbac.Permission) func(http.Handler) http.Handler {
	return p.authorize(permissionLabel(perms), func(c *rbac.Checker) error {
		return c.AuthorizeAll(perms...)
	})
}

// RequireRole restricts a route to the listed roles.
func (p *Policy) RequireRole(roles ...rbac.Role) func(http.Handler) http.Handler {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = "role:" + r.String()
	}
	return p.authorize(strings.Join(names, "|"), func(c *rbac.Checker) error {
		return c.AuthorizeRole(roles...)
	})
}

func (p *Policy) authorize(label string, check func(*rbac.Checker) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			if err := check(principal.Checker()); err != nil {
				observability.FromContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
					"role":     principal.Role().String(),
					"required": label,
				}).Info("Permission denied")
				if p.observer != nil {
					p.observer.PermissionDenied(label)
				}
				httputil.WriteDenial(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func permissionLabel(perms []rbac.Permission) string {
	names := make([]string, len(perms))
	for i, perm := range perms {
		names[i] = perm.String()
	}
	return strings.Join(names, "|")
}
