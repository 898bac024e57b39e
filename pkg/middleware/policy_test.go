package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/crmgate/pkg/auth/authtest"
	"github.com/platinummonkey/crmgate/pkg/gate"
	"github.com/platinummonkey/crmgate/pkg/rbac"
	"github.com/platinummonkey/crmgate/pkg/tenants"
)

func requestWith(t *testing.T, tenant *tenants.Tenant, role rbac.Role, tenantID string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/leads", nil)
	ctx := req.Context()
	if tenant != nil {
		ctx = tenants.WithTenant(ctx, tenant)
	}
	if !role.IsZero() {
		ctx = authtest.WithPrincipal(t, ctx, role, "user-1", tenantID)
	}
	return req.WithContext(ctx)
}

func TestPolicy_RequireGates(t *testing.T) {
	chain := gate.Chain{gate.RequireTenant(), gate.RequireMembership(), gate.RequireActiveSubscription()}

	suspended := acmeTenant()
	suspended.Status = tenants.StatusSuspended
	pastDue := acmeTenant()
	pastDue.SubscriptionStatus = tenants.SubscriptionPastDue

	tests := []struct {
		name       string
		tenant     *tenants.Tenant
		role       rbac.Role
		tenantID   string
		wantStatus int
		wantCode   string
		wantGate   string
	}{
		{name: "allowed", tenant: acmeTenant(), role: rbac.RoleViewer, tenantID: "tenant-1", wantStatus: http.StatusOK},
		{name: "anonymous allowed by gates", tenant: acmeTenant(), wantStatus: http.StatusOK},
		{name: "no tenant", role: rbac.RoleViewer, tenantID: "tenant-1", wantStatus: http.StatusBadRequest, wantCode: "tenant_required", wantGate: "require_tenant"},
		{name: "suspended", tenant: suspended, role: rbac.RoleAdmin, tenantID: "tenant-1", wantStatus: http.StatusForbidden, wantCode: "tenant_inactive", wantGate: "require_tenant"},
		{name: "other tenant's user", tenant: acmeTenant(), role: rbac.RoleAdmin, tenantID: "tenant-2", wantStatus: http.StatusForbidden, wantCode: "tenant_mismatch", wantGate: "require_membership"},
		{name: "past due", tenant: pastDue, role: rbac.RoleAdmin, tenantID: "tenant-1", wantStatus: http.StatusPaymentRequired, wantCode: "subscription_inactive", wantGate: "require_active_subscription"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy := &spyObserver{}
			next := &okHandler{}
			h := NewPolicy(spy).RequireGates(chain)(next)

			w := httptest.NewRecorder()
			h.ServeHTTP(w, requestWith(t, tt.tenant, tt.role, tt.tenantID))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode == "" {
				assert.True(t, next.called)
				assert.Empty(t, spy.gates)
				return
			}
			assert.False(t, next.called)
			assert.Equal(t, tt.wantCode, decodeError(t, w).Code)
			assert.Equal(t, []string{tt.wantGate + "/" + tt.wantCode}, spy.gates)
		})
	}
}

func TestPolicy_RequireGates_LookupFailureFailsClosed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	lookupErr := &tenants.TenantLookupFailedError{Source: tenants.SourceHeader, Err: errors.New("timeout")}
	req = req.WithContext(tenants.WithLookupError(req.Context(), lookupErr))

	next := &okHandler{}
	w := httptest.NewRecorder()
	NewPolicy(nil).RequireTenant()(next).ServeHTTP(w, req)

	assert.False(t, next.called)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "tenant_lookup_failed", body.Code)
	assert.Equal(t, "header", body.Details["source"])
}

func TestPolicy_RequirePlan(t *testing.T) {
	next := &okHandler{}
	w := httptest.NewRecorder()
	NewPolicy(nil).RequirePlan(tenants.PlanProfessional, tenants.PlanEnterprise)(next).
		ServeHTTP(w, requestWith(t, acmeTenant(), rbac.RoleAdmin, "tenant-1"))

	assert.False(t, next.called)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "plan_upgrade_required", decodeError(t, w).Code)
}

func TestPolicy_RequireActiveSubscription_ExpiredTrial(t *testing.T) {
	trial := acmeTenant()
	trial.SubscriptionStatus = tenants.SubscriptionTrial

	w := httptest.NewRecorder()
	NewPolicy(nil).RequireActiveSubscription()(&okHandler{}).
		ServeHTTP(w, requestWith(t, trial, rbac.RoleAdmin, "tenant-1"))

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "trial_expired", decodeError(t, w).Code)
}

type countingSeats struct {
	n   int
	err error
}

func (c countingSeats) GetTenantUserCount(context.Context, string) (int, error) { return c.n, c.err }

func TestPolicy_RequireUnderSeatLimit(t *testing.T) {
	t.Run("free seat", func(t *testing.T) {
		next := &okHandler{}
		w := httptest.NewRecorder()
		NewPolicy(nil).RequireUnderSeatLimit(countingSeats{n: 1})(next).
			ServeHTTP(w, requestWith(t, acmeTenant(), rbac.RoleAdmin, "tenant-1"))
		assert.True(t, next.called)
	})

	t.Run("full", func(t *testing.T) {
		w := httptest.NewRecorder()
		NewPolicy(nil).RequireUnderSeatLimit(countingSeats{n: 2})(&okHandler{}).
			ServeHTTP(w, requestWith(t, acmeTenant(), rbac.RoleAdmin, "tenant-1"))
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "seat_limit_reached", decodeError(t, w).Code)
	})

	t.Run("count fails", func(t *testing.T) {
		spy := &spyObserver{}
		w := httptest.NewRecorder()
		NewPolicy(spy).RequireUnderSeatLimit(countingSeats{err: errors.New("db down")})(&okHandler{}).
			ServeHTTP(w, requestWith(t, acmeTenant(), rbac.RoleAdmin, "tenant-1"))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "tenant_lookup_failed", decodeError(t, w).Code)
		assert.NotContains(t, w.Body.String(), "db down")
		assert.Equal(t, []string{"require_under_seat_limit/tenant_lookup_failed"}, spy.gates)
	})
}

func TestPolicy_RequirePermission(t *testing.T) {
	tests := []struct {
		name       string
		role       rbac.Role
		guard      func(*Policy) func(http.Handler) http.Handler
		wantStatus int
	}{
		{
			name:       "manager updates all leads",
			role:       rbac.RoleManager,
			guard:      func(p *Policy) func(http.Handler) http.Handler { return p.RequirePermission(rbac.LeadUpdateAll) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "sales rep cannot",
			role:       rbac.RoleSalesRep,
			guard:      func(p *Policy) func(http.Handler) http.Handler { return p.RequirePermission(rbac.LeadUpdateAll) },
			wantStatus: http.StatusForbidden,
		},
		{
			name: "any of",
			role: rbac.RoleSalesRep,
			guard: func(p *Policy) func(http.Handler) http.Handler {
				return p.RequireAnyPermission(rbac.LeadUpdateAll, rbac.LeadUpdate)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "all of",
			role: rbac.RoleSalesRep,
			guard: func(p *Policy) func(http.Handler) http.Handler {
				return p.RequireAllPermissions(rbac.LeadUpdate, rbac.BillingManage)
			},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "admin role",
			role:       rbac.RoleAdmin,
			guard:      func(p *Policy) func(http.Handler) http.Handler { return p.RequireRole(rbac.RoleAdmin) },
			wantStatus: http.StatusOK,
		},
		{
			name: "viewer is not a manager",
			role: rbac.RoleViewer,
			guard: func(p *Policy) func(http.Handler) http.Handler {
				return p.RequireRole(rbac.RoleAdmin, rbac.RoleManager)
			},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "anonymous",
			guard:      func(p *Policy) func(http.Handler) http.Handler { return p.RequirePermission(rbac.LeadRead) },
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy := &spyObserver{}
			next := &okHandler{}
			w := httptest.NewRecorder()
			tt.guard(NewPolicy(spy))(next).ServeHTTP(w, requestWith(t, acmeTenant(), tt.role, "tenant-1"))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantStatus == http.StatusOK, next.called)
			if tt.wantStatus == http.StatusForbidden {
				body := decodeError(t, w)
				assert.Equal(t, "permission_denied", body.Code)
				require.Len(t, spy.permissions, 1)
			}
		})
	}
}

func TestPolicy_PermissionDeniedLabel(t *testing.T) {
	spy := &spyObserver{}
	w := httptest.NewRecorder()
	NewPolicy(spy).RequirePermission(rbac.BillingManage)(&okHandler{}).
		ServeHTTP(w, requestWith(t, acmeTenant(), rbac.RoleViewer, "tenant-1"))

	assert.Equal(t, []string{"billing:manage"}, spy.permissions)
}
