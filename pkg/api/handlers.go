package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/crmgate/pkg/auth"
	"github.com/platinummonkey/crmgate/pkg/gate"
	"github.com/platinummonkey/crmgate/pkg/httputil"
	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/platinummonkey/crmgate/pkg/tenants"
)

// MeResponse describes the caller.
type MeResponse struct {
	UserID      string          `json:"user_id"`
	TenantID    string          `json:"tenant_id"`
	Role        string          `json:"role"`
	Permissions []string        `json:"permissions"`
	Tenant      *tenants.Tenant `json:"tenant"`
}

// AddUserRequest is the body of POST /api/v1/users.
type AddUserRequest struct {
	UserID string `json:"user_id"`
}

// ChangePlanRequest is the body of PATCH /api/v1/tenant/plan.
type ChangePlanRequest struct {
	Plan string `json:"plan"`
}

// registerTenant handles public signup.
func (s *Server) registerTenant(w http.ResponseWriter, r *http.Request) {
	var req tenants.RegisterRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	t, err := s.deps.Lifecycle.Register(r.Context(), req)
	switch {
	case errors.Is(err, tenants.ErrSubdomainTaken):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, tenants.ErrInvalidName),
		errors.Is(err, tenants.ErrInvalidSubdomain),
		errors.Is(err, tenants.ErrReservedSubdomain),
		errors.Is(err, tenants.ErrInvalidPlan):
		httputil.WriteBadRequest(w, err.Error())
	case err != nil:
		observability.FromContext(r.Context()).WithError(err).Error("Failed to register tenant")
		httputil.WriteInternalError(w)
	default:
		_ = httputil.WriteCreated(w, t)
	}
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())
	t, _ := tenants.FromContext(r.Context())

	_ = httputil.WriteSuccess(w, MeResponse{
		UserID:      p.UserID(),
		TenantID:    p.TenantID(),
		Role:        p.Role().String(),
		Permissions: p.Checker().Permissions().Strings(),
		Tenant:      t,
	})
}

func (s *Server) usageReport(w http.ResponseWriter, r *http.Request) {
	t, _ := tenants.FromContext(r.Context())

	report, err := s.deps.Meter.Report(r.Context(), t)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to build usage report")
		httputil.WriteInternalError(w)
		return
	}
	_ = httputil.WriteSuccess(w, report)
}

// addUser takes a seat. With the hard cap on, the count is re-read after the
// insert and the insert is rolled back if a concurrent request won the last
// seat.
func (s *Server) addUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)
	t, _ := tenants.FromContext(ctx)

	var req AddUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}

	err := s.deps.Tenants.AddUser(ctx, t.ID, req.UserID)
	if errors.Is(err, tenants.ErrUserExists) {
		httputil.WriteConflict(w, err.Error())
		return
	}
	if err != nil {
		logger.WithError(err).Error("Failed to add user")
		httputil.WriteInternalError(w)
		return
	}

	if s.config.SeatHardCap {
		n, err := s.deps.Tenants.GetTenantUserCount(ctx, t.ID)
		if err != nil {
			logger.WithError(err).Warn("Failed to re-check seat count")
		} else if n > t.MaxUsers {
			if err := s.deps.Tenants.RemoveUser(ctx, t.ID, req.UserID); err != nil {
				logger.WithError(err).Error("Failed to roll back user over seat limit")
			}
			httputil.WriteDenial(w, &gate.SeatLimitReachedError{Current: n - 1, Max: t.MaxUsers})
			return
		}
	}

	_ = httputil.WriteCreated(w, map[string]string{"tenant_id": t.ID, "user_id": req.UserID})
}

func (s *Server) removeUser(w http.ResponseWriter, r *http.Request) {
	t, _ := tenants.FromContext(r.Context())
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	err := s.deps.Tenants.RemoveUser(r.Context(), t.ID, userID)
	switch {
	case errors.Is(err, tenants.ErrUserNotFound):
		httputil.WriteNotFound(w, err.Error())
	case err != nil:
		observability.FromContext(r.Context()).WithError(err).Error("Failed to remove user")
		httputil.WriteInternalError(w)
	default:
		httputil.WriteNoContent(w)
	}
}

func (s *Server) changePlan(w http.ResponseWriter, r *http.Request) {
	t, _ := tenants.FromContext(r.Context())

	var req ChangePlanRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	plan, err := tenants.ParsePlan(req.Plan)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	// Upgrades are applied by the billing webhook once payment succeeds.
	if plan.Rank() > t.Plan.Rank() {
		httputil.WriteDenial(w, &gate.BillingRequiredError{Current: t.Plan, Requested: plan})
		return
	}

	updated, err := s.deps.Lifecycle.ChangePlan(r.Context(), t.ID, plan)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to change plan")
		httputil.WriteInternalError(w)
		return
	}
	_ = httputil.WriteSuccess(w, updated)
}
