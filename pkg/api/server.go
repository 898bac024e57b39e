package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/crmgate/pkg/audit"
	"github.com/platinummonkey/crmgate/pkg/auth"
	"github.com/platinummonkey/crmgate/pkg/gate"
	"github.com/platinummonkey/crmgate/pkg/httputil"
	"github.com/platinummonkey/crmgate/pkg/middleware"
	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/platinummonkey/crmgate/pkg/rbac"
	"github.com/platinummonkey/crmgate/pkg/tenants"
	"github.com/platinummonkey/crmgate/pkg/usage"
)

// Config tunes the HTTP surface.
type Config struct {
	TenantHeader     string
	SeatHardCap      bool
	AsyncUsage       bool
	RecordTimeout    time.Duration
	MaxBodyBytes     int64
	AuditAllRequests bool
}

// Deps are the collaborators the server routes to. Metrics, Webhooks and
// Audit are optional.
type Deps struct {
	Authenticator auth.Authenticator
	Tenants       tenants.Store
	Resolver      *tenants.Resolver
	Lifecycle     *tenants.Lifecycle
	Meter         *usage.Meter
	Metrics       *observability.Metrics
	Webhooks      http.Handler
	Audit         audit.Store
	Logger        *observability.Logger
}

// Server represents our API server
type Server struct {
	router *mux.Router
	config Config
	deps   Deps
	policy *middleware.Policy
}

// NewServer creates a new API server
func NewServer(config Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NewNopLogger()
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 1 << 20
	}

	var observer middleware.DenialObserver
	if deps.Metrics != nil {
		observer = deps.Metrics
	}

	s := &Server{
		router: mux.NewRouter(),
		config: config,
		deps:   deps,
		policy: middleware.NewPolicy(observer),
	}
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID, middleware.Logging(s.deps.Logger), middleware.Recovery)
	if s.deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.deps.Metrics))
	}
	s.router.Use(httputil.MaxBytesMiddleware(s.config.MaxBodyBytes))

	// Public routes
	s.router.HandleFunc("/api/v1/tenants", s.registerTenant).Methods(http.MethodPost)
	if s.deps.Webhooks != nil {
		s.router.Handle("/webhooks/stripe", s.deps.Webhooks).Methods(http.MethodPost)
	}

	var tenantObserver middleware.TenantObserver
	if s.deps.Metrics != nil {
		tenantObserver = s.deps.Metrics
	}
	authn := middleware.NewAuthMiddleware(s.deps.Authenticator, false)
	tenantCtx := middleware.NewTenantContextMiddleware(s.deps.Resolver, s.config.TenantHeader, tenantObserver)
	metering := middleware.NewUsageMiddleware(s.deps.Meter, s.config.AsyncUsage, s.config.RecordTimeout)
	identify := []mux.MiddlewareFunc{authn.Handler, tenantCtx.Handler}
	if s.deps.Audit != nil {
		// after identification so events carry the principal and tenant,
		// before the gates so refusals are recorded
		trail := audit.NewMiddleware(audit.NewRecorder(s.deps.Audit, s.deps.Logger), s.config.AuditAllRequests)
		identify = append(identify, trail.Handler)
	}

	// Billing settings stay reachable while the subscription is lapsed.
	billing := s.router.PathPrefix("/api/v1/tenant").Subrouter()
	billing.Use(identify...)
	billing.Use(s.policy.RequireGates(gate.Chain{gate.RequireTenant(), gate.RequireMembership()}))
	billing.Handle("/plan", s.policy.RequirePermission(rbac.BillingManage)(http.HandlerFunc(s.changePlan))).
		Methods(http.MethodPatch)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(identify...)
	api.Use(s.policy.RequireGates(gate.Chain{
		gate.RequireTenant(),
		gate.RequireMembership(),
		gate.RequireActiveSubscription(),
	}))
	api.Use(metering.Meter(usage.APICalls))

	api.HandleFunc("/me", s.me).Methods(http.MethodGet)
	api.Handle("/usage", s.policy.RequirePermission(rbac.ReportingView)(http.HandlerFunc(s.usageReport))).
		Methods(http.MethodGet)
	api.Handle("/users", httputil.Chain(
		s.policy.RequireUnderSeatLimit(s.deps.Tenants),
		s.policy.RequirePermission(rbac.UserCreate),
	)(http.HandlerFunc(s.addUser))).Methods(http.MethodPost)
	api.Handle("/users/{id}", s.policy.RequirePermission(rbac.UserDeleteAll)(http.HandlerFunc(s.removeUser))).
		Methods(http.MethodDelete)
	if s.deps.Audit != nil {
		events := audit.NewHandlers(s.deps.Audit)
		api.Handle("/audit", s.policy.RequirePermission(rbac.AuditView)(http.HandlerFunc(events.ListEvents))).
			Methods(http.MethodGet)
	}
}
