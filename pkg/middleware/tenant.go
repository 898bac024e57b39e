package middleware

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/crmgate/pkg/auth"
	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/platinummonkey/crmgate/pkg/tenants"
)

// DefaultTenantHeader carries an explicit tenant id.
const DefaultTenantHeader = "X-Tenant-ID"

// TenantObserver receives one call per resolution attempt.
type TenantObserver interface {
	TenantResolved(source, result string)
}

// TenantContextMiddleware resolves the request's tenant and attaches it to
// the context. It never rejects a request; the gates decide what a missing
// tenant or a failed lookup means for the route.
type TenantContextMiddleware struct {
	resolver   *tenants.Resolver
	headerName string
	observer   TenantObserver
}

// NewTenantContextMiddleware creates the middleware. An empty headerName
// uses DefaultTenantHeader; observer may be nil.
func NewTenantContextMiddleware(resolver *tenants.Resolver, headerName string, observer TenantObserver) *TenantContextMiddleware {
	if headerName == "" {
		headerName = DefaultTenantHeader
	}
	return &TenantContextMiddleware{
		resolver:   resolver,
		headerName: headerName,
		observer:   observer,
	}
}

// Handler wraps an HTTP handler with tenant resolution.
func (m *TenantContextMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		candidates := tenants.Candidates{
			Host:           r.Host,
			HeaderTenantID: r.Header.Get(m.headerName),
		}
		if p, ok := auth.PrincipalFromContext(ctx); ok {
			candidates.SessionTenantID = p.TenantID()
		}

		res, err := m.resolver.Resolve(ctx, candidates)
		switch {
		case err != nil:
			observability.FromContext(ctx).WithError(err).Warn("Tenant lookup failed")
			m.observe(lookupSource(err), "error")
			ctx = tenants.WithLookupError(ctx, err)
		case res.Tenant == nil:
			m.observe("none", "not_found")
		default:
			m.observe(string(res.Source), "found")
			ctx = tenants.WithTenant(ctx, res.Tenant)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *TenantContextMiddleware) observe(source, result string) {
	if m.observer != nil {
		m.observer.TenantResolved(source, result)
	}
}

func lookupSource(err error) string {
	var e *tenants.TenantLookupFailedError
	if errors.As(err, &e) {
		return string(e.Source)
	}
	return "unknown"
}
