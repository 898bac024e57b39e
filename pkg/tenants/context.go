package tenants

import (
	"context"

	"github.com/platinummonkey/crmgate/pkg/contextkeys"
)

// WithTenant attaches the resolved tenant to ctx.
func WithTenant(ctx context.Context, t *Tenant) context.Context {
	if t == nil {
		return ctx
	}
	ctx = contextkeys.WithTenantID(ctx, t.ID)
	return context.WithValue(ctx, contextkeys.TenantKey, t)
}

// FromContext returns the tenant attached by WithTenant.
func FromContext(ctx context.Context) (*Tenant, bool) {
	t, ok := ctx.Value(contextkeys.TenantKey).(*Tenant)
	return t, ok && t != nil
}

// WithLookupError records a failed resolution so later gates can fail
// closed instead of reporting a missing tenant.
func WithLookupError(ctx context.Context, err error) context.Context {
	if err == nil {
		return ctx
	}
	return context.WithValue(ctx, contextkeys.TenantLookupErrorKey, err)
}

// LookupErrorFromContext returns the error recorded by WithLookupError.
func LookupErrorFromContext(ctx context.Context) error {
	err, _ := ctx.Value(contextkeys.TenantLookupErrorKey).(error)
	return err
}
