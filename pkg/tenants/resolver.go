package tenants

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultLookupTimeout bounds each tenant store round trip.
const DefaultLookupTimeout = 2 * time.Second

// Source names the strategy that resolved a tenant, or the store read that
// failed.
type Source string

const (
	SourceNone      Source = ""
	SourceSubdomain Source = "subdomain"
	SourceHeader    Source = "header"
	SourceSession   Source = "session"
	SourceSeatCount Source = "seat_count"
)

// Candidates are the raw inputs to resolution. Host and HeaderTenantID come
// from the HTTP layer; SessionTenantID comes from the verified principal.
type Candidates struct {
	Host            string
	HeaderTenantID  string
	SessionTenantID string
}

// Resolution is the outcome of a successful Resolve. Tenant is nil when no
// strategy matched.
type Resolution struct {
	Tenant *Tenant
	Source Source
}

// TenantLookupFailedError reports a tenant store failure during resolution.
// Callers must fail closed.
type TenantLookupFailedError struct {
	Source Source
	Err    error
}

func (e *TenantLookupFailedError) Error() string {
	return fmt.Sprintf("tenant lookup by %s failed: %v", e.Source, e.Err)
}

func (e *TenantLookupFailedError) Unwrap() error { return e.Err }

// DenialCode returns the stable machine-readable code for the denial.
func (e *TenantLookupFailedError) DenialCode() string { return "tenant_lookup_failed" }

// DenialDetails returns structured fields describing the denial.
func (e *TenantLookupFailedError) DenialDetails() map[string]any {
	return map[string]any{"source": string(e.Source)}
}

// IsTenantLookupFailed reports whether err is a store failure during resolution.
func IsTenantLookupFailed(err error) bool {
	var e *TenantLookupFailedError
	return errors.As(err, &e)
}

// Resolver determines the tenant for a request. It never writes to the store.
type Resolver struct {
	store   Store
	timeout time.Duration
}

// NewResolver creates a resolver. A non-positive timeout uses
// DefaultLookupTimeout.
func NewResolver(store Store, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &Resolver{store: store, timeout: timeout}
}

// Resolve tries the host subdomain, then the explicit tenant header, then the
// session's tenant. The first strategy that finds a tenant wins. Not-found
// falls through to the next strategy; any other store error stops resolution
// with a *TenantLookupFailedError.
func (r *Resolver) Resolve(ctx context.Context, c Candidates) (Resolution, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "tenants.Resolve")
	defer span.End()

	type strategy struct {
		source Source
		key    string
		lookup func(context.Context, string) (*Tenant, error)
	}
	var strategies []strategy
	if sub, ok := SubdomainFromHost(c.Host); ok {
		strategies = append(strategies, strategy{SourceSubdomain, sub, r.store.GetTenantBySubdomain})
	}
	if id := strings.TrimSpace(c.HeaderTenantID); id != "" {
		strategies = append(strategies, strategy{SourceHeader, id, r.store.GetTenant})
	}
	if c.SessionTenantID != "" {
		strategies = append(strategies, strategy{SourceSession, c.SessionTenantID, r.store.GetTenant})
	}

	for _, s := range strategies {
		t, err := r.lookup(ctx, s.key, s.lookup)
		if errors.Is(err, ErrTenantNotFound) {
			continue
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "tenant lookup failed")
			return Resolution{}, &TenantLookupFailedError{Source: s.source, Err: err}
		}
		span.SetAttributes(
			attribute.String("tenant.id", t.ID),
			attribute.String("tenant.source", string(s.source)),
		)
		return Resolution{Tenant: t, Source: s.source}, nil
	}
	return Resolution{}, nil
}

func (r *Resolver) lookup(ctx context.Context, key string, fn func(context.Context, string) (*Tenant, error)) (*Tenant, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return fn(ctx, key)
}

// SubdomainFromHost extracts the tenant subdomain candidate from a Host
// header. Hosts with fewer than three labels, IP literals, labels on the
// non-tenant list and labels that could never be a valid subdomain yield no
// candidate; none of these are errors.
func SubdomainFromHost(host string) (string, bool) {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" || net.ParseIP(strings.Trim(host, "[]")) != nil {
		return "", false
	}

	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return "", false
	}
	first := labels[0]
	if _, skip := nonTenantLabels[first]; skip {
		return "", false
	}
	if !subdomainPattern.MatchString(first) {
		return "", false
	}
	return first, true
}

const tracerName = "github.com/platinummonkey/crmgate/pkg/tenants"
