package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/platinummonkey/crmgate/pkg/async"
	"github.com/platinummonkey/crmgate/pkg/httputil"
	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/platinummonkey/crmgate/pkg/tenants"
	"github.com/platinummonkey/crmgate/pkg/usage"
)

// DefaultRecordTimeout bounds an asynchronous usage write.
const DefaultRecordTimeout = 5 * time.Second

// UsageMiddleware enforces usage limits and records usage for successful
// responses.
type UsageMiddleware struct {
	meter   *usage.Meter
	async   bool
	timeout time.Duration
}

// NewUsageMiddleware creates a usage middleware. With async set, usage is
// recorded off the request path.
func NewUsageMiddleware(meter *usage.Meter, async bool, timeout time.Duration) *UsageMiddleware {
	if timeout <= 0 {
		timeout = DefaultRecordTimeout
	}
	return &UsageMiddleware{
		meter:   meter,
		async:   async,
		timeout: timeout,
	}
}

// Meter charges one unit of metric per request. Requests over the limit get
// a 429 usage_limit_exceeded. Store failures are logged and the request
// proceeds.
func (m *UsageMiddleware) Meter(metric usage.Metric) func(http.Handler) http.Handler {
	return m.MeterN(metric, 1)
}

// MeterN charges amount units of metric per request.
func (m *UsageMiddleware) MeterN(metric usage.Metric, amount int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := observability.FromContext(ctx).WithField("metric", metric.String())

			tenant, ok := tenants.FromContext(ctx)
			if !ok {
				logger.Debug("No tenant in context, skipping usage metering")
				next.ServeHTTP(w, r)
				return
			}

			ticket, err := m.meter.Admit(ctx, tenant, metric, amount)
			switch {
			case usage.IsLimitExceeded(err):
				logger.WithError(err).Info("Usage limit exceeded")
				httputil.WriteDenial(w, err)
				return
			case err != nil:
				// Log error but don't block request
				logger.WithError(err).Warn("Failed to check usage limit")
				ticket = nil
			}

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			m.settle(ctx, ticket, rec.succeeded(), tenant.ID, metric, amount)
		})
	}
}

// settle commits or cancels ticket. A nil ticket means admission could not
// be checked; successful requests are still recorded.
func (m *UsageMiddleware) settle(ctx context.Context, ticket *usage.Ticket, ok bool, tenantID string, metric usage.Metric, amount int64) {
	finish := func(ctx context.Context) error {
		switch {
		case ticket == nil && ok:
			m.meter.Record(ctx, tenantID, metric, amount)
		case ok:
			ticket.Commit(ctx)
		default:
			ticket.Cancel(ctx)
		}
		return nil
	}

	if m.async {
		async.SafeGo(context.WithoutCancel(ctx), m.timeout, "record usage", finish)
		return
	}
	_ = finish(ctx)
}
