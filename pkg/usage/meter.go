package usage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/platinummonkey/crmgate/pkg/tenants"
)

// Overage describes one metric that would go over its limit.
type Overage struct {
	Metric    Metric
	Current   int64
	Requested int64
	Limit     Limit
}

// LimitExceededError is returned when a metered operation would exceed the
// tenant's plan limit for one or more metrics.
type LimitExceededError struct {
	Overages []Overage
}

func (e *LimitExceededError) Error() string {
	labels := make([]string, len(e.Overages))
	for i, o := range e.Overages {
		labels[i] = o.Metric.Label()
	}
	return "usage limit exceeded: " + strings.Join(labels, ", ")
}

// Metrics returns the metrics that are over limit.
func (e *LimitExceededError) Metrics() []Metric {
	out := make([]Metric, len(e.Overages))
	for i, o := range e.Overages {
		out[i] = o.Metric
	}
	return out
}

func (e *LimitExceededError) DenialCode() string { return "usage_limit_exceeded" }

func (e *LimitExceededError) DenialDetails() map[string]any {
	metrics := make([]string, len(e.Overages))
	exceeded := make([]map[string]any, len(e.Overages))
	for i, o := range e.Overages {
		metrics[i] = o.Metric.String()
		exceeded[i] = map[string]any{
			"metric":  o.Metric.String(),
			"label":   o.Metric.Label(),
			"current": o.Current,
			"limit":   o.Limit.String(),
		}
	}
	return map[string]any{"metrics": metrics, "exceeded": exceeded}
}

// IsLimitExceeded reports whether err is a LimitExceededError.
func IsLimitExceeded(err error) bool {
	var le *LimitExceededError
	return errors.As(err, &le)
}

// Demand is an amount of one metric an operation is about to consume.
type Demand struct {
	Metric Metric
	Amount int64
}

// Observer is notified of recorded and rejected usage.
type Observer interface {
	UsageRecorded(metric string, amount int64)
	UsageRejected(metric string)
}

// Meter checks and records per-tenant usage against plan limits.
//
// By default limits are soft: Check reads the counter and Record increments
// it after the operation succeeds, so concurrent requests can overshoot a
// limit slightly. WithHardCap switches Admit to an atomic reserve-then-refund
// flow.
type Meter struct {
	store     CounterStore
	catalog   atomic.Pointer[Catalog]
	logger    *observability.Logger
	observers []Observer
	hardCap   bool
	now       func() time.Time
}

// NewMeter creates a meter over store using DefaultCatalog.
func NewMeter(store CounterStore, logger *observability.Logger) *Meter {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	m := &Meter{store: store, logger: logger, now: time.Now}
	c := DefaultCatalog()
	m.catalog.Store(&c)
	return m
}

// WithCatalog replaces the plan limits.
func (m *Meter) WithCatalog(c Catalog) *Meter {
	m.SetCatalog(c)
	return m
}

// WithHardCap enables atomic reservation in Admit.
func (m *Meter) WithHardCap(enabled bool) *Meter {
	m.hardCap = enabled
	return m
}

// WithObserver adds an observer for recorded and rejected usage.
func (m *Meter) WithObserver(o Observer) *Meter {
	m.observers = append(m.observers, o)
	return m
}

// WithClock overrides the time source used to pick the period.
func (m *Meter) WithClock(now func() time.Time) *Meter {
	m.now = now
	return m
}

// SetCatalog swaps the plan limits. Safe to call while serving.
func (m *Meter) SetCatalog(c Catalog) {
	c = c.Clone()
	m.catalog.Store(&c)
}

// Catalog returns the current plan limits.
func (m *Meter) Catalog() Catalog {
	return *m.catalog.Load()
}

// LimitFor returns the limit that applies to tenant for metric.
func (m *Meter) LimitFor(tenant *tenants.Tenant, metric Metric) Limit {
	return m.Catalog().Limit(tenant.Plan, metric)
}

// Check rejects if consuming amount of metric would take tenant over its
// limit. With amount 1 a counter already at its limit is rejected.
func (m *Meter) Check(ctx context.Context, tenant *tenants.Tenant, metric Metric, amount int64) error {
	return m.CheckAll(ctx, tenant, Demand{Metric: metric, Amount: amount})
}

// CheckAll checks several metrics at once and reports every one over limit.
func (m *Meter) CheckAll(ctx context.Context, tenant *tenants.Tenant, demands ...Demand) error {
	now := m.now()
	var over []Overage
	for _, d := range demands {
		limit := m.LimitFor(tenant, d.Metric)
		if limit.IsUnlimited() {
			continue
		}
		current, err := m.store.Get(ctx, KeyFor(tenant.ID, d.Metric, now))
		if err != nil {
			return fmt.Errorf("read %s usage: %w", d.Metric, err)
		}
		if !limit.Allows(current, d.Amount) {
			over = append(over, Overage{Metric: d.Metric, Current: current, Requested: d.Amount, Limit: limit})
		}
	}
	if len(over) == 0 {
		return nil
	}
	for _, o := range over {
		m.rejected(o.Metric)
	}
	return &LimitExceededError{Overages: over}
}

// Record adds amount to the tenant's counter. It never fails: store errors
// are logged and dropped so a successful operation is never undone by
// metering.
func (m *Meter) Record(ctx context.Context, tenantID string, metric Metric, amount int64) {
	if amount == 0 {
		return
	}
	if _, err := m.store.Increment(ctx, KeyFor(tenantID, metric, m.now()), amount); err != nil {
		m.logger.WithError(err).WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"metric":    metric.String(),
			"amount":    amount,
		}).Warn("Failed to record usage")
		return
	}
	m.recorded(metric, amount)
}

func (m *Meter) RecordAPICall(ctx context.Context, tenantID string) {
	m.Record(ctx, tenantID, APICalls, 1)
}

func (m *Meter) RecordAutomationRun(ctx context.Context, tenantID string) {
	m.Record(ctx, tenantID, AutomationRuns, 1)
}

func (m *Meter) RecordEmail(ctx context.Context, tenantID string, count int64) {
	m.Record(ctx, tenantID, Emails, count)
}

func (m *Meter) RecordSMS(ctx context.Context, tenantID string, count int64) {
	m.Record(ctx, tenantID, SMS, count)
}

// RecordStorage sets the storage gauge to totalBytes.
func (m *Meter) RecordStorage(ctx context.Context, tenantID string, totalBytes int64) {
	if err := m.store.Set(ctx, KeyFor(tenantID, Storage, m.now()), totalBytes); err != nil {
		m.logger.WithError(err).WithField("tenant_id", tenantID).Warn("Failed to record storage usage")
	}
}

// Reserve atomically consumes amount if it fits within the limit.
func (m *Meter) Reserve(ctx context.Context, tenant *tenants.Tenant, metric Metric, amount int64) error {
	limit := m.LimitFor(tenant, metric)
	value, ok, err := m.store.CheckAndIncrement(ctx, KeyFor(tenant.ID, metric, m.now()), amount, limit)
	if err != nil {
		return fmt.Errorf("reserve %s usage: %w", metric, err)
	}
	if !ok {
		m.rejected(metric)
		return &LimitExceededError{Overages: []Overage{{Metric: metric, Current: value, Requested: amount, Limit: limit}}}
	}
	m.recorded(metric, amount)
	return nil
}

// Refund returns a reservation for an operation that did not complete.
func (m *Meter) Refund(ctx context.Context, tenantID string, metric Metric, amount int64) {
	if _, err := m.store.Increment(ctx, KeyFor(tenantID, metric, m.now()), -amount); err != nil {
		m.logger.WithError(err).WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"metric":    metric.String(),
		}).Warn("Failed to refund usage")
	}
}

// Ticket is an admitted metered operation. Exactly one of Commit or Cancel
// should be called once the operation's outcome is known.
type Ticket struct {
	meter    *Meter
	tenantID string
	metric   Metric
	amount   int64
	reserved bool
}

// Commit records the usage of a successful operation.
func (t *Ticket) Commit(ctx context.Context) {
	if t == nil || t.reserved {
		return
	}
	t.meter.Record(ctx, t.tenantID, t.metric, t.amount)
}

// Cancel releases a reservation for a failed operation.
func (t *Ticket) Cancel(ctx context.Context) {
	if t == nil || !t.reserved {
		return
	}
	t.meter.Refund(ctx, t.tenantID, t.metric, t.amount)
}

// Admit gates an operation. With a soft cap it checks now and records on
// Commit; with a hard cap it reserves now and refunds on Cancel.
func (m *Meter) Admit(ctx context.Context, tenant *tenants.Tenant, metric Metric, amount int64) (*Ticket, error) {
	t := &Ticket{meter: m, tenantID: tenant.ID, metric: metric, amount: amount}
	if m.hardCap && !metric.IsGauge() {
		if err := m.Reserve(ctx, tenant, metric, amount); err != nil {
			return nil, err
		}
		t.reserved = true
		return t, nil
	}
	if err := m.Check(ctx, tenant, metric, amount); err != nil {
		return nil, err
	}
	return t, nil
}

// MetricUsage is one line of a usage report.
type MetricUsage struct {
	Metric    string `json:"metric"`
	Label     string `json:"label"`
	Used      int64  `json:"used"`
	Limit     Limit  `json:"limit"`
	Remaining *int64 `json:"remaining,omitempty"`
}

// Report is a tenant's usage for the current period.
type Report struct {
	TenantID string        `json:"tenant_id"`
	Plan     tenants.Plan  `json:"plan"`
	Period   string        `json:"period"`
	Metrics  []MetricUsage `json:"metrics"`
}

// Report reads every metric for tenant.
func (m *Meter) Report(ctx context.Context, tenant *tenants.Tenant) (*Report, error) {
	now := m.now()
	r := &Report{TenantID: tenant.ID, Plan: tenant.Plan, Period: PeriodOf(now).String()}
	for _, metric := range Metrics() {
		used, err := m.store.Get(ctx, KeyFor(tenant.ID, metric, now))
		if err != nil {
			return nil, fmt.Errorf("read %s usage: %w", metric, err)
		}
		limit := m.LimitFor(tenant, metric)
		line := MetricUsage{Metric: metric.String(), Label: metric.Label(), Used: used, Limit: limit}
		if rem, ok := limit.Remaining(used); ok {
			line.Remaining = &rem
		}
		r.Metrics = append(r.Metrics, line)
	}
	return r, nil
}

func (m *Meter) recorded(metric Metric, amount int64) {
	for _, o := range m.observers {
		o.UsageRecorded(metric.String(), amount)
	}
}

func (m *Meter) rejected(metric Metric) {
	for _, o := range m.observers {
		o.UsageRejected(metric.String())
	}
}
