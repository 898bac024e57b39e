package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/platinummonkey/crmgate"

// OTelMetrics holds OpenTelemetry metric instruments for policy decisions.
type OTelMetrics struct {
	usageRecorded metric.Int64Counter
	rejections    metric.Int64Counter
	dbReplicas    metric.Int64Gauge
}

// NewOTelMetrics creates the instruments on meter. A nil meter uses the
// global provider.
func NewOTelMetrics(meter metric.Meter) (*OTelMetrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	m := &OTelMetrics{}
	var err error

	m.usageRecorded, err = meter.Int64Counter(
		"crm.usage.recorded",
		metric.WithDescription("Units of metered usage recorded"),
		metric.WithUnit("{unit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create usage recorded counter: %w", err)
	}

	m.rejections, err = meter.Int64Counter(
		"crm.policy.rejections",
		metric.WithDescription("Requests rejected by a gate or usage limit"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rejections counter: %w", err)
	}

	m.dbReplicas, err = meter.Int64Gauge(
		"crm.db.replicas",
		metric.WithDescription("Read replicas in rotation"),
		metric.WithUnit("{replica}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create db replicas gauge: %w", err)
	}

	return m, nil
}

// RecordUsage adds amount units of a usage metric.
func (m *OTelMetrics) RecordUsage(usageMetric string, amount int64) {
	m.usageRecorded.Add(context.Background(), amount,
		metric.WithAttributes(attribute.String("usage.metric", usageMetric)))
}

// RecordRejection counts a rejection by check and denial code.
func (m *OTelMetrics) RecordRejection(check, code string) {
	m.rejections.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("policy.check", check),
		attribute.String("policy.code", code),
	))
}

// SetDBReplicas records the replica count.
func (m *OTelMetrics) SetDBReplicas(ctx context.Context, n int) {
	m.dbReplicas.Record(ctx, int64(n))
}
