package usage

import (
	"fmt"
	"time"
)

// Period is a calendar month in UTC.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod parses the YYYY-MM form produced by String.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: %w", s, err)
	}
	return PeriodOf(t), nil
}

func (p Period) IsZero() bool { return p.Year == 0 }

func (p Period) String() string {
	if p.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Start is midnight UTC on the first day of the month.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the start of the next period.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

func (p Period) Next() Period { return PeriodOf(p.End()) }

// Before reports whether p is strictly earlier than o.
func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

// Key addresses one counter. Gauge metrics carry a zero Period.
type Key struct {
	TenantID string
	Metric   Metric
	Period   Period
}

// KeyFor builds the key for metric at time t.
func KeyFor(tenantID string, m Metric, t time.Time) Key {
	k := Key{TenantID: tenantID, Metric: m}
	if !m.IsGauge() {
		k.Period = PeriodOf(t)
	}
	return k
}

func (k Key) String() string {
	if k.Period.IsZero() {
		return k.TenantID + ":" + k.Metric.String()
	}
	return k.TenantID + ":" + k.Metric.String() + ":" + k.Period.String()
}
