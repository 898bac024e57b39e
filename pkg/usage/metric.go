package usage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownMetric is returned when parsing a name outside the catalog.
var ErrUnknownMetric = errors.New("unknown usage metric")

// Metric is a metered resource. The zero value is not a valid metric.
type Metric struct {
	key string
}

var (
	APICalls       = Metric{"api_calls"}
	Storage        = Metric{"storage"}
	AutomationRuns = Metric{"automation_runs"}
	Emails         = Metric{"emails"}
	SMS            = Metric{"sms"}
)

var metricLabels = map[Metric]string{
	APICalls:       "API calls",
	Storage:        "storage",
	AutomationRuns: "automation runs",
	Emails:         "emails",
	SMS:            "SMS messages",
}

// Metrics returns every metric in display order.
func Metrics() []Metric {
	return []Metric{APICalls, Storage, AutomationRuns, Emails, SMS}
}

// ParseMetric returns the metric for its wire key.
func ParseMetric(s string) (Metric, error) {
	m := Metric{strings.ToLower(strings.TrimSpace(s))}
	if _, ok := metricLabels[m]; !ok {
		return Metric{}, fmt.Errorf("%w: %q", ErrUnknownMetric, s)
	}
	return m, nil
}

func (m Metric) String() string { return m.key }

// Label is the human-readable name used in denial messages.
func (m Metric) Label() string {
	if l, ok := metricLabels[m]; ok {
		return l
	}
	return m.key
}

// IsGauge reports whether the metric tracks a running total rather than a
// per-period count. Gauges are never reset.
func (m Metric) IsGauge() bool { return m == Storage }

func (m Metric) IsZero() bool { return m.key == "" }

func (m Metric) MarshalText() ([]byte, error) { return []byte(m.key), nil }

func (m *Metric) UnmarshalText(b []byte) error {
	v, err := ParseMetric(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

const unlimitedWord = "unlimited"

// Limit caps a metric for one plan. A Limit is either a finite ceiling or
// unlimited; the two are distinct states and no number means "unlimited".
// The zero value is Limited(0), which blocks everything.
type Limit struct {
	n         int64
	unlimited bool
}

// Limited returns a finite ceiling. Negative values are clamped to zero.
func Limited(n int64) Limit {
	if n < 0 {
		n = 0
	}
	return Limit{n: n}
}

// Unlimited returns a limit that never blocks.
func Unlimited() Limit { return Limit{unlimited: true} }

func (l Limit) IsUnlimited() bool { return l.unlimited }

// Value returns the ceiling and false for an unlimited limit.
func (l Limit) Value() (int64, bool) {
	if l.unlimited {
		return 0, false
	}
	return l.n, true
}

// Allows reports whether current+amount stays within the limit.
func (l Limit) Allows(current, amount int64) bool {
	if l.unlimited {
		return true
	}
	return current+amount <= l.n
}

// Remaining returns how much is left, or false for unlimited.
func (l Limit) Remaining(current int64) (int64, bool) {
	if l.unlimited {
		return 0, false
	}
	if current >= l.n {
		return 0, true
	}
	return l.n - current, true
}

func (l Limit) String() string {
	if l.unlimited {
		return unlimitedWord
	}
	return strconv.FormatInt(l.n, 10)
}

// ParseLimit accepts a non-negative integer or "unlimited".
func ParseLimit(s string) (Limit, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, unlimitedWord) {
		return Unlimited(), nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return Limit{}, fmt.Errorf("invalid limit %q: want a non-negative integer or %q", s, unlimitedWord)
	}
	return Limited(n), nil
}

func (l Limit) MarshalYAML() (interface{}, error) {
	if l.unlimited {
		return unlimitedWord, nil
	}
	return l.n, nil
}

func (l *Limit) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: limit must be a scalar", node.Line)
	}
	v, err := ParseLimit(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*l = v
	return nil
}

func (l Limit) MarshalJSON() ([]byte, error) {
	if l.unlimited {
		return []byte(`"` + unlimitedWord + `"`), nil
	}
	return []byte(strconv.FormatInt(l.n, 10)), nil
}
