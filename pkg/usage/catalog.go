package usage

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/crmgate/pkg/tenants"
)

const gib = int64(1) << 30

// Catalog maps each plan to its per-metric limits.
type Catalog map[tenants.Plan]map[Metric]Limit

// DefaultCatalog returns the built-in plan limits.
func DefaultCatalog() Catalog {
	return Catalog{
		tenants.PlanStarter: {
			APICalls:       Limited(10_000),
			Storage:        Limited(1 * gib),
			AutomationRuns: Limited(1_000),
			Emails:         Limited(1_000),
			SMS:            Limited(100),
		},
		tenants.PlanProfessional: {
			APICalls:       Limited(100_000),
			Storage:        Limited(10 * gib),
			AutomationRuns: Limited(10_000),
			Emails:         Limited(10_000),
			SMS:            Limited(1_000),
		},
		tenants.PlanEnterprise: {
			APICalls:       Unlimited(),
			Storage:        Limited(100 * gib),
			AutomationRuns: Unlimited(),
			Emails:         Unlimited(),
			SMS:            Limited(5_000),
		},
	}
}

// Limit returns the limit for plan and metric. Unknown combinations fail
// closed with Limited(0).
func (c Catalog) Limit(plan tenants.Plan, m Metric) Limit {
	limits, ok := c[plan]
	if !ok {
		return Limited(0)
	}
	l, ok := limits[m]
	if !ok {
		return Limited(0)
	}
	return l
}

// Clone returns a deep copy.
func (c Catalog) Clone() Catalog {
	out := make(Catalog, len(c))
	for plan, limits := range c {
		cp := make(map[Metric]Limit, len(limits))
		for m, l := range limits {
			cp[m] = l
		}
		out[plan] = cp
	}
	return out
}

type catalogFile struct {
	Plans map[string]map[string]Limit `yaml:"plans"`
}

// LoadCatalog reads limit overrides from YAML and layers them over the
// defaults:
//
//	plans:
//	  starter:
//	    sms: 250
//	  enterprise:
//	    sms: unlimited
//
// Unknown plan or metric names are rejected.
func LoadCatalog(r io.Reader) (Catalog, error) {
	var f catalogFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode usage limits: %w", err)
	}

	c := DefaultCatalog()
	for planName, limits := range f.Plans {
		plan, err := tenants.ParsePlan(planName)
		if err != nil {
			return nil, err
		}
		if c[plan] == nil {
			c[plan] = make(map[Metric]Limit)
		}
		for metricName, l := range limits {
			m, err := ParseMetric(metricName)
			if err != nil {
				return nil, fmt.Errorf("plan %s: %w", plan, err)
			}
			c[plan][m] = l
		}
	}
	return c, nil
}

// LoadCatalogFile is LoadCatalog for a path.
func LoadCatalogFile(path string) (Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open usage limits: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

// MarshalYAML writes the catalog in the LoadCatalog format.
func (c Catalog) MarshalYAML() (interface{}, error) {
	f := catalogFile{Plans: make(map[string]map[string]Limit, len(c))}
	for plan, limits := range c {
		out := make(map[string]Limit, len(limits))
		for m, l := range limits {
			out[m.String()] = l
		}
		f.Plans[string(plan)] = out
	}
	return f, nil
}
