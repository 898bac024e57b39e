package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/crmgate/pkg/async"
	"github.com/platinummonkey/crmgate/pkg/usage"
)

const reportTimeout = 10 * time.Second

func newUsageCommand(r *runner) *Command {
	cmd := &Command{
		Name:        "usage",
		Description: "Print current-period usage for tenants",
		Flags:       flag.NewFlagSet("usage", flag.ContinueOnError),
	}
	ids := cmd.Flags.String("tenant", "", "Comma-separated tenant IDs")
	workers := cmd.Flags.Int("workers", 4, "Reports fetched in parallel")

	cmd.Run = func(args []string) error {
		if err := parse(cmd.Flags, args, "tenant"); err != nil {
			return err
		}
		tenantIDs := splitList(*ids)

		return r.with(func(ctx context.Context, env *Env) error {
			var (
				mu      sync.Mutex
				reports = make(map[string]*usage.Report, len(tenantIDs))
			)
			errs := async.Batch(ctx, tenantIDs, *workers, "usage report", reportTimeout,
				func(ctx context.Context, id string) error {
					t, err := env.Tenants.GetTenant(ctx, id)
					if err != nil {
						return fmt.Errorf("tenant %s: %w", id, err)
					}
					report, err := env.Meter.Report(ctx, t)
					if err != nil {
						return fmt.Errorf("tenant %s: %w", id, err)
					}
					mu.Lock()
					reports[id] = report
					mu.Unlock()
					return nil
				})

			ordered := make([]*usage.Report, 0, len(reports))
			for _, id := range tenantIDs {
				if report, ok := reports[id]; ok {
					ordered = append(ordered, report)
				}
			}
			enc := json.NewEncoder(r.out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(ordered); err != nil {
				return err
			}
			return errors.Join(errs...)
		})
	}
	return cmd
}

func newLimitsCommand(r *runner) *Command {
	cmd := &Command{
		Name:        "limits",
		Description: "Print the effective plan limits",
		Flags:       flag.NewFlagSet("limits", flag.ContinueOnError),
	}
	file := cmd.Flags.String("file", "", "Limits file to validate and print (default: built-in limits)")

	cmd.Run = func(args []string) error {
		if err := parse(cmd.Flags, args); err != nil {
			return err
		}
		catalog := usage.DefaultCatalog()
		if *file != "" {
			var err error
			if catalog, err = usage.LoadCatalogFile(*file); err != nil {
				return err
			}
		}
		enc := yaml.NewEncoder(r.out)
		defer enc.Close()
		return enc.Encode(catalog)
	}
	return cmd
}

func splitList(s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}
