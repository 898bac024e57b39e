package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/platinummonkey/crmgate/pkg/audit"
)

func newAuditCommand(r *runner) *Command {
	cmd := &Command{
		Name:        "audit",
		Description: "Export a tenant's audit trail",
		Flags:       flag.NewFlagSet("audit", flag.ContinueOnError),
	}
	tenantID := cmd.Flags.String("tenant", "", "Tenant ID")
	format := cmd.Flags.String("format", "json", "Output format: json, ndjson, csv")
	since := cmd.Flags.Duration("since", 24*time.Hour, "How far back to look")
	status := cmd.Flags.String("status", "", "Only events with this status (success, failure, denied)")
	limit := cmd.Flags.Int("limit", audit.MaxSearchLimit, "Maximum events")

	cmd.Run = func(args []string) error {
		if err := parse(cmd.Flags, args, "tenant"); err != nil {
			return err
		}
		f, err := audit.ParseExportFormat(*format)
		if err != nil {
			return err
		}

		return r.with(func(ctx context.Context, env *Env) error {
			if env.Audit == nil {
				return errors.New("audit trail is disabled (CRM_AUDIT_ENABLED=false)")
			}
			if _, err := env.Tenants.GetTenant(ctx, *tenantID); err != nil {
				return fmt.Errorf("tenant %s: %w", *tenantID, err)
			}

			filter := audit.SearchFilter{
				TenantID: *tenantID,
				Status:   audit.EventStatus(*status),
				Limit:    *limit,
			}
			if *since > 0 {
				filter.Since = time.Now().Add(-*since)
			}
			events, err := env.Audit.Search(ctx, filter)
			if err != nil {
				return err
			}
			return audit.Export(r.out, events, f)
		})
	}
	return cmd
}
