package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/platinummonkey/crmgate/pkg/rbac"
	"github.com/platinummonkey/crmgate/pkg/tenants"
)

// transitionCommand builds a command that applies one lifecycle transition
// to --tenant.
func transitionCommand(r *runner, name, description string,
	apply func(ctx context.Context, lc *tenants.Lifecycle, id string) (*tenants.Tenant, error)) *Command {

	cmd := &Command{
		Name:        name,
		Description: description,
		Flags:       flag.NewFlagSet(name, flag.ContinueOnError),
	}
	tenantID := cmd.Flags.String("tenant", "", "Tenant ID")

	cmd.Run = func(args []string) error {
		if err := parse(cmd.Flags, args, "tenant"); err != nil {
			return err
		}
		return r.with(func(ctx context.Context, env *Env) error {
			t, err := apply(ctx, env.Lifecycle, *tenantID)
			if err != nil {
				return fmt.Errorf("%s %s: %w", name, *tenantID, err)
			}
			r.printf("tenant %s: status=%s subscription=%s plan=%s seats=%d\n",
				t.ID, t.Status, t.SubscriptionStatus, t.Plan, t.MaxUsers)
			return nil
		})
	}
	return cmd
}

func newSuspendCommand(r *runner) *Command {
	return transitionCommand(r, "suspend", "Suspend a tenant",
		func(ctx context.Context, lc *tenants.Lifecycle, id string) (*tenants.Tenant, error) {
			return lc.Suspend(ctx, id)
		})
}

func newReinstateCommand(r *runner) *Command {
	return transitionCommand(r, "reinstate", "Reinstate a suspended tenant",
		func(ctx context.Context, lc *tenants.Lifecycle, id string) (*tenants.Tenant, error) {
			return lc.Reinstate(ctx, id)
		})
}

func newSetPlanCommand(r *runner) *Command {
	var plan *string
	cmd := transitionCommand(r, "set-plan", "Move a tenant to another plan",
		func(ctx context.Context, lc *tenants.Lifecycle, id string) (*tenants.Tenant, error) {
			p, err := tenants.ParsePlan(*plan)
			if err != nil {
				return nil, err
			}
			return lc.ChangePlan(ctx, id, p)
		})
	plan = cmd.Flags.String("plan", "", "Plan: starter, professional or enterprise")
	return cmd
}

func newSetSeatsCommand(r *runner) *Command {
	var seats *int
	cmd := transitionCommand(r, "set-seats", "Override a tenant's seat limit",
		func(ctx context.Context, lc *tenants.Lifecycle, id string) (*tenants.Tenant, error) {
			return lc.SetMaxUsers(ctx, id, *seats)
		})
	seats = cmd.Flags.Int("max", -1, "Maximum active users")
	return cmd
}

func newExpireTrialsCommand(r *runner) *Command {
	cmd := &Command{
		Name:        "expire-trials",
		Description: "Cancel trials past their end date",
		Flags:       flag.NewFlagSet("expire-trials", flag.ContinueOnError),
	}
	cmd.Run = func(args []string) error {
		if err := parse(cmd.Flags, args); err != nil {
			return err
		}
		return r.with(func(ctx context.Context, env *Env) error {
			n, err := env.Lifecycle.ExpireTrials(ctx)
			if err != nil {
				return err
			}
			r.printf("expired %d trial(s)\n", n)
			return nil
		})
	}
	return cmd
}

func newIssueSessionCommand(r *runner) *Command {
	cmd := &Command{
		Name:        "issue-session",
		Description: "Issue a session token for a tenant member",
		Flags:       flag.NewFlagSet("issue-session", flag.ContinueOnError),
	}
	userID := cmd.Flags.String("user", "", "User ID")
	tenantID := cmd.Flags.String("tenant", "", "Tenant ID")
	roleName := cmd.Flags.String("role", "", "Role: admin, manager, sales_rep or viewer")

	cmd.Run = func(args []string) error {
		if err := parse(cmd.Flags, args, "user", "tenant", "role"); err != nil {
			return err
		}
		role, err := rbac.ParseRole(*roleName)
		if err != nil {
			return err
		}
		return r.with(func(ctx context.Context, env *Env) error {
			if env.Sessions == nil {
				return fmt.Errorf("sessions are not shared with the server; use the redis session backend")
			}
			if _, err := env.Tenants.GetTenant(ctx, *tenantID); err != nil {
				return fmt.Errorf("tenant %s: %w", *tenantID, err)
			}
			token, sess, err := env.Sessions.Issue(ctx, *userID, *tenantID, role)
			if err != nil {
				return err
			}
			r.printf("%s\n", token)
			r.printf("session %s expires %s\n", sess.ID, sess.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
			return nil
		})
	}
	return cmd
}
