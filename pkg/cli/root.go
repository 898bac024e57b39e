package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/platinummonkey/crmgate/pkg/audit"
	"github.com/platinummonkey/crmgate/pkg/auth"
	"github.com/platinummonkey/crmgate/pkg/tenants"
	"github.com/platinummonkey/crmgate/pkg/usage"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// Env is what the admin commands operate on.
type Env struct {
	Tenants   tenants.Store
	Lifecycle *tenants.Lifecycle
	Meter     *usage.Meter
	// Sessions is nil unless sessions live in a store the server shares.
	Sessions *auth.SessionManager
	Audit    audit.Store
	Close    func() error
}

// Connector opens an Env for a single command.
type Connector func(ctx context.Context) (*Env, error)

// NewRootCommand creates the root command. Commands write their results to
// out.
func NewRootCommand(connect Connector, out io.Writer) *Command {
	root := &Command{
		Name:        "crmgate-admin",
		Description: "crmgate - tenant administration",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("crmgate-admin", flag.ExitOnError),
	}

	r := &runner{connect: connect, out: out}

	// Add subcommands
	root.Subcommands["issue-session"] = newIssueSessionCommand(r)
	root.Subcommands["suspend"] = newSuspendCommand(r)
	root.Subcommands["reinstate"] = newReinstateCommand(r)
	root.Subcommands["set-plan"] = newSetPlanCommand(r)
	root.Subcommands["set-seats"] = newSetSeatsCommand(r)
	root.Subcommands["expire-trials"] = newExpireTrialsCommand(r)
	root.Subcommands["usage"] = newUsageCommand(r)
	root.Subcommands["limits"] = newLimitsCommand(r)
	root.Subcommands["audit"] = newAuditCommand(r)

	return root
}

// Execute runs the command with the process arguments.
func (c *Command) Execute() error {
	return c.ExecuteArgs(os.Args[1:])
}

// ExecuteArgs runs the command with args, which exclude the program name.
func (c *Command) ExecuteArgs(args []string) error {
	if len(args) == 0 {
		return c.usage()
	}

	// Check for help flag
	if strings.EqualFold(args[0], "-h") || strings.EqualFold(args[0], "--help") {
		return c.usage()
	}

	// Check for subcommand
	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	fmt.Printf("Usage: %s <command> [args]\n\n", c.Name)
	fmt.Printf("Commands:\n")

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

// runner opens an Env around a command body.
type runner struct {
	connect Connector
	out     io.Writer
}

func (r *runner) with(fn func(ctx context.Context, env *Env) error) error {
	ctx := context.Background()
	env, err := r.connect(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if env.Close != nil {
		defer env.Close()
	}
	return fn(ctx, env)
}

func (r *runner) printf(format string, args ...interface{}) {
	fmt.Fprintf(r.out, format, args...)
}

// parse parses args with flags and returns the first error, including
// missing required string flags.
func parse(flags *flag.FlagSet, args []string, required ...string) error {
	if err := flags.Parse(args); err != nil {
		return err
	}
	for _, name := range required {
		if f := flags.Lookup(name); f == nil || f.Value.String() == "" {
			return fmt.Errorf("--%s is required", name)
		}
	}
	return nil
}
