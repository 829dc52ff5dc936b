// librisctl is the operator command line for Libris: role and
// membership management, drift verification and manual job control.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/libris-app/libris/cmd/librisctl/cli"
	"github.com/libris-app/libris/internal/app"
	"github.com/libris-app/libris/internal/platform/db"
	"github.com/libris-app/libris/internal/rbac"
)

const usage = `usage: librisctl <command> [args]

commands:
  seed                         converge the permission catalog and default roles
  roles                        print each role and its grants
  grants <user-id>             print a user's effective permissions
  assign-role <user-id> <role> add a user to a role
  remove-role <user-id> <role> remove a user from a role
  verify [-converge]           check default roles against their defaults
  jobs trigger <task>          enqueue a background job by task type
  jobs stats                   print default queue statistics
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx := context.Background()
	if err := run(ctx, cfg, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "librisctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, command string, args []string) error {
	switch command {
	case "seed", "roles", "grants", "assign-role", "remove-role", "verify":
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		rbacCLI := cli.NewRBACCLI(rbac.NewService(rbac.NewPGStore(pool), slog.Default()), os.Stdout)
		return runRBAC(ctx, rbacCLI, command, args)
	case "jobs":
		jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer jobsCLI.Close()
		return runJobs(ctx, jobsCLI, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func runRBAC(ctx context.Context, rbacCLI *cli.RBACCLI, command string, args []string) error {
	switch command {
	case "seed":
		return rbacCLI.Seed(ctx)
	case "roles":
		return rbacCLI.Roles(ctx)
	case "grants":
		if len(args) != 1 {
			return fmt.Errorf("grants requires a user id")
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q", args[0])
		}
		return rbacCLI.Grants(ctx, id)
	case "assign-role", "remove-role":
		if len(args) != 2 {
			return fmt.Errorf("%s requires a user id and a role name", command)
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q", args[0])
		}
		if command == "assign-role" {
			return rbacCLI.AssignRole(ctx, id, args[1])
		}
		return rbacCLI.RemoveRole(ctx, id, args[1])
	case "verify":
		fs := flag.NewFlagSet("verify", flag.ContinueOnError)
		converge := fs.Bool("converge", false, "reset drifted roles to their defaults")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return rbacCLI.Verify(ctx, *converge)
	}
	return fmt.Errorf("unknown command %q", command)
}

func runJobs(ctx context.Context, jobsCLI *cli.JobsCLI, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("jobs requires a subcommand (trigger, stats)")
	}
	switch args[0] {
	case "trigger":
		if len(args) != 2 {
			return fmt.Errorf("jobs trigger requires a task type")
		}
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", args[1], info.ID, info.Queue)
		return nil
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return nil
	default:
		return fmt.Errorf("unknown jobs subcommand %q", args[0])
	}
}
