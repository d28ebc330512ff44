// Package cli implements the operator subcommands of the fieldops binary.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

const usage = `usage:
  fieldops roles check [--json] <file>
  fieldops jobs trigger sessions:cleanup [--redis addr]
  fieldops jobs inspect [--redis addr]
`

// Run dispatches args to a subcommand and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	switch args[0] + " " + args[1] {
	case "roles check":
		return runRolesCheck(args[2:], stdout, stderr)
	case "jobs trigger", "jobs inspect":
		return runJobs(ctx, args[1], args[2:], stdout, stderr)
	default:
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
}

func runRolesCheck(args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("roles check", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	jsonOut := flags.Bool("json", false, "print the result as JSON")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	return RolesCheckCommand(RolesCheckOptions{
		Path:       flags.Arg(0),
		JSONOutput: *jsonOut,
		Stdout:     stdout,
		Stderr:     stderr,
	})
}

func runJobs(ctx context.Context, action string, args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("jobs "+action, pflag.ContinueOnError)
	flags.SetOutput(stderr)
	addr := flags.String("redis", envOr("REDIS_ADDR", "127.0.0.1:6379"), "redis address backing the queue")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	c := NewJobsCLI(*addr)
	defer func() { _ = c.Close() }()
	return jobsCommand(ctx, c, action, flags.Args(), stdout, stderr)
}

func jobsCommand(ctx context.Context, c *JobsCLI, action string, args []string, stdout, stderr io.Writer) int {
	switch action {
	case "trigger":
		if len(args) != 1 {
			_, _ = fmt.Fprint(stderr, usage)
			return 2
		}
		info, err := c.Trigger(ctx, args[0])
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
		return 0
	default:
		stats, err := c.InspectQueues()
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs inspect: %v\n", err)
			return 1
		}
		if err := json.NewEncoder(stdout).Encode(stats); err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs inspect: encode json: %v\n", err)
			return 1
		}
		return 0
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
