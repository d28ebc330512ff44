package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fieldops/fieldops/internal/rbac"
)

// RolesCheckOptions defines available flags for the roles check command.
type RolesCheckOptions struct {
	Path       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// RolesCheckSummary describes the JSON response for roles check.
type RolesCheckSummary struct {
	OK    bool       `json:"ok"`
	Path  string     `json:"path"`
	Error string     `json:"error,omitempty"`
	Roles []RoleDiff `json:"roles,omitempty"`
}

// RoleDiff compares one role of the checked table against the built-in one.
type RoleDiff struct {
	Role        string   `json:"role"`
	Permissions int      `json:"permissions"`
	Added       []string `json:"added,omitempty"`
	Removed     []string `json:"removed,omitempty"`
	Missing     bool     `json:"missing,omitempty"`
}

// CheckRoleTable validates the YAML table at path and diffs it against the
// built-in defaults.
func CheckRoleTable(path string) (RolesCheckSummary, error) {
	summary := RolesCheckSummary{Path: path}
	reg, err := rbac.LoadRegistryFile(path)
	if err != nil {
		summary.Error = err.Error()
		return summary, err
	}
	summary.OK = true
	builtin := rbac.DefaultRegistry()
	for _, role := range rbac.AllRoles() {
		diff := RoleDiff{Role: string(role)}
		got, err := reg.DefaultPermissions(role)
		if err != nil {
			diff.Missing = true
			summary.Roles = append(summary.Roles, diff)
			continue
		}
		want, _ := builtin.DefaultPermissions(role)
		diff.Permissions = got.Len()
		diff.Added = got.Minus(want).Strings()
		diff.Removed = want.Minus(got).Strings()
		summary.Roles = append(summary.Roles, diff)
	}
	return summary, nil
}

// RolesCheckCommand executes roles check and prints the outcome. It exits 1
// when the table cannot be loaded and 10 when a declared role is absent.
func RolesCheckCommand(opts RolesCheckOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if strings.TrimSpace(opts.Path) == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "roles check: path to a role table is required")
		return 2
	}
	summary, err := CheckRoleTable(opts.Path)
	if opts.JSONOutput {
		if encErr := json.NewEncoder(opts.Stdout).Encode(summary); encErr != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "roles check: encode json: %v\n", encErr)
			return 1
		}
	}
	if err != nil {
		if !opts.JSONOutput {
			_, _ = fmt.Fprintf(opts.Stderr, "roles check: %v\n", err)
		}
		return 1
	}
	if !opts.JSONOutput {
		renderRolesHuman(opts.Stdout, summary)
	}
	for _, diff := range summary.Roles {
		if diff.Missing {
			return 10
		}
	}
	return 0
}

func renderRolesHuman(w io.Writer, summary RolesCheckSummary) {
	_, _ = fmt.Fprintf(w, "%s: ok\n", summary.Path)
	for _, diff := range summary.Roles {
		if diff.Missing {
			_, _ = fmt.Fprintf(w, "  %-18s missing\n", diff.Role)
			continue
		}
		_, _ = fmt.Fprintf(w, "  %-18s %2d permissions", diff.Role, diff.Permissions)
		if len(diff.Added) > 0 {
			_, _ = fmt.Fprintf(w, "  +%s", strings.Join(diff.Added, ",+"))
		}
		if len(diff.Removed) > 0 {
			_, _ = fmt.Fprintf(w, "  -%s", strings.Join(diff.Removed, ",-"))
		}
		_, _ = fmt.Fprintln(w)
	}
}
