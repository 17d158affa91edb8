package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/toolsascode/arcade/internal/executor"
	"github.com/toolsascode/arcade/internal/registry"
)

var (
	dryRun    bool
	targetVer int64
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply, revert and inspect migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration in ascending order",
	Example: `  arcade migrate up -c core
  arcade migrate up --url http://localhost:2480 -d shop --dry-run`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, conn, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()
		ctx := cliContext(cmd.Context())

		res, err := a.Engine.Up(ctx, conn, a.Registry, executor.Options{DryRun: dryRun, Connection: connectionName})
		printResult(cmd.OutOrStdout(), "Applied", res, err)
		return err
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert applied migrations above a target version",
	Example: `  arcade migrate down -c core --to 20240101120000
  arcade migrate down -c core --to 0 --dry-run`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("to") {
			return fmt.Errorf("--to is required (use --to 0 to revert everything)")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, conn, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()
		ctx := cliContext(cmd.Context())

		res, err := a.Engine.Down(ctx, conn, a.Registry, targetVer, executor.Options{DryRun: dryRun, Connection: connectionName})
		printResult(cmd.OutOrStdout(), "Reverted", res, err)
		return err
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show every known version and whether it is applied",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, conn, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		items, err := a.Engine.Status(ctx, conn, a.Registry)
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), items)
		return nil
	},
}

var migratePendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List the versions that `migrate up` would apply",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, conn, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		pending, err := a.Engine.Pending(ctx, conn, a.Registry)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(pending) == 0 {
			fmt.Fprintln(out, "Database is up to date")
			return nil
		}
		for _, v := range pending {
			name := ""
			if m, ok := a.Registry.Get(v); ok {
				name = registry.NameOf(m)
			}
			fmt.Fprintf(out, "%d\t%s\n", v, name)
		}
		return nil
	},
}

func init() {
	migrateUpCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be applied without changing the database")
	migrateDownCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be reverted without changing the database")
	migrateDownCmd.Flags().Int64Var(&targetVer, "to", 0, "Version to keep; everything above it is reverted")

	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd, migratePendingCmd, migrateNewCmd)
}

// cliContext tags runs started from the command line in the history store.
func cliContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	user := os.Getenv("USER")
	if user == "" {
		user = "cli"
	}
	return executor.SetExecutionContext(ctx, user, "cli", map[string]interface{}{"connection": connectionName})
}

// printResult reports what a run did. A failed run also lists the planned
// versions it never reached.
func printResult(out io.Writer, verb string, res *executor.Result, runErr error) {
	if res == nil {
		return
	}
	if res.DryRun {
		if len(res.Planned) == 0 {
			fmt.Fprintln(out, "Nothing to do")
			return
		}
		fmt.Fprintf(out, "Dry run, would be %s: %s\n", strings.ToLower(verb), joinVersions(res.Planned))
		return
	}
	if len(res.Versions) > 0 {
		fmt.Fprintf(out, "%s %d migration(s): %s\n", verb, len(res.Versions), joinVersions(res.Versions))
	}
	if runErr != nil {
		if left := res.Planned[min(len(res.Versions), len(res.Planned)):]; len(left) > 0 {
			fmt.Fprintf(out, "Stopped, not %s: %s\n", strings.ToLower(verb), joinVersions(left))
		}
		return
	}
	if len(res.Versions) == 0 {
		fmt.Fprintln(out, "Nothing to do")
	}
}

func printStatus(out io.Writer, items []executor.VersionStatus) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
	for _, it := range items {
		status := "pending"
		switch {
		case it.Unknown:
			status = "applied (unknown)"
		case it.Applied:
			status = "applied"
		}
		appliedAt := "-"
		if !it.AppliedAt.IsZero() {
			appliedAt = it.AppliedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", it.Version, it.Name, status, appliedAt)
	}
	_ = w.Flush()
}

func joinVersions(versions []int64) string {
	parts := make([]string, len(versions))
	for i, v := range versions {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ", ")
}
