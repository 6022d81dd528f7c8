package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ia319/nola/internal/config"
	"github.com/ia319/nola/internal/queue"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check queue database health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				health, err := store.CheckHealth(cmd.Context())
				if err != nil {
					fmt.Fprintln(out, statusError.line("Database", err.Error(), colorize))
					return err
				}

				fmt.Fprintf(out, "Database: %s (SQLite %s)\n", health.DBPath, health.SQLiteVersion)
				fmt.Fprintln(out, checkKind(health.DatabaseExists).line("Exists", yesNo(health.DatabaseExists), colorize))
				fmt.Fprintln(out, checkKind(health.DatabaseReadable).line("Readable", yesNo(health.DatabaseReadable), colorize))
				fmt.Fprintln(out, checkKind(health.TableExists).line("Tasks table", yesNo(health.TableExists), colorize))
				if len(health.MissingColumns) > 0 {
					fmt.Fprintln(out, statusError.line("Schema",
						"missing columns: "+strings.Join(health.MissingColumns, ", "), colorize))
				} else {
					fmt.Fprintln(out, statusOK.line("Schema", "", colorize))
				}
				fmt.Fprintln(out, checkKind(health.IntegrityCheck).line("Integrity", "", colorize))
				fmt.Fprintln(out, statusInfo.line("Total tasks", fmt.Sprintf("%d", health.TotalTasks), colorize))

				summary, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				printHealthSummary(cmd, summary, colorize)
				return nil
			})
		},
	}
}

func printHealthSummary(cmd *cobra.Command, summary queue.HealthSummary, colorize bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintln(out, statusInfo.line("Pending", fmt.Sprintf("%d", summary.Pending), colorize))
	fmt.Fprintln(out, statusInfo.line("Claimed", fmt.Sprintf("%d", summary.Claimed), colorize))
	fmt.Fprintln(out, statusOK.line("Completed", fmt.Sprintf("%d", summary.Completed), colorize))
	fmt.Fprintln(out, countKind(summary.Failed, statusWarn).line("Failed", fmt.Sprintf("%d", summary.Failed), colorize))
	fmt.Fprintln(out, countKind(summary.Dead, statusError).line("Dead", fmt.Sprintf("%d", summary.Dead), colorize))
	fmt.Fprintln(out, statusInfo.line("Cancelled", fmt.Sprintf("%d", summary.Cancelled), colorize))
}
