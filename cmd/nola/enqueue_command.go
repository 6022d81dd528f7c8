package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ia319/nola/internal/config"
	"github.com/ia319/nola/internal/daemon"
	"github.com/ia319/nola/internal/engine"
	"github.com/ia319/nola/internal/queue"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var (
		priority    int
		maxAttempts int
		optionsJSON string
	)

	cmd := &cobra.Command{
		Use:   "enqueue <file-id|path>",
		Short: "Create a transcription task",
		Long: "Create a transcription task for a staged file ID. When given a " +
			"local path instead, the file is staged first.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := engine.ParseOptions(optionsJSON); err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()

				fileID := args[0]
				if _, err := os.Stat(args[0]); err == nil {
					record, err := daemon.StageFile(cmd.Context(), cfg, store, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Staged %s as file %s\n", record.Filename, record.ID)
					fileID = record.ID
				}

				task, err := store.Enqueue(cmd.Context(), queue.EnqueueRequest{
					FileID:      fileID,
					OptionsJSON: optionsJSON,
					Priority:    priority,
					MaxAttempts: maxAttempts,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Task %s queued (priority %d, max attempts %d)\n",
					task.ID, task.Priority, task.MaxAttempts)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "Task priority (higher runs first)")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Attempt budget (0 uses the configured default)")
	cmd.Flags().StringVarP(&optionsJSON, "options", "o", "", "Transcription options as JSON")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a pending or in-flight task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				cancelled, err := store.Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !cancelled {
					return fmt.Errorf("task %s not found or already finished", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s cancelled\n", args[0])
				return nil
			})
		},
	}
}
