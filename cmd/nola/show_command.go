package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ia319/nola/internal/config"
	"github.com/ia319/nola/internal/engine"
	"github.com/ia319/nola/internal/queue"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var showSegments bool

	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				task, err := store.GetTask(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if task == nil {
					return fmt.Errorf("task %s not found", args[0])
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Task:         %s\n", task.ID)
				fmt.Fprintf(out, "File:         %s\n", task.FileID)
				fmt.Fprintf(out, "Status:       %s\n", task.Status)
				fmt.Fprintf(out, "Priority:     %d\n", task.Priority)
				fmt.Fprintf(out, "Attempts:     %d/%d\n", task.AttemptCount, task.MaxAttempts)
				fmt.Fprintf(out, "Created:      %s\n", task.CreatedAt.Local().Format(time.RFC3339))
				if task.OptionsJSON != "" {
					fmt.Fprintf(out, "Options:      %s\n", task.OptionsJSON)
				}
				if task.ClaimedBy != "" {
					fmt.Fprintf(out, "Worker:       %s\n", task.ClaimedBy)
					fmt.Fprintf(out, "Progress:     %.1f%%\n", task.Progress)
				}
				if task.HeartbeatAt != nil {
					fmt.Fprintf(out, "Heartbeat:    %s\n", task.HeartbeatAt.Local().Format(time.RFC3339))
				}
				if task.NotBefore != nil {
					fmt.Fprintf(out, "Not before:   %s\n", task.NotBefore.Local().Format(time.RFC3339))
				}
				if task.CompletedAt != nil {
					fmt.Fprintf(out, "Finished:     %s\n", task.CompletedAt.Local().Format(time.RFC3339))
				}
				if task.ErrorMessage != "" {
					fmt.Fprintf(out, "Error:        %s\n", task.ErrorMessage)
				}
				if task.LastError != "" && task.LastError != task.ErrorMessage {
					fmt.Fprintf(out, "Last error:   %s\n", task.LastError)
				}
				if task.Status == queue.StatusCompleted {
					fmt.Fprintf(out, "Duration:     %.1fs\n", task.Duration)
					printSegments(out, task.ResultJSON, showSegments)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&showSegments, "segments", false, "Print the transcript segments")
	return cmd
}

func printSegments(out io.Writer, resultJSON string, full bool) {
	if resultJSON == "" {
		return
	}
	var segments []engine.Segment
	if err := json.Unmarshal([]byte(resultJSON), &segments); err != nil {
		fmt.Fprintf(out, "Segments:     (unreadable: %v)\n", err)
		return
	}
	fmt.Fprintf(out, "Segments:     %d\n", len(segments))
	if !full {
		return
	}
	for _, seg := range segments {
		fmt.Fprintf(out, "  [%8.2f - %8.2f] %s\n", seg.Start, seg.End, seg.Text)
	}
}
