package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ia319/nola/internal/config"
	"github.com/ia319/nola/internal/daemon"
	"github.com/ia319/nola/internal/queue"
)

func newAddFileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add-file <path>",
		Short: "Stage an audio file for transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				record, err := daemon.StageFile(cmd.Context(), cfg, store, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Staged %s (%d bytes)\n", record.Filename, record.Size)
				fmt.Fprintf(out, "File ID: %s\n", record.ID)
				return nil
			})
		},
	}
}
