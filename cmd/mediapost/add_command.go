package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"mediapost/internal/config"
	"mediapost/internal/queue"
	"mediapost/internal/workflow"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var skipTranscription bool
	var copyIntoRoot bool

	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Register a media file and queue it for transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				register := workflow.AddFile
				if copyIntoRoot {
					register = workflow.ImportFile
				}
				file, err := register(cmd.Context(), cfg, store, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Registered %s (%s)\n", file.ID, filepath.Base(file.SourcePath))
				if skipTranscription {
					return nil
				}
				job, _, err := store.EnqueueJob(cmd.Context(), queue.LaneTranscription, file.ID, 1+cfg.Workflow.TranscriptionMaxRetries)
				if err != nil {
					return fmt.Errorf("queue transcription: %w", err)
				}
				fmt.Fprintf(out, "Queued transcription job %s\n", job.ID)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&skipTranscription, "no-transcribe", false, "Register without queueing a transcription job")
	cmd.Flags().BoolVar(&copyIntoRoot, "copy", false, "Copy the file into the media root before registering it")
	return cmd
}
