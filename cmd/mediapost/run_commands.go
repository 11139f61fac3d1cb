package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mediapost/internal/config"
	"mediapost/internal/queue"
	"mediapost/internal/services"
	"mediapost/internal/workflow"
)

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	return newLaneCommand(ctx, queue.LaneTranscription, "transcribe <file-id>", "Transcribe a registered file")
}

func newPackageCommand(ctx *commandContext) *cobra.Command {
	return newLaneCommand(ctx, queue.LanePackaging, "package <file-id>", "Build the HLS streaming package for a registered video")
}

func newLaneCommand(ctx *commandContext, lane queue.Lane, use, short string) *cobra.Command {
	var queueOnly bool

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID := args[0]
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				file, err := store.GetMediaFile(cmd.Context(), fileID)
				if err != nil {
					return err
				}
				if file == nil {
					return fmt.Errorf("media file %s not found", fileID)
				}
				out := cmd.OutOrStdout()
				if queueOnly {
					job, created, err := store.EnqueueJob(cmd.Context(), lane, file.ID, laneAttempts(cfg, lane))
					if err != nil {
						return fmt.Errorf("queue %s: %w", lane, err)
					}
					if !created {
						fmt.Fprintf(out, "%s job %s already queued\n", lane, job.ID)
						return nil
					}
					fmt.Fprintf(out, "Queued %s job %s\n", lane, job.ID)
					return nil
				}
				return runLaneForeground(cmd.Context(), ctx, cfg, store, lane, file.ID, out)
			})
		},
	}
	cmd.Flags().BoolVar(&queueOnly, "queue", false, "Queue a job for the daemon instead of running in the foreground")
	return cmd
}

func runLaneForeground(ctx context.Context, cc *commandContext, cfg *config.Config, store *queue.Store, lane queue.Lane, fileID string, out io.Writer) error {
	logger, err := cc.foregroundLogger(cfg)
	if err != nil {
		return err
	}
	supervisor, err := workflow.NewSupervisorFromConfig(cfg, store, logger)
	if err != nil {
		return err
	}

	switch lane {
	case queue.LaneTranscription:
		err = supervisor.RunTranscription(ctx, fileID)
	case queue.LanePackaging:
		err = supervisor.RunPackaging(ctx, fileID)
	default:
		err = fmt.Errorf("unknown lane %q", lane)
	}
	if err != nil {
		if errors.Is(err, services.ErrConfiguration) {
			return fmt.Errorf("%s failed (check configuration): %w", lane, err)
		}
		return fmt.Errorf("%s failed: %w", lane, err)
	}

	file, err := store.GetMediaFile(ctx, fileID)
	if err != nil || file == nil {
		return err
	}
	switch file.StatusFor(lane) {
	case queue.StatusProcessing:
		fmt.Fprintf(out, "%s for %s is already running elsewhere\n", lane, fileID)
	case queue.StatusCompleted:
		if lane == queue.LanePackaging {
			fmt.Fprintf(out, "Packaged %s: %s\n", fileID, file.PlaylistPath)
			return nil
		}
		segments, err := store.ListTranscriptSegments(ctx, fileID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Transcribed %s: %d segments\n", fileID, len(segments))
	default:
		fmt.Fprintf(out, "%s for %s finished with status %s\n", lane, fileID, file.StatusFor(lane))
	}
	return nil
}

func laneAttempts(cfg *config.Config, lane queue.Lane) int {
	if lane == queue.LanePackaging {
		return 1 + cfg.Workflow.PackagingMaxRetries
	}
	return 1 + cfg.Workflow.TranscriptionMaxRetries
}
