package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"mediapost/internal/config"
	"mediapost/internal/daemon"
	"mediapost/internal/queue"
)

type fileView struct {
	ID              string   `json:"id"`
	SourcePath      string   `json:"source_path"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	Status          string   `json:"status"`
	ErrorMessage    string   `json:"error_message,omitempty"`
	PackagingStatus string   `json:"packaging_status"`
	PackagingError  string   `json:"packaging_error,omitempty"`
	PlaylistPath    string   `json:"playlist_path,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var statusFilter []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status [file-id]",
		Short: "Show media files and their pipeline status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]queue.Status, 0, len(statusFilter))
			for _, value := range statusFilter {
				status, ok := queue.ParseStatus(value)
				if !ok {
					return fmt.Errorf("unknown status %q", value)
				}
				statuses = append(statuses, status)
			}

			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				var files []*queue.MediaFile
				if len(args) == 1 {
					file, err := store.GetMediaFile(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					if file == nil {
						return fmt.Errorf("media file %s not found", args[0])
					}
					files = []*queue.MediaFile{file}
				} else {
					var err error
					files, err = store.ListMediaFiles(cmd.Context(), statuses...)
					if err != nil {
						return err
					}
				}

				if asJSON {
					views := make([]fileView, 0, len(files))
					for _, file := range files {
						views = append(views, toFileView(file))
					}
					return writeJSON(cmd, views)
				}

				out := cmd.OutOrStdout()
				running, err := daemon.IsRunning(cfg)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Daemon running: %s\n", yesNo(running))
				if len(files) == 0 {
					fmt.Fprintln(out, "No media files")
					return nil
				}
				rows := make([][]string, 0, len(files))
				for _, file := range files {
					rows = append(rows, []string{
						file.ID,
						filepath.Base(file.SourcePath),
						formatDuration(file.DurationSeconds),
						statusWithError(file.Status, file.ErrorMessage),
						statusWithError(file.PackagingStatus, file.PackagingError),
						file.PlaylistPath,
					})
				}
				return writeRows(out,
					[]string{"ID", "File", "Duration", "Transcript", "Packaging", "Playlist"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight},
				)
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statusFilter, "status", "s", nil, "Filter by transcript status (unprocessed, processing, completed, error)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func toFileView(file *queue.MediaFile) fileView {
	return fileView{
		ID:              file.ID,
		SourcePath:      file.SourcePath,
		DurationSeconds: file.DurationSeconds,
		Status:          string(file.Status),
		ErrorMessage:    file.ErrorMessage,
		PackagingStatus: string(file.PackagingStatus),
		PackagingError:  file.PackagingError,
		PlaylistPath:    file.PlaylistPath,
	}
}

func statusWithError(status queue.Status, message string) string {
	if status == queue.StatusError && message != "" {
		return string(status) + ": " + truncate(message, 60)
	}
	return string(status)
}

func formatDuration(seconds *float64) string {
	if seconds == nil {
		return "-"
	}
	return (time.Duration(*seconds * float64(time.Second))).Round(time.Second).String()
}

func formatClock(seconds int) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
