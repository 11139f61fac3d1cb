package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mediapost/internal/config"
	"mediapost/internal/queue"
)

type segmentView struct {
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

func newTranscriptCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "transcript <file-id>",
		Short: "Print the stored transcript for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				file, err := store.GetMediaFile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if file == nil {
					return fmt.Errorf("media file %s not found", args[0])
				}
				segments, err := store.ListTranscriptSegments(cmd.Context(), file.ID)
				if err != nil {
					return err
				}

				if asJSON {
					views := make([]segmentView, 0, len(segments))
					for _, seg := range segments {
						views = append(views, segmentView{Start: seg.StartSeconds, End: seg.EndSeconds, Speaker: seg.Speaker, Text: seg.Text})
					}
					return writeJSON(cmd, views)
				}

				out := cmd.OutOrStdout()
				if len(segments) == 0 {
					fmt.Fprintf(out, "No transcript for %s (status %s)\n", file.ID, file.Status)
					return nil
				}
				if !isTerminal(out) {
					for _, seg := range segments {
						fmt.Fprintf(out, "[%s - %s] %s: %s\n", formatClock(seg.StartSeconds), formatClock(seg.EndSeconds), seg.Speaker, seg.Text)
					}
					return nil
				}
				rows := make([][]string, 0, len(segments))
				for _, seg := range segments {
					rows = append(rows, []string{formatClock(seg.StartSeconds), formatClock(seg.EndSeconds), seg.Speaker, truncate(seg.Text, 100)})
				}
				return writeRows(out, []string{"Start", "End", "Speaker", "Text"}, rows, nil)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}
