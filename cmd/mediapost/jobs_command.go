package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mediapost/internal/config"
	"mediapost/internal/queue"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent dispatcher jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				jobs, err := store.ListJobs(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					next := "-"
					if job.Status == queue.JobPending {
						next = job.NextRunAt.Local().Format(time.DateTime)
					}
					rows = append(rows, []string{
						job.ID,
						job.FileID,
						string(job.Lane),
						string(job.Status),
						fmt.Sprintf("%d/%d", job.Attempts, job.MaxAttempts),
						next,
						truncate(job.LastError, 60),
					})
				}
				return writeRows(out,
					[]string{"ID", "File", "Lane", "Status", "Attempts", "Next Run", "Last Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of jobs to show")
	return cmd
}
