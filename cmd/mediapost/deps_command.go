package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mediapost/internal/deps"
	"mediapost/internal/preflight"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	var checkAPI bool

	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Check external binaries, directories, and backend credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			statuses := preflight.CheckSystemDeps(cmd.Context(), cfg)
			depRows := make([][]string, 0, len(statuses))
			for _, status := range statuses {
				depRows = append(depRows, []string{status.Name, status.Command, dependencyState(status), status.Detail})
			}
			if err := writeRows(out, []string{"Dependency", "Command", "State", "Detail"}, depRows, nil); err != nil {
				return err
			}
			fmt.Fprintln(out)

			results := preflight.RunAll(cmd.Context(), cfg)
			if checkAPI {
				results = append(results, preflight.CheckTranscriptionAPI(cmd.Context(), cfg))
			}
			checkRows := make([][]string, 0, len(results))
			for _, result := range results {
				checkRows = append(checkRows, []string{result.Name, passFail(result.Passed), result.Detail})
			}
			if err := writeRows(out, []string{"Check", "Result", "Detail"}, checkRows, nil); err != nil {
				return err
			}

			if len(deps.MissingRequired(statuses)) > 0 || len(preflight.Failed(results)) > 0 {
				return errors.New("dependency checks failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&checkAPI, "check-api", false, "Also contact the transcription API to verify credentials")
	return cmd
}

func dependencyState(status deps.Status) string {
	switch {
	case status.Available:
		return "ok"
	case status.Optional:
		return "missing (optional)"
	default:
		return "missing"
	}
}

func passFail(passed bool) string {
	if passed {
		return "pass"
	}
	return "FAIL"
}
