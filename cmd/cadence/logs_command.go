package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cadence/internal/jobs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "logs [job-id]",
		Short: "Show log entries, across all jobs or for one job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			var entries []jobs.LogEntry
			if len(args) == 1 {
				entries, err = client.JobLogs(args[0])
			} else {
				entries, err = client.GlobalLogs()
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, entries)
			}

			out := cmd.OutOrStdout()
			for _, entry := range entries {
				fmt.Fprintf(out, "%s  %s  %-13s %s\n",
					entry.Timestamp.Local().Format("15:04:05"),
					shortID(entry.JobID),
					entry.Status,
					entry.Message,
				)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit log entries as JSON")
	return cmd
}
