package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cadence/internal/jobs"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon state and the job list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status()
			if err != nil {
				return err
			}
			list, err := client.List()
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, map[string]any{
					"daemon": status,
					"jobs":   list,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Daemon running (pid %d), %d tracks archived\n", status.PID, status.ArchivedCount)
			if status.ActiveJobID != "" {
				fmt.Fprintf(out, "Active job: %s\n", status.ActiveJobID)
			}
			if len(list) == 0 {
				fmt.Fprintln(out, "No jobs.")
				return nil
			}

			rows := make([][]string, 0, len(list))
			for _, job := range list {
				rows = append(rows, []string{
					shortID(job.ID),
					job.Status.Label(),
					fmt.Sprintf("%.0f%%", job.Progress),
					jobItems(job),
					jobTitle(job),
				})
			}
			headers := []string{"ID", "Status", "Progress", "Items", "Title"}
			if stdoutIsTerminal() {
				fmt.Fprintln(out, renderTable(headers, rows))
			} else {
				for _, row := range rows {
					fmt.Fprintln(out, strings.Join(row, "\t"))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit daemon status and jobs as JSON")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func jobItems(job jobs.Job) string {
	if job.Total == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", job.Current, job.Total)
}

func jobTitle(job jobs.Job) string {
	if job.Metadata != nil && job.Metadata.Title != "" {
		return job.Metadata.Title
	}
	return job.SourceURL
}
