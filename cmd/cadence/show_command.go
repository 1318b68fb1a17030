package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var withLogs bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			job, err := client.Get(args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, job)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job:      %s\n", job.ID)
			fmt.Fprintf(out, "Source:   %s\n", job.SourceURL)
			fmt.Fprintf(out, "Format:   %s\n", job.Format)
			fmt.Fprintf(out, "Status:   %s\n", job.Status.Label())
			fmt.Fprintf(out, "Progress: %.1f%%\n", job.Progress)
			if job.Total > 0 {
				fmt.Fprintf(out, "Items:    %d/%d\n", job.Current, job.Total)
			}
			if job.Metadata != nil {
				fmt.Fprintf(out, "Title:    %s\n", job.Metadata.Title)
				if job.Metadata.Artist != "" {
					fmt.Fprintf(out, "Artist:   %s\n", job.Metadata.Artist)
				}
				fmt.Fprintf(out, "Kind:     %s (%d tracks)\n", job.Metadata.Kind, job.Metadata.TrackCount)
			}
			if job.ErrorMessage != "" {
				fmt.Fprintf(out, "Error:    %s\n", job.ErrorMessage)
			}
			fmt.Fprintf(out, "Created:  %s\n", job.CreatedAt.Local().Format(time.RFC1123))
			if job.CompletedAt != nil {
				fmt.Fprintf(out, "Finished: %s\n", job.CompletedAt.Local().Format(time.RFC1123))
			}

			if withLogs {
				entries, err := client.JobLogs(job.ID)
				if err != nil {
					return err
				}
				fmt.Fprintln(out)
				for _, entry := range entries {
					fmt.Fprintf(out, "%s  %-13s %s\n",
						entry.Timestamp.Local().Format("15:04:05"),
						entry.Status,
						entry.Message,
					)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the job as JSON")
	cmd.Flags().BoolVarP(&withLogs, "logs", "l", false, "Include the job's log entries")
	return cmd
}
