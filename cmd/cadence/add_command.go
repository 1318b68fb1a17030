package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var format string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Submit a source URL for download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			job, err := client.Submit(args[0], format)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, job)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s queued (%s)\n", job.ID, job.Status.Label())
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Audio format override (mp3, m4a, flac, opus, ogg, wav)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the created job as JSON")
	return cmd
}
