package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the session's selection",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			job, err := client.Export(cmd.Context(), ctx.session(), format)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "export job %s queued (%d samples, format %s)\n",
				job.ID, job.Progress.Total, job.Format)
			fmt.Fprintf(cmd.OutOrStdout(), "output: %s\n", job.OutputDir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "annojson", "Export format id")
	return cmd
}
