package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"curator/internal/api"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and control export and sync jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsList(cmd, ctx)
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsList(cmd, ctx)
		},
	})
	cmd.AddCommand(newJobsStatusCommand(ctx))
	cmd.AddCommand(newJobActionCommand(ctx, "cancel", "Cancel a job", "cancelled",
		func(c *api.Client) func(context.Context, string) error { return c.CancelJob }))
	cmd.AddCommand(newJobActionCommand(ctx, "pause", "Pause a running job", "paused",
		func(c *api.Client) func(context.Context, string) error { return c.PauseJob }))
	cmd.AddCommand(newJobActionCommand(ctx, "resume", "Resume a paused job", "resumed",
		func(c *api.Client) func(context.Context, string) error { return c.ResumeJob }))
	return cmd
}

func runJobsList(cmd *cobra.Command, ctx *commandContext) error {
	client, err := ctx.apiClient()
	if err != nil {
		return err
	}
	views, err := client.ListJobs(cmd.Context())
	if err != nil {
		return err
	}
	if len(views) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no jobs")
		return nil
	}

	rows := make([][]string, 0, len(views))
	for _, job := range views {
		rows = append(rows, []string{
			job.ID,
			job.Kind,
			job.Status,
			formatProgress(job),
			job.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"JOB", "KIND", "STATUS", "PROGRESS", "CREATED"},
		rows,
		nil,
	))
	return nil
}

func newJobsStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "status <job-id>",
		Aliases: []string{"show"},
		Short:   "Show one job in detail",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			job, err := client.JobStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "job:       %s\n", job.ID)
			fmt.Fprintf(out, "kind:      %s\n", job.Kind)
			fmt.Fprintf(out, "status:    %s\n", job.Status)
			if job.Format != "" {
				fmt.Fprintf(out, "format:    %s\n", job.Format)
			}
			fmt.Fprintf(out, "progress:  %s\n", formatProgress(job))
			if job.OutputDir != "" {
				fmt.Fprintf(out, "output:    %s\n", job.OutputDir)
			}
			if job.ManifestPath != "" {
				fmt.Fprintf(out, "manifest:  %s\n", job.ManifestPath)
			}
			if job.ErrorMessage != "" {
				fmt.Fprintf(out, "error:     %s\n", job.ErrorMessage)
			}
			if len(job.ItemErrors) > 0 {
				fmt.Fprintln(out, "item errors:")
				for _, itemErr := range job.ItemErrors {
					fmt.Fprintf(out, "  %s (%s, %d attempts): %s\n",
						itemErr.SampleID, itemErr.Kind, itemErr.Attempts, itemErr.Message)
				}
			}
			return nil
		},
	}
}

func newJobActionCommand(ctx *commandContext, verb, short, done string, pick func(*api.Client) func(context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <job-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			if err := pick(client)(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s %s\n", args[0], done)
			return nil
		},
	}
}

func formatProgress(job api.JobView) string {
	parts := []string{fmt.Sprintf("%d/%d", job.Progress.Succeeded, job.Progress.Total)}
	if job.Progress.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", job.Progress.Failed))
	}
	if job.Progress.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", job.Progress.Skipped))
	}
	return strings.Join(parts, ", ")
}
