package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newSamplesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "samples",
		Short: "Inspect ledger samples",
	}
	cmd.AddCommand(newSamplesListCommand(ctx))
	cmd.AddCommand(newSamplesShowCommand(ctx))
	cmd.AddCommand(newSamplesConflictsCommand(ctx))
	return cmd
}

func newSamplesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all samples",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			samples, err := client.ListSamples(cmd.Context())
			if err != nil {
				return err
			}
			if len(samples) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no samples registered; run curator sync first")
				return nil
			}

			rows := make([][]string, 0, len(samples))
			for _, sample := range samples {
				rows = append(rows, []string{
					sample.ID,
					strconv.FormatInt(sample.Version, 10),
					strings.Join(sample.Tags, ","),
					sample.LastModifiedBy,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"SAMPLE", "VERSION", "TAGS", "MODIFIED BY"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func newSamplesShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <sample-id>",
		Short: "Show one sample's metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			sample, err := client.GetSample(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:        %s\n", sample.ID)
			fmt.Fprintf(out, "media:     %s\n", sample.MediaRef)
			fmt.Fprintf(out, "version:   %d\n", sample.Version)
			fmt.Fprintf(out, "tags:      %s\n", strings.Join(sample.Tags, ", "))
			if sample.LastModifiedBy != "" {
				fmt.Fprintf(out, "modified:  %s by %s\n", sample.LastModifiedAt.Format("2006-01-02 15:04:05"), sample.LastModifiedBy)
			}
			if len(sample.Fields) > 0 {
				keys := make([]string, 0, len(sample.Fields))
				for key := range sample.Fields {
					keys = append(keys, key)
				}
				sort.Strings(keys)
				fmt.Fprintln(out, "fields:")
				for _, key := range keys {
					fmt.Fprintf(out, "  %s: %v\n", key, sample.Fields[key])
				}
			}
			return nil
		},
	}
}

func newSamplesConflictsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts <sample-id>",
		Short: "Show a sample's merge and rejection history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			conflicts, err := client.Conflicts(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(conflicts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no conflicts recorded")
				return nil
			}

			rows := make([][]string, 0, len(conflicts))
			for _, conflict := range conflicts {
				rows = append(rows, []string{
					conflict.RecordedAt.Format("2006-01-02 15:04:05"),
					conflict.Writer,
					conflict.Resolution,
					conflict.FieldKey,
					fmt.Sprintf("%d -> %d", conflict.BaseVersion, conflict.IncomingVersion),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"RECORDED", "WRITER", "RESOLUTION", "FIELD", "VERSIONS"},
				rows,
				nil,
			))
			return nil
		},
	}
}
