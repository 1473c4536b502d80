package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"curator/internal/api"
)

func newTagCommand(ctx *commandContext) *cobra.Command {
	var addTags []string
	var removeTags []string
	var baseVersion int64
	var writer string

	cmd := &cobra.Command{
		Use:   "tag <sample-id>",
		Short: "Add or remove tags on a sample",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			if writer == "" {
				writer = ctx.writer()
			}

			view, err := client.Tag(cmd.Context(), api.TagRequest{
				Writer:      writer,
				SampleID:    args[0],
				BaseVersion: baseVersion,
				AddTags:     addTags,
				RemoveTags:  removeTags,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s now at version %d, tags: %s\n",
				view.ID, view.Version, strings.Join(view.Tags, ", "))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&addTags, "add", nil, "Tags to add")
	cmd.Flags().StringSliceVar(&removeTags, "remove", nil, "Tags to remove")
	cmd.Flags().Int64Var(&baseVersion, "base-version", 0, "Version the edit was made from (enables conflict detection)")
	cmd.Flags().StringVar(&writer, "writer", "", "Writer identity (defaults to $USER)")
	return cmd
}
