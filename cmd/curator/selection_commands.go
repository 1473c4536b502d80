package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSelectCommand(ctx *commandContext) *cobra.Command {
	var fromFile string

	cmd := &cobra.Command{
		Use:   "select [sample-id]...",
		Short: "Add samples to the session's selection",
		RunE: func(cmd *cobra.Command, args []string) error {
			sampleIDs := args
			if fromFile != "" {
				fileIDs, err := readIDFile(fromFile)
				if err != nil {
					return err
				}
				sampleIDs = append(sampleIDs, fileIDs...)
			}
			if len(sampleIDs) == 0 {
				return fmt.Errorf("no sample ids given; pass ids or --from-file")
			}

			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			count, err := client.Select(cmd.Context(), ctx.session(), sampleIDs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "selection now holds %d samples\n", count)
			return nil
		},
	}

	cmd.Flags().StringVar(&fromFile, "from-file", "", "File with one sample id per line")
	return cmd
}

func newDeselectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deselect <sample-id>...",
		Short: "Remove samples from the session's selection",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			count, err := client.Deselect(cmd.Context(), ctx.session(), args)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "selection now holds %d samples\n", count)
			return nil
		},
	}
}

func newSelectionCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "selection",
		Short: "Inspect or clear the session's selection",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			sampleIDs, err := client.Selection(cmd.Context(), ctx.session())
			if err != nil {
				return err
			}
			if len(sampleIDs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "selection is empty")
				return nil
			}
			for _, sampleID := range sampleIDs {
				fmt.Fprintln(cmd.OutOrStdout(), sampleID)
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Empty the session's selection",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			if err := client.ClearSelection(cmd.Context(), ctx.session()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "selection cleared")
			return nil
		},
	})
	return cmd
}
