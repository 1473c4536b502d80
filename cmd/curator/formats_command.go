package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFormatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List registered export formats",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			formats, err := client.Formats(cmd.Context())
			if err != nil {
				return err
			}
			for _, format := range formats {
				fmt.Fprintln(cmd.OutOrStdout(), format)
			}
			return nil
		},
	}
}
