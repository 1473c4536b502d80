package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"curator/internal/api"
)

func newFieldsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fields",
		Short: "Set structured fields on samples",
	}
	cmd.AddCommand(newFieldsSetCommand(ctx))
	cmd.AddCommand(newFieldsBulkCommand(ctx))
	return cmd
}

func newFieldsSetCommand(ctx *commandContext) *cobra.Command {
	var baseVersion int64
	var writer string

	cmd := &cobra.Command{
		Use:   "set <sample-id> <key=value>...",
		Short: "Set fields on one sample",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseFieldArgs(args[1:])
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			if writer == "" {
				writer = ctx.writer()
			}

			view, err := client.SetFields(cmd.Context(), api.FieldRequest{
				Writer:      writer,
				SampleID:    args[0],
				BaseVersion: baseVersion,
				Fields:      fields,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s now at version %d\n", view.ID, view.Version)
			return nil
		},
	}

	cmd.Flags().Int64Var(&baseVersion, "base-version", 0, "Version the edit was made from (enables conflict detection)")
	cmd.Flags().StringVar(&writer, "writer", "", "Writer identity (defaults to $USER)")
	return cmd
}

func newFieldsBulkCommand(ctx *commandContext) *cobra.Command {
	var fromFile string
	var writer string

	cmd := &cobra.Command{
		Use:   "bulk <key=value>... --from-file <ids.txt>",
		Short: "Set the same fields on many samples",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromFile == "" {
				return fmt.Errorf("--from-file is required")
			}
			sampleIDs, err := readIDFile(fromFile)
			if err != nil {
				return err
			}
			fields, err := parseFieldArgs(args)
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			if writer == "" {
				writer = ctx.writer()
			}

			results, err := client.BulkSetFields(cmd.Context(), api.BulkFieldRequest{
				Writer:    writer,
				SampleIDs: sampleIDs,
				Fields:    fields,
			})
			if err != nil {
				return err
			}

			var failed int
			for _, result := range results {
				if result.Error != "" {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", result.SampleID, result.Error)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %d of %d samples\n", len(results)-failed, len(results))
			return nil
		},
	}

	cmd.Flags().StringVar(&fromFile, "from-file", "", "File with one sample id per line")
	cmd.Flags().StringVar(&writer, "writer", "", "Writer identity (defaults to $USER)")
	return cmd
}

// parseFieldArgs turns key=value arguments into a field map. Values that
// parse as numbers or booleans keep their type.
func parseFieldArgs(args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid field %q, expected key=value", arg)
		}
		fields[strings.TrimSpace(key)] = coerceValue(strings.TrimSpace(value))
	}
	return fields, nil
}

func coerceValue(value string) any {
	if parsed, err := strconv.ParseBool(value); err == nil {
		return parsed
	}
	if parsed, err := strconv.ParseFloat(value, 64); err == nil {
		return parsed
	}
	return value
}

// readIDFile reads sample ids, one per line, skipping blanks and comments.
func readIDFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open id file: %w", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read id file: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("id file %s is empty", path)
	}
	return ids, nil
}
