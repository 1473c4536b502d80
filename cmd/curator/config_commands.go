package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"curator/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage curator configuration",
	}
	cmd.AddCommand(newConfigInitCommand(ctx))
	cmd.AddCommand(newConfigShowCommand(ctx))
	cmd.AddCommand(newConfigValidateCommand(ctx))
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and report problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid (data dir %s)\n", cfg.DataDir)
			return nil
		},
	}
}

func newConfigInitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write an annotated sample config",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(*ctx.configFlag)
			if path == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = defaultPath
			}
			if err := config.WriteSample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote sample config to %s\n", path)
			return nil
		},
	}
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "[paths]")
			fmt.Fprintf(out, "data_dir    = %s\n", cfg.DataDir)
			fmt.Fprintf(out, "media_root  = %s\n", cfg.MediaRoot)
			fmt.Fprintf(out, "export_dir  = %s\n", cfg.ExportDir)
			fmt.Fprintf(out, "log_dir     = %s\n", cfg.LogDir)
			fmt.Fprintf(out, "api_bind    = %s\n", cfg.APIBind)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "[workflow]")
			fmt.Fprintf(out, "job_poll_interval    = %d\n", cfg.Workflow.JobPollInterval)
			fmt.Fprintf(out, "error_retry_interval = %d\n", cfg.Workflow.ErrorRetryInterval)
			fmt.Fprintf(out, "heartbeat_interval   = %d\n", cfg.Workflow.HeartbeatInterval)
			fmt.Fprintf(out, "heartbeat_timeout    = %d\n", cfg.Workflow.HeartbeatTimeout)
			fmt.Fprintf(out, "item_timeout         = %d\n", cfg.Workflow.ItemTimeout)
			fmt.Fprintf(out, "max_item_retries     = %d\n", cfg.Workflow.MaxItemRetries)
			fmt.Fprintf(out, "retry_backoff_millis = %d\n", cfg.Workflow.RetryBackoffMillis)
			fmt.Fprintf(out, "export_workers       = %d\n", cfg.Workflow.ExportWorkers)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "[logging]")
			fmt.Fprintf(out, "format = %s\n", cfg.Logging.Format)
			fmt.Fprintf(out, "level  = %s\n", cfg.Logging.Level)
			return nil
		},
	}
}
