package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"curator/internal/daemon"
	"curator/internal/ipc"
	"curator/internal/logging"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run and control the curator daemon",
	}
	cmd.AddCommand(newDaemonRunCommand(ctx))
	cmd.AddCommand(newDaemonStatusCommand(ctx))
	cmd.AddCommand(newDaemonStopCommand(ctx))
	return cmd
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "run",
		Aliases: []string{"start"},
		Short:   "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d := daemon.New(cfg, logger)
			if err := d.Start(runCtx); err != nil {
				return err
			}
			defer d.Stop()

			ipcServer, err := ipc.NewServer(runCtx, cfg.SocketPath(), d, logger)
			if err != nil {
				return err
			}
			ipcServer.Serve()
			defer ipcServer.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "curator daemon listening on %s (socket %s)\n", d.APIAddr(), cfg.SocketPath())
			<-runCtx.Done()
			return nil
		},
	}
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ipc.Dial(cfg.SocketPath())
			if err != nil {
				return fmt.Errorf("daemon is not running (socket %s): %w", cfg.SocketPath(), err)
			}
			defer client.Close()

			status, err := client.Status()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			runningKind := statusOK
			if !status.Running {
				runningKind = statusError
			}
			fmt.Fprintln(out, renderStatusLine("daemon", runningKind,
				fmt.Sprintf("running=%v pid=%d", status.Running, status.PID), colorize))
			fmt.Fprintln(out, renderStatusLine("api", statusInfo, status.APIBind, colorize))
			fmt.Fprintln(out, renderStatusLine("ledger", statusInfo, status.LedgerDBPath, colorize))
			fmt.Fprintln(out, renderStatusLine("jobs db", statusInfo, status.JobsDBPath, colorize))
			fmt.Fprintln(out, renderStatusLine("samples", statusInfo, fmt.Sprintf("%d", status.SampleCount), colorize))
			if len(status.JobCounts) > 0 {
				statuses := make([]string, 0, len(status.JobCounts))
				for jobStatus := range status.JobCounts {
					statuses = append(statuses, jobStatus)
				}
				sort.Strings(statuses)
				for _, jobStatus := range statuses {
					fmt.Fprintln(out, renderStatusLine("jobs "+jobStatus, statusInfo,
						fmt.Sprintf("%d", status.JobCounts[jobStatus]), colorize))
				}
			}
			return nil
		},
	}
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ipc.Dial(cfg.SocketPath())
			if err != nil {
				return fmt.Errorf("daemon is not running (socket %s): %w", cfg.SocketPath(), err)
			}
			defer client.Close()

			if _, err := client.Stop(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "daemon stopping")
			return nil
		},
	}
}
