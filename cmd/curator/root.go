package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"curator/internal/api"
	"curator/internal/config"
)

// commandContext carries lazily resolved configuration and clients shared by
// all subcommands.
type commandContext struct {
	configFlag  *string
	addrFlag    *string
	sessionFlag *string

	once sync.Once
	cfg  *config.Config
	err  error
}

func newCommandContext(configFlag, addrFlag, sessionFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, addrFlag: addrFlag, sessionFlag: sessionFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.once.Do(func() {
		c.cfg, c.err = config.Load(*c.configFlag)
	})
	return c.cfg, c.err
}

// apiClient builds an HTTP client for the daemon, preferring the --addr flag
// over the configured bind address.
func (c *commandContext) apiClient() (*api.Client, error) {
	if addr := strings.TrimSpace(*c.addrFlag); addr != "" {
		return api.NewClient(addr), nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return api.NewClient(cfg.APIBind), nil
}

func (c *commandContext) session() string {
	if s := strings.TrimSpace(*c.sessionFlag); s != "" {
		return s
	}
	if host, err := os.Hostname(); err == nil {
		return fmt.Sprintf("%s-%d", host, os.Getuid())
	}
	return "default"
}

func (c *commandContext) writer() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var addrFlag string
	var sessionFlag string

	ctx := newCommandContext(&configFlag, &addrFlag, &sessionFlag)

	rootCmd := &cobra.Command{
		Use:           "curator",
		Short:         "Shared media annotation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&addrFlag, "addr", "", "Daemon API address (host:port)")
	rootCmd.PersistentFlags().StringVarP(&sessionFlag, "session", "s", "", "Selection session id")

	rootCmd.AddCommand(newDaemonCommand(ctx))
	rootCmd.AddCommand(newSyncCommand(ctx))
	rootCmd.AddCommand(newSamplesCommand(ctx))
	rootCmd.AddCommand(newTagCommand(ctx))
	rootCmd.AddCommand(newFieldsCommand(ctx))
	rootCmd.AddCommand(newSelectCommand(ctx))
	rootCmd.AddCommand(newDeselectCommand(ctx))
	rootCmd.AddCommand(newSelectionCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))
	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newFormatsCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
