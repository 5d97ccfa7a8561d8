// Package cli is the energy-monitor command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/energy-monitor/server/internal/config"
	logx "github.com/energy-monitor/server/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile string
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "energy-monitor",
		Short: "Energy meter readings over WhatsApp",
		Long: `Receives WhatsApp messages, registers energy meter readings from photos
and answers questions about consumption with a tool-calling agent.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before the environment")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewInvokeCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// loadConfig reads the configuration and initialises the logger from it.
func (o *RootOptions) loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load(o.EnvFile)
	if err != nil {
		return nil, err
	}
	logx.Init(cfg.LoggerOpts())
	return cfg, nil
}
