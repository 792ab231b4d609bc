package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nfrund/relay/internal/config"
	"github.com/nfrund/relay/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Real-time group chat server",
	Long: `relay is a real-time group chat server. Users sign in with Google, receive a
session credential, and exchange messages over a websocket. Every message is
stored in a ledger and broadcast to everyone connected.

Use "relay [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and installs the process logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(cfg.LogFormat, cfg.LogLevel), nil
}
