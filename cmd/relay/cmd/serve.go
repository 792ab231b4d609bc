package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nfrund/relay/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a := app.New(ctx, cfg, logger)
		defer func() {
			if err := a.Close(); err != nil {
				logger.Error("Failed to release resources", "error", err)
			}
		}()

		if err := a.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Server stopped", "error", err)
			return err
		}
		logger.Info("Server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
