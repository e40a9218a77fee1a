package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mkvold/shellbridge/internal/logging"
	"github.com/mkvold/shellbridge/internal/mcpserver"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	// Running the bare binary serves MCP; that is how clients launch it.
	rootCmd.RunE = serveCmd.RunE
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the configured servers to an MCP client over stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, cleanup, err := buildApp()
		if err != nil {
			return err
		}
		defer cleanup()

		logger := logging.Component("serve")
		logger.Info().Str("version", cliVersion).Msg("shellbridge starting")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		server := mcpserver.New(mcpserver.Config{
			Version:  cliVersion,
			Registry: app.reg,
			Executor: app.exec,
			History:  app.hist,
		})

		if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info().Msg("shellbridge stopped")
		return nil
	},
}
