package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var execServer string

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().StringVar(&execServer, "server", "", "server slug (defaults to the first configured server)")
}

var execCmd = &cobra.Command{
	Use:   "exec [flags] -- <command>",
	Short: "Execute a command on a configured server",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, cleanup, err := buildApp()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		command := strings.Join(args, " ")
		result, err := app.exec.Execute(ctx, command, execServer)
		if err != nil {
			return err
		}

		fmt.Fprint(os.Stdout, result.Stdout)
		fmt.Fprint(os.Stderr, result.Stderr)
		if result.ExitCode != 0 {
			return &ExitError{Code: result.ExitCode}
		}
		return nil
	},
}
