package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	historyServer string
	historyLimit  int
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&historyServer, "server", "", "only show executions against this server slug")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of entries to show")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently executed commands",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, cleanup, err := buildApp()
		if err != nil {
			return err
		}
		defer cleanup()

		if app.hist == nil {
			return fmt.Errorf("history is disabled in the configuration")
		}

		entries, err := app.hist.Recent(context.Background(), historyServer, historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stdout, "no executions recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tSERVER\tSTATUS\tDURATION\tCOMMAND\t")
		for _, e := range entries {
			status := fmt.Sprintf("exit %d", e.ExitCode)
			if e.Error != "" {
				status = "error"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n",
				e.StartedAt.Local().Format("2006-01-02 15:04:05"),
				e.Slug, status, e.Duration, e.Command)
		}
		return w.Flush()
	},
}
