package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serversCmd)
}

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List the configured SSH servers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, cleanup, err := buildApp()
		if err != nil {
			return err
		}
		defer cleanup()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SLUG\tADDRESS\tUSER\tTIMEOUT\t")
		defaultSlug := app.reg.DefaultSlug()
		for _, slug := range app.reg.Slugs() {
			desc, err := app.reg.Get(slug)
			if err != nil {
				return err
			}
			host, port := desc.Addr()
			name := slug
			if slug == defaultSlug {
				name += " (default)"
			}
			fmt.Fprintf(w, "%s\t%s:%d\t%s\t%s\t\n", name, host, port, desc.User, desc.ConnectTimeout())
		}
		return w.Flush()
	},
}
