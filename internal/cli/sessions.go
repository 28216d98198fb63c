package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSessionsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage stored sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete sessions idle for longer than sessions.max_idle",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.app()
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			n, err := app.PurgeSessions(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d idle session(s)\n", n)
			return nil
		},
	})
	return cmd
}
