package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uoa-eresearch/teamsync/internal/sync"
)

func newGoneCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "gone",
		Short: "Report team members who have left the directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(*configPath)
			if err != nil {
				return err
			}

			dir, err := app.dialDirectory()
			if err != nil {
				return err
			}
			defer dir.Close()

			gone, err := sync.ReportGone(cmd.Context(), dir, app.suite, app.cfg.Sync.AccessGroup)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			for _, g := range gone {
				fmt.Fprintf(out, "%-12s %-40s %s\n", g.Login, g.Email, g.Reason)
			}

			fmt.Fprintf(out, "%d members gone from the directory\n", len(gone))

			return nil
		},
	}
}
