package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uoa-eresearch/teamsync/internal/sync"
)

func newMembersCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "members",
		Short: "Report the current remote team roster and licence usage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(*configPath)
			if err != nil {
				return err
			}

			report, err := sync.ReportMembers(cmd.Context(), app.suite)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			for _, m := range report.Members {
				login := m.Profile.ExternalID
				if login == "" {
					login = "(no login)"
				}

				fmt.Fprintf(out, "%-40s %-12s %s\n", m.Profile.Email, login, m.Role.Tag)
			}

			fmt.Fprintf(out, "\n%s: %d provisioned of %d licensed, %d partial entries\n",
				report.Team.Name,
				report.Team.NumProvisionedUsers,
				report.Team.NumLicensedUsers,
				report.Partial)

			if limit := app.cfg.Sync.Licenses; limit > 0 {
				fmt.Fprintf(out, "configured cap: %d (headroom %d)\n",
					limit, limit-report.Team.NumProvisionedUsers)
			}

			return nil
		},
	}
}
