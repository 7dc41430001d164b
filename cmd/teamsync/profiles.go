package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uoa-eresearch/teamsync/internal/identity"
)

func newProfilesCmd(configPath *string) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Repair remote profiles that lack a directory login",
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

			engine := app.newEngine(dir, identity.Overrides{}, dryRun)

			repaired, err := engine.RepairProfiles(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "repaired %d profiles\n", repaired)

			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log the repairs without performing any")

	return cmd
}
