package main

import (
	"github.com/spf13/cobra"

	"github.com/uoa-eresearch/teamsync/internal/sync"
)

func newSyncCmd(configPath *string) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile directory group rosters with the remote team",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(*configPath)
			if err != nil {
				return err
			}

			projects, err := sync.LoadProjects(app.cfg.Sync.ProjectsFile)
			if err != nil {
				return err
			}

			overrides, err := app.loadOverrides()
			if err != nil {
				return err
			}

			dir, err := app.dialDirectory()
			if err != nil {
				return err
			}
			defer dir.Close()

			engine := app.newEngine(dir, overrides, dryRun)

			_, err = engine.Run(cmd.Context(), projects)

			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log the mutations without performing any")

	return cmd
}
