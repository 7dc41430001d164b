package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uoa-eresearch/teamsync/internal/sync"
)

func newFoldersCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "folders",
		Short: "Report remote groups and team folders not owned by any managed project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(*configPath)
			if err != nil {
				return err
			}

			projects, err := sync.LoadProjects(app.cfg.Sync.ProjectsFile)
			if err != nil {
				return err
			}

			report, err := sync.ReportUnmanaged(cmd.Context(), app.suite, projects, app.cfg.Sync.GroupSuffix)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "unmanaged groups (%d):\n", len(report.Groups))
			for _, g := range report.Groups {
				fmt.Fprintf(out, "  %s\n", g)
			}

			fmt.Fprintf(out, "unmanaged team folders (%d):\n", len(report.Folders))
			for _, f := range report.Folders {
				fmt.Fprintf(out, "  %s\n", f)
			}

			return nil
		},
	}
}
