package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "teamsync",
		Short:        "Reconciles directory group rosters with a Dropbox Business team",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "teamsync.yaml",
		"path to the configuration file")

	root.AddCommand(
		newSyncCmd(&configPath),
		newMembersCmd(&configPath),
		newFoldersCmd(&configPath),
		newProfilesCmd(&configPath),
		newGoneCmd(&configPath),
		newVersionCmd(),
	)

	return root
}
