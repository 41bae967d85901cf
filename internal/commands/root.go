// Package commands is the chatsync command line.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "0.1.0"

func NewRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "chatsync",
		Short:         "Keeps a local model of a chat workspace in sync with the service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default is ./chatsync.yaml)")

	root.AddCommand(
		newRunCommand(&configPath),
		newLoginCommand(&configPath),
		newLogoutCommand(&configPath),
		newSnapshotCommand(&configPath),
		newConfigCommand(&configPath),
	)
	return root
}

func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
