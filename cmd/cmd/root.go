package cmd

import (
	"github.com/spf13/cobra"
)

const AppName = "tabfs"

func Execute() error {
	rootCmd := &cobra.Command{
		Use:   AppName,
		Short: AppName + " - TabFS volume inspection and mounting tool",
	}

	rootCmd.AddCommand(DefineMkfsCommand())
	rootCmd.AddCommand(DefineFsckCommand())
	rootCmd.AddCommand(DefineLsCommand())
	rootCmd.AddCommand(DefineCatCommand())
	rootCmd.AddCommand(DefineLabelCommand())
	rootCmd.AddCommand(DefineMountCommand())

	return rootCmd.Execute()
}
