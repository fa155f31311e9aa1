package main

import (
	"github.com/spf13/cobra"

	"pharmaclaw/src/internal/api"
	"pharmaclaw/src/internal/system"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("pharmaclaw version %s (%s)\n", api.Version, system.GetInfo())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
