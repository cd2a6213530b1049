package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "studysync",
	Short: "StudySync realtime collaboration server",
	Long: `StudySync provides the realtime collaboration layer of the study
platform: topic-scoped event channels, room presence, capacity-bounded
membership and messaging.

Use "studysync [command] --help" for more information about a specific command.`,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
