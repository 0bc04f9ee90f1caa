package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "engram",
	Short: "Persistent layered memory for conversational agents",
	Long:  "Engram gives conversational agents long-term memory: raw transcripts condense into decaying first-person summaries, retrieval fuses semantic and lexical rankings, and a guarded profile accumulates durable facts about each user.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to TOML config file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(maintainCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(profileCmd)
}
