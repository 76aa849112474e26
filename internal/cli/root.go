package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "quorumpipe",
	Short: "Multi-agent pipeline with quorum consensus",
	Long: `quorumpipe drives a spec through six stages (specify, plan, tasks,
implement, validate, audit), fanning each stage out to a roster of agent
workers and advancing only when a quorum of them agrees.

All state is stored in ~/.quorumpipe/ (SQLite for artifacts and events,
JSON files for evidence). Interrupted runs resume from any stage without
repeating completed checkpoints.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(checkpointsCmd)
	rootCmd.AddCommand(attemptsCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(clearCmd)

	rootCmd.PersistentFlags().String("config", "", "Path to pipeline config YAML")
}
