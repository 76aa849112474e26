package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rmclaren/quorumpipe/internal/analytics"
)

var statsCmd = &cobra.Command{
	Use:   "stats <spec-id>",
	Short: "Show per-stage latency and token usage for a spec",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, cleanup, err := openStoreOnly(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		summary, err := analytics.Summarize(cmd.Context(), st, args[0])
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			data, _ := json.MarshalIndent(summary, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Spec %s: %d artifacts, %d dedupe hits, checkpoints: %s\n",
			summary.SpecID, summary.TotalArtifacts, summary.DedupeHits,
			strings.Join(summary.Checkpoints, ","))
		if len(summary.Stages) == 0 {
			fmt.Fprintln(w, "No stage outputs recorded.")
			return nil
		}
		fmt.Fprintf(w, "%-10s %-8s %-8s %-12s %-12s %-8s %-8s %s\n",
			"STAGE", "OUTPUTS", "FAILED", "TOKENS IN", "TOKENS OUT", "AVG(s)", "P50(s)", "P95(s)")
		for _, s := range summary.Stages {
			fmt.Fprintf(w, "%-10s %-8d %-8d %-12d %-12d %-8.1f %-8.1f %.1f\n",
				s.Stage, s.Outputs, s.Failures, s.InputTokens, s.OutputTokens,
				s.AvgSeconds, s.P50Seconds, s.P95Seconds)
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().String("format", "text", "Output format: text or json")
}
