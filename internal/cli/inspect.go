package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rmclaren/quorumpipe/internal/stage"
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints <spec-id>",
	Short: "Show quality checkpoint completion for a spec",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, cleanup, err := openStoreOnly(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		done, err := st.CompletedCheckpoints(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		completed := make(map[string]bool, len(done))
		for _, name := range done {
			completed[name] = true
		}

		w := cmd.OutOrStdout()
		for _, cp := range stage.Checkpoints() {
			state := "pending"
			if completed[cp.Name()] {
				state = "completed"
			}
			fmt.Fprintf(w, "%-16s %-10s gates %s (analyzer %s)\n",
				cp.Name(), state, cp.Gates().Key(), cp.Analyzer())
		}
		return nil
	},
}

var attemptsCmd = &cobra.Command{
	Use:   "attempts <spec-id>",
	Short: "Show validation attempt and dedup records for a spec",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, cleanup, err := openStoreOnly(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		attempts, err := st.Attempts(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(attempts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No attempts recorded.")
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-12s %-10s %-8s %-8s %s\n", "HASH", "STAGE", "ATTEMPT", "DEDUPED", "RUN")
		for _, a := range attempts {
			fmt.Fprintf(w, "%-12s %-10s %-8d %-8d %s\n",
				a.PayloadHash[:12], a.Stage, a.Attempt, a.DedupeCount, a.RunID)
		}
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events <spec-id>",
	Short: "Show the recent pipeline event log for a spec",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, cleanup, err := openStoreOnly(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		limit, _ := cmd.Flags().GetInt("limit")
		events, err := st.Events(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No events recorded.")
			return nil
		}

		w := cmd.OutOrStdout()
		for _, e := range events {
			stg := e.Stage
			if stg == "" {
				stg = "-"
			}
			fmt.Fprintf(w, "%s  %-10s %-24s %s\n", e.CreatedAt, stg, e.Event, e.Detail)
		}
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear <spec-id>",
	Short: "Delete all stored state for a spec",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return fmt.Errorf("refusing to clear %s without --yes", args[0])
		}

		st, cleanup, err := openStoreOnly(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		n, err := st.ClearSpec(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d rows for %s\n", n, args[0])
		return nil
	},
}

func init() {
	eventsCmd.Flags().Int("limit", 50, "Maximum events to show")
	clearCmd.Flags().Bool("yes", false, "Confirm deletion")
}
