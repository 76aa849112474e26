package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// specStatus is the per-spec summary printed by the status command.
type specStatus struct {
	SpecID      string   `json:"spec_id"`
	Artifacts   int64    `json:"artifacts"`
	Checkpoints []string `json:"checkpoints"`
	LastEvent   string   `json:"last_event,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored state for all known specs",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, cleanup, err := openStoreOnly(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := cmd.Context()
		specs, err := st.ListSpecs(ctx)
		if err != nil {
			return err
		}

		var infos []specStatus
		for _, spec := range specs {
			n, err := st.CountArtifacts(ctx, spec)
			if err != nil {
				return err
			}
			cps, err := st.CompletedCheckpoints(ctx, spec)
			if err != nil {
				return err
			}
			info := specStatus{SpecID: spec, Artifacts: n, Checkpoints: cps}
			if events, err := st.Events(ctx, spec, 1); err == nil && len(events) > 0 {
				info.LastEvent = events[0].Event
			}
			infos = append(infos, info)
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			data, _ := json.MarshalIndent(infos, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		if len(infos) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No specs found.")
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-24s %-10s %-40s %s\n", "SPEC", "ARTIFACTS", "CHECKPOINTS", "LAST EVENT")
		for _, info := range infos {
			fmt.Fprintf(w, "%-24s %-10d %-40s %s\n",
				info.SpecID, info.Artifacts, strings.Join(info.Checkpoints, ","), info.LastEvent)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().String("format", "text", "Output format: text or json")
}
