package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmclaren/quorumpipe/internal/pipeline"
	"github.com/rmclaren/quorumpipe/internal/stage"
)

var runCmd = &cobra.Command{
	Use:   "run <spec-id>",
	Short: "Run the full pipeline for a spec",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		brief, _ := cmd.Flags().GetString("brief")
		briefFile, _ := cmd.Flags().GetString("brief-file")
		if briefFile != "" {
			data, err := os.ReadFile(briefFile)
			if err != nil {
				return fmt.Errorf("read brief: %w", err)
			}
			brief = string(data)
		}
		if brief == "" {
			return fmt.Errorf("a feature brief is required (--brief or --brief-file)")
		}

		app, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		run, err := app.machine.Execute(cmd.Context(), pipeline.Request{
			SpecID: args[0],
			Brief:  brief,
		})
		return report(cmd, run, err)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <spec-id>",
	Short: "Resume a halted pipeline from a stage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stageName, _ := cmd.Flags().GetString("stage")
		st, err := stage.Parse(stageName)
		if err != nil {
			return err
		}

		app, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		run, err := app.machine.Execute(cmd.Context(), pipeline.Request{
			SpecID:     args[0],
			StartIndex: int(st),
		})
		return report(cmd, run, err)
	},
}

// report prints the terminal run summary. A halt is printed with its phase
// and resume hint rather than as a bare error.
func report(cmd *cobra.Command, run *pipeline.Run, err error) error {
	w := cmd.OutOrStdout()
	if err != nil {
		if halt, ok := pipeline.Halted(err); ok {
			fmt.Fprintf(w, "Run %s halted at %s (%s): %s\n", run.RunID, halt.Stage.Key(), halt.Phase, halt.Reason)
			if halt.Verdict != nil {
				fmt.Fprintf(w, "  verdict: %s (%d/%d agents, %d conflicts)\n",
					halt.Verdict.Status, len(halt.Verdict.Present),
					len(halt.Verdict.Present)+len(halt.Verdict.Missing), len(halt.Verdict.Conflicts))
			}
			fmt.Fprintf(w, "  resume with: quorumpipe resume %s --stage %s\n", run.SpecID, halt.Stage.Key())
			return err
		}
		return err
	}
	fmt.Fprintf(w, "Run %s complete in %s\n", run.RunID, run.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  tokens: %d in / %d out\n", run.InputTokens, run.OutputTokens)
	if degraded := run.DegradedAgents(); len(degraded) > 0 {
		fmt.Fprintf(w, "  degraded agents: %v\n", degraded)
	}
	return nil
}

func init() {
	runCmd.Flags().String("brief", "", "Feature brief text fed to the first stage")
	runCmd.Flags().String("brief-file", "", "Path to a file holding the feature brief")
	resumeCmd.Flags().String("stage", "specify", "Stage to resume from (specify, plan, tasks, implement, validate, audit)")
}
