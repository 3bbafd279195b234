package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hupe1980/chatmesh/evaluation"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List configured agents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := commandContext(true)
		defer cancel()

		mesh, err := openMesh(ctx)
		if err != nil {
			return err
		}
		defer mesh.Close()

		current := mesh.Directory().CurrentName()
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "\tID\tNAME\tRAG\tTOOLS\tDESCRIPTION")
		for _, info := range mesh.Directory().List() {
			marker := ""
			if info.ID == current {
				marker = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%s\n", marker, info.ID, info.Name, info.UseRAG, len(info.Tools), info.Description)
		}
		return w.Flush()
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run the evaluation test set against an agent",
	Long: `Sends every question of the test set to an agent, scores the answers
(keyword presence, coherence, relevance, length) and writes a JSON report.
A sample test set is created when the configured file does not exist.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := commandContext(true)
		defer cancel()

		mesh, err := openMesh(ctx)
		if err != nil {
			return err
		}
		defer mesh.Close()

		cfg := mesh.Config().Evaluation
		testSet, _ := cmd.Flags().GetString("test-set")
		if testSet == "" {
			testSet = cfg.TestSetPath
		}
		tests, err := evaluation.LoadTestSet(testSet)
		if err != nil {
			return err
		}

		name, _ := cmd.Flags().GetString("agent")
		report, err := mesh.Evaluate(ctx, tests, name)
		if err != nil {
			return err
		}

		output, _ := cmd.Flags().GetString("output")
		path, err := evaluation.New(mesh.Directory(), cfg).SaveReport(report, output)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "agent %s: %d/%d passed (%.0f%%)\n",
			report.Agent, report.Summary.Passed, report.TestCount, report.Summary.PassRate*100)
		for i, t := range report.Tests {
			switch {
			case t.Error != "":
				fmt.Fprintf(out, "  %d. ERROR %s: %s\n", i+1, t.Question, t.Error)
			case t.Passed:
				fmt.Fprintf(out, "  %d. PASS  %.2f %s\n", i+1, t.Metrics.OverallScore, t.Question)
			default:
				fmt.Fprintf(out, "  %d. FAIL  %.2f %s\n", i+1, t.Metrics.OverallScore, t.Question)
			}
		}
		fmt.Fprintf(out, "report written to %s\n", path)
		return nil
	},
}
