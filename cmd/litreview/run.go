package main

import (
	"github.com/spf13/cobra"

	"github.com/pdiddy/litreview/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run <project>",
	Short: "Run every stage, resuming after the last finished one",
	Long: `Run executes keywords, search, complete, filter and review in order.
Stages whose results are already stored are skipped; an interrupted search
or completion continues where it stopped. --from reruns a stage and every
stage after it; --to stops early. Press Ctrl-C to stop; partial results are
saved.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	var opts pipeline.Options
	if from, _ := cmd.Flags().GetString("from"); from != "" {
		st, err := pipeline.ParseStage(from)
		if err != nil {
			return err
		}
		opts.From = st
	}
	if to, _ := cmd.Flags().GetString("to"); to != "" {
		st, err := pipeline.ParseStage(to)
		if err != nil {
			return err
		}
		opts.To = st
	}

	p, t, err := loadTarget(cmd, projectStore(), args[0])
	if err != nil {
		return err
	}
	r, cleanup, err := newRunner(cmd, p, runnerNeeds{llm: true, browser: true})
	defer cleanup()
	if err != nil {
		return err
	}
	if err := r.Run(cmd.Context(), t, opts); err != nil {
		return err
	}
	if opts.To == "" || opts.To == pipeline.StageReview {
		return writeReviewOutputs(cmd, t)
	}
	return nil
}

func init() {
	runCmd.Flags().String("from", "", "rerun from this stage: keywords, search, complete, filter, review")
	runCmd.Flags().String("to", "", "stop after this stage")
	addTargetFlags(runCmd)
	addLLMFlags(runCmd)
	addBrowserFlags(runCmd)
	addCatalogFlag(runCmd)
	addFilterFlags(runCmd)
	addReviewOutputFlags(runCmd)

	rootCmd.AddCommand(runCmd)
}
