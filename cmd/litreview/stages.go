// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litreview/internal/keywords"
	"github.com/pdiddy/litreview/internal/literature"
	"github.com/pdiddy/litreview/internal/pipeline"
	"github.com/pdiddy/litreview/internal/scholar"
	"github.com/pdiddy/litreview/pkg/types"
)

// runStageCommand loads the target named by args and runs one stage on it.
func runStageCommand(cmd *cobra.Command, args []string, st pipeline.Stage, needs runnerNeeds) (pipeline.Target, error) {
	p, t, err := loadTarget(cmd, projectStore(), args[0])
	if err != nil {
		return t, err
	}
	r, cleanup, err := newRunner(cmd, p, needs)
	defer cleanup()
	if err != nil {
		return t, err
	}
	return t, r.RunStage(cmd.Context(), t, st)
}

// --- keywords ---

var keywordsCmd = &cobra.Command{
	Use:   "keywords <project>",
	Short: "Plan search keywords with the LLM (stage 1)",
	Long: `Keywords asks the LLM for search phrases and per-phrase result counts that
together request about 1.5 times the project's target. The plan can be saved
to YAML with --save, edited, and loaded back with --import instead of
calling the LLM.`,
	Args: cobra.ExactArgs(1),
	RunE: runKeywords,
}

func runKeywords(cmd *cobra.Command, args []string) error {
	importPath, _ := cmd.Flags().GetString("import")
	savePath, _ := cmd.Flags().GetString("save")

	if importPath != "" {
		store := projectStore()
		_, t, err := loadTarget(cmd, store, args[0])
		if err != nil {
			return err
		}
		pf, err := keywords.ReadPlanFile(importPath)
		if err != nil {
			return err
		}
		*t.Nodes = types.Nodes{Node1: &types.KeywordsNode{Plan: pf.Plan, GeneratedAt: time.Now().UTC()}}
		if err := t.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d keywords from %s\n", len(pf.Plan), importPath)
		return nil
	}

	t, err := runStageCommand(cmd, args, pipeline.StageKeywords, runnerNeeds{llm: true})
	if err != nil {
		return err
	}
	if savePath != "" {
		if err := keywords.WritePlanFile(savePath, t.Req, t.Nodes.Node1.Plan); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Plan written to %s\n", savePath)
	}
	return nil
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search [project]",
	Short: "Search Google Scholar for every planned keyword (stage 2)",
	Long: `Search runs each keyword of the project's plan through Google Scholar or
the configured mirror in a hidden browser window, deduplicating results by
title. If the site shows a CAPTCHA the window is brought forward with a
confirmation button; solve the challenge and click it.

With --keyword no project is needed: one search runs and the results are
printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	if kw, _ := cmd.Flags().GetString("keyword"); kw != "" {
		return runAdhocSearch(cmd, kw)
	}
	if len(args) == 0 {
		return fmt.Errorf("provide a project name or --keyword")
	}
	_, err := runStageCommand(cmd, args, pipeline.StageSearch, runnerNeeds{browser: true})
	return err
}

func runAdhocSearch(cmd *cobra.Command, keyword string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	minYear, _ := cmd.Flags().GetInt("min-year")
	mirror, _ := cmd.Flags().GetBool("mirror")

	b := newBrowser(cmd)
	defer b.Close()
	s := scholar.NewSearcher(b, cfg.Search, cfg.Browser.UserAgent, logger, metrics)

	q := scholar.Query{Keyword: keyword, Limit: limit, MinYear: minYear, Source: scholar.SourceScholar}
	if mirror {
		q.Source = scholar.SourceMirror
	}
	records, err := s.Search(cmd.Context(), q)
	if err != nil {
		return err
	}
	return printRecords(cmd, records)
}

func printRecords(cmd *cobra.Command, records []types.LiteratureRecord) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return literature.FormatJSON(records, cmd.OutOrStdout())
	}
	literature.FormatTable(records, cmd.OutOrStdout())
	return nil
}

// --- complete ---

var completeCmd = &cobra.Command{
	Use:   "complete <project>",
	Short: "Fill in missing authors, year, venue and abstract (stage 3)",
	Long: `Complete visits each record's landing page in a hidden browser window,
reads its citation meta tags and, when fields are still missing, asks the
LLM to extract them from the page text. Records are processed one at a
time; an interrupted run continues with the records not yet done.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runStageCommand(cmd, args, pipeline.StageComplete, runnerNeeds{llm: true, browser: true})
		return err
	},
}

// --- filter ---

var filterCmd = &cobra.Command{
	Use:   "filter <project>",
	Short: "Select the target number of works with the LLM (stage 4)",
	Long: `Filter asks the LLM to choose the project's target number of works from
the completed records. Batch mode (default) sends every record in one
prompt; per-item mode asks about each record in turn and stops at the
target.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := runStageCommand(cmd, args, pipeline.StageFilter, runnerNeeds{llm: true})
		if err != nil {
			return err
		}
		if show, _ := cmd.Flags().GetBool("show"); show {
			literature.FormatTable(t.Nodes.Node4.Selected, cmd.OutOrStdout())
		}
		return nil
	},
}

// --- review ---

var reviewCmd = &cobra.Command{
	Use:   "review <project>",
	Short: "Write the literature review from the selected works (stage 5)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := runStageCommand(cmd, args, pipeline.StageReview, runnerNeeds{llm: true})
		if err != nil {
			return err
		}
		return writeReviewOutputs(cmd, t)
	},
}

// writeReviewOutputs prints or saves the review and its bibliography as
// the output flags ask.
func writeReviewOutputs(cmd *cobra.Command, t pipeline.Target) error {
	if t.Nodes.Node5 == nil {
		return nil
	}
	content := t.Nodes.Node5.Content

	if out, _ := cmd.Flags().GetString("out"); out != "" {
		if err := os.WriteFile(out, []byte(content), 0o644); err != nil {
			return fmt.Errorf("writing review: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Review written to %s\n", out)
	} else {
		render, _ := cmd.Flags().GetBool("render")
		if err := printMarkdown(cmd.OutOrStdout(), content, render); err != nil {
			return err
		}
	}

	selected := t.Nodes.Node4.Selected
	if path, _ := cmd.Flags().GetString("bibtex"); path != "" {
		if err := writeBibTeX(path, selected); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "BibTeX written to %s\n", path)
	}
	if path, _ := cmd.Flags().GetString("csl"); path != "" {
		if err := writeCSL(path, selected); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "CSL-YAML written to %s\n", path)
	}
	return nil
}

func addReviewOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("out", "", "write the review Markdown to this file instead of printing it")
	cmd.Flags().Bool("render", true, "render the review for the terminal")
	cmd.Flags().String("bibtex", "", "write the selected works as BibTeX to this file")
	cmd.Flags().String("csl", "", "write the selected works as CSL-YAML to this file")
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("mode", "", "filter mode: batch or per-item")
}

func init() {
	addTargetFlags(keywordsCmd)
	addLLMFlags(keywordsCmd)
	keywordsCmd.Flags().String("save", "", "also write the plan to this YAML file")
	keywordsCmd.Flags().String("import", "", "load the plan from a YAML file instead of the LLM")

	addTargetFlags(searchCmd)
	addBrowserFlags(searchCmd)
	searchCmd.Flags().String("keyword", "", "run one search for this phrase without a project")
	searchCmd.Flags().Int("limit", 10, "results for --keyword")
	searchCmd.Flags().Int("min-year", 0, "earliest publication year for --keyword")
	searchCmd.Flags().Bool("mirror", false, "search the mirror for --keyword")
	searchCmd.Flags().Bool("json", false, "print --keyword results as JSON")

	addTargetFlags(completeCmd)
	addLLMFlags(completeCmd)
	addBrowserFlags(completeCmd)
	addCatalogFlag(completeCmd)

	addTargetFlags(filterCmd)
	addLLMFlags(filterCmd)
	addFilterFlags(filterCmd)
	filterCmd.Flags().Bool("show", false, "print the selected works")

	addTargetFlags(reviewCmd)
	addLLMFlags(reviewCmd)
	addReviewOutputFlags(reviewCmd)

	rootCmd.AddCommand(keywordsCmd, searchCmd, completeCmd, filterCmd, reviewCmd)
}
