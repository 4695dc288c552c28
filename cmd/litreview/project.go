// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litreview/internal/literature"
	"github.com/pdiddy/litreview/internal/project"
	"github.com/pdiddy/litreview/pkg/types"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Create, list, show and delete projects",
	Long: `Project manages the review projects stored under the projects directory.
Each project is one JSON file holding the requirements and the result of
every stage that has run.`,
}

// --- create subcommand ---

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project for a research topic",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectCreate,
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	req, err := requirementFromFlags(cmd)
	if err != nil {
		return err
	}
	p, err := projectStore().Create(args[0], req)
	if err != nil {
		return err
	}

	provider, _ := cmd.Flags().GetString("provider")
	apiKey, _ := cmd.Flags().GetString("api-key")
	if provider != "" || apiKey != "" {
		if provider != "" {
			p.Config.Provider = types.Provider(provider)
		}
		if apiKey != "" {
			key := p.Config.Provider
			if key == "" {
				key = cfg.LLM.Provider
			}
			p.Config.APIKeys = map[types.Provider]string{key: apiKey}
		}
		if err := projectStore().Save(p); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created project %q (topic: %s, target: %d)\n",
		p.Name, p.RequirementData.Topic, p.RequirementData.TargetCount)
	return nil
}

func requirementFromFlags(cmd *cobra.Command) (types.RequirementData, error) {
	topic, _ := cmd.Flags().GetString("topic")
	target, _ := cmd.Flags().GetInt("target")
	lang, _ := cmd.Flags().GetString("language")
	minYear, _ := cmd.Flags().GetInt("min-year")
	outline, _ := cmd.Flags().GetString("outline")
	outlineFile, _ := cmd.Flags().GetString("outline-file")

	if outlineFile != "" {
		data, err := os.ReadFile(outlineFile)
		if err != nil {
			return types.RequirementData{}, fmt.Errorf("reading outline: %w", err)
		}
		outline = string(data)
	}
	return types.RequirementData{
		Topic:       strings.TrimSpace(topic),
		TargetCount: target,
		Outline:     outline,
		Language:    lang,
		MinYear:     minYear,
	}, nil
}

// --- list subcommand ---

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects, most recently updated first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := projectStore().List()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(w, "No projects.")
			return nil
		}
		fmt.Fprintf(w, "%-24s  %-40s  %-8s  %-7s  %s\n", "Name", "Topic", "Stage", "Records", "Updated")
		fmt.Fprintln(w, strings.Repeat("-", 100))
		for _, s := range list {
			fmt.Fprintf(w, "%-24s  %-40s  %-8s  %-7d  %s\n",
				s.Name, clip(s.Topic, 40), s.Stage, s.Records, s.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

// --- show subcommand ---

var projectShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a project's requirements and stage results",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectShow,
}

func runProjectShow(cmd *cobra.Command, args []string) error {
	p, err := projectStore().Load(args[0])
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}

	req := p.RequirementData
	fmt.Fprintf(w, "Project:  %s\n", p.Name)
	fmt.Fprintf(w, "Topic:    %s\n", req.Topic)
	fmt.Fprintf(w, "Target:   %d\n", req.TargetCount)
	if req.Language != "" {
		fmt.Fprintf(w, "Language: %s\n", req.Language)
	}
	if req.MinYear > 0 {
		fmt.Fprintf(w, "Since:    %d\n", req.MinYear)
	}
	v := p.Config.Verification
	fmt.Fprintf(w, "Verified: scholar=%t mirror=%t (prefer mirror: %t)\n",
		v.ScholarVerified, v.MirrorVerified, v.PreferMirror)
	fmt.Fprintf(w, "Stage:    %s\n\n", project.LastStage(p.Nodes))

	stage, _ := cmd.Flags().GetString("stage")
	switch stage {
	case "", "summary":
		printNodeSummary(w, p.Nodes)
	case "keywords":
		if p.Node1 != nil {
			for _, e := range p.Node1.Plan {
				fmt.Fprintf(w, "%-50s %d\n", e.Keyword, e.Count)
			}
		}
	case "search":
		if p.Node2 != nil {
			literature.FormatTable(p.Node2.Literature, w)
		}
	case "complete":
		if p.Node3 != nil {
			literature.FormatTable(p.Node3.Literature, w)
		}
	case "filter":
		if p.Node4 != nil {
			literature.FormatTable(p.Node4.Selected, w)
		}
	case "review":
		if p.Node5 != nil {
			fmt.Fprintln(w, p.Node5.Content)
		}
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}

	if len(p.Subprojects.LiteratureSearch)+len(p.Subprojects.ReviewWriting) > 0 {
		fmt.Fprintf(w, "\nSubprojects: literatureSearch=%v reviewWriting=%v\n",
			p.Subprojects.LiteratureSearch, p.Subprojects.ReviewWriting)
	}
	return nil
}

func printNodeSummary(w io.Writer, n types.Nodes) {
	line := func(name, detail string) { fmt.Fprintf(w, "  %-9s %s\n", name, detail) }
	if n.Node1 != nil {
		line("keywords", fmt.Sprintf("%d keywords, %d results requested", len(n.Node1.Plan), n.Node1.Plan.Total()))
	} else {
		line("keywords", "-")
	}
	if n.Node2 != nil {
		state := "done"
		if !n.Node2.Done {
			state = fmt.Sprintf("partial, %d keywords searched", len(n.Node2.Searched))
		}
		line("search", fmt.Sprintf("%d records (%s)", len(n.Node2.Literature), state))
	} else {
		line("search", "-")
	}
	if n.Node3 != nil {
		completed := 0
		for _, r := range n.Node3.Literature {
			if r.CompletionStatus == types.StatusCompleted {
				completed++
			}
		}
		state := "done"
		if !n.Node3.Done {
			state = "partial"
		}
		line("complete", fmt.Sprintf("%d of %d records complete (%s)", completed, len(n.Node3.Literature), state))
	} else {
		line("complete", "-")
	}
	if n.Node4 != nil {
		line("filter", fmt.Sprintf("%d selected (%s)", len(n.Node4.Selected), n.Node4.Mode))
	} else {
		line("filter", "-")
	}
	if n.Node5 != nil {
		line("review", fmt.Sprintf("%d characters", len([]rune(n.Node5.Content))))
	} else {
		line("review", "-")
	}
}

// --- delete subcommand ---

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a project and its subprojects",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("refusing to delete %q without --yes", args[0])
		}
		if err := projectStore().Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted project %q\n", args[0])
		return nil
	},
}

// --- sub subcommand ---

var projectSubCmd = &cobra.Command{
	Use:   "sub <project> <category> <name>",
	Short: "Create a subproject (category: literatureSearch or reviewWriting)",
	Long: `Sub creates an independently tracked run inside a project. Without
--topic the subproject copies the parent's requirements. Run stages on it
with --sub category/name.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := projectStore()
		p, err := store.Load(args[0])
		if err != nil {
			return err
		}
		req, err := requirementFromFlags(cmd)
		if err != nil {
			return err
		}
		if req.Topic == "" {
			req = types.RequirementData{}
		}
		sp, err := store.CreateSubproject(p, types.SubprojectCategory(args[1]), args[2], req)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created subproject %s/%s in %q\n", sp.Category, sp.Name, p.Name)
		return nil
	},
}

func addRequirementFlags(cmd *cobra.Command, targetDefault int) {
	cmd.Flags().String("topic", "", "research topic")
	cmd.Flags().Int("target", targetDefault, "number of works to select")
	cmd.Flags().String("language", "en", "review language: en or zh")
	cmd.Flags().Int("min-year", 0, "only search works published in or after this year")
	cmd.Flags().String("outline", "", "review outline (Markdown headings or one section per line)")
	cmd.Flags().String("outline-file", "", "read the outline from a file")
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	addRequirementFlags(projectCreateCmd, 20)
	projectCreateCmd.Flags().String("provider", "", "LLM provider stored with the project")
	projectCreateCmd.Flags().String("api-key", "", "API key stored with the project")
	_ = projectCreateCmd.MarkFlagRequired("topic")

	projectShowCmd.Flags().Bool("json", false, "print the project file as JSON")
	projectShowCmd.Flags().String("stage", "", "show one stage in detail: keywords, search, complete, filter, review")

	projectDeleteCmd.Flags().Bool("yes", false, "confirm deletion")

	addRequirementFlags(projectSubCmd, 20)

	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectShowCmd)
	projectCmd.AddCommand(projectDeleteCmd)
	projectCmd.AddCommand(projectSubCmd)

	rootCmd.AddCommand(projectCmd)
}
