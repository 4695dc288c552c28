// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litreview/internal/library"
	"github.com/pdiddy/litreview/internal/literature"
	"github.com/pdiddy/litreview/pkg/types"
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Search every record litreview has collected",
	Long: `Library queries the SQLite index of all records found, completed or
selected across projects. Records are added automatically as stages run.`,
}

// --- search subcommand ---

var librarySearchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Full-text search over titles, authors, venues and abstracts",
	RunE:  runLibrarySearch,
}

func runLibrarySearch(cmd *cobra.Command, args []string) error {
	lib, err := library.Open(cfg.LibraryDB)
	if err != nil {
		return err
	}
	defer lib.Close()

	hits, err := lib.Search(cmd.Context(), libraryQueryFromFlags(cmd, args))
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}

	records := make([]types.LiteratureRecord, len(hits))
	for i, h := range hits {
		records[i] = h.LiteratureRecord
	}
	literature.FormatTable(records, w)
	return nil
}

// --- stats subcommand ---

var libraryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count records overall and per project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := library.Open(cfg.LibraryDB)
		if err != nil {
			return err
		}
		defer lib.Close()

		st, err := lib.Stats(cmd.Context())
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Library:  %s\n", cfg.LibraryDB)
		fmt.Fprintf(w, "Records:  %d\n", st.Records)
		fmt.Fprintf(w, "Selected: %d\n", st.Selected)
		if !st.FTS {
			fmt.Fprintln(w, "Full-text index unavailable; searches use substring matching.")
		}
		names := make([]string, 0, len(st.Projects))
		for name := range st.Projects {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %-30s %d\n", name, st.Projects[name])
		}
		return nil
	},
}

// --- export subcommand ---

var libraryExportCmd = &cobra.Command{
	Use:   "export [text]",
	Short: "Export library records to YAML or JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")

		lib, err := library.Open(cfg.LibraryDB)
		if err != nil {
			return err
		}
		defer lib.Close()

		w := cmd.OutOrStdout()
		var f *os.File
		if out != "" {
			if f, err = os.Create(out); err != nil {
				return fmt.Errorf("creating %s: %w", out, err)
			}
			w = f
		}
		err = lib.Export(cmd.Context(), libraryQueryFromFlags(cmd, args), format, w)
		if f != nil {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}
		if err == nil && out != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", out)
		}
		return err
	},
}

func libraryQueryFromFlags(cmd *cobra.Command, args []string) library.Query {
	project, _ := cmd.Flags().GetString("project")
	minYear, _ := cmd.Flags().GetInt("min-year")
	selected, _ := cmd.Flags().GetBool("selected")
	limit, _ := cmd.Flags().GetInt("limit")
	return library.Query{
		Text:         strings.Join(args, " "),
		Project:      project,
		MinYear:      minYear,
		SelectedOnly: selected,
		Limit:        limit,
	}
}

func addLibraryQueryFlags(cmd *cobra.Command) {
	cmd.Flags().String("project", "", "only records from this project")
	cmd.Flags().Int("min-year", 0, "only records published in or after this year")
	cmd.Flags().Bool("selected", false, "only records a filter stage selected")
}

func init() {
	addLibraryQueryFlags(librarySearchCmd)
	librarySearchCmd.Flags().Int("limit", library.DefaultLimit, "maximum results")
	librarySearchCmd.Flags().Bool("json", false, "output results as JSON")

	addLibraryQueryFlags(libraryExportCmd)
	libraryExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	libraryExportCmd.Flags().String("out", "", "write to this file instead of stdout")

	libraryCmd.AddCommand(librarySearchCmd)
	libraryCmd.AddCommand(libraryStatsCmd)
	libraryCmd.AddCommand(libraryExportCmd)

	rootCmd.AddCommand(libraryCmd)
}
