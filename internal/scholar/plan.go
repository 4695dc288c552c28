package scholar

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/litreview/internal/literature"
	"github.com/pdiddy/litreview/pkg/types"
)

// PlanOptions controls a multi-keyword run.
type PlanOptions struct {
	MinYear int
	Source  Source

	// Skip lists keywords already searched by an earlier, interrupted run.
	Skip []string
}

// PlanSummary counts per-keyword outcomes of a multi-keyword run.
type PlanSummary struct {
	Searched   int
	Empty      int
	Failed     int
	Skipped    int
	Duplicates int

	// Done lists the keywords that finished, successfully or empty.
	Done []string
}

// Total returns the number of keywords considered.
func (s PlanSummary) Total() int {
	return s.Searched + s.Failed + s.Skipped
}

// HasFailures reports whether any keyword search failed.
func (s PlanSummary) HasFailures() bool {
	return s.Failed > 0
}

// SearchPlan searches each plan entry in order, requesting entry.Count
// results per keyword. Records are tagged with their keyword and deduped
// across keywords. A failed keyword is reported and skipped; cancellation
// stops the run between keywords and returns what was found so far along
// with ctx.Err().
func (s *Searcher) SearchPlan(ctx context.Context, plan types.KeywordPlan, opts PlanOptions, w io.Writer) ([]types.LiteratureRecord, PlanSummary, error) {
	var sum PlanSummary
	var all []types.LiteratureRecord

	skip := make(map[string]bool, len(opts.Skip))
	for _, k := range opts.Skip {
		skip[strings.ToLower(k)] = true
	}

	for i, entry := range plan {
		if err := ctx.Err(); err != nil {
			return dedupAll(all, &sum), sum, err
		}
		if skip[strings.ToLower(entry.Keyword)] {
			sum.Skipped++
			fmt.Fprintf(w, "[%d/%d] skipped: %s (already searched)\n", i+1, len(plan), entry.Keyword)
			continue
		}

		fmt.Fprintf(w, "[%d/%d] searching: %s (want %d)\n", i+1, len(plan), entry.Keyword, entry.Count)
		records, err := s.Search(ctx, Query{
			Keyword: entry.Keyword,
			Limit:   entry.Count,
			MinYear: opts.MinYear,
			Source:  opts.Source,
		})
		if err != nil {
			if ctx.Err() != nil {
				return dedupAll(all, &sum), sum, ctx.Err()
			}
			sum.Failed++
			fmt.Fprintf(w, "  failed: %v\n", err)
			continue
		}

		sum.Searched++
		sum.Done = append(sum.Done, entry.Keyword)
		if len(records) == 0 {
			sum.Empty++
			fmt.Fprintln(w, "  no results")
			continue
		}
		for j := range records {
			records[j].Keyword = entry.Keyword
		}
		all = append(all, records...)
		fmt.Fprintf(w, "  %d results\n", len(records))
	}

	all = dedupAll(all, &sum)
	fmt.Fprintf(w, "\nSearch summary: %d searched, %d empty, %d failed, %d skipped; %d records (%d duplicates removed)\n",
		sum.Searched, sum.Empty, sum.Failed, sum.Skipped, len(all), sum.Duplicates)
	return all, sum, nil
}

func dedupAll(records []types.LiteratureRecord, sum *PlanSummary) []types.LiteratureRecord {
	out, removed := literature.Dedup(records)
	sum.Duplicates += removed
	return out
}
