// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package keywords turns a research requirement into a keyword plan: the
// search phrases the search stage runs and how many results each should
// contribute.
package keywords

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"github.com/pdiddy/litreview/internal/llm"
	"github.com/pdiddy/litreview/pkg/types"
)

// Oversample is how much the plan's total count exceeds the target, so
// the filter stage has candidates to reject.
const Oversample = 1.5

var planPromptTmpl = template.Must(template.New("plan").Parse(`You are planning a Google Scholar literature search.

Research topic: {{.Topic}}
{{- if .Outline}}
Review outline:
{{.Outline}}
{{- end}}

Propose between 3 and 8 distinct English search phrases that together cover the topic{{if .Outline}} and every section of the outline{{end}}. For each phrase give how many results to collect. The counts must add up to about {{.Total}}.

Respond with a JSON object only:
{"keywords": [{"keyword": "search phrase", "count": 10}]}
`))

// Generate asks client for a keyword plan for req. Entries that fail
// validation are dropped, keywords are deduplicated case-insensitively,
// and a reply that is not JSON is scraped line by line.
func Generate(ctx context.Context, client llm.Client, req types.RequirementData) (types.KeywordPlan, error) {
	if err := types.Validate(req); err != nil {
		return nil, err
	}
	total := PlanTotal(req.TargetCount)

	var buf bytes.Buffer
	if err := planPromptTmpl.Execute(&buf, struct {
		Topic, Outline string
		Total          int
	}{req.Topic, strings.TrimSpace(req.Outline), total}); err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}

	reply, err := client.Complete(ctx, llm.Request{
		System: "You are a research librarian. Reply with JSON only.",
		User:   buf.String(),
		JSON:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("generating keywords: %w", err)
	}

	plan, err := Parse(reply, total)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// PlanTotal is the number of results a plan should request for target
// selected works.
func PlanTotal(target int) int {
	return int(math.Ceil(float64(target) * Oversample))
}

// Parse reads a plan from a model reply. JSON in either the
// {"keywords": [...]} or bare-array form is preferred; otherwise each
// non-empty line is taken as "keyword: count", "keyword (count)" or a bare
// keyword, and bare keywords share what is left of total.
func Parse(reply string, total int) (types.KeywordPlan, error) {
	var plan types.KeywordPlan

	var wrapped struct {
		Keywords types.KeywordPlan `json:"keywords"`
	}
	if err := llm.DecodeJSON(reply, &wrapped); err == nil && len(wrapped.Keywords) > 0 {
		plan = wrapped.Keywords
	} else if err := llm.DecodeJSON(reply, &plan); err != nil || len(plan) == 0 {
		plan = parseLines(reply, total)
	}

	plan = Clean(plan)
	if len(plan) == 0 {
		return nil, fmt.Errorf("no usable keywords in reply (%d bytes)", len(reply))
	}
	return plan, nil
}

var (
	listMarker   = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)、])\s*`)
	countSuffix  = regexp.MustCompile(`^(.*?)\s*[:：,，]\s*(\d+)\s*$`)
	parenSuffix  = regexp.MustCompile(`^(.*?)\s*[(（]\s*(\d+)\s*[)）]\s*$`)
	quotePattern = strings.NewReplacer(`"`, "", "“", "", "”", "", "`", "")
)

func parseLines(reply string, total int) types.KeywordPlan {
	var plan types.KeywordPlan
	var bare []int
	assigned := 0

	for _, line := range strings.Split(reply, "\n") {
		line = quotePattern.Replace(listMarker.ReplaceAllString(line, ""))
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") || strings.HasSuffix(line, ":") {
			continue
		}

		entry := types.KeywordPlanEntry{Keyword: line}
		for _, p := range []*regexp.Regexp{countSuffix, parenSuffix} {
			if m := p.FindStringSubmatch(line); m != nil {
				n, _ := strconv.Atoi(m[2])
				entry = types.KeywordPlanEntry{Keyword: strings.TrimSpace(m[1]), Count: n}
				break
			}
		}
		if entry.Count == 0 {
			bare = append(bare, len(plan))
		}
		assigned += entry.Count
		plan = append(plan, entry)
	}

	if len(bare) > 0 {
		share := (total - assigned) / len(bare)
		if share < 1 {
			share = 1
		}
		for _, i := range bare {
			plan[i].Count = share
		}
	}
	return plan
}

// Clean trims keywords, drops invalid entries and case-insensitive
// duplicates, keeping the first occurrence.
func Clean(plan types.KeywordPlan) types.KeywordPlan {
	seen := make(map[string]bool, len(plan))
	out := make(types.KeywordPlan, 0, len(plan))
	for _, e := range plan {
		e.Keyword = strings.Join(strings.Fields(e.Keyword), " ")
		if types.Validate(e) != nil {
			continue
		}
		key := strings.ToLower(e.Keyword)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}
