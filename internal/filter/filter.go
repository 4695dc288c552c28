// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package filter selects the records most relevant to the review topic,
// either with one LLM call over the whole list or one call per record.
package filter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/pdiddy/litreview/internal/llm"
	"github.com/pdiddy/litreview/pkg/types"
)

// abstractPreview bounds each abstract in the batch prompt, in runes.
const abstractPreview = 300

// Now is the clock used for quality assessment. Tests pin it.
var Now = time.Now

var batchPromptTmpl = template.Must(template.New("batch").Parse(`Research topic: {{.Topic}}

Below are {{len .Items}} candidate works, numbered from 1. Select exactly {{.Target}} that are most relevant to the topic, preferring high-quality and influential work while keeping coverage broad.

{{range .Items}}[{{.Index}}] {{.Title}}{{if .Year}} ({{.Year}}){{end}}
    venue: {{if .Journal}}{{.Journal}}{{else}}unknown{{end}}; cited by {{.Cited}}; quality: {{.Quality}}
{{- if .Abstract}}
    abstract: {{.Abstract}}
{{- end}}
{{end}}
Respond with a JSON object only:
{"selected": [{"index": 1, "reason": "why this work matters for the topic"}]}
`))

var itemPromptTmpl = template.Must(template.New("item").Parse(`Research topic: {{.Topic}}

Candidate work:
Title: {{.Title}}
{{- if .Year}}
Year: {{.Year}}
{{- end}}
Venue: {{if .Journal}}{{.Journal}}{{else}}unknown{{end}}
Quality: {{.Quality}}
{{- if .Abstract}}
Abstract: {{.Abstract}}
{{- end}}

Is this work relevant to the research topic? Respond with a JSON object only:
{"relevant": true, "reason": "one sentence"}
`))

type promptItem struct {
	Topic    string
	Index    int
	Title    string
	Year     types.Year
	Journal  string
	Cited    int
	Quality  string
	Abstract string
}

func newPromptItem(i int, r types.LiteratureRecord, now time.Time, abstractRunes int) promptItem {
	abs := r.Abstract
	if abstractRunes > 0 && utf8.RuneCountInString(abs) > abstractRunes {
		abs = string([]rune(abs)[:abstractRunes]) + "…"
	}
	return promptItem{
		Index:    i + 1,
		Title:    r.Title,
		Year:     r.Year,
		Journal:  r.Journal,
		Cited:    r.Cited,
		Quality:  QualityAssessment(r, now).String(),
		Abstract: abs,
	}
}

type batchReply struct {
	Selected []struct {
		Index  int    `json:"index"`
		Reason string `json:"reason"`
	} `json:"selected"`
}

// Batch asks the model to pick target records in one call. Indexes out of
// range or repeated are ignored, and the selection is truncated to target.
// Selected records are marked in records and returned in pick order.
func Batch(ctx context.Context, client llm.Client, records []types.LiteratureRecord, topic string, target int) ([]types.LiteratureRecord, error) {
	if len(records) == 0 || target <= 0 {
		return []types.LiteratureRecord{}, nil
	}
	now := Now()

	items := make([]promptItem, len(records))
	for i, r := range records {
		items[i] = newPromptItem(i, r, now, abstractPreview)
	}
	var buf bytes.Buffer
	if err := batchPromptTmpl.Execute(&buf, struct {
		Topic  string
		Target int
		Items  []promptItem
	}{topic, min(target, len(records)), items}); err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}

	reply, err := client.Complete(ctx, llm.Request{
		System: "You are an expert reviewer selecting literature for a survey. Reply with JSON only.",
		User:   buf.String(),
		JSON:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("batch filtering: %w", err)
	}

	picks := parseBatch(reply)
	if len(picks) == 0 {
		return nil, fmt.Errorf("no selections found in reply (%d bytes)", len(reply))
	}

	selected := make([]types.LiteratureRecord, 0, target)
	seen := make(map[int]bool, len(picks))
	for _, p := range picks {
		i := p.index - 1
		if i < 0 || i >= len(records) || seen[i] {
			continue
		}
		seen[i] = true
		records[i].Selected = true
		records[i].AIRecommendReason = p.reason
		selected = append(selected, records[i])
		if len(selected) == target {
			break
		}
	}
	return selected, nil
}

type pick struct {
	index  int
	reason string
}

var indexPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"index"\s*:\s*(\d+)`),
	regexp.MustCompile(`\[(\d+)\]`),
	regexp.MustCompile(`(?m)^\s*(?:[-*]\s*)?(\d+)\s*[.)、:：]`),
}

// parseBatch reads the picks from a reply. When the reply is not the
// expected JSON, index numbers are scraped with progressively looser
// patterns.
func parseBatch(reply string) []pick {
	var br batchReply
	if err := llm.DecodeJSON(reply, &br); err == nil && len(br.Selected) > 0 {
		picks := make([]pick, len(br.Selected))
		for i, s := range br.Selected {
			picks[i] = pick{index: s.Index, reason: s.Reason}
		}
		return picks
	}

	for _, p := range indexPatterns {
		matches := p.FindAllStringSubmatch(reply, -1)
		if len(matches) == 0 {
			continue
		}
		picks := make([]pick, 0, len(matches))
		for _, m := range matches {
			n, err := strconv.Atoi(m[1])
			if err == nil {
				picks = append(picks, pick{index: n})
			}
		}
		return picks
	}
	return nil
}

type itemReply struct {
	Relevant bool   `json:"relevant"`
	Reason   string `json:"reason"`
}

// PerItem asks the model about each record in turn and keeps the relevant
// ones until target is reached. A failed call or unreadable reply counts
// as not relevant. Cancellation is checked between records; the records
// selected so far are returned with ctx.Err().
func PerItem(ctx context.Context, client llm.Client, records []types.LiteratureRecord, topic string, target int, w io.Writer) ([]types.LiteratureRecord, error) {
	selected := make([]types.LiteratureRecord, 0, target)
	if target <= 0 {
		return selected, nil
	}
	now := Now()

	for i := range records {
		if len(selected) == target {
			break
		}
		if err := ctx.Err(); err != nil {
			return selected, err
		}

		item := newPromptItem(i, records[i], now, 0)
		item.Topic = topic
		var buf bytes.Buffer
		if err := itemPromptTmpl.Execute(&buf, item); err != nil {
			return selected, fmt.Errorf("rendering prompt: %w", err)
		}

		reply, err := client.Complete(ctx, llm.Request{
			System: "You judge whether academic works are relevant to a research topic. Reply with JSON only.",
			User:   buf.String(),
			JSON:   true,
		})
		var ir itemReply
		if err == nil {
			err = llm.DecodeJSON(reply, &ir)
		}
		if err != nil {
			fmt.Fprintf(w, "[%d/%d] error:    %s (%v)\n", i+1, len(records), records[i].Title, err)
			continue
		}
		if !ir.Relevant {
			fmt.Fprintf(w, "[%d/%d] rejected: %s\n", i+1, len(records), records[i].Title)
			continue
		}

		records[i].Selected = true
		records[i].AIRecommendReason = ir.Reason
		selected = append(selected, records[i])
		fmt.Fprintf(w, "[%d/%d] selected: %s\n", i+1, len(records), records[i].Title)
	}
	return selected, nil
}

// Run filters records with the given mode and prints a summary to w.
func Run(ctx context.Context, client llm.Client, mode types.FilterMode, records []types.LiteratureRecord, topic string, target int, w io.Writer) ([]types.LiteratureRecord, error) {
	var (
		selected []types.LiteratureRecord
		err      error
	)
	switch mode {
	case types.FilterPerItem:
		selected, err = PerItem(ctx, client, records, topic, target, w)
	case types.FilterBatch, "":
		selected, err = Batch(ctx, client, records, topic, target)
	default:
		return nil, fmt.Errorf("unknown filter mode %q", mode)
	}
	if err != nil {
		return selected, err
	}
	fmt.Fprintf(w, "\nFilter summary: %d of %d records selected (target %d, mode %s)\n",
		len(selected), len(records), target, modeName(mode))
	return selected, nil
}

func modeName(m types.FilterMode) string {
	if m == "" {
		return string(types.FilterBatch)
	}
	return string(m)
}
