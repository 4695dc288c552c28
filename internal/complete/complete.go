// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package complete fills in missing bibliographic fields of literature
// records by loading each record's landing page and asking an LLM to read
// the missing fields off the page text.
package complete

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/pdiddy/litreview/internal/browser"
	"github.com/pdiddy/litreview/internal/literature"
	"github.com/pdiddy/litreview/internal/llm"
	"github.com/pdiddy/litreview/internal/observability"
	"github.com/pdiddy/litreview/pkg/types"
)

const (
	// MaxPageText bounds the page text sent to the model, in runes.
	MaxPageText = 8000

	// DefaultPageTimeout bounds one landing-page load.
	DefaultPageTimeout = 30 * time.Second
)

// Outcome is what happened to one record.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// BatchSummary reports the outcome of completing a batch of records.
type BatchSummary struct {
	Completed int
	Skipped   int
	Failed    int
}

// Total returns the number of records considered.
func (s BatchSummary) Total() int {
	return s.Completed + s.Skipped + s.Failed
}

// HasFailures reports whether any record failed.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

var completionPromptTmpl = template.Must(template.New("completion").Parse(`The text below was taken from the landing page of an academic work.

Title: {{.Title}}
{{- if .Authors}}
Known authors: {{.Authors}}
{{- end}}

Find these missing fields: {{.Missing}}.
- authors: list of author names
- year: four-digit publication year
- journal: the journal, conference or other venue
- abstract: the complete abstract, verbatim

Respond with a JSON object containing only the missing fields, e.g.
{"authors": ["A. Author"], "year": 2020, "journal": "Nature", "abstract": "..."}
Omit a field you cannot find. Do not invent values.

Page text:
{{.Text}}
`))

// completionReply is the model's answer. Authors and year accept the loose
// forms models produce.
type completionReply struct {
	Authors  types.Authors `json:"authors"`
	Year     types.Year    `json:"year"`
	Journal  string        `json:"journal"`
	Abstract string        `json:"abstract"`
}

// Completer completes records one at a time.
type Completer struct {
	Browser     browser.Browser
	Client      llm.Client
	UserAgent   string
	PageTimeout time.Duration
	Logger      zerolog.Logger
	Metrics     *observability.Metrics

	// Catalog, when set, is asked for the record's title after the page's
	// meta tags and before the model.
	Catalog MetadataSource
}

// Record completes r in place and reports the outcome. Failures are
// recorded on the record's status and missing fields, never returned.
// Records without a usable URL are skipped with their status unchanged.
func (c *Completer) Record(ctx context.Context, r *types.LiteratureRecord) Outcome {
	log := c.Logger.With().Str("title", r.Title).Logger()

	if literature.IsComplete(*r) {
		r.CompletionStatus = types.StatusCompleted
		r.MissingFields = nil
		return OutcomeSkipped
	}
	if !literature.ValidURL(r.URL) {
		r.MissingFields = literature.MissingFields(*r)
		log.Info().Str("url", r.URL).Msg("skipping completion: no usable URL")
		return OutcomeSkipped
	}

	r.CompletionStatus = types.StatusProcessing
	html, text, err := c.load(ctx, r.URL)
	if err != nil {
		log.Warn().Err(err).Str("url", r.URL).Msg("loading landing page")
		return c.fail(r)
	}

	literature.Merge(r, ExtractMeta(html))
	if literature.IsComplete(*r) {
		return c.succeed(r)
	}

	if c.Catalog != nil {
		c.lookup(ctx, r)
		if literature.IsComplete(*r) {
			return c.succeed(r)
		}
	}

	reply, err := c.ask(ctx, r, text)
	if err != nil {
		log.Warn().Err(err).Msg("completing fields")
		return c.fail(r)
	}
	literature.Merge(r, types.LiteratureRecord{
		Authors:  reply.Authors,
		Year:     reply.Year,
		Journal:  strings.TrimSpace(reply.Journal),
		Abstract: strings.TrimSpace(reply.Abstract),
	})

	if literature.IsComplete(*r) {
		return c.succeed(r)
	}
	log.Info().Strs("missing", literature.MissingFields(*r)).Msg("still incomplete")
	return c.fail(r)
}

// lookup merges the catalogue entry for r's title. The URL is never
// replaced, and a failed lookup leaves r as it was.
func (c *Completer) lookup(ctx context.Context, r *types.LiteratureRecord) {
	found, err := c.Catalog.Lookup(ctx, r.Title)
	if errors.Is(err, ErrNoMatch) {
		return
	}
	if err != nil {
		c.Logger.Debug().Err(err).Str("title", r.Title).Msg("catalogue lookup")
		return
	}
	found.URL = ""
	literature.Merge(r, found)
}

func (c *Completer) succeed(r *types.LiteratureRecord) Outcome {
	r.CompletionStatus = types.StatusCompleted
	r.MissingFields = nil
	return OutcomeCompleted
}

func (c *Completer) fail(r *types.LiteratureRecord) Outcome {
	r.CompletionStatus = types.StatusFailed
	r.MissingFields = literature.MissingFields(*r)
	return OutcomeFailed
}

// load opens url in a hidden page and returns its HTML and visible text.
func (c *Completer) load(ctx context.Context, url string) (string, string, error) {
	timeout := c.PageTimeout
	if timeout <= 0 {
		timeout = DefaultPageTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, err := c.Browser.Open(pctx, url, browser.OpenOptions{UserAgent: c.UserAgent})
	if err != nil {
		return "", "", err
	}
	defer page.Close()

	html, err := page.HTML(pctx)
	if err != nil {
		return "", "", fmt.Errorf("reading page HTML: %w", err)
	}
	text, err := page.Text(pctx)
	if err != nil {
		return "", "", fmt.Errorf("reading page text: %w", err)
	}
	return html, text, nil
}

func (c *Completer) ask(ctx context.Context, r *types.LiteratureRecord, text string) (completionReply, error) {
	var reply completionReply

	var buf bytes.Buffer
	err := completionPromptTmpl.Execute(&buf, struct {
		Title, Authors, Missing, Text string
	}{
		Title:   r.Title,
		Authors: r.Authors.String(),
		Missing: strings.Join(literature.MissingFields(*r), ", "),
		Text:    truncateRunes(strings.TrimSpace(text), MaxPageText),
	})
	if err != nil {
		return reply, fmt.Errorf("rendering prompt: %w", err)
	}

	out, err := c.Client.Complete(ctx, llm.Request{
		System: "You extract bibliographic metadata from web pages. Reply with JSON only.",
		User:   buf.String(),
		JSON:   true,
	})
	if err != nil {
		return reply, err
	}
	if err := llm.DecodeJSON(out, &reply); err != nil {
		return reply, err
	}
	return reply, nil
}

// All completes records in order, one at a time, printing a line per
// record to w. It stops between records when ctx is cancelled, leaving the
// remaining records untouched.
func (c *Completer) All(ctx context.Context, records []types.LiteratureRecord, w io.Writer) (BatchSummary, error) {
	var sum BatchSummary
	for i := range records {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		r := &records[i]
		outcome := c.Record(ctx, r)
		c.Metrics.RecordCompletion(string(outcome))

		switch outcome {
		case OutcomeCompleted:
			sum.Completed++
			fmt.Fprintf(w, "[%d/%d] completed: %s\n", i+1, len(records), r.Title)
		case OutcomeSkipped:
			sum.Skipped++
			fmt.Fprintf(w, "[%d/%d] skipped:   %s\n", i+1, len(records), r.Title)
		case OutcomeFailed:
			sum.Failed++
			fmt.Fprintf(w, "[%d/%d] failed:    %s (missing %s)\n", i+1, len(records), r.Title,
				strings.Join(r.MissingFields, ", "))
		}
	}

	fmt.Fprintf(w, "\nCompletion summary: %d completed, %d skipped, %d failed (total: %d)\n",
		sum.Completed, sum.Skipped, sum.Failed, sum.Total())
	return sum, nil
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
