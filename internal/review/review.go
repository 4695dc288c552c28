// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package review writes the literature review from the selected records,
// either as one document or section by section following an outline.
package review

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/pdiddy/litreview/internal/llm"
	"github.com/pdiddy/litreview/pkg/types"
)

// reviewMaxTokens leaves room for a full review in one reply.
const reviewMaxTokens = 8192

var documentPromptTmpl = template.Must(template.New("document").Parse(`Write an academic literature review on the topic below, in {{.Language}}.

Topic: {{.Topic}}

Use only the references listed. Cite them inline by key in square brackets, e.g. [{{.ExampleKey}}] or [{{.ExampleKey}}; {{.ExampleKey}}a]. Organise the review into an introduction, thematic sections, a discussion of open problems, and a conclusion. Use Markdown headings. Do not add a reference list; it is appended automatically.

References:
{{.References}}`))

var sectionPromptTmpl = template.Must(template.New("section").Parse(`You are writing one section of an academic literature review, in {{.Language}}.

Topic: {{.Topic}}

Full outline:
{{.Outline}}

Write only the body of the section "{{.Section.Title}}".
{{- if .Section.Notes}}
Author's notes for this section:
{{.Section.Notes}}
{{- end}}

Use only the references listed and cite them inline by key in square brackets, e.g. [{{.ExampleKey}}]. Do not repeat the section heading and do not add a reference list.

References:
{{.References}}`))

type promptData struct {
	Topic      string
	Language   string
	ExampleKey string
	References string
	Outline    string
	Section    types.OutlineSection
}

// Generate writes the review for req from the selected records. Without an
// outline the model writes the whole document in one call; with one, each
// section is written by its own call and the sections are joined under
// their headings. A numbered reference list is appended. Progress lines go
// to w.
func Generate(ctx context.Context, client llm.Client, req types.RequirementData, records []types.LiteratureRecord, w io.Writer) (string, error) {
	if len(records) == 0 {
		return "", fmt.Errorf("no selected records to review")
	}
	refs := References(records)
	data := promptData{
		Topic:      req.Topic,
		Language:   languageName(req.Language),
		ExampleKey: refs[0].CitationKey,
		References: FormatReferenceList(refs),
	}

	var body strings.Builder
	outline := ParseOutline(req.Outline)
	if len(outline.Sections) == 0 {
		fmt.Fprintf(w, "writing review (%d references)\n", len(refs))
		text, err := complete(ctx, client, documentPromptTmpl, data)
		if err != nil {
			return "", fmt.Errorf("writing review: %w", err)
		}
		body.WriteString(text)
		body.WriteString("\n")
	} else {
		data.Outline = strings.TrimSpace(req.Outline)
		for i, sec := range outline.Sections {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			fmt.Fprintf(w, "[%d/%d] writing section: %s\n", i+1, len(outline.Sections), sec.Title)
			data.Section = sec
			text, err := complete(ctx, client, sectionPromptTmpl, data)
			if err != nil {
				return "", fmt.Errorf("writing section %q: %w", sec.Title, err)
			}
			fmt.Fprintf(&body, "%s %s\n\n%s\n\n", strings.Repeat("#", max(sec.Level, 1)), sec.Title, text)
		}
	}

	fmt.Fprintf(&body, "\n## %s\n\n%s", referencesHeading(req.Language), FormatReferenceList(refs))
	content := body.String()

	if missing := ValidateCitations(content, refs); len(missing) > 0 {
		fmt.Fprintf(w, "warning: review cites unknown keys: %s\n", strings.Join(missing, ", "))
	}
	return content, nil
}

func complete(ctx context.Context, client llm.Client, tmpl *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	out, err := client.Complete(ctx, llm.Request{
		System:    "You are an expert academic writer.",
		User:      buf.String(),
		MaxTokens: reviewMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func languageName(code string) string {
	if code == "zh" {
		return "Chinese"
	}
	return "English"
}

func referencesHeading(code string) string {
	if code == "zh" {
		return "参考文献"
	}
	return "References"
}
