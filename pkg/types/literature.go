// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the litreview pipeline:
// literature records, keyword plans, projects and per-stage configuration.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// CompletionStatus tracks a record through the completion stage.
type CompletionStatus string

const (
	StatusPending    CompletionStatus = "pending"
	StatusProcessing CompletionStatus = "processing"
	StatusCompleted  CompletionStatus = "completed"
	StatusFailed     CompletionStatus = "failed"
)

// LiteratureRecord is one bibliographic entry found by a search and refined
// by the later pipeline stages. The title is the identity key.
type LiteratureRecord struct {
	// Title is the work's title as scraped.
	Title string `json:"title" yaml:"title"`

	// Authors lists the authors in source order.
	Authors Authors `json:"authors,omitempty" yaml:"authors,omitempty"`

	// Year is the publication year; zero when unknown.
	Year Year `json:"year,omitempty" yaml:"year,omitempty"`

	// Journal is the venue: journal, conference or publisher.
	Journal string `json:"journal,omitempty" yaml:"journal,omitempty"`

	// Abstract is the abstract or, before completion, the result snippet.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// Cited is the "cited by" count.
	Cited int `json:"cited" yaml:"cited"`

	// URL points at the landing page of the work.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Keyword is the search phrase that found the record.
	Keyword string `json:"keyword,omitempty" yaml:"keyword,omitempty"`

	CompletionStatus CompletionStatus `json:"completionStatus,omitempty" yaml:"completion_status,omitempty"`

	// MissingFields names the fields still absent after completion.
	MissingFields []string `json:"missingFields,omitempty" yaml:"missing_fields,omitempty"`

	Selected          bool   `json:"selected" yaml:"selected"`
	AIRecommendReason string `json:"aiRecommendReason,omitempty" yaml:"ai_recommend_reason,omitempty"`
}

// Authors is a list of author names. It decodes from either a JSON list or a
// single delimited string, which older project files and LLM replies use.
type Authors []string

// authorSeparators splits a free-text author string.
var authorSeparators = regexp.MustCompile(`\s*(?:,|;|，|、|\band\b)\s*`)

// ParseAuthors splits a free-text author line into names.
func ParseAuthors(s string) Authors {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "…"))
	if s == "" {
		return nil
	}
	var out Authors
	for _, part := range authorSeparators.Split(s, -1) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// UnmarshalJSON accepts a string, a list of strings, or null.
func (a *Authors) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*a = nil
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = ParseAuthors(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("authors: %w", err)
	}
	var out Authors
	for _, name := range list {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	*a = out
	return nil
}

// String joins the names with ", ".
func (a Authors) String() string {
	return strings.Join(a, ", ")
}

// Year is a publication year. It decodes from a JSON number or a string
// containing a four-digit year; anything else decodes to zero.
type Year int

var yearPattern = regexp.MustCompile(`\b(1[89]\d{2}|20\d{2}|2100)\b`)

// ParseYear returns the first plausible four-digit year in s, or zero.
func ParseYear(s string) Year {
	m := yearPattern.FindString(s)
	if m == "" {
		return 0
	}
	y, _ := strconv.Atoi(m)
	return Year(y)
}

// UnmarshalJSON accepts a number, a string, or null.
func (y *Year) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*y = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*y = ParseYear(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("year: %w", err)
	}
	*y = Year(int(f))
	return nil
}

// KeywordPlanEntry is one search phrase with the number of results wanted.
type KeywordPlanEntry struct {
	Keyword string `json:"keyword" yaml:"keyword" validate:"required"`
	Count   int    `json:"count" yaml:"count" validate:"gt=0"`
}

// KeywordPlan is the ordered list of searches the search stage runs.
type KeywordPlan []KeywordPlanEntry

// Total returns the sum of the requested counts.
func (p KeywordPlan) Total() int {
	n := 0
	for _, e := range p {
		n += e.Count
	}
	return n
}
