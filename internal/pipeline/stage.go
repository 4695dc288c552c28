package pipeline

import (
	"fmt"
	"strings"

	"github.com/pdiddy/litreview/pkg/types"
)

// Stage names one step of the review pipeline.
type Stage string

const (
	StageKeywords Stage = "keywords"
	StageSearch   Stage = "search"
	StageComplete Stage = "complete"
	StageFilter   Stage = "filter"
	StageReview   Stage = "review"
)

// Stages lists the pipeline in execution order. Stage i writes node i+1.
var Stages = []Stage{StageKeywords, StageSearch, StageComplete, StageFilter, StageReview}

// ParseStage accepts a stage name or its node name ("node1".."node5").
func ParseStage(s string) (Stage, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, st := range Stages {
		if s == string(st) || s == fmt.Sprintf("node%d", i+1) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q (want one of keywords, search, complete, filter, review)", s)
}

func (s Stage) index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// done reports whether n holds finished results for s. Search and
// completion nodes can hold partial results from an interrupted run.
func done(n *types.Nodes, s Stage) bool {
	switch s {
	case StageKeywords:
		return n.Node1 != nil
	case StageSearch:
		return n.Node2 != nil && n.Node2.Done
	case StageComplete:
		return n.Node3 != nil && n.Node3.Done
	case StageFilter:
		return n.Node4 != nil
	case StageReview:
		return n.Node5 != nil
	}
	return false
}

// clearAfter drops every node downstream of s; their inputs are about
// to change.
func clearAfter(n *types.Nodes, s Stage) {
	switch s {
	case StageKeywords:
		n.Node2 = nil
		fallthrough
	case StageSearch:
		n.Node3 = nil
		fallthrough
	case StageComplete:
		n.Node4 = nil
		fallthrough
	case StageFilter:
		n.Node5 = nil
	}
}
