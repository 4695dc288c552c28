package keywords

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/litreview/internal/llm"
	"github.com/pdiddy/litreview/pkg/types"
)

type mockClient struct {
	reply string
	err   error
	reqs  []llm.Request
}

func (m *mockClient) Complete(_ context.Context, req llm.Request) (string, error) {
	m.reqs = append(m.reqs, req)
	return m.reply, m.err
}

func (m *mockClient) Provider() string { return "mock" }

func TestGenerate(t *testing.T) {
	client := &mockClient{reply: "```json\n" + `{"keywords": [
		{"keyword": "graph neural networks", "count": 12},
		{"keyword": "Graph  Neural Networks", "count": 5},
		{"keyword": "message passing", "count": 10},
		{"keyword": "", "count": 4},
		{"keyword": "graph attention", "count": 0}
	]}` + "\n```"}

	plan, err := Generate(context.Background(), client, types.RequirementData{
		Topic:       "GNNs for molecules",
		TargetCount: 20,
		Outline:     "# Intro\n# Methods",
	})
	require.NoError(t, err)
	assert.Equal(t, types.KeywordPlan{
		{Keyword: "graph neural networks", Count: 12},
		{Keyword: "message passing", Count: 10},
	}, plan)

	require.Len(t, client.reqs, 1)
	assert.True(t, client.reqs[0].JSON)
	assert.Contains(t, client.reqs[0].User, "GNNs for molecules")
	assert.Contains(t, client.reqs[0].User, "about 30")
	assert.Contains(t, client.reqs[0].User, "# Methods")
}

func TestGenerateRejectsInvalidRequirement(t *testing.T) {
	client := &mockClient{}
	_, err := Generate(context.Background(), client, types.RequirementData{Topic: "", TargetCount: 5})
	require.Error(t, err)
	assert.Empty(t, client.reqs, "no API call for an invalid requirement")
}

func TestGenerateClientError(t *testing.T) {
	client := &mockClient{err: errors.New("boom")}
	_, err := Generate(context.Background(), client, types.RequirementData{Topic: "x", TargetCount: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		total int
		want  types.KeywordPlan
	}{
		{
			name:  "bare array",
			reply: `[{"keyword":"a","count":3},{"keyword":"b","count":4}]`,
			want:  types.KeywordPlan{{Keyword: "a", Count: 3}, {Keyword: "b", Count: 4}},
		},
		{
			name:  "lines with counts",
			reply: "Here is the plan:\n1. graph neural networks: 12\n2. message passing (8)\n- molecular property prediction，5",
			want: types.KeywordPlan{
				{Keyword: "graph neural networks", Count: 12},
				{Keyword: "message passing", Count: 8},
				{Keyword: "molecular property prediction", Count: 5},
			},
		},
		{
			name:  "bare lines share the remainder",
			reply: "- \"alpha\"\n- beta\n- gamma: 10",
			total: 30,
			want: types.KeywordPlan{
				{Keyword: "alpha", Count: 10},
				{Keyword: "beta", Count: 10},
				{Keyword: "gamma", Count: 10},
			},
		},
		{
			name:  "bare lines get at least one",
			reply: "alpha\nbeta",
			total: 1,
			want:  types.KeywordPlan{{Keyword: "alpha", Count: 1}, {Keyword: "beta", Count: 1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.reply, tt.total)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseNothingUsable(t *testing.T) {
	_, err := Parse("   \n\n", 10)
	assert.Error(t, err)
}

func TestPlanTotal(t *testing.T) {
	assert.Equal(t, 30, PlanTotal(20))
	assert.Equal(t, 2, PlanTotal(1))
	assert.Equal(t, 8, PlanTotal(5))
}

func TestPlanFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.yaml")
	req := types.RequirementData{Topic: "GNNs", TargetCount: 10}
	plan := types.KeywordPlan{{Keyword: "gnn", Count: 8}, {Keyword: "graph transformer", Count: 7}}

	require.NoError(t, WritePlanFile(path, req, plan))
	pf, err := ReadPlanFile(path)
	require.NoError(t, err)
	assert.Equal(t, plan, pf.Plan)
	assert.Equal(t, "GNNs", pf.Topic)
	assert.Equal(t, 15, pf.Summary.Total)
	assert.Equal(t, 2, pf.Summary.Keywords)
}

func TestReadPlanFileRejectsBadEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.yaml")
	content := "topic: x\nplan:\n  - keyword: ok\n    count: 3\n  - keyword: bad\n    count: 0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := ReadPlanFile(path)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "entry 2"))
}
