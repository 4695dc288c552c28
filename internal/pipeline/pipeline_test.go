package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/litreview/internal/complete"
	"github.com/pdiddy/litreview/internal/library"
	"github.com/pdiddy/litreview/internal/llm"
	"github.com/pdiddy/litreview/internal/project"
	"github.com/pdiddy/litreview/internal/scholar"
	"github.com/pdiddy/litreview/pkg/types"
)

// routingClient answers each stage's prompt by its system message.
type routingClient struct {
	mu    sync.Mutex
	calls map[string]int
	fail  string
}

func (c *routingClient) Complete(_ context.Context, req llm.Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	var stage, reply string
	switch {
	case strings.Contains(req.System, "research librarian"):
		stage, reply = "keywords", `{"keywords":[{"keyword":"graph neural networks","count":2},{"keyword":"message passing","count":2}]}`
	case strings.Contains(req.System, "selecting literature"):
		stage, reply = "filter", `{"selected":[{"index":2,"reason":"core"}]}`
	case strings.Contains(req.System, "academic writer"):
		stage, reply = "review", "Graph networks are surveyed here."
	default:
		stage, reply = "other", "{}"
	}
	c.calls[stage]++
	if c.fail == stage {
		return "", errors.New("llm down")
	}
	return reply, nil
}

func (c *routingClient) Provider() string { return "routing" }

type fakeSearcher struct {
	calls  int
	skip   []string
	source scholar.Source
	// cancelAfter cancels via cancel once that many keywords are searched.
	cancelAfter int
	cancel      context.CancelFunc
}

func (f *fakeSearcher) SearchPlan(ctx context.Context, plan types.KeywordPlan, opts scholar.PlanOptions, w io.Writer) ([]types.LiteratureRecord, scholar.PlanSummary, error) {
	f.calls++
	f.skip = opts.Skip
	f.source = opts.Source
	var (
		out []types.LiteratureRecord
		sum scholar.PlanSummary
	)
	skip := map[string]bool{}
	for _, k := range opts.Skip {
		skip[k] = true
	}
	for _, e := range plan {
		if skip[e.Keyword] {
			sum.Skipped++
			continue
		}
		if f.cancel != nil && sum.Searched == f.cancelAfter {
			f.cancel()
			return out, sum, context.Canceled
		}
		out = append(out, types.LiteratureRecord{Title: "Paper about " + e.Keyword, Keyword: e.Keyword, URL: "https://example.org/" + strings.ReplaceAll(e.Keyword, " ", "-")})
		sum.Searched++
		sum.Done = append(sum.Done, e.Keyword)
	}
	return out, sum, nil
}

type fakeCompleter struct {
	calls int
}

func (f *fakeCompleter) All(_ context.Context, records []types.LiteratureRecord, _ io.Writer) (complete.BatchSummary, error) {
	f.calls++
	for i := range records {
		records[i].Year = 2020
		records[i].CompletionStatus = types.StatusCompleted
	}
	return complete.BatchSummary{Completed: len(records)}, nil
}

type fixture struct {
	store     *project.Store
	project   *types.Project
	client    *routingClient
	searcher  *fakeSearcher
	completer *fakeCompleter
	runner    *Runner
	out       *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := project.NewStore(t.TempDir())
	p, err := store.Create("gnn", types.RequirementData{Topic: "graph neural networks", TargetCount: 1})
	require.NoError(t, err)

	f := &fixture{
		store:     store,
		project:   p,
		client:    &routingClient{},
		searcher:  &fakeSearcher{},
		completer: &fakeCompleter{},
		out:       &bytes.Buffer{},
	}
	f.runner = &Runner{
		Client:    f.client,
		Searcher:  f.searcher,
		Completer: f.completer,
		Logger:    zerolog.Nop(),
		Out:       f.out,
	}
	return f
}

func (f *fixture) target() Target {
	return ProjectTarget(f.store, f.project)
}

func TestRunAllStages(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.runner.Run(context.Background(), f.target(), Options{}))

	p, err := f.store.Load("gnn")
	require.NoError(t, err)
	require.NotNil(t, p.Node1)
	assert.Len(t, p.Node1.Plan, 2)
	require.NotNil(t, p.Node2)
	assert.True(t, p.Node2.Done)
	assert.Len(t, p.Node2.Literature, 2)
	require.NotNil(t, p.Node3)
	assert.Equal(t, types.Year(2020), p.Node3.Literature[0].Year)
	require.NotNil(t, p.Node4)
	require.Len(t, p.Node4.Selected, 1)
	assert.Equal(t, "Paper about message passing", p.Node4.Selected[0].Title)
	assert.Equal(t, "batch", p.Node4.Mode)
	require.NotNil(t, p.Node5)
	assert.Contains(t, p.Node5.Content, "Graph networks are surveyed here.")
	assert.Equal(t, "review", project.LastStage(p.Nodes))

	assert.Contains(t, f.out.String(), "== Stage 1/5: keywords ==")
	assert.Contains(t, f.out.String(), "== Stage 5/5: review ==")
	assert.Equal(t, scholar.SourceScholar, f.searcher.source)
}

func TestRunResumesSkippingFinishedStages(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.runner.Run(context.Background(), f.target(), Options{To: StageSearch}))
	assert.Equal(t, 1, f.client.calls["keywords"])
	assert.Nil(t, f.project.Node3)

	require.NoError(t, f.runner.Run(context.Background(), f.target(), Options{}))
	assert.Equal(t, 1, f.client.calls["keywords"], "keywords not regenerated")
	assert.Equal(t, 1, f.searcher.calls, "search not rerun")
	assert.Equal(t, 1, f.completer.calls)
	assert.Contains(t, f.out.String(), "keywords (already done, skipping)")
}

func TestRunFromForcesRerun(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.runner.Run(context.Background(), f.target(), Options{}))

	require.NoError(t, f.runner.Run(context.Background(), f.target(), Options{From: StageFilter}))
	assert.Equal(t, 1, f.completer.calls, "completion not rerun")
	assert.Equal(t, 2, f.client.calls["filter"])
	assert.Equal(t, 2, f.client.calls["review"])
}

func TestRunBadRange(t *testing.T) {
	f := newFixture(t)
	err := f.runner.Run(context.Background(), f.target(), Options{From: StageReview, To: StageSearch})
	assert.Error(t, err)
	err = f.runner.Run(context.Background(), f.target(), Options{From: "bogus"})
	assert.Error(t, err)
}

func TestSearchCancelPersistsPartialAndResumes(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.runner.Run(context.Background(), f.target(), Options{To: StageKeywords}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.searcher.cancel = cancel
	f.searcher.cancelAfter = 1

	err := f.runner.Run(ctx, f.target(), Options{})
	require.ErrorIs(t, err, context.Canceled)

	p, err := f.store.Load("gnn")
	require.NoError(t, err)
	require.NotNil(t, p.Node2)
	assert.False(t, p.Node2.Done)
	assert.Equal(t, []string{"graph neural networks"}, p.Node2.Searched)
	assert.Len(t, p.Node2.Literature, 1)
	assert.Nil(t, p.Node3)

	f.searcher.cancel = nil
	f.project = p
	require.NoError(t, f.runner.Run(context.Background(), f.target(), Options{To: StageSearch}))
	assert.Equal(t, []string{"graph neural networks"}, f.searcher.skip)
	assert.True(t, f.project.Node2.Done)
	assert.Len(t, f.project.Node2.Literature, 2)
}

func TestStageErrorStopsRun(t *testing.T) {
	f := newFixture(t)
	f.client.fail = "filter"

	err := f.runner.Run(context.Background(), f.target(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "filter")

	p, err := f.store.Load("gnn")
	require.NoError(t, err)
	assert.NotNil(t, p.Node3, "earlier stages persisted")
	assert.Nil(t, p.Node4)
	assert.Zero(t, f.client.calls["review"])
}

func TestRunStageMissingInput(t *testing.T) {
	f := newFixture(t)
	for _, st := range []Stage{StageSearch, StageComplete, StageFilter, StageReview} {
		err := f.runner.RunStage(context.Background(), f.target(), st)
		assert.ErrorIs(t, err, ErrMissingInput, string(st))
	}
}

func TestRunStageReplacesNodeAndClearsDownstream(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.runner.Run(context.Background(), f.target(), Options{}))

	require.NoError(t, f.runner.RunStage(context.Background(), f.target(), StageSearch))
	assert.Equal(t, 2, f.searcher.calls)
	assert.Empty(t, f.searcher.skip, "rerun starts from scratch")
	assert.Nil(t, f.project.Node3)
	assert.Nil(t, f.project.Node5)
}

func TestSubprojectTarget(t *testing.T) {
	f := newFixture(t)
	sp, err := f.store.CreateSubproject(f.project, types.CategoryLiteratureSearch, "round2", types.RequirementData{})
	require.NoError(t, err)

	target := SubprojectTarget(f.store, f.project, sp)
	require.NoError(t, f.runner.Run(context.Background(), target, Options{To: StageComplete}))

	got, err := f.store.LoadSubproject("gnn", types.CategoryLiteratureSearch, "round2")
	require.NoError(t, err)
	require.NotNil(t, got.Node3)
	assert.Nil(t, f.project.Node1, "parent project untouched")
}

func TestMarkVerifiedAndSource(t *testing.T) {
	f := newFixture(t)
	MarkVerified(f.project, scholar.SourceScholar)
	assert.True(t, f.project.Config.Verification.ScholarVerified)
	assert.False(t, f.project.Config.Verification.PreferMirror)

	MarkVerified(f.project, scholar.SourceMirror)
	assert.True(t, f.project.Config.Verification.MirrorVerified)
	assert.Equal(t, scholar.SourceMirror, f.target().Source)
}

func TestLibraryIndexing(t *testing.T) {
	f := newFixture(t)
	lib, err := library.Open(filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, err)
	defer lib.Close()
	f.runner.Library = lib

	require.NoError(t, f.runner.Run(context.Background(), f.target(), Options{}))

	st, err := lib.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.Records)
	assert.Equal(t, 1, st.Selected)
	assert.Equal(t, 2, st.Projects["gnn"])
}

func TestParseStage(t *testing.T) {
	st, err := ParseStage("Complete")
	require.NoError(t, err)
	assert.Equal(t, StageComplete, st)

	st, err = ParseStage("node4")
	require.NoError(t, err)
	assert.Equal(t, StageFilter, st)

	_, err = ParseStage("draft")
	assert.Error(t, err)
}
