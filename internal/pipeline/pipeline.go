// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs the five review stages over a project or
// subproject, persisting each stage's node as it finishes so an
// interrupted run resumes where it stopped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pdiddy/litreview/internal/complete"
	"github.com/pdiddy/litreview/internal/filter"
	"github.com/pdiddy/litreview/internal/keywords"
	"github.com/pdiddy/litreview/internal/library"
	"github.com/pdiddy/litreview/internal/literature"
	"github.com/pdiddy/litreview/internal/llm"
	"github.com/pdiddy/litreview/internal/observability"
	"github.com/pdiddy/litreview/internal/project"
	"github.com/pdiddy/litreview/internal/review"
	"github.com/pdiddy/litreview/internal/scholar"
	"github.com/pdiddy/litreview/pkg/types"
)

// ErrMissingInput is returned when a stage runs before the stage that
// produces its input.
var ErrMissingInput = errors.New("missing input")

// PlanSearcher runs a keyword plan against a search source.
type PlanSearcher interface {
	SearchPlan(ctx context.Context, plan types.KeywordPlan, opts scholar.PlanOptions, w io.Writer) ([]types.LiteratureRecord, scholar.PlanSummary, error)
}

// RecordCompleter fills missing fields of records in place.
type RecordCompleter interface {
	All(ctx context.Context, records []types.LiteratureRecord, w io.Writer) (complete.BatchSummary, error)
}

// Target is the unit a pipeline run works on: a project or one of its
// subprojects.
type Target struct {
	// Name labels the records in the library.
	Name  string
	Req   types.RequirementData
	Nodes *types.Nodes
	// Source picks the search site.
	Source scholar.Source
	Save   func() error
}

// ProjectTarget wraps p for a run. The mirror is searched when the project
// prefers it.
func ProjectTarget(store *project.Store, p *types.Project) Target {
	src := scholar.SourceScholar
	if p.Config.Verification.PreferMirror {
		src = scholar.SourceMirror
	}
	return Target{
		Name:   p.Name,
		Req:    p.RequirementData,
		Nodes:  &p.Nodes,
		Source: src,
		Save:   func() error { return store.Save(p) },
	}
}

// SubprojectTarget wraps a subproject of the named project.
func SubprojectTarget(store *project.Store, p *types.Project, sp *types.Subproject) Target {
	t := ProjectTarget(store, p)
	t.Name = p.Name + "/" + sp.Name
	t.Req = sp.RequirementData
	t.Nodes = &sp.Nodes
	t.Save = func() error { return store.SaveSubproject(p.Name, sp) }
	return t
}

// MarkVerified records that the user passed a challenge on src. A passed
// mirror challenge makes the mirror the preferred source.
func MarkVerified(p *types.Project, src scholar.Source) {
	switch src {
	case scholar.SourceMirror:
		p.Config.Verification.MirrorVerified = true
		p.Config.Verification.PreferMirror = true
	default:
		p.Config.Verification.ScholarVerified = true
	}
}

// Runner executes stages. Searcher and Completer are only needed by their
// stages; Library is optional.
type Runner struct {
	Client     llm.Client
	Searcher   PlanSearcher
	Completer  RecordCompleter
	Library    *library.Store
	FilterMode types.FilterMode
	Logger     zerolog.Logger
	Metrics    *observability.Metrics
	Out        io.Writer
}

// Options control a Run.
type Options struct {
	// From forces that stage and every later one to rerun even if their
	// nodes exist. Empty resumes at the first unfinished stage.
	From Stage

	// To stops the run after that stage. Empty runs to the end.
	To Stage
}

// Run executes the pipeline on t. Finished stages are skipped unless
// opts.From forces them. Each stage's node is saved as soon as it
// finishes; on cancellation the partial node is saved and ctx.Err()
// returned.
func (r *Runner) Run(ctx context.Context, t Target, opts Options) error {
	runID := uuid.NewString()
	log := observability.WithRun(observability.WithProject(r.Logger, t.Name), runID)

	from, to := 0, len(Stages)-1
	if opts.From != "" {
		if from = opts.From.index(); from < 0 {
			return fmt.Errorf("unknown stage %q", opts.From)
		}
	}
	if opts.To != "" {
		if to = opts.To.index(); to < 0 {
			return fmt.Errorf("unknown stage %q", opts.To)
		}
	}
	if from > to {
		return fmt.Errorf("--from %s is after --to %s", opts.From, opts.To)
	}

	log.Info().Str("from", string(Stages[from])).Str("to", string(Stages[to])).Msg("pipeline started")
	for i := 0; i <= to; i++ {
		st := Stages[i]
		if err := ctx.Err(); err != nil {
			return err
		}
		forced := opts.From != "" && i >= from
		if !forced && done(t.Nodes, st) {
			fmt.Fprintf(r.out(), "== Stage %d/%d: %s (already done, skipping) ==\n", i+1, len(Stages), st)
			continue
		}
		if forced && st == opts.From {
			resetNode(t.Nodes, st)
		}
		if err := r.runStage(ctx, t, st, log); err != nil {
			return err
		}
	}
	log.Info().Msg("pipeline finished")
	return nil
}

// RunStage runs exactly one stage on t, replacing any node it already has.
func (r *Runner) RunStage(ctx context.Context, t Target, st Stage) error {
	if st.index() < 0 {
		return fmt.Errorf("unknown stage %q", st)
	}
	log := observability.WithRun(observability.WithProject(r.Logger, t.Name), uuid.NewString())
	resetNode(t.Nodes, st)
	return r.runStage(ctx, t, st, log)
}

// resetNode drops st's node so it reruns from scratch rather than
// resuming partial results.
func resetNode(n *types.Nodes, st Stage) {
	switch st {
	case StageKeywords:
		n.Node1 = nil
	case StageSearch:
		n.Node2 = nil
	case StageComplete:
		n.Node3 = nil
	case StageFilter:
		n.Node4 = nil
	case StageReview:
		n.Node5 = nil
	}
}

func (r *Runner) runStage(ctx context.Context, t Target, st Stage, log zerolog.Logger) error {
	w := r.out()
	fmt.Fprintf(w, "== Stage %d/%d: %s ==\n", st.index()+1, len(Stages), st)
	log = log.With().Str("stage", string(st)).Logger()

	start := time.Now()
	var err error
	switch st {
	case StageKeywords:
		err = r.keywords(ctx, t)
	case StageSearch:
		err = r.search(ctx, t, log)
	case StageComplete:
		err = r.complete(ctx, t, log)
	case StageFilter:
		err = r.filter(ctx, t, log)
	case StageReview:
		err = r.review(ctx, t)
	}
	elapsed := time.Since(start).Seconds()
	r.Metrics.RecordStage(string(st), elapsed)

	if saveErr := t.Save(); saveErr != nil {
		log.Error().Err(saveErr).Msg("saving project")
		if err == nil {
			err = fmt.Errorf("saving after %s: %w", st, saveErr)
		}
	}
	if err != nil {
		log.Warn().Err(err).Float64("seconds", elapsed).Msg("stage stopped")
		return fmt.Errorf("%s: %w", st, err)
	}
	log.Info().Float64("seconds", elapsed).Msg("stage finished")
	return nil
}

func (r *Runner) keywords(ctx context.Context, t Target) error {
	if r.Client == nil {
		return errors.New("no LLM client configured")
	}
	plan, err := keywords.Generate(ctx, r.Client, t.Req)
	if err != nil {
		return err
	}
	clearAfter(t.Nodes, StageKeywords)
	t.Nodes.Node1 = &types.KeywordsNode{Plan: plan, GeneratedAt: time.Now().UTC()}

	w := r.out()
	for _, e := range plan {
		fmt.Fprintf(w, "  %-50s %d\n", e.Keyword, e.Count)
	}
	fmt.Fprintf(w, "\nKeyword plan: %d keywords, %d results requested\n", len(plan), plan.Total())
	return nil
}

func (r *Runner) search(ctx context.Context, t Target, log zerolog.Logger) error {
	if r.Searcher == nil {
		return errors.New("no searcher configured")
	}
	if t.Nodes.Node1 == nil || len(t.Nodes.Node1.Plan) == 0 {
		return fmt.Errorf("no keyword plan: %w", ErrMissingInput)
	}

	node := t.Nodes.Node2
	if node == nil || node.Done {
		node = &types.SearchNode{}
	}
	found, sum, err := r.Searcher.SearchPlan(ctx, t.Nodes.Node1.Plan, scholar.PlanOptions{
		MinYear: t.Req.MinYear,
		Source:  t.Source,
		Skip:    node.Searched,
	}, r.out())

	merged, _ := literature.Dedup(append(node.Literature, found...))
	node.Literature = merged
	node.Searched = append(node.Searched, sum.Done...)
	node.Done = err == nil
	if node.Done {
		node.CompletedAt = time.Now().UTC()
	}
	clearAfter(t.Nodes, StageSearch)
	t.Nodes.Node2 = node

	r.index(ctx, t.Name, node.Literature, log)
	return err
}

func (r *Runner) complete(ctx context.Context, t Target, log zerolog.Logger) error {
	if r.Completer == nil {
		return errors.New("no completer configured")
	}

	node := t.Nodes.Node3
	if node == nil || node.Done {
		if t.Nodes.Node2 == nil {
			return fmt.Errorf("no search results: %w", ErrMissingInput)
		}
		node = &types.CompletionNode{
			Literature: append([]types.LiteratureRecord(nil), t.Nodes.Node2.Literature...),
		}
	}

	_, err := r.Completer.All(ctx, node.Literature, r.out())
	node.Done = err == nil
	if node.Done {
		node.CompletedAt = time.Now().UTC()
	}
	clearAfter(t.Nodes, StageComplete)
	t.Nodes.Node3 = node

	r.index(ctx, t.Name, node.Literature, log)
	return err
}

func (r *Runner) filter(ctx context.Context, t Target, log zerolog.Logger) error {
	if r.Client == nil {
		return errors.New("no LLM client configured")
	}
	if t.Nodes.Node3 == nil {
		return fmt.Errorf("no completed records: %w", ErrMissingInput)
	}

	records := t.Nodes.Node3.Literature
	for i := range records {
		records[i].Selected = false
		records[i].AIRecommendReason = ""
	}

	mode := r.FilterMode
	if mode == "" {
		mode = types.FilterBatch
	}
	selected, err := filter.Run(ctx, r.Client, mode, records, t.Req.Topic, t.Req.TargetCount, r.out())
	if err != nil {
		return err
	}
	clearAfter(t.Nodes, StageFilter)
	t.Nodes.Node4 = &types.FilterNode{
		Selected:    selected,
		Mode:        string(mode),
		CompletedAt: time.Now().UTC(),
	}

	r.index(ctx, t.Name, selected, log)
	return nil
}

func (r *Runner) review(ctx context.Context, t Target) error {
	if r.Client == nil {
		return errors.New("no LLM client configured")
	}
	if t.Nodes.Node4 == nil || len(t.Nodes.Node4.Selected) == 0 {
		return fmt.Errorf("no selected records: %w", ErrMissingInput)
	}

	text, err := review.Generate(ctx, r.Client, t.Req, t.Nodes.Node4.Selected, r.out())
	if err != nil {
		return err
	}
	t.Nodes.Node5 = &types.ReviewNode{Content: text, CompletedAt: time.Now().UTC()}
	return nil
}

// index copies records into the library. Failures are logged; the library
// is a convenience and never stops a run.
func (r *Runner) index(ctx context.Context, name string, records []types.LiteratureRecord, log zerolog.Logger) {
	if r.Library == nil || len(records) == 0 {
		return
	}
	sum, err := r.Library.Upsert(context.WithoutCancel(ctx), name, records)
	if err != nil {
		log.Warn().Err(err).Msg("indexing records into library")
		return
	}
	log.Debug().Int("added", sum.Added).Int("updated", sum.Updated).Msg("library updated")
}

func (r *Runner) out() io.Writer {
	if r.Out == nil {
		return io.Discard
	}
	return r.Out
}
