package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litreview/internal/browser"
	"github.com/pdiddy/litreview/internal/complete"
	"github.com/pdiddy/litreview/internal/library"
	"github.com/pdiddy/litreview/internal/llm"
	"github.com/pdiddy/litreview/internal/observability"
	"github.com/pdiddy/litreview/internal/pipeline"
	"github.com/pdiddy/litreview/internal/project"
	"github.com/pdiddy/litreview/internal/scholar"
	"github.com/pdiddy/litreview/internal/secrets"
	"github.com/pdiddy/litreview/pkg/types"
)

func projectStore() *project.Store {
	return project.NewStore(cfg.ProjectsDir)
}

// loadTarget loads the project named by args[0] and, with --sub
// category/name, one of its subprojects.
func loadTarget(cmd *cobra.Command, store *project.Store, name string) (*types.Project, pipeline.Target, error) {
	p, err := store.Load(name)
	if err != nil {
		return nil, pipeline.Target{}, err
	}
	sub, _ := cmd.Flags().GetString("sub")
	if sub == "" {
		return p, pipeline.ProjectTarget(store, p), nil
	}
	category, subName, ok := strings.Cut(sub, "/")
	if !ok {
		return nil, pipeline.Target{}, fmt.Errorf("--sub must be category/name, got %q", sub)
	}
	sp, err := store.LoadSubproject(p.Name, types.SubprojectCategory(category), subName)
	if err != nil {
		return nil, pipeline.Target{}, err
	}
	return p, pipeline.SubprojectTarget(store, p, sp), nil
}

// newClient builds the LLM client for p. The project's provider and keys
// take precedence over the global configuration.
func newClient(cmd *cobra.Command, p *types.Project) (llm.Client, error) {
	lc := cfg.LLM
	var projectKeys map[types.Provider]string
	if p != nil {
		if p.Config.Provider != "" && !cmd.Flags().Changed("provider") {
			lc.Provider = p.Config.Provider
		}
		projectKeys = p.Config.APIKeys
	}
	if lc.APIKey == "" {
		lc.APIKey = secrets.APIKey(lc.Provider, projectKeys, loadedSecrets)
	}
	if lc.APIKey == "" {
		return nil, fmt.Errorf("no API key for %s: add .secrets/%s, set LITREVIEW_%s_API_KEY, or store one in the project",
			lc.Provider, secrets.KeyName(lc.Provider), strings.ToUpper(string(lc.Provider)))
	}
	client, err := llm.New(cmd.Context(), lc)
	if err != nil {
		return nil, err
	}
	return llm.WithMetrics(client, metrics), nil
}

func newBrowser(cmd *cobra.Command) *browser.RodBrowser {
	headless, _ := cmd.Flags().GetBool("headless")
	return browser.NewRodBrowser(cfg.Browser, headless, logger)
}

// newSearcher wires a Searcher whose verified challenges are recorded on p.
func newSearcher(b browser.Browser, p *types.Project) *scholar.Searcher {
	s := scholar.NewSearcher(b, cfg.Search, cfg.Browser.UserAgent, logger, metrics)
	s.OnVerified = func(src scholar.Source) {
		pipeline.MarkVerified(p, src)
	}
	return s
}

func newCompleter(b browser.Browser, client llm.Client) *complete.Completer {
	c := &complete.Completer{
		Browser:     b,
		Client:      client,
		UserAgent:   cfg.Browser.UserAgent,
		PageTimeout: cfg.Browser.PageTimeout,
		Logger:      logger,
		Metrics:     metrics,
	}
	if cfg.Catalog.Enabled {
		c.Catalog = &complete.OpenAlex{
			Client:     &http.Client{Timeout: cfg.Browser.PageTimeout},
			UserAgent:  "litreview",
			Email:      cfg.Catalog.Email,
			MaxRetries: 2,
		}
	}
	return c
}

// openLibrary opens the library database. Failure is logged and yields
// nil; runs proceed without indexing.
func openLibrary() *library.Store {
	lib, err := library.Open(cfg.LibraryDB)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.LibraryDB).Msg("library unavailable")
		return nil
	}
	return lib
}

// runnerNeeds says which services a command's stages use; the browser and
// the LLM client are only set up when needed.
type runnerNeeds struct {
	llm, browser bool
}

// newRunner assembles a Runner for p. The returned cleanup closes the
// browser and library and must be called even on error.
func newRunner(cmd *cobra.Command, p *types.Project, needs runnerNeeds) (*pipeline.Runner, func(), error) {
	r := &pipeline.Runner{
		FilterMode: cfg.FilterMode,
		Logger:     observability.WithProject(logger, p.Name),
		Metrics:    metrics,
		Out:        cmd.OutOrStdout(),
	}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if needs.llm {
		client, err := newClient(cmd, p)
		if err != nil {
			return nil, cleanup, err
		}
		r.Client = client
	}
	if needs.browser {
		b := newBrowser(cmd)
		closers = append(closers, func() { b.Close() })
		r.Searcher = newSearcher(b, p)
		if r.Client != nil {
			r.Completer = newCompleter(b, r.Client)
		}
	}
	if lib := openLibrary(); lib != nil {
		closers = append(closers, func() { lib.Close() })
		r.Library = lib
	}
	return r, cleanup, nil
}

// addTargetFlags registers flags shared by every stage command.
func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().String("sub", "", "run on a subproject, given as category/name (e.g. literatureSearch/round2)")
}

func addLLMFlags(cmd *cobra.Command) {
	cmd.Flags().String("provider", "", "LLM provider: deepseek, gemini, siliconflow, poe")
	cmd.Flags().String("model", "", "override the provider's default model")
}

// addCatalogFlag registers the switch for the OpenAlex lookup used by
// completion.
func addCatalogFlag(cmd *cobra.Command) {
	cmd.Flags().Bool("catalog", true, "look titles up in OpenAlex before asking the model")
}

func addBrowserFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("headless", false, "run the browser headless (CAPTCHAs cannot be solved)")
	cmd.Flags().Bool("show-hidden", false, "show every browser page, for debugging")
	cmd.Flags().String("mirror-url", "", "search endpoint of the Scholar mirror")
}
