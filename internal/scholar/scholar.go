// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package scholar searches Google Scholar, or a mirror of it, by loading
// result pages in a hidden browser page and extracting the result blocks.
// A CAPTCHA is handed to the user through the verification flow once per
// search.
package scholar

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/pdiddy/litreview/internal/browser"
	"github.com/pdiddy/litreview/internal/literature"
	"github.com/pdiddy/litreview/internal/observability"
	"github.com/pdiddy/litreview/internal/verify"
	"github.com/pdiddy/litreview/pkg/types"
)

var (
	// ErrWindowClosed is returned when the user closes a search page that
	// was shown for verification.
	ErrWindowClosed = errors.New("window closed")

	// ErrCaptcha is returned when a CAPTCHA reappears after the user has
	// already been asked to solve one during the same search.
	ErrCaptcha = errors.New("captcha not resolved")
)

// maxBackoffSteps caps exponential polling backoff at 4× the poll interval.
const maxBackoffSteps = 2

// mirrorAcceptLanguage is sent to mirror sites, which serve Chinese pages
// by default.
const mirrorAcceptLanguage = "zh-CN,zh;q=0.9,en;q=0.8"

// flight is one shared page load and the callers waiting on it. The load
// runs under its own context, cancelled once every caller has given up.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Searcher runs keyword searches. Only one search page exists at a time;
// identical concurrent queries share one page load.
type Searcher struct {
	browser browser.Browser
	cfg     types.SearchConfig
	ua      string
	logger  zerolog.Logger
	metrics *observability.Metrics

	// OnVerified, when set, is called after the user passes a CAPTCHA on
	// the given source.
	OnVerified func(Source)

	limiter *rate.Limiter
	group   singleflight.Group
	mu      sync.Mutex

	fmu     sync.Mutex
	flights map[string]*flight
}

// NewSearcher returns a Searcher. Zero fields of cfg take the defaults of
// types.DefaultConfig.
func NewSearcher(b browser.Browser, cfg types.SearchConfig, userAgent string, logger zerolog.Logger, metrics *observability.Metrics) *Searcher {
	def := types.DefaultConfig().Search
	if cfg.ScholarURL == "" {
		cfg.ScholarURL = def.ScholarURL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.VerificationTimeout <= 0 {
		cfg.VerificationTimeout = def.VerificationTimeout
	}

	limit := rate.Inf
	if cfg.SearchDelay > 0 {
		limit = rate.Every(cfg.SearchDelay)
	}
	return &Searcher{
		browser: b,
		cfg:     cfg,
		ua:      userAgent,
		logger:  logger,
		metrics: metrics,
		limiter: rate.NewLimiter(limit, 1),
		flights: make(map[string]*flight),
	}
}

// Search runs q and returns at most q.Limit records. A search that finds
// nothing within the attempt budget returns an empty slice and no error.
// A caller that gives up does not cancel a load other callers still wait on.
func (s *Searcher) Search(ctx context.Context, q Query) ([]types.LiteratureRecord, error) {
	if q.Source == "" {
		q.Source = SourceScholar
	}
	for {
		shared, err := s.shared(ctx, q)
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			// Joined a load its own callers had abandoned; start a fresh one.
			continue
		}
		if err != nil {
			return nil, err
		}
		// Coalesced callers each get their own copy.
		return append([]types.LiteratureRecord{}, shared...), nil
	}
}

func (s *Searcher) shared(ctx context.Context, q Query) ([]types.LiteratureRecord, error) {
	key := q.key()

	s.fmu.Lock()
	f := s.flights[key]
	if f == nil {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		s.flights[key] = f
	}
	f.waiters++
	ch := s.group.DoChan(key, func() (any, error) {
		defer s.land(key, f)
		return s.search(f.ctx, q)
	})
	s.fmu.Unlock()

	select {
	case res := <-ch:
		s.fmu.Lock()
		f.waiters--
		s.fmu.Unlock()
		return sharedResult(res)
	case <-ctx.Done():
		if !s.abandon(key, f) {
			return nil, ctx.Err()
		}
		// Last caller out: the load is cancelled, wait for it to unwind so
		// its page is closed and any records it already had are kept.
		return sharedResult(<-ch)
	}
}

// land forgets f once its load has finished.
func (s *Searcher) land(key string, f *flight) {
	s.fmu.Lock()
	if s.flights[key] == f {
		delete(s.flights, key)
	}
	s.fmu.Unlock()
	f.cancel()
}

// abandon drops one waiter from f and cancels the load when none remain.
// It reports whether the load was cancelled.
func (s *Searcher) abandon(key string, f *flight) bool {
	s.fmu.Lock()
	f.waiters--
	last := f.waiters <= 0
	if last && s.flights[key] == f {
		delete(s.flights, key)
	}
	s.fmu.Unlock()
	if last {
		f.cancel()
	}
	return last
}

func sharedResult(res singleflight.Result) ([]types.LiteratureRecord, error) {
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Val.([]types.LiteratureRecord), nil
}

func (s *Searcher) search(ctx context.Context, q Query) ([]types.LiteratureRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	log := observability.WithSearch(s.logger, q.Keyword, string(q.Source))
	start := time.Now()
	records, outcome, err := s.run(ctx, q, log)
	s.metrics.RecordSearch(string(q.Source), outcome, len(records), time.Since(start).Seconds())
	if err != nil {
		log.Warn().Err(err).Str("outcome", outcome).Msg("search failed")
		return nil, err
	}
	log.Info().Int("records", len(records)).Str("outcome", outcome).Dur("took", time.Since(start)).Msg("search done")
	return records, nil
}

// MirrorHeaders returns the extra request headers the mirror site expects.
func MirrorHeaders(cfg types.SearchConfig) map[string]string {
	h := map[string]string{"Accept-Language": mirrorAcceptLanguage}
	if cfg.MirrorReferer != "" {
		h["Referer"] = cfg.MirrorReferer
	}
	return h
}

func (s *Searcher) run(ctx context.Context, q Query, log zerolog.Logger) ([]types.LiteratureRecord, string, error) {
	base := s.cfg.ScholarURL
	opts := browser.OpenOptions{UserAgent: s.ua}
	if q.Source == SourceMirror {
		base = s.cfg.MirrorURL
		opts.Headers = MirrorHeaders(s.cfg)
	}
	target, err := BuildURL(base, q)
	if err != nil {
		return nil, "error", err
	}

	page, err := s.browser.Open(ctx, target, opts)
	if err != nil {
		return nil, "error", err
	}
	defer func() { page.Close() }()

	verified := false
	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := s.wait(ctx, page, attempt); err != nil {
				return nil, "error", err
			}
		}

		html, err := page.HTML(ctx)
		if err != nil {
			if isClosed(page) {
				return nil, "error", ErrWindowClosed
			}
			log.Debug().Err(err).Int("attempt", attempt+1).Msg("reading page")
			continue
		}

		kind, records, err := Parse(html, target)
		if err != nil {
			log.Debug().Err(err).Int("attempt", attempt+1).Msg("parsing page")
			continue
		}
		log.Debug().Int("attempt", attempt+1).Stringer("page", kind).Msg("poll")

		switch kind {
		case PageResults:
			return s.finish(records, q), "ok", nil

		case PageEmpty:
			return []types.LiteratureRecord{}, "empty", nil

		case PageCaptcha:
			if verified {
				return nil, "captcha", ErrCaptcha
			}
			verified = true
			log.Warn().Msg("CAPTCHA detected; waiting for the user to solve it")
			if err := s.solve(ctx, page, q.Source); err != nil {
				return nil, "captcha", err
			}
			reopened, err := s.browser.Open(ctx, target, opts)
			if err != nil {
				return nil, "error", err
			}
			page = reopened
			attempt = -1
		}
	}

	log.Info().Int("attempts", s.cfg.MaxAttempts).Msg("no results within attempt budget")
	return []types.LiteratureRecord{}, "empty", nil
}

// wait sleeps before poll attempt n. The delay doubles from PollInterval up
// to 4× PollInterval.
func (s *Searcher) wait(ctx context.Context, page browser.Page, n int) error {
	steps := math.Min(float64(n-1), maxBackoffSteps)
	delay := time.Duration(math.Pow(2, steps)) * s.cfg.PollInterval

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-page.Closed():
		return ErrWindowClosed
	case <-t.C:
		return nil
	}
}

// solve shows the page for the user and waits for confirmation. The page
// is closed afterwards; callers reopen the search.
func (s *Searcher) solve(ctx context.Context, page browser.Page, source Source) error {
	err := verify.Verify(ctx, page, verify.Options{Timeout: s.cfg.VerificationTimeout})
	switch {
	case err == nil:
		s.metrics.RecordVerification("confirmed")
		if s.OnVerified != nil {
			s.OnVerified(source)
		}
	case errors.Is(err, verify.ErrWindowClosed):
		s.metrics.RecordVerification("closed")
		return ErrWindowClosed
	case errors.Is(err, verify.ErrTimeout):
		s.metrics.RecordVerification("timeout")
		return fmt.Errorf("waiting for CAPTCHA: %w", err)
	default:
		s.metrics.RecordVerification("error")
		return fmt.Errorf("waiting for CAPTCHA: %w", err)
	}
	return nil
}

// finish applies the year filter, dedups, and truncates to the limit.
func (s *Searcher) finish(records []types.LiteratureRecord, q Query) []types.LiteratureRecord {
	kept := records[:0]
	for _, r := range records {
		if q.MinYear > 0 && r.Year != 0 && int(r.Year) < q.MinYear {
			continue
		}
		kept = append(kept, r)
	}
	kept, _ = literature.Dedup(kept)
	if q.Limit > 0 && len(kept) > q.Limit {
		kept = kept[:q.Limit]
	}
	return kept
}

func isClosed(p browser.Page) bool {
	select {
	case <-p.Closed():
		return true
	default:
		return false
	}
}
