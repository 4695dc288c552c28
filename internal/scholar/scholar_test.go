package scholar

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pdiddy/litreview/internal/browser"
	"github.com/pdiddy/litreview/internal/browser/browsertest"
	"github.com/pdiddy/litreview/internal/observability"
	"github.com/pdiddy/litreview/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const loadingPage = `<html><body><div id="gs_res_ccl_mid"></div></body></html>`

func testConfig() types.SearchConfig {
	return types.SearchConfig{
		ScholarURL:          "https://scholar.example/scholar",
		MirrorURL:           "https://mirror.example/scholar",
		MirrorReferer:       "https://mirror.example/",
		MaxAttempts:         5,
		PollInterval:        time.Millisecond,
		VerificationTimeout: time.Second,
	}
}

func newTestSearcher(b browser.Browser) *Searcher {
	return NewSearcher(b, testConfig(), "test-agent", zerolog.Nop(), observability.NewMetrics())
}

// confirmOnCheck simulates the user clicking the verification button and
// swaps the page served for later loads of match.
func confirmOnCheck(b *browsertest.Browser, match string, next browsertest.Script) func(*browsertest.Page, string) (string, error) {
	return func(_ *browsertest.Page, js string) (string, error) {
		if strings.Contains(js, "indexOf") {
			b.Handle(match, next)
			return "confirmed", nil
		}
		return "injected", nil
	}
}

func TestSearchResultsAfterLoading(t *testing.T) {
	b := browsertest.New()
	b.Default = browsertest.Script{HTMLs: []string{loadingPage, loadingPage, resultsPage}}

	recs, err := newTestSearcher(b).Search(context.Background(), Query{Keyword: "attention", Limit: 10})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 3, b.Pages()[0].HTMLCalls())
	assert.True(t, b.Pages()[0].IsClosed(), "search page closed")
	assert.Equal(t, "test-agent", b.Opts[0].UserAgent)
	assert.False(t, b.Opts[0].Visible)
	assert.Contains(t, b.Opened[0], "https://scholar.example/scholar?")
}

func TestSearchAttemptBudgetExhausted(t *testing.T) {
	b := browsertest.New()
	b.Default = browsertest.Script{HTMLs: []string{loadingPage}}

	recs, err := newTestSearcher(b).Search(context.Background(), Query{Keyword: "nothing", Limit: 10})
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
	assert.Equal(t, testConfig().MaxAttempts, b.Pages()[0].HTMLCalls())
}

func TestSearchEmptyPage(t *testing.T) {
	b := browsertest.New()
	b.Default = browsertest.Script{HTMLs: []string{emptyPage}}

	recs, err := newTestSearcher(b).Search(context.Background(), Query{Keyword: "qwzxv"})
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, 1, b.Pages()[0].HTMLCalls())
}

func TestSearchLimitAndYearFilter(t *testing.T) {
	b := browsertest.New()
	b.Default = browsertest.Script{HTMLs: []string{resultsPage}}
	s := newTestSearcher(b)

	recs, err := s.Search(context.Background(), Query{Keyword: "a", MinYear: 2015})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Attention is all you need", recs[0].Title)

	recs, err = s.Search(context.Background(), Query{Keyword: "b", Limit: 1})
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestSearchCaptchaRecovery(t *testing.T) {
	b := browsertest.New()
	b.Default = browsertest.Script{
		HTMLs: []string{captchaPage},
		Eval:  confirmOnCheck(b, "scholar.example", browsertest.Script{HTMLs: []string{resultsPage}}),
	}
	s := newTestSearcher(b)
	var verified []Source
	s.OnVerified = func(src Source) { verified = append(verified, src) }

	recs, err := s.Search(context.Background(), Query{Keyword: "attention"})
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	pages := b.Pages()
	require.Len(t, pages, 2, "search reopened after verification")
	assert.True(t, pages[0].Visible(), "captcha page shown to the user")
	assert.False(t, pages[1].Visible())
	assert.Equal(t, []Source{SourceScholar}, verified)
}

func TestSearchCaptchaReopenFails(t *testing.T) {
	b := browsertest.New()
	b.Default = browsertest.Script{
		HTMLs: []string{captchaPage},
		Eval: confirmOnCheck(b, "scholar.example", browsertest.Script{
			Err: &browser.NavigationError{URL: "u", Code: "net::ERR_CONNECTION_RESET"},
		}),
	}

	var (
		recs []types.LiteratureRecord
		err  error
	)
	require.NotPanics(t, func() {
		recs, err = newTestSearcher(b).Search(context.Background(), Query{Keyword: "attention"})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "net::ERR_CONNECTION_RESET")
	assert.Nil(t, recs)
	require.Len(t, b.Pages(), 1)
	assert.True(t, b.Pages()[0].IsClosed(), "captcha page closed")
}

func TestSearchCaptchaOnlyOnce(t *testing.T) {
	b := browsertest.New()
	b.Default = browsertest.Script{
		HTMLs: []string{captchaPage},
		Eval:  confirmOnCheck(b, "scholar.example", browsertest.Script{HTMLs: []string{captchaPage}}),
	}

	_, err := newTestSearcher(b).Search(context.Background(), Query{Keyword: "attention"})
	require.ErrorIs(t, err, ErrCaptcha)
	assert.Len(t, b.Pages(), 2)
}

func TestSearchCaptchaWindowClosed(t *testing.T) {
	b := browsertest.New()
	b.Default = browsertest.Script{
		HTMLs: []string{captchaPage},
		Eval: func(p *browsertest.Page, js string) (string, error) {
			if strings.Contains(js, "indexOf") {
				p.Close()
			}
			return "present", nil
		},
	}

	_, err := newTestSearcher(b).Search(context.Background(), Query{Keyword: "attention"})
	require.ErrorIs(t, err, ErrWindowClosed)
}

func TestSearchNavigationError(t *testing.T) {
	b := browsertest.New()
	b.Default = browsertest.Script{Err: &browser.NavigationError{URL: "u", Code: "net::ERR_NAME_NOT_RESOLVED"}}

	_, err := newTestSearcher(b).Search(context.Background(), Query{Keyword: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "net::ERR_NAME_NOT_RESOLVED")
}

func TestSearchHTTPErrorStatus(t *testing.T) {
	b := browsertest.New()
	b.Default = browsertest.Script{HTMLs: []string{resultsPage}, Status: 503}

	_, err := newTestSearcher(b).Search(context.Background(), Query{Keyword: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 503")

	var navErr *browser.NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Equal(t, 503, navErr.StatusCode)
}

func TestSearchMirror(t *testing.T) {
	b := browsertest.New()
	b.Default = browsertest.Script{HTMLs: []string{resultsPage}}

	_, err := newTestSearcher(b).Search(context.Background(), Query{Keyword: "x", Source: SourceMirror})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(b.Opened[0], "https://mirror.example/scholar?"))
	assert.Equal(t, mirrorAcceptLanguage, b.Opts[0].Headers["Accept-Language"])
	assert.Equal(t, "https://mirror.example/", b.Opts[0].Headers["Referer"])

	cfg := testConfig()
	cfg.MirrorURL = ""
	s := NewSearcher(b, cfg, "", zerolog.Nop(), nil)
	_, err = s.Search(context.Background(), Query{Keyword: "x", Source: SourceMirror})
	assert.Error(t, err)
}

func TestSearchCancelledWhilePolling(t *testing.T) {
	b := browsertest.New()
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	b.Default = browsertest.Script{
		HTMLs: []string{loadingPage},
		BeforeHTML: func(*browsertest.Page) {
			if calls.Add(1) == 2 {
				cancel()
			}
		},
	}

	_, err := newTestSearcher(b).Search(ctx, Query{Keyword: "x"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestSearchCoalescesIdenticalQueries(t *testing.T) {
	b := browsertest.New()
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	b.Default = browsertest.Script{
		HTMLs: []string{resultsPage},
		BeforeHTML: func(*browsertest.Page) {
			once.Do(func() { close(entered) })
			<-release
		},
	}
	s := newTestSearcher(b)
	q := Query{Keyword: "same", Limit: 5}

	var wg sync.WaitGroup
	results := make([][]types.LiteratureRecord, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = s.Search(context.Background(), q)
	}()
	<-entered
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = s.Search(context.Background(), q)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Len(t, b.Opened, 1, "one page load for both callers")
	assert.Len(t, results[0], 2)
	assert.Len(t, results[1], 2)
	results[0][0].Title = "mutated"
	assert.NotEqual(t, "mutated", results[1][0].Title, "callers get independent slices")
}

func TestSearchCoalescedCallerSurvivesFirstCancel(t *testing.T) {
	b := browsertest.New()
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	b.Default = browsertest.Script{
		HTMLs: []string{resultsPage},
		BeforeHTML: func(*browsertest.Page) {
			once.Do(func() { close(entered) })
			<-release
		},
	}
	s := newTestSearcher(b)
	q := Query{Keyword: "same", Limit: 5}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Search(firstCtx, q)
		firstErr <- err
	}()
	<-entered

	secondRecs := make(chan []types.LiteratureRecord, 1)
	secondErr := make(chan error, 1)
	go func() {
		recs, err := s.Search(context.Background(), q)
		secondRecs <- recs
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)
	close(release)

	require.NoError(t, <-secondErr)
	assert.Len(t, <-secondRecs, 2)
	assert.Len(t, b.Opened, 1, "the shared load kept running")
}

func TestSearchPlan(t *testing.T) {
	b := browsertest.New()
	b.Handle("q=alpha", browsertest.Script{HTMLs: []string{resultsPage}})
	b.Handle("q=beta", browsertest.Script{HTMLs: []string{resultsPage}})
	b.Handle("q=gamma", browsertest.Script{HTMLs: []string{emptyPage}})
	b.Handle("q=delta", browsertest.Script{Err: &browser.NavigationError{URL: "u", Code: "net::ERR_FAILED"}})

	plan := types.KeywordPlan{
		{Keyword: "alpha", Count: 5},
		{Keyword: "beta", Count: 5},
		{Keyword: "gamma", Count: 5},
		{Keyword: "delta", Count: 5},
		{Keyword: "epsilon", Count: 5},
	}
	var out bytes.Buffer
	recs, sum, err := newTestSearcher(b).SearchPlan(context.Background(), plan, PlanOptions{Skip: []string{"EPSILON"}}, &out)
	require.NoError(t, err)

	assert.Len(t, recs, 2, "duplicates across keywords removed")
	assert.Equal(t, "alpha", recs[0].Keyword)
	assert.Equal(t, 3, sum.Searched)
	assert.Equal(t, 1, sum.Empty)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 2, sum.Duplicates)
	assert.Equal(t, 5, sum.Total())
	assert.True(t, sum.HasFailures())
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, sum.Done)
	assert.Contains(t, out.String(), "Search summary")
	assert.Contains(t, out.String(), "net::ERR_FAILED")
}

func TestSearchPlanCancelled(t *testing.T) {
	b := browsertest.New()
	ctx, cancel := context.WithCancel(context.Background())
	b.Handle("q=alpha", browsertest.Script{
		HTMLs:      []string{resultsPage},
		BeforeHTML: func(*browsertest.Page) { cancel() },
	})

	plan := types.KeywordPlan{{Keyword: "alpha", Count: 5}, {Keyword: "beta", Count: 5}}
	recs, sum, err := newTestSearcher(b).SearchPlan(ctx, plan, PlanOptions{}, &bytes.Buffer{})
	require.True(t, errors.Is(err, context.Canceled))
	assert.Len(t, recs, 2, "first keyword's results kept")
	assert.Equal(t, []string{"alpha"}, sum.Done)
	assert.Len(t, b.Opened, 1)
}
