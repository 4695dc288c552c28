// Package browsertest provides an in-memory browser.Browser for tests.
package browsertest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/pdiddy/litreview/internal/browser"
)

// Script answers one page open. HTMLs are returned by successive HTML calls;
// the last entry repeats once they run out.
type Script struct {
	HTMLs []string
	Text  string
	Title string
	Err   error

	// Status is the HTTP status of the document; error statuses fail Open
	// the way a real browser does.
	Status int

	// Eval answers Eval calls; nil returns "".
	Eval func(p *Page, js string) (string, error)

	// BeforeHTML, when set, runs at the start of every HTML call.
	BeforeHTML func(p *Page)
}

// Browser serves scripted pages keyed by URL substring; the longest
// matching key wins. Unmatched URLs get Default.
type Browser struct {
	mu      sync.Mutex
	scripts map[string]Script
	Default Script

	Opened []string
	Opts   []browser.OpenOptions
	pages  []*Page
}

// New returns an empty fake browser.
func New() *Browser {
	return &Browser{scripts: make(map[string]Script)}
}

// Handle registers s for URLs containing match.
func (b *Browser) Handle(match string, s Script) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scripts[match] = s
}

// Open implements browser.Browser.
func (b *Browser) Open(ctx context.Context, url string, opts browser.OpenOptions) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Opened = append(b.Opened, url)
	b.Opts = append(b.Opts, opts)

	s := b.Default
	best := -1
	for match, sc := range b.scripts {
		if strings.Contains(url, match) && len(match) > best {
			s, best = sc, len(match)
		}
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if err := browser.CheckStatus(url, s.Status); err != nil {
		return nil, err
	}
	p := &Page{URL: url, script: s, title: s.Title, visible: opts.Visible, closed: make(chan struct{})}
	b.pages = append(b.pages, p)
	return p, nil
}

// Close implements browser.Browser.
func (b *Browser) Close() error { return nil }

// Pages returns every page opened so far.
func (b *Browser) Pages() []*Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Page(nil), b.pages...)
}

// Page is a scripted page.
type Page struct {
	URL string

	mu        sync.Mutex
	script    Script
	htmlCalls int
	title     string
	visible   bool
	evals     []string

	closeOnce sync.Once
	closed    chan struct{}
}

var errClosed = errors.New("page closed")

func (p *Page) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// HTML implements browser.Page.
func (p *Page) HTML(ctx context.Context) (string, error) {
	if p.isClosed() {
		return "", errClosed
	}
	if p.script.BeforeHTML != nil {
		p.script.BeforeHTML(p)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.script.HTMLs) == 0 {
		return "", nil
	}
	i := p.htmlCalls
	if i >= len(p.script.HTMLs) {
		i = len(p.script.HTMLs) - 1
	}
	p.htmlCalls++
	return p.script.HTMLs[i], nil
}

// HTMLCalls returns how many times HTML was called.
func (p *Page) HTMLCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.htmlCalls
}

// Text implements browser.Page.
func (p *Page) Text(ctx context.Context) (string, error) {
	if p.isClosed() {
		return "", errClosed
	}
	return p.script.Text, nil
}

// Title implements browser.Page.
func (p *Page) Title(ctx context.Context) (string, error) {
	if p.isClosed() {
		return "", errClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
}

// SetTitle changes document.title, as a script running in the page would.
func (p *Page) SetTitle(t string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.title = t
}

// Eval implements browser.Page.
func (p *Page) Eval(ctx context.Context, js string) (string, error) {
	if p.isClosed() {
		return "", errClosed
	}
	p.mu.Lock()
	p.evals = append(p.evals, js)
	fn := p.script.Eval
	p.mu.Unlock()
	if fn == nil {
		return "", nil
	}
	return fn(p, js)
}

// Evals returns every script passed to Eval.
func (p *Page) Evals() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.evals...)
}

// Show implements browser.Page.
func (p *Page) Show(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible = true
	return nil
}

// Visible reports whether the page was opened visible or shown.
func (p *Page) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

// SetHTMLs replaces the queued documents, e.g. after a simulated CAPTCHA
// is solved.
func (p *Page) SetHTMLs(htmls ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script.HTMLs = htmls
	p.htmlCalls = 0
}

// Closed implements browser.Page.
func (p *Page) Closed() <-chan struct{} { return p.closed }

// Close implements browser.Page.
func (p *Page) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

// IsClosed reports whether Close was called.
func (p *Page) IsClosed() bool { return p.isClosed() }
