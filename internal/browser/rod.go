package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"

	"github.com/pdiddy/litreview/pkg/types"
)

// RodBrowser drives one Chromium process over the DevTools protocol.
// Hidden pages are minimized windows of a headed browser, so any page can
// later be shown to the user. With Headless set the process runs without
// windows and Show fails with ErrHeadless.
type RodBrowser struct {
	cfg      types.BrowserConfig
	headless bool
	logger   zerolog.Logger

	mu      sync.Mutex
	browser *rod.Browser
	pages   map[proto.TargetTargetID]*rodPage
}

// NewRodBrowser returns a browser that launches Chromium on first use.
func NewRodBrowser(cfg types.BrowserConfig, headless bool, logger zerolog.Logger) *RodBrowser {
	return &RodBrowser{
		cfg:      cfg,
		headless: headless,
		logger:   logger,
		pages:    make(map[proto.TargetTargetID]*rodPage),
	}
}

func (b *RodBrowser) ensureStarted() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		if _, err := b.browser.Version(); err == nil {
			return b.browser, nil
		}
		b.logger.Warn().Msg("stale browser connection, relaunching")
		_ = b.browser.Close()
		b.browser = nil
	}

	l := launcher.New().Headless(b.headless)
	if b.cfg.Bin != "" {
		l = l.Bin(b.cfg.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}
	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(browser); err != nil {
		return nil, fmt.Errorf("enabling target discovery: %w", err)
	}

	go browser.EachEvent(func(e *proto.TargetTargetDestroyed) {
		b.mu.Lock()
		p, ok := b.pages[e.TargetID]
		delete(b.pages, e.TargetID)
		b.mu.Unlock()
		if ok {
			p.markClosed()
		}
	})()

	b.browser = browser
	b.logger.Debug().Bool("headless", b.headless).Msg("browser started")
	return browser, nil
}

// Open creates a window, applies the User-Agent and headers, and loads url.
func (b *RodBrowser) Open(ctx context.Context, url string, opts OpenOptions) (Page, error) {
	browser, err := b.ensureStarted()
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank", NewWindow: true})
	if err != nil {
		return nil, fmt.Errorf("creating page: %w", err)
	}
	p := &rodPage{page: page, headless: b.headless, closed: make(chan struct{})}

	b.mu.Lock()
	b.pages[page.TargetID] = p
	b.mu.Unlock()

	if !opts.Visible && !b.headless && !b.cfg.ShowHidden {
		if err := p.setWindowState(proto.BrowserWindowStateMinimized); err != nil {
			b.logger.Debug().Err(err).Msg("minimizing window")
		}
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = b.cfg.UserAgent
	}
	if ua != "" {
		override := &proto.NetworkSetUserAgentOverride{UserAgent: ua}
		if lang, ok := opts.Headers["Accept-Language"]; ok {
			override.AcceptLanguage = lang
		}
		if err := page.SetUserAgent(override); err != nil {
			p.Close()
			return nil, fmt.Errorf("setting user agent: %w", err)
		}
	}
	if len(opts.Headers) > 0 {
		kv := make([]string, 0, 2*len(opts.Headers))
		for k, v := range opts.Headers {
			kv = append(kv, k, v)
		}
		if _, err := page.SetExtraHeaders(kv); err != nil {
			p.Close()
			return nil, fmt.Errorf("setting headers: %w", err)
		}
	}

	timeout := b.cfg.PageTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	nav := page.Context(ctx).Timeout(timeout)

	// Record the main document's status; Navigate only fails on
	// network errors.
	var (
		smu    sync.Mutex
		status int
	)
	ectx, stopEvents := context.WithCancel(ctx)
	defer stopEvents()
	waitDoc := page.Context(ectx).EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument {
			return false
		}
		smu.Lock()
		status = e.Response.Status
		smu.Unlock()
		return true
	})
	go waitDoc()

	if err := nav.Navigate(url); err != nil {
		p.Close()
		var navErr *rod.NavigationError
		if errors.As(err, &navErr) {
			return nil, &NavigationError{URL: url, Code: navErr.Reason}
		}
		return nil, fmt.Errorf("loading %s: %w", url, err)
	}
	if err := nav.WaitLoad(); err != nil {
		p.Close()
		return nil, fmt.Errorf("waiting for %s: %w", url, err)
	}
	smu.Lock()
	err = CheckStatus(url, status)
	smu.Unlock()
	if err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Close shuts the browser process down.
func (b *RodBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	for id, p := range b.pages {
		p.markClosed()
		delete(b.pages, id)
	}
	return err
}

type rodPage struct {
	page     *rod.Page
	headless bool

	closeOnce sync.Once
	closed    chan struct{}
}

func (p *rodPage) markClosed() {
	p.closeOnce.Do(func() { close(p.closed) })
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *rodPage) Text(ctx context.Context) (string, error) {
	return p.Eval(ctx, `() => document.body ? document.body.innerText : ""`)
}

func (p *rodPage) Title(ctx context.Context) (string, error) {
	return p.Eval(ctx, `() => document.title`)
}

func (p *rodPage) Eval(ctx context.Context, js string) (string, error) {
	res, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return "", err
	}
	if res == nil || res.Value.Nil() {
		return "", nil
	}
	return res.Value.String(), nil
}

func (p *rodPage) Show(ctx context.Context) error {
	if p.headless {
		return ErrHeadless
	}
	if err := p.setWindowState(proto.BrowserWindowStateNormal); err != nil {
		return fmt.Errorf("restoring window: %w", err)
	}
	_, err := p.page.Context(ctx).Activate()
	return err
}

func (p *rodPage) setWindowState(state proto.BrowserWindowState) error {
	win, err := proto.BrowserGetWindowForTarget{TargetID: p.page.TargetID}.Call(p.page)
	if err != nil {
		return err
	}
	return proto.BrowserSetWindowBounds{
		WindowID: win.WindowID,
		Bounds:   &proto.BrowserBounds{WindowState: state},
	}.Call(p.page)
}

func (p *rodPage) Closed() <-chan struct{} {
	return p.closed
}

func (p *rodPage) Close() error {
	select {
	case <-p.closed:
		return nil
	default:
	}
	err := p.page.Close()
	p.markClosed()
	if err != nil && strings.Contains(err.Error(), "No target with given id") {
		return nil
	}
	return err
}
