// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package verify lets the user confirm, from inside a browser page, that
// they have finished logging in or solving a CAPTCHA. A floating button is
// injected into the page; clicking it sets a flag the poller watches.
package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pdiddy/litreview/internal/browser"
)

var (
	// ErrTimeout is returned when the user does not confirm in time.
	ErrTimeout = errors.New("timeout")

	// ErrWindowClosed is returned when the user closes the page before
	// confirming.
	ErrWindowClosed = errors.New("window closed")
)

const (
	DefaultTimeout      = 5 * time.Minute
	DefaultPollInterval = 100 * time.Millisecond
)

// buttonID identifies the injected button so it is only added once per
// document.
const buttonID = "litreview-verify-confirm"

// titleMarker is appended to document.title on confirmation. The title
// survives in-page script errors that could lose the window flag.
const titleMarker = "[litreview:confirmed]"

// injectScript adds the confirmation button to the current document.
var injectScript = fmt.Sprintf(`() => {
	if (document.getElementById(%[1]q)) return "present";
	const btn = document.createElement("button");
	btn.id = %[1]q;
	btn.textContent = "Verification complete";
	btn.style.cssText = "position:fixed;top:16px;right:16px;z-index:2147483647;" +
		"padding:10px 18px;font:bold 14px sans-serif;color:#fff;background:#1a73e8;" +
		"border:none;border-radius:6px;box-shadow:0 2px 8px rgba(0,0,0,.3);cursor:pointer;";
	btn.addEventListener("click", () => {
		window.loginConfirmed = true;
		document.title = document.title + " " + %[2]q;
		btn.textContent = "Confirmed";
		btn.disabled = true;
	});
	(document.body || document.documentElement).appendChild(btn);
	return "injected";
}`, buttonID, titleMarker)

// stateScript reports "confirmed", "present" or "missing".
var stateScript = fmt.Sprintf(`() => {
	if (window.loginConfirmed === true || document.title.indexOf(%[2]q) >= 0) return "confirmed";
	return document.getElementById(%[1]q) ? "present" : "missing";
}`, buttonID, titleMarker)

// Options controls a verification wait.
type Options struct {
	// Timeout bounds the wait (default 5m).
	Timeout time.Duration

	// PollInterval is the delay between state checks (default 100ms).
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

// Verify shows page, injects the confirmation button and waits for the
// user to click it. The button is re-injected whenever the page navigates
// away and loses it. On confirmation the page is closed and nil returned.
// The page is also closed on timeout and cancellation.
func Verify(ctx context.Context, page browser.Page, opts Options) error {
	opts = opts.withDefaults()

	if err := page.Show(ctx); err != nil {
		page.Close()
		return fmt.Errorf("showing verification page: %w", err)
	}
	// The document may still be loading; a failed injection is retried by
	// the poll loop below.
	page.Eval(ctx, injectScript)

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			page.Close()
			return ctx.Err()
		case <-page.Closed():
			return ErrWindowClosed
		case <-timer.C:
			page.Close()
			return ErrTimeout
		case <-ticker.C:
		}

		state, err := page.Eval(ctx, stateScript)
		if err != nil {
			// Mid-navigation evaluations fail; the next tick retries.
			continue
		}
		switch state {
		case "confirmed":
			page.Close()
			return nil
		case "missing":
			page.Eval(ctx, injectScript)
		}
	}
}

// Login opens url in a visible page and waits for the user to confirm
// they have logged in or passed the site's checks.
func Login(ctx context.Context, b browser.Browser, url string, opts browser.OpenOptions, vopts Options) error {
	opts.Visible = true
	page, err := b.Open(ctx, url, opts)
	if err != nil {
		return fmt.Errorf("opening %s: %w", url, err)
	}
	return Verify(ctx, page, vopts)
}
