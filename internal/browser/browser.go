// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package browser is the page-loading surface the search, verification and
// completion stages drive. Pages open hidden; a page can be shown so the
// user can solve a CAPTCHA or log in.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrHeadless is returned by Page.Show when the browser runs headless and
// cannot present a window.
var ErrHeadless = errors.New("browser is headless; cannot show page")

// OpenOptions controls how a page is opened.
type OpenOptions struct {
	// Visible opens the page in a normal window instead of a hidden one.
	Visible bool

	// UserAgent overrides the browser's User-Agent for this page.
	UserAgent string

	// Headers are sent with every request the page makes.
	Headers map[string]string
}

// Browser opens pages.
type Browser interface {
	// Open creates a page and navigates it to url, returning once the
	// document has loaded. A failed navigation returns *NavigationError.
	Open(ctx context.Context, url string, opts OpenOptions) (Page, error)

	// Close shuts the browser down.
	Close() error
}

// Page is one loaded document.
type Page interface {
	// HTML returns the serialized document.
	HTML(ctx context.Context) (string, error)

	// Text returns the visible body text.
	Text(ctx context.Context) (string, error)

	// Title returns document.title.
	Title(ctx context.Context) (string, error)

	// Eval runs a JavaScript function or expression and returns its result
	// as a string. Booleans come back as "true" or "false".
	Eval(ctx context.Context, js string) (string, error)

	// Show brings the page's window to the foreground.
	Show(ctx context.Context) error

	// Closed is closed when the page goes away, whether the user closed
	// the window or Close was called.
	Closed() <-chan struct{}

	// Close closes the page. It is safe to call more than once.
	Close() error
}

// NavigationError reports a page load that failed: either no document was
// produced (DNS failure, refused connection) or the server answered with an
// HTTP error status.
type NavigationError struct {
	URL string

	// Code is the network error text, e.g. "net::ERR_NAME_NOT_RESOLVED",
	// or "HTTP 503" for an error status.
	Code string

	// StatusCode is the HTTP status of the main document, zero for
	// network-level failures.
	StatusCode int
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %s", e.URL, e.Code)
}

// CheckStatus returns a *NavigationError when status, the HTTP status of a
// page's main document, is an error. 429 passes: Scholar serves its bot
// check with it, and that page is handled as a CAPTCHA.
func CheckStatus(url string, status int) error {
	if status < 400 || status == http.StatusTooManyRequests {
		return nil
	}
	return &NavigationError{URL: url, Code: fmt.Sprintf("HTTP %d", status), StatusCode: status}
}
