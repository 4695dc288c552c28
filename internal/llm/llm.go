// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm talks to the chat-completion APIs the pipeline stages use:
// OpenAI-compatible providers over HTTP and Gemini through the genai SDK.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/pdiddy/litreview/internal/observability"
)

// Request is one prompt sent to a provider.
type Request struct {
	// System is the system instruction; may be empty.
	System string

	// User is the prompt body.
	User string

	// JSON asks the provider for a JSON-only reply where it supports it.
	JSON bool

	// MaxTokens caps the reply length; zero uses the provider default.
	MaxTokens int
}

// Client abstracts the LLM API so stages and tests can swap providers.
type Client interface {
	// Complete sends req and returns the reply text.
	Complete(ctx context.Context, req Request) (string, error)

	// Provider returns the provider name.
	Provider() string
}

// APIError is a non-2xx reply from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsTransient reports whether a retry may succeed: rate limiting, server
// errors, or no HTTP response at all.
func (e *APIError) IsTransient() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}

func isTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsTransient()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// backoffBase controls the base duration for exponential backoff. Tests
// override this to avoid real sleeps.
var backoffBase = time.Second

// callWithRetry calls fn with exponential backoff on transient errors.
func callWithRetry(ctx context.Context, maxRetries int, fn func() (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		out, err := fn()
		if err == nil {
			return out, nil
		}
		if !isTransient(err) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("after %d retries: %w", maxRetries, lastErr)
}

// instrumented records every call on a Metrics.
type instrumented struct {
	Client
	metrics *observability.Metrics
}

// WithMetrics wraps c so every call is counted and timed.
func WithMetrics(c Client, m *observability.Metrics) Client {
	if m == nil {
		return c
	}
	return &instrumented{Client: c, metrics: m}
}

func (i *instrumented) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	out, err := i.Client.Complete(ctx, req)
	i.metrics.RecordLLM(i.Client.Provider(), err, time.Since(start).Seconds())
	return out, err
}
