package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/litreview/internal/httputil"
	"github.com/pdiddy/litreview/internal/observability"
	"github.com/pdiddy/litreview/pkg/types"
)

func TestMain(m *testing.M) {
	backoffBase = time.Millisecond
	httputil.RetryBaseDelay = time.Millisecond
	os.Exit(m.Run())
}

func chatServer(t *testing.T, handler func(w http.ResponseWriter, body chatRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		handler(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func replyJSON(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
}

func newTestProvider(url string) *OpenAIProvider {
	return &OpenAIProvider{
		Name:       "deepseek",
		APIKey:     "test-key",
		Model:      "deepseek-chat",
		BaseURL:    url,
		MaxRetries: 2,
		JSONMode:   true,
	}
}

func TestOpenAIProvider_Complete(t *testing.T) {
	var got chatRequest
	srv := chatServer(t, func(w http.ResponseWriter, body chatRequest) {
		got = body
		replyJSON(w, "  hello  ")
	})

	out, err := newTestProvider(srv.URL).Complete(context.Background(), Request{
		System: "be brief",
		User:   "say hello",
		JSON:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	assert.Equal(t, "deepseek-chat", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	assert.Equal(t, defaultMaxTokens, got.MaxTokens)
}

func TestOpenAIProvider_NoSystemNoJSON(t *testing.T) {
	var got chatRequest
	srv := chatServer(t, func(w http.ResponseWriter, body chatRequest) {
		got = body
		replyJSON(w, "ok")
	})
	p := newTestProvider(srv.URL)
	p.JSONMode = false

	_, err := p.Complete(context.Background(), Request{User: "x", JSON: true})
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Nil(t, got.ResponseFormat)
}

func TestOpenAIProvider_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, func(w http.ResponseWriter, _ chatRequest) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		replyJSON(w, "recovered")
	})

	out, err := newTestProvider(srv.URL).Complete(context.Background(), Request{User: "x"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAIProvider_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, func(w http.ResponseWriter, _ chatRequest) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	})

	_, err := newTestProvider(srv.URL).Complete(context.Background(), Request{User: "x"})
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "invalid api key", apiErr.Message)
	assert.False(t, apiErr.IsTransient())
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIProvider_EmptyChoices(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, _ chatRequest) {
		w.Write([]byte(`{"choices":[]}`))
	})
	_, err := newTestProvider(srv.URL).Complete(context.Background(), Request{User: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty choices")
}

func TestCallWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := callWithRetry(ctx, 5, func() (string, error) {
		calls++
		cancel()
		return "", &APIError{Provider: "p", StatusCode: 503}
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestCallWithRetry_Exhausted(t *testing.T) {
	calls := 0
	_, err := callWithRetry(context.Background(), 2, func() (string, error) {
		calls++
		return "", &APIError{Provider: "p", StatusCode: 429}
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Equal(t, 3, calls)
}

func TestAPIErrorTransient(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{0, true},
		{429, true},
		{500, true},
		{503, true},
		{400, false},
		{401, false},
		{404, false},
	}
	for _, tt := range tests {
		e := &APIError{StatusCode: tt.code}
		assert.Equal(t, tt.want, e.IsTransient(), "status %d", tt.code)
	}
}

func TestNew(t *testing.T) {
	_, err := New(context.Background(), types.LLMConfig{Provider: "nope", APIKey: "k"})
	require.Error(t, err)

	_, err = New(context.Background(), types.LLMConfig{Provider: types.ProviderDeepSeek})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")

	c, err := New(context.Background(), types.LLMConfig{Provider: types.ProviderSiliconFlow, APIKey: "k"})
	require.NoError(t, err)
	p, ok := c.(*OpenAIProvider)
	require.True(t, ok)
	assert.Equal(t, "siliconflow", p.Provider())
	assert.Equal(t, "https://api.siliconflow.cn/v1", p.BaseURL)
	assert.Equal(t, "deepseek-ai/DeepSeek-V3", p.Model)

	c, err = New(context.Background(), types.LLMConfig{Provider: types.ProviderPoe, APIKey: "k", Model: "Claude-Sonnet"})
	require.NoError(t, err)
	assert.Equal(t, "Claude-Sonnet", c.(*OpenAIProvider).Model)
	assert.False(t, c.(*OpenAIProvider).JSONMode)
}

func TestGeminiProvider_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.Contains(r.URL.Path, "gemini-test:generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"ok\":true}"}]}}]}`))
	}))
	defer srv.Close()

	c, err := New(context.Background(), types.LLMConfig{
		Provider: types.ProviderGemini,
		APIKey:   "k",
		Model:    "gemini-test",
		BaseURL:  srv.URL,
	})
	require.NoError(t, err)
	assert.Equal(t, "gemini", c.Provider())

	out, err := c.Complete(context.Background(), Request{System: "s", User: "u", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
}

type stubClient struct {
	err error
}

func (s stubClient) Complete(context.Context, Request) (string, error) { return "x", s.err }
func (s stubClient) Provider() string                                  { return "stub" }

func TestWithMetrics(t *testing.T) {
	assert.Equal(t, stubClient{}, WithMetrics(stubClient{}, nil))

	m := observability.NewMetrics()
	c := WithMetrics(stubClient{}, m)
	_, err := c.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "stub", c.Provider())
}
