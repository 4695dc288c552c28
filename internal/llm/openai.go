// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pdiddy/litreview/internal/httputil"
)

const defaultMaxTokens = 4096

// rateLimitRetries is how many 429 replies one attempt absorbs before the
// outer transient-error retry takes over.
const rateLimitRetries = 2

// chatRequest is the OpenAI-compatible chat-completions request body.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse is the chat-completions response body.
type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// OpenAIProvider calls an OpenAI-compatible chat-completions endpoint with
// bearer-token auth. DeepSeek, SiliconFlow and Poe all speak this schema.
type OpenAIProvider struct {
	Name        string
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxRetries  int
	// JSONMode sends response_format json_object when a request asks for
	// JSON. Not every compatible endpoint accepts it.
	JSONMode bool
	Client   *http.Client
}

// Provider returns the provider name.
func (p *OpenAIProvider) Provider() string {
	return p.Name
}

// Complete sends one chat-completions request, retrying transient errors.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	body := chatRequest{
		Model:       p.Model,
		Temperature: p.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if body.MaxTokens == 0 {
		body.MaxTokens = defaultMaxTokens
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.User})
	if req.JSON && p.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%s: marshaling request: %w", p.Name, err)
	}

	return callWithRetry(ctx, p.MaxRetries, func() (string, error) {
		return p.doRequest(ctx, bodyBytes)
	})
}

func (p *OpenAIProvider) doRequest(ctx context.Context, bodyBytes []byte) (string, error) {
	endpoint := strings.TrimRight(p.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("%s: creating request: %w", p.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)

	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, rateLimitRetries)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &APIError{Provider: p.Name, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("%s: reading response: %w", p.Name, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(respBody)
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			msg = errResp.Error.Message
		}
		return "", &APIError{Provider: p.Name, StatusCode: resp.StatusCode, Message: msg}
	}

	var cResp chatResponse
	if err := json.Unmarshal(respBody, &cResp); err != nil {
		return "", fmt.Errorf("%s: decoding response: %w", p.Name, err)
	}
	if len(cResp.Choices) == 0 {
		return "", fmt.Errorf("%s: empty choices in response", p.Name)
	}

	content := strings.TrimSpace(cResp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%s: empty message content", p.Name)
	}
	return content, nil
}
