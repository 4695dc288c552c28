package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider calls Gemini through the genai SDK.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	temperature float64
	maxRetries  int
}

// NewGeminiProvider creates a Gemini client. baseURL is optional and only
// needed for proxies and tests.
func NewGeminiProvider(ctx context.Context, apiKey, model, baseURL string, temperature float64, maxRetries int) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}
	return &GeminiProvider{
		client:      client,
		model:       model,
		temperature: temperature,
		maxRetries:  maxRetries,
	}, nil
}

// Provider returns "gemini".
func (g *GeminiProvider) Provider() string {
	return "gemini"
}

// Complete sends one generateContent request, retrying transient errors.
func (g *GeminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(g.temperature)),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}

	return callWithRetry(ctx, g.maxRetries, func() (string, error) {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.User), config)
		if err != nil {
			return "", geminiError(err)
		}
		text := strings.TrimSpace(resp.Text())
		if text == "" {
			return "", fmt.Errorf("gemini: empty response")
		}
		return text, nil
	})
}

// geminiError maps SDK errors onto APIError so retry decisions match the
// HTTP providers.
func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Provider: "gemini", StatusCode: apiErr.Code, Message: apiErr.Message}
	}
	return fmt.Errorf("gemini: %w", err)
}
