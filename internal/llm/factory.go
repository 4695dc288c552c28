package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pdiddy/litreview/pkg/types"
)

// providerDefaults are the endpoint and model used when the config leaves
// them empty.
var providerDefaults = map[types.Provider]struct {
	baseURL  string
	model    string
	jsonMode bool
}{
	types.ProviderDeepSeek:    {"https://api.deepseek.com/v1", "deepseek-chat", true},
	types.ProviderSiliconFlow: {"https://api.siliconflow.cn/v1", "deepseek-ai/DeepSeek-V3", true},
	types.ProviderPoe:         {"https://api.poe.com/v1", "GPT-4o", false},
	types.ProviderGemini:      {"", "gemini-2.0-flash", false},
}

// New builds the Client for cfg.Provider.
func New(ctx context.Context, cfg types.LLMConfig) (Client, error) {
	def, ok := providerDefaults[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: API key is required", cfg.Provider)
	}
	model := cfg.Model
	if model == "" {
		model = def.model
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = def.baseURL
	}

	if cfg.Provider == types.ProviderGemini {
		return NewGeminiProvider(ctx, cfg.APIKey, model, baseURL, cfg.Temperature, cfg.MaxRetries)
	}

	return &OpenAIProvider{
		Name:        string(cfg.Provider),
		APIKey:      cfg.APIKey,
		Model:       model,
		BaseURL:     baseURL,
		Temperature: cfg.Temperature,
		MaxRetries:  cfg.MaxRetries,
		JSONMode:    def.jsonMode,
		Client:      &http.Client{Timeout: cfg.Timeout},
	}, nil
}
