package types

import "time"

// BrowserConfig holds settings for the Chromium instance that loads
// search and landing pages.
type BrowserConfig struct {
	// Bin is an explicit browser binary; empty lets the launcher download
	// or locate one.
	Bin string `json:"bin,omitempty" yaml:"bin,omitempty" mapstructure:"bin"`

	// UserAgent is the desktop User-Agent every page load presents.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// PageTimeout bounds one page load (default 30s).
	PageTimeout time.Duration `json:"page_timeout" yaml:"page_timeout" mapstructure:"page_timeout"`

	// ShowHidden opens every page visibly, for debugging selectors.
	ShowHidden bool `json:"show_hidden" yaml:"show_hidden" mapstructure:"show_hidden"`
}

// SearchConfig holds settings for the search stage.
type SearchConfig struct {
	// ScholarURL is the Google Scholar search endpoint.
	ScholarURL string `json:"scholar_url" yaml:"scholar_url" mapstructure:"scholar_url"`

	// MirrorURL is the mirror site's search endpoint. It has no default;
	// searches against the mirror fail until it is configured.
	MirrorURL string `json:"mirror_url" yaml:"mirror_url" mapstructure:"mirror_url"`

	// MirrorReferer is sent as Referer to the mirror site.
	MirrorReferer string `json:"mirror_referer,omitempty" yaml:"mirror_referer,omitempty" mapstructure:"mirror_referer"`

	// MaxAttempts caps the extraction polls per search (default 15).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`

	// PollInterval is the base delay between extraction polls (default 1s).
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" mapstructure:"poll_interval"`

	// VerificationTimeout bounds how long the user has to solve a CAPTCHA
	// (default 5m).
	VerificationTimeout time.Duration `json:"verification_timeout" yaml:"verification_timeout" mapstructure:"verification_timeout"`

	// SearchDelay is the minimum spacing between consecutive searches
	// (default 3s).
	SearchDelay time.Duration `json:"search_delay" yaml:"search_delay" mapstructure:"search_delay"`
}

// LLMConfig holds settings shared by every stage that calls an LLM API.
type LLMConfig struct {
	// Provider selects the API: deepseek, gemini, siliconflow or poe.
	Provider Provider `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model overrides the provider's default model.
	Model string `json:"model,omitempty" yaml:"model,omitempty" mapstructure:"model"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// APIKey is the authentication key for the provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Timeout bounds one API call (default 60s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MaxRetries is the number of retry attempts for transient failures
	// (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// Temperature is passed through to the provider.
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
}

// FilterMode selects the filtering strategy.
type FilterMode string

const (
	FilterBatch   FilterMode = "batch"
	FilterPerItem FilterMode = "per-item"
)

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`
	Output string `json:"output" yaml:"output" mapstructure:"output"`
}

// CatalogConfig controls the OpenAlex title lookup used while completing
// records.
type CatalogConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// Email is sent to OpenAlex as mailto for the polite pool.
	Email string `json:"email,omitempty" yaml:"email,omitempty" mapstructure:"email"`
}

// Config groups every setting the CLI reads from litreview.yaml,
// the environment and flags.
type Config struct {
	ProjectsDir string        `json:"projects_dir" yaml:"projects_dir" mapstructure:"projects_dir"`
	LibraryDB   string        `json:"library_db" yaml:"library_db" mapstructure:"library_db"`
	Browser     BrowserConfig `json:"browser" yaml:"browser" mapstructure:"browser"`
	Search      SearchConfig  `json:"search" yaml:"search" mapstructure:"search"`
	LLM         LLMConfig     `json:"llm" yaml:"llm" mapstructure:"llm"`
	Catalog     CatalogConfig `json:"catalog" yaml:"catalog" mapstructure:"catalog"`
	FilterMode  FilterMode    `json:"filter_mode" yaml:"filter_mode" mapstructure:"filter_mode"`
	Logging     LoggingConfig `json:"logging" yaml:"logging" mapstructure:"logging"`
}

// DefaultUserAgent is a current desktop Chrome User-Agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// DefaultConfig returns the built-in defaults; viper layers the file,
// environment and flags on top.
func DefaultConfig() Config {
	return Config{
		Browser: BrowserConfig{
			UserAgent:   DefaultUserAgent,
			PageTimeout: 30 * time.Second,
		},
		Search: SearchConfig{
			ScholarURL:          "https://scholar.google.com/scholar",
			MaxAttempts:         15,
			PollInterval:        time.Second,
			VerificationTimeout: 5 * time.Minute,
			SearchDelay:         3 * time.Second,
		},
		LLM: LLMConfig{
			Provider:    ProviderDeepSeek,
			Timeout:     60 * time.Second,
			MaxRetries:  3,
			Temperature: 0.3,
		},
		Catalog:    CatalogConfig{Enabled: true},
		FilterMode: FilterBatch,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
	}
}
