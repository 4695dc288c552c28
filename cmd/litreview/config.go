package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pdiddy/litreview/internal/library"
	"github.com/pdiddy/litreview/internal/project"
	"github.com/pdiddy/litreview/pkg/types"
)

// bindFlags binds config keys to flags so a set flag overrides the file
// and environment.
func bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for key, flag := range keys {
		if f := fs.Lookup(flag); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
}

// setDefaults registers every field of def with viper so environment
// variables such as LITREVIEW_LLM_PROVIDER are seen by Unmarshal.
func setDefaults(def types.Config) {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetDefault("projects_dir", def.ProjectsDir)
	viper.SetDefault("library_db", def.LibraryDB)
	viper.SetDefault("filter_mode", string(def.FilterMode))

	viper.SetDefault("browser.bin", def.Browser.Bin)
	viper.SetDefault("browser.user_agent", def.Browser.UserAgent)
	viper.SetDefault("browser.page_timeout", def.Browser.PageTimeout)
	viper.SetDefault("browser.show_hidden", def.Browser.ShowHidden)

	viper.SetDefault("search.scholar_url", def.Search.ScholarURL)
	viper.SetDefault("search.mirror_url", def.Search.MirrorURL)
	viper.SetDefault("search.mirror_referer", def.Search.MirrorReferer)
	viper.SetDefault("search.max_attempts", def.Search.MaxAttempts)
	viper.SetDefault("search.poll_interval", def.Search.PollInterval)
	viper.SetDefault("search.verification_timeout", def.Search.VerificationTimeout)
	viper.SetDefault("search.search_delay", def.Search.SearchDelay)

	viper.SetDefault("llm.provider", string(def.LLM.Provider))
	viper.SetDefault("llm.model", def.LLM.Model)
	viper.SetDefault("llm.base_url", def.LLM.BaseURL)
	viper.SetDefault("llm.api_key", def.LLM.APIKey)
	viper.SetDefault("llm.timeout", def.LLM.Timeout)
	viper.SetDefault("llm.max_retries", def.LLM.MaxRetries)
	viper.SetDefault("llm.temperature", def.LLM.Temperature)

	viper.SetDefault("catalog.enabled", def.Catalog.Enabled)
	viper.SetDefault("catalog.email", def.Catalog.Email)

	viper.SetDefault("logging.level", def.Logging.Level)
	viper.SetDefault("logging.format", def.Logging.Format)
	viper.SetDefault("logging.output", def.Logging.Output)
}

// loadConfig fills cfg from viper, after binding the flags of the command
// being run.
func loadConfig(cmd *cobra.Command) error {
	def := types.DefaultConfig()
	def.ProjectsDir = project.DefaultRoot()
	setDefaults(def)

	bindFlags(cmd.Flags(), map[string]string{
		"llm.provider":        "provider",
		"llm.model":           "model",
		"filter_mode":         "mode",
		"search.mirror_url":   "mirror-url",
		"browser.show_hidden": "show-hidden",
		"catalog.enabled":     "catalog",
	})

	var c types.Config
	if err := viper.Unmarshal(&c); err != nil {
		return fmt.Errorf("reading configuration: %w", err)
	}
	if c.LibraryDB == "" {
		c.LibraryDB = library.DefaultPath(c.ProjectsDir)
	}
	cfg = c
	return nil
}
