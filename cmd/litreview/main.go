// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the litreview CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/litreview/internal/observability"
	"github.com/pdiddy/litreview/internal/secrets"
	"github.com/pdiddy/litreview/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// loadedSecrets holds API keys loaded from .secrets/ at startup.
	loadedSecrets map[string]string

	// cfg is the merged configuration: defaults, file, environment, flags.
	cfg types.Config

	logger  zerolog.Logger
	metrics = observability.NewMetrics()
)

var rootCmd = &cobra.Command{
	Use:   "litreview",
	Short: "Search, complete, filter and review academic literature",
	Long: `litreview builds a literature review for a research topic in five stages:

  keywords  an LLM plans search phrases and result counts
  search    Google Scholar (or a configured mirror) is scraped through a
            browser; CAPTCHAs are handed to you in a visible window
  complete  landing pages fill in missing authors, year, venue and abstract
  filter    an LLM selects the target number of works
  review    an LLM writes the review with a reference list

Each stage stores its result in the project file, so "litreview run"
resumes where an interrupted run stopped.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}
		logger = observability.NewLogger(cfg.Logging)

		dir, _ := cmd.Flags().GetString("secrets-dir")
		s, err := secrets.Load(dir)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Debug().Strs("keys", keys).Msg("loaded secrets")
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./litreview.yaml or ~/.config/litreview/litreview.yaml)")
	pf.String("projects-dir", "", "directory holding projects (default: $XDG_DATA_HOME/litreview/projects)")
	pf.String("library-db", "", "library database path (default: next to the projects directory)")
	pf.String("secrets-dir", ".secrets/", "directory of API key files")
	pf.String("log-level", "", "log level: trace, debug, info, warn, error")
	pf.String("log-format", "", "log format: console or json")
	pf.String("metrics-file", "", "write run metrics in Prometheus text format to this file")

	bindFlags(pf, map[string]string{
		"projects_dir":   "projects-dir",
		"library_db":     "library-db",
		"logging.level":  "log-level",
		"logging.format": "log-format",
	})
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("litreview")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "litreview"))
		}
	}

	viper.SetEnvPrefix("LITREVIEW")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if path, _ := rootCmd.PersistentFlags().GetString("metrics-file"); path != "" {
		if werr := metrics.WriteFile(path); werr != nil {
			fmt.Fprintf(os.Stderr, "warning: writing metrics: %v\n", werr)
		}
	}
	if err != nil {
		os.Exit(1)
	}
}
