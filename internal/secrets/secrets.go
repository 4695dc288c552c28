// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys and credentials from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value.
//
// Supported key files: deepseek-api-key, gemini-api-key, siliconflow-api-key, poe-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/litreview/pkg/types"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files produce a warning on stderr but do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read secret %s: %v\n", name, err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// KeyName returns the secret file name that holds the API key for provider.
func KeyName(provider types.Provider) string {
	return string(provider) + "-api-key"
}

// APIKey picks the key for provider: the project's own key wins, then the
// secrets directory, then the LITREVIEW_<PROVIDER>_API_KEY environment
// variable.
func APIKey(provider types.Provider, projectKeys map[types.Provider]string, loaded map[string]string) string {
	if k := strings.TrimSpace(projectKeys[provider]); k != "" {
		return k
	}
	if k, ok := loaded[KeyName(provider)]; ok {
		return k
	}
	return strings.TrimSpace(os.Getenv("LITREVIEW_" + strings.ToUpper(string(provider)) + "_API_KEY"))
}
