// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/litreview/pkg/types"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T) string
		want   map[string]string
		errMsg string
	}{
		{
			name: "reads key files and trims whitespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "deepseek-api-key", "  sk-ds-abc123  \n")
				writeFile(t, dir, "gemini-api-key", "AIzaXYZ789")
				writeFile(t, dir, "poe-api-key", "poe_123\n")
				return dir
			},
			want: map[string]string{
				"deepseek-api-key": "sk-ds-abc123",
				"gemini-api-key":   "AIzaXYZ789",
				"poe-api-key":      "poe_123",
			},
		},
		{
			name: "returns empty map for nonexistent directory",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			want: map[string]string{},
		},
		{
			name: "skips empty files",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "siliconflow-api-key", "valid-key")
				writeFile(t, dir, "empty-key", "")
				writeFile(t, dir, "whitespace-only", "   \n\t  ")
				return dir
			},
			want: map[string]string{
				"siliconflow-api-key": "valid-key",
			},
		},
		{
			name: "skips dotfiles",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, ".gitkeep", "")
				writeFile(t, dir, ".hidden-key", "secret")
				writeFile(t, dir, "deepseek-api-key", "sk_real")
				return dir
			},
			want: map[string]string{
				"deepseek-api-key": "sk_real",
			},
		},
		{
			name: "skips subdirectories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "siliconflow-api-key", "ak_123")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))
				return dir
			},
			want: map[string]string{
				"siliconflow-api-key": "ak_123",
			},
		},
		{
			name: "returns empty map for empty directory",
			setup: func(t *testing.T) string {
				return t.TempDir()
			},
			want: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := tt.setup(t)
			got, err := Load(dir)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadUnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	dir := t.TempDir()
	writeFile(t, dir, "good-key", "value123")

	// Create a file then remove read permission.
	badPath := filepath.Join(dir, "bad-key")
	require.NoError(t, os.WriteFile(badPath, []byte("secret"), 0o000))
	t.Cleanup(func() { os.Chmod(badPath, 0o644) })

	got, err := Load(dir)
	require.NoError(t, err)
	// The good file should still be returned; the bad file is skipped with a warning.
	assert.Equal(t, "value123", got["good-key"])
	_, hasBad := got["bad-key"]
	assert.False(t, hasBad, "unreadable file should not appear in result")
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestAPIKey(t *testing.T) {
	loaded := map[string]string{"deepseek-api-key": "from-secrets"}

	t.Run("project key wins", func(t *testing.T) {
		keys := map[types.Provider]string{types.ProviderDeepSeek: " from-project "}
		assert.Equal(t, "from-project", APIKey(types.ProviderDeepSeek, keys, loaded))
	})

	t.Run("falls back to secrets", func(t *testing.T) {
		assert.Equal(t, "from-secrets", APIKey(types.ProviderDeepSeek, nil, loaded))
	})

	t.Run("falls back to environment", func(t *testing.T) {
		t.Setenv("LITREVIEW_GEMINI_API_KEY", "from-env")
		assert.Equal(t, "from-env", APIKey(types.ProviderGemini, nil, loaded))
	})

	t.Run("missing everywhere", func(t *testing.T) {
		t.Setenv("LITREVIEW_POE_API_KEY", "")
		assert.Empty(t, APIKey(types.ProviderPoe, nil, loaded))
	})
}
