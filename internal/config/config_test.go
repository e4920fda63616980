package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embx-dev/embx/internal/errs"
)

// isolateEnv pins every variable the resolver reads so tests do not depend
// on the invoking shell. It also points the config file at a temp location.
func isolateEnv(t *testing.T) string {
	t.Helper()
	for _, key := range []string{
		"EMBX_PROVIDER", "EMBX_MODEL", "EMBX_TIMEOUT_SECONDS",
		"EMBX_RETRY_ATTEMPTS", "EMBX_RETRY_BACKOFF_SECONDS",
		"EMBX_CACHE_ENABLED", "EMBX_CACHE_BACKEND", "EMBX_CACHE_PATH",
		"EMBX_REDIS_URL",
		"EMBX_OPENAI_API_KEY", "EMBX_OPENAI_BASE_URL",
		"EMBX_OPENROUTER_API_KEY", "EMBX_OPENROUTER_BASE_URL",
		"EMBX_OPENROUTER_REFERER", "EMBX_OPENROUTER_TITLE",
		"EMBX_VOYAGE_API_KEY", "EMBX_VOYAGE_BASE_URL",
		"EMBX_OLLAMA_BASE_URL", "EMBX_OLLAMA_MODEL",
		"EMBX_HUGGINGFACE_API_KEY", "EMBX_HUGGINGFACE_BASE_URL",
		"OPENAI_API_KEY", "OPENROUTER_API_KEY", "VOYAGE_API_KEY", "HF_TOKEN",
	} {
		t.Setenv(key, "")
	}
	path := filepath.Join(t.TempDir(), "config.json")
	t.Setenv("EMBX_CONFIG_PATH", path)
	return path
}

func writeConfigFile(t *testing.T, path string, doc map[string]any) {
	t.Helper()
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))
}

func TestResolveDefaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := Resolve(nil)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.DefaultProvider)
	assert.Equal(t, "text-embedding-3-small", cfg.DefaultModel)
	assert.Equal(t, 30, cfg.TimeoutSeconds)
	assert.Equal(t, 0, cfg.RetryAttempts)
	assert.InDelta(t, 0.5, cfg.RetryBackoffSeconds, 1e-9)
	assert.True(t, cfg.CacheEnabled)
	assert.Equal(t, "sqlite", cfg.CacheBackend)
}

func TestResolveFileOverridesDefaults(t *testing.T) {
	path := isolateEnv(t)
	writeConfigFile(t, path, map[string]any{
		"default_provider": "voyage",
		"timeout_seconds":  5,
		"cache_enabled":    false,
	})

	cfg, err := Resolve(nil)
	require.NoError(t, err)

	assert.Equal(t, "voyage", cfg.DefaultProvider)
	assert.Equal(t, 5, cfg.TimeoutSeconds)
	assert.False(t, cfg.CacheEnabled)
	// Untouched keys keep their defaults.
	assert.Equal(t, "text-embedding-3-small", cfg.DefaultModel)
}

func TestResolveEnvOverridesFile(t *testing.T) {
	path := isolateEnv(t)
	writeConfigFile(t, path, map[string]any{"default_provider": "voyage"})

	t.Setenv("EMBX_PROVIDER", "ollama")
	t.Setenv("EMBX_RETRY_ATTEMPTS", "3")
	t.Setenv("EMBX_OPENAI_API_KEY", "sk-env")

	cfg, err := Resolve(nil)
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.DefaultProvider)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, "sk-env", cfg.OpenAIAPIKey)
}

func TestResolveOverridesWinOverEverything(t *testing.T) {
	isolateEnv(t)
	t.Setenv("EMBX_PROVIDER", "ollama")

	provider := "huggingface"
	attempts := 7
	enabled := false
	cfg, err := Resolve(&Overrides{
		DefaultProvider: &provider,
		RetryAttempts:   &attempts,
		CacheEnabled:    &enabled,
	})
	require.NoError(t, err)

	assert.Equal(t, "huggingface", cfg.DefaultProvider)
	assert.Equal(t, 7, cfg.RetryAttempts)
	assert.False(t, cfg.CacheEnabled)
}

func TestResolveNativeKeyVariablesAreFallbacks(t *testing.T) {
	isolateEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-native")

	cfg, err := Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, "sk-native", cfg.OpenAIAPIKey)

	t.Setenv("EMBX_OPENAI_API_KEY", "sk-prefixed")
	cfg, err = Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, "sk-prefixed", cfg.OpenAIAPIKey)
}

func TestResolveRejectsBadValues(t *testing.T) {
	t.Run("invalid env integer", func(t *testing.T) {
		isolateEnv(t)
		t.Setenv("EMBX_TIMEOUT_SECONDS", "soon")

		_, err := Resolve(nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.ErrConfiguration)
	})

	t.Run("invalid config file JSON", func(t *testing.T) {
		path := isolateEnv(t)
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

		_, err := Resolve(nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.ErrConfiguration)
	})
}

func TestInit(t *testing.T) {
	path := isolateEnv(t)

	got, err := Init(false)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "openai", doc["default_provider"])

	_, err = Init(false)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	_, err = Init(true)
	require.NoError(t, err)
}

func TestSet(t *testing.T) {
	path := isolateEnv(t)

	require.NoError(t, Set("default_provider", "voyage"))
	require.NoError(t, Set("retry_attempts", "2"))
	require.NoError(t, Set("cache_enabled", "false"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Equal(t, "voyage", doc["default_provider"])
	assert.Equal(t, float64(2), doc["retry_attempts"])
	assert.Equal(t, false, doc["cache_enabled"])

	cfg, err := Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, "voyage", cfg.DefaultProvider)
	assert.Equal(t, 2, cfg.RetryAttempts)
}

func TestSetRejectsBadInput(t *testing.T) {
	isolateEnv(t)

	err := Set("favourite_colour", "blue")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrValidation)

	err = Set("timeout_seconds", "soon")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestMasked(t *testing.T) {
	cfg := Default()
	cfg.OpenAIAPIKey = "sk-proj-abcdef123456"
	cfg.VoyageAPIKey = "vk"

	masked := Masked(cfg)

	assert.Equal(t, "sk-p...", masked["openai_api_key"])
	assert.Equal(t, "vk...", masked["voyage_api_key"])
	assert.Equal(t, "", masked["huggingface_api_key"])
	// Non-secret values render in full.
	assert.Equal(t, "openai", masked["default_provider"])
	assert.Equal(t, "30", masked["timeout_seconds"])
}
