// Package config provides layered configuration for embx.
//
// Resolution order is defaults, then the JSON config file, then EMBX_*
// environment variables, then explicit CLI overrides. The resolved Config is
// built once per invocation and passed by value into the engine; there is no
// process-wide mutable configuration state.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/embx-dev/embx/internal/errs"
)

// Config holds all resolved settings for one invocation.
type Config struct {
	DefaultProvider     string  `json:"default_provider"`
	DefaultModel        string  `json:"default_model"`
	TimeoutSeconds      int     `json:"timeout_seconds"`
	RetryAttempts       int     `json:"retry_attempts"`
	RetryBackoffSeconds float64 `json:"retry_backoff_seconds"`

	CacheEnabled bool   `json:"cache_enabled"`
	CacheBackend string `json:"cache_backend"`
	CachePath    string `json:"cache_path"`
	RedisURL     string `json:"redis_url"`

	OpenAIAPIKey  string `json:"openai_api_key"`
	OpenAIBaseURL string `json:"openai_base_url"`

	OpenRouterAPIKey  string `json:"openrouter_api_key"`
	OpenRouterBaseURL string `json:"openrouter_base_url"`
	OpenRouterReferer string `json:"openrouter_referer"`
	OpenRouterTitle   string `json:"openrouter_title"`

	VoyageAPIKey  string `json:"voyage_api_key"`
	VoyageBaseURL string `json:"voyage_base_url"`

	OllamaBaseURL string `json:"ollama_base_url"`
	OllamaModel   string `json:"ollama_model"`

	HuggingFaceAPIKey  string `json:"huggingface_api_key"`
	HuggingFaceBaseURL string `json:"huggingface_base_url"`
}

// Overrides carries CLI-level settings. Nil fields leave the lower layers
// untouched.
type Overrides struct {
	DefaultProvider     *string
	DefaultModel        *string
	TimeoutSeconds      *int
	RetryAttempts       *int
	RetryBackoffSeconds *float64
	CacheEnabled        *bool
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DefaultProvider:     "openai",
		DefaultModel:        "text-embedding-3-small",
		TimeoutSeconds:      30,
		RetryAttempts:       0,
		RetryBackoffSeconds: 0.5,
		CacheEnabled:        true,
		CacheBackend:        "sqlite",
		OllamaBaseURL:       "http://localhost:11434",
		OllamaModel:         "nomic-embed-text",
	}
}

// Path returns the config file location, honoring EMBX_CONFIG_PATH.
func Path() string {
	if override := os.Getenv("EMBX_CONFIG_PATH"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".embx", "config.json")
	}
	return filepath.Join(home, ".config", "embx", "config.json")
}

// Resolve builds the effective configuration for one invocation.
func Resolve(overrides *Overrides) (Config, error) {
	cfg := Default()

	if err := mergeFile(&cfg, Path()); err != nil {
		return Config{}, err
	}
	if err := mergeEnv(&cfg); err != nil {
		return Config{}, err
	}
	mergeOverrides(&cfg, overrides)

	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: cannot read config file at %s: %v", errs.ErrConfiguration, path, err)
	}

	if err := json.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("%w: config file is invalid JSON at %s: %v", errs.ErrConfiguration, path, err)
	}
	return nil
}

func mergeEnv(cfg *Config) error {
	if v := os.Getenv("EMBX_PROVIDER"); v != "" {
		cfg.DefaultProvider = v
	}
	if v := os.Getenv("EMBX_MODEL"); v != "" {
		cfg.DefaultModel = v
	}
	if v := os.Getenv("EMBX_TIMEOUT_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: EMBX_TIMEOUT_SECONDS must be an integer", errs.ErrConfiguration)
		}
		cfg.TimeoutSeconds = n
	}
	if v := os.Getenv("EMBX_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: EMBX_RETRY_ATTEMPTS must be an integer", errs.ErrConfiguration)
		}
		cfg.RetryAttempts = n
	}
	if v := os.Getenv("EMBX_RETRY_BACKOFF_SECONDS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: EMBX_RETRY_BACKOFF_SECONDS must be a number", errs.ErrConfiguration)
		}
		cfg.RetryBackoffSeconds = f
	}
	if v := os.Getenv("EMBX_CACHE_ENABLED"); v != "" {
		cfg.CacheEnabled = parseBool(v)
	}
	if v := os.Getenv("EMBX_CACHE_BACKEND"); v != "" {
		cfg.CacheBackend = v
	}
	if v := os.Getenv("EMBX_CACHE_PATH"); v != "" {
		cfg.CachePath = v
	}
	if v := os.Getenv("EMBX_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}

	stringVars := []struct {
		env string
		dst *string
	}{
		{"EMBX_OPENAI_API_KEY", &cfg.OpenAIAPIKey},
		{"EMBX_OPENAI_BASE_URL", &cfg.OpenAIBaseURL},
		{"EMBX_OPENROUTER_API_KEY", &cfg.OpenRouterAPIKey},
		{"EMBX_OPENROUTER_BASE_URL", &cfg.OpenRouterBaseURL},
		{"EMBX_OPENROUTER_REFERER", &cfg.OpenRouterReferer},
		{"EMBX_OPENROUTER_TITLE", &cfg.OpenRouterTitle},
		{"EMBX_VOYAGE_API_KEY", &cfg.VoyageAPIKey},
		{"EMBX_VOYAGE_BASE_URL", &cfg.VoyageBaseURL},
		{"EMBX_OLLAMA_BASE_URL", &cfg.OllamaBaseURL},
		{"EMBX_OLLAMA_MODEL", &cfg.OllamaModel},
		{"EMBX_HUGGINGFACE_API_KEY", &cfg.HuggingFaceAPIKey},
		{"EMBX_HUGGINGFACE_BASE_URL", &cfg.HuggingFaceBaseURL},
	}
	for _, sv := range stringVars {
		if v := os.Getenv(sv.env); v != "" {
			*sv.dst = v
		}
	}

	// Provider-native key variables are honored when the EMBX-prefixed ones
	// are not set, so existing shells keep working.
	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.OpenRouterAPIKey == "" {
		cfg.OpenRouterAPIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if cfg.VoyageAPIKey == "" {
		cfg.VoyageAPIKey = os.Getenv("VOYAGE_API_KEY")
	}
	if cfg.HuggingFaceAPIKey == "" {
		cfg.HuggingFaceAPIKey = os.Getenv("HF_TOKEN")
	}

	return nil
}

func mergeOverrides(cfg *Config, o *Overrides) {
	if o == nil {
		return
	}
	if o.DefaultProvider != nil {
		cfg.DefaultProvider = *o.DefaultProvider
	}
	if o.DefaultModel != nil {
		cfg.DefaultModel = *o.DefaultModel
	}
	if o.TimeoutSeconds != nil {
		cfg.TimeoutSeconds = *o.TimeoutSeconds
	}
	if o.RetryAttempts != nil {
		cfg.RetryAttempts = *o.RetryAttempts
	}
	if o.RetryBackoffSeconds != nil {
		cfg.RetryBackoffSeconds = *o.RetryBackoffSeconds
	}
	if o.CacheEnabled != nil {
		cfg.CacheEnabled = *o.CacheEnabled
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Init writes the default configuration to the config file path. It refuses
// to overwrite an existing file unless force is set.
func Init(force bool) (string, error) {
	path := Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("%w: cannot create config directory: %v", errs.ErrConfiguration, err)
	}

	if _, err := os.Stat(path); err == nil && !force {
		return "", fmt.Errorf("%w: config already exists at %s, use --force to overwrite", errs.ErrConfiguration, path)
	}

	raw, err := json.MarshalIndent(Default(), "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, append(raw, '\n'), 0o600); err != nil {
		return "", fmt.Errorf("%w: cannot write config file: %v", errs.ErrConfiguration, err)
	}
	return path, nil
}

// Set updates a single key in the config file, creating the file from
// defaults when it does not exist yet. The key must match a json tag of
// Config.
func Set(key, value string) error {
	fields := fieldTypes()
	kind, ok := fields[key]
	if !ok {
		return fmt.Errorf("%w: unknown config key %q", errs.ErrValidation, key)
	}

	path := Path()
	doc := map[string]any{}
	if raw, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("%w: config file is invalid JSON at %s: %v", errs.ErrConfiguration, path, err)
		}
	}

	switch kind {
	case "int":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer", errs.ErrValidation, key)
		}
		doc[key] = n
	case "float":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: %s must be a number", errs.ErrValidation, key)
		}
		doc[key] = f
	case "bool":
		doc[key] = parseBool(value)
	default:
		doc[key] = value
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: cannot create config directory: %v", errs.ErrConfiguration, err)
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(raw, '\n'), 0o600); err != nil {
		return fmt.Errorf("%w: cannot write config file: %v", errs.ErrConfiguration, err)
	}
	return nil
}

func fieldTypes() map[string]string {
	return map[string]string{
		"default_provider":      "string",
		"default_model":         "string",
		"timeout_seconds":       "int",
		"retry_attempts":        "int",
		"retry_backoff_seconds": "float",
		"cache_enabled":         "bool",
		"cache_backend":         "string",
		"cache_path":            "string",
		"redis_url":             "string",
		"openai_api_key":        "string",
		"openai_base_url":       "string",
		"openrouter_api_key":    "string",
		"openrouter_base_url":   "string",
		"openrouter_referer":    "string",
		"openrouter_title":      "string",
		"voyage_api_key":        "string",
		"voyage_base_url":       "string",
		"ollama_base_url":       "string",
		"ollama_model":          "string",
		"huggingface_api_key":   "string",
		"huggingface_base_url":  "string",
	}
}

// Masked renders the config as key/value pairs with secrets reduced to a
// short prefix, for display by `embx config show`.
func Masked(cfg Config) map[string]string {
	raw, _ := json.Marshal(cfg)
	doc := map[string]any{}
	_ = json.Unmarshal(raw, &doc)

	out := make(map[string]string, len(doc))
	for key, value := range doc {
		rendered := fmt.Sprintf("%v", value)
		if strings.Contains(key, "key") || strings.Contains(key, "token") {
			if rendered == "" {
				out[key] = ""
			} else if len(rendered) > 4 {
				out[key] = rendered[:4] + "..."
			} else {
				out[key] = rendered + "..."
			}
			continue
		}
		out[key] = rendered
	}
	return out
}
