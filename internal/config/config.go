// Package config provides configuration management for bizdna.
// Settings start from built-in defaults, are overlaid by an optional YAML
// file and finally by environment variables with the BIZDNA_ prefix.
// A .env file in the working directory is loaded first when present;
// variables already set in the process environment win over it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the bizdna service.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	LLM          LLMConfig          `yaml:"llm"`
	Profile      ProfileConfig      `yaml:"profile"`
	Conversation ConversationConfig `yaml:"conversation"`
	Log          LogConfig          `yaml:"log"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port      int     `yaml:"port"`       // default: 6464
	Host      string  `yaml:"host"`       // default: 127.0.0.1
	APIToken  string  `yaml:"api_token"`  // bearer token for /api; empty disables auth
	RateLimit float64 `yaml:"rate_limit"` // requests per second per client (default: 10)
	RateBurst int     `yaml:"rate_burst"` // default: 20
}

// StorageConfig contains database and cache configuration.
type StorageConfig struct {
	Engine      string        `yaml:"engine"`       // sqlite or postgres (default: sqlite)
	DataPath    string        `yaml:"data_path"`    // SQLite directory (default: ./data)
	PostgresDSN string        `yaml:"postgres_dsn"` // required when engine is postgres
	RedisURL    string        `yaml:"redis_url"`    // optional shared profile cache
	CacheTTL    time.Duration `yaml:"cache_ttl"`    // default: 6h
}

// LLMConfig contains provider credentials and default models.
type LLMConfig struct {
	DefaultProvider string        `yaml:"default_provider"` // default: openai
	ProviderTimeout time.Duration `yaml:"provider_timeout"` // default: 30s
	OpenAIAPIKey    string        `yaml:"-"`
	OpenAIModel     string        `yaml:"openai_model"`
	AnthropicAPIKey string        `yaml:"-"`
	AnthropicModel  string        `yaml:"anthropic_model"`
	GeminiAPIKey    string        `yaml:"-"`
	GeminiModel     string        `yaml:"gemini_model"`
	OllamaURL       string        `yaml:"ollama_url"`
	OllamaModel     string        `yaml:"ollama_model"`
	// Fallback lists providers tried in order after DefaultProvider fails
	// with a provider error.
	Fallback []string `yaml:"fallback"`
}

// ProfileConfig contains profile build and scheduling settings.
type ProfileConfig struct {
	StaleAfter    time.Duration `yaml:"stale_after"`    // default: 1h
	FeedbackLimit int           `yaml:"feedback_limit"` // default: 500
	PostLimit     int           `yaml:"post_limit"`     // default: 100
	QuestionLimit int           `yaml:"question_limit"` // default: 100
	BuildTimeout  time.Duration `yaml:"build_timeout"`  // default: 1m

	SchedulerEnabled     bool          `yaml:"scheduler_enabled"`     // default: true
	ScheduleSpec         string        `yaml:"schedule"`              // default: "0 * * * *"
	ActiveWindow         time.Duration `yaml:"active_window"`         // default: 168h
	SchedulerConcurrency int           `yaml:"scheduler_concurrency"` // default: 4
}

// ConversationConfig contains per-turn context settings.
type ConversationConfig struct {
	HistoryLimit int `yaml:"history_limit"` // default: 50
	MemoryTopK   int `yaml:"memory_top_k"`  // default: 10
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error (default: info)
	Development bool   `yaml:"development"` // console encoder instead of JSON
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      6464,
			Host:      "127.0.0.1",
			RateLimit: 10,
			RateBurst: 20,
		},
		Storage: StorageConfig{
			Engine:   "sqlite",
			DataPath: "./data",
			CacheTTL: 6 * time.Hour,
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			ProviderTimeout: 30 * time.Second,
			OpenAIModel:     "gpt-4o-mini",
			AnthropicModel:  "claude-3-5-haiku-latest",
			GeminiModel:     "gemini-1.5-flash",
			OllamaURL:       "http://localhost:11434",
			OllamaModel:     "llama3.1",
		},
		Profile: ProfileConfig{
			StaleAfter:           time.Hour,
			FeedbackLimit:        500,
			PostLimit:            100,
			QuestionLimit:        100,
			BuildTimeout:         time.Minute,
			SchedulerEnabled:     true,
			ScheduleSpec:         "0 * * * *",
			ActiveWindow:         7 * 24 * time.Hour,
			SchedulerConcurrency: 4,
		},
		Conversation: ConversationConfig{
			HistoryLimit: 50,
			MemoryTopK:   10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from the file named by BIZDNA_CONFIG (if
// any) and the environment.
func LoadConfig() (*Config, error) {
	return Load(os.Getenv("BIZDNA_CONFIG"))
}

// Load loads configuration from the YAML file at path, which may be empty,
// and the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Storage.Engine {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.New("config: postgres engine requires BIZDNA_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	if c.Conversation.HistoryLimit <= 0 {
		return errors.New("config: history_limit must be positive")
	}
	if c.LLM.ProviderTimeout <= 0 {
		return errors.New("config: provider_timeout must be positive")
	}
	if c.Profile.StaleAfter <= 0 {
		return errors.New("config: stale_after must be positive")
	}
	return nil
}

// Credentials returns the configured API keys by provider name. Providers
// without a key are omitted.
func (c *Config) Credentials() map[string]string {
	out := make(map[string]string, 3)
	for name, key := range map[string]string{
		"openai":    c.LLM.OpenAIAPIKey,
		"anthropic": c.LLM.AnthropicAPIKey,
		"gemini":    c.LLM.GeminiAPIKey,
	} {
		if key != "" {
			out[name] = key
		}
	}
	return out
}

// Model returns the configured default model for provider.
func (c *Config) Model(provider string) string {
	switch provider {
	case "openai":
		return c.LLM.OpenAIModel
	case "anthropic":
		return c.LLM.AnthropicModel
	case "gemini":
		return c.LLM.GeminiModel
	case "ollama":
		return c.LLM.OllamaModel
	}
	return ""
}

// applyEnv overlays BIZDNA_* variables that are set.
func applyEnv(c *Config) {
	c.Server.Port = getEnvInt("BIZDNA_PORT", c.Server.Port)
	c.Server.Host = getEnv("BIZDNA_HOST", c.Server.Host)
	c.Server.APIToken = getEnv("BIZDNA_API_TOKEN", c.Server.APIToken)
	c.Server.RateLimit = getEnvFloat("BIZDNA_RATE_LIMIT", c.Server.RateLimit)
	c.Server.RateBurst = getEnvInt("BIZDNA_RATE_BURST", c.Server.RateBurst)

	c.Storage.Engine = getEnv("BIZDNA_STORAGE_ENGINE", c.Storage.Engine)
	c.Storage.DataPath = getEnv("BIZDNA_DATA_PATH", c.Storage.DataPath)
	c.Storage.PostgresDSN = getEnv("BIZDNA_POSTGRES_DSN", c.Storage.PostgresDSN)
	c.Storage.RedisURL = getEnv("BIZDNA_REDIS_URL", c.Storage.RedisURL)
	c.Storage.CacheTTL = getEnvDuration("BIZDNA_CACHE_TTL", c.Storage.CacheTTL)

	c.LLM.DefaultProvider = getEnv("BIZDNA_LLM_PROVIDER", c.LLM.DefaultProvider)
	c.LLM.ProviderTimeout = getEnvDuration("BIZDNA_PROVIDER_TIMEOUT", c.LLM.ProviderTimeout)
	c.LLM.OpenAIAPIKey = getEnv("BIZDNA_OPENAI_API_KEY", c.LLM.OpenAIAPIKey)
	c.LLM.OpenAIModel = getEnv("BIZDNA_OPENAI_MODEL", c.LLM.OpenAIModel)
	c.LLM.AnthropicAPIKey = getEnv("BIZDNA_ANTHROPIC_API_KEY", c.LLM.AnthropicAPIKey)
	c.LLM.AnthropicModel = getEnv("BIZDNA_ANTHROPIC_MODEL", c.LLM.AnthropicModel)
	c.LLM.GeminiAPIKey = getEnv("BIZDNA_GEMINI_API_KEY", c.LLM.GeminiAPIKey)
	c.LLM.GeminiModel = getEnv("BIZDNA_GEMINI_MODEL", c.LLM.GeminiModel)
	c.LLM.OllamaURL = getEnv("BIZDNA_OLLAMA_URL", c.LLM.OllamaURL)
	c.LLM.OllamaModel = getEnv("BIZDNA_OLLAMA_MODEL", c.LLM.OllamaModel)
	if v := os.Getenv("BIZDNA_LLM_FALLBACK"); v != "" {
		c.LLM.Fallback = splitList(v)
	}

	c.Profile.StaleAfter = getEnvDuration("BIZDNA_PROFILE_STALE_AFTER", c.Profile.StaleAfter)
	c.Profile.FeedbackLimit = getEnvInt("BIZDNA_FEEDBACK_LIMIT", c.Profile.FeedbackLimit)
	c.Profile.PostLimit = getEnvInt("BIZDNA_POST_LIMIT", c.Profile.PostLimit)
	c.Profile.QuestionLimit = getEnvInt("BIZDNA_QUESTION_LIMIT", c.Profile.QuestionLimit)
	c.Profile.BuildTimeout = getEnvDuration("BIZDNA_BUILD_TIMEOUT", c.Profile.BuildTimeout)
	c.Profile.SchedulerEnabled = getEnvBool("BIZDNA_SCHEDULER_ENABLED", c.Profile.SchedulerEnabled)
	c.Profile.ScheduleSpec = getEnv("BIZDNA_SCHEDULE", c.Profile.ScheduleSpec)
	c.Profile.ActiveWindow = getEnvDuration("BIZDNA_ACTIVE_WINDOW", c.Profile.ActiveWindow)
	c.Profile.SchedulerConcurrency = getEnvInt("BIZDNA_SCHEDULER_CONCURRENCY", c.Profile.SchedulerConcurrency)

	c.Conversation.HistoryLimit = getEnvInt("BIZDNA_HISTORY_LIMIT", c.Conversation.HistoryLimit)
	c.Conversation.MemoryTopK = getEnvInt("BIZDNA_MEMORY_TOP_K", c.Conversation.MemoryTopK)

	c.Log.Level = getEnv("BIZDNA_LOG_LEVEL", c.Log.Level)
	c.Log.Development = getEnvBool("BIZDNA_LOG_DEVELOPMENT", c.Log.Development)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings such as "90s" or "1h30m".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}
