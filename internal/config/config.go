// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LookupFunc resolves an environment variable, reporting whether it was set.
type LookupFunc func(string) (string, bool)

// Config holds all settings for the dbchat server.
type Config struct {
	HTTP    HTTPConfig
	DB      DBConfig
	Chat    ChatConfig
	LLM     LLMConfig
	Logging LoggingConfig
}

type HTTPConfig struct {
	Addr string
}

type DBConfig struct {
	Driver       string
	DSN          string
	QueryTimeout time.Duration
}

type ChatConfig struct {
	// HistoryLimit is the maximum number of turns kept per session.
	HistoryLimit int
}

type LLMConfig struct {
	Provider  string
	APIKey    string
	Model     string
	BaseURL   string
	Timeout   time.Duration
	MaxTokens int
}

type LoggingConfig struct {
	File    string
	Level   string
	Console bool
}

// Defaults returns the baseline configuration before env overrides.
func Defaults() Config {
	return Config{
		HTTP: HTTPConfig{Addr: ":8080"},
		DB: DBConfig{
			Driver:       "postgres",
			DSN:          "postgres://localhost/postgres?sslmode=disable",
			QueryTimeout: 8 * time.Second,
		},
		Chat: ChatConfig{HistoryLimit: 10},
		LLM: LLMConfig{
			Provider: "openai",
			Timeout:  60 * time.Second,
		},
		Logging: LoggingConfig{
			File:    "dbchat.log",
			Level:   "INFO",
			Console: true,
		},
	}
}

// Load builds a Config from defaults plus environment overrides.
func Load(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := Defaults()

	applyString(lookup, "ADDR", &cfg.HTTP.Addr)
	applyString(lookup, "DB_DRIVER", &cfg.DB.Driver)
	applyString(lookup, "DB_DSN", &cfg.DB.DSN)
	if err := applyDuration(lookup, "DB_QUERY_TIMEOUT", &cfg.DB.QueryTimeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DBCHAT_HISTORY_LIMIT", &cfg.Chat.HistoryLimit); err != nil {
		return Config{}, err
	}
	applyString(lookup, "LLM_PROVIDER", &cfg.LLM.Provider)
	applyString(lookup, "LLM_API_KEY", &cfg.LLM.APIKey)
	applyString(lookup, "LLM_MODEL", &cfg.LLM.Model)
	applyString(lookup, "LLM_BASE_URL", &cfg.LLM.BaseURL)
	if err := applyDuration(lookup, "LLM_TIMEOUT", &cfg.LLM.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "LLM_MAX_TOKENS", &cfg.LLM.MaxTokens); err != nil {
		return Config{}, err
	}
	applyString(lookup, "DBCHAT_LOG_FILE", &cfg.Logging.File)
	applyString(lookup, "DBCHAT_LOG_LEVEL", &cfg.Logging.Level)
	if err := applyBool(lookup, "DBCHAT_LOG_CONSOLE", &cfg.Logging.Console); err != nil {
		return Config{}, err
	}

	if cfg.Chat.HistoryLimit < 2 {
		return Config{}, fmt.Errorf("DBCHAT_HISTORY_LIMIT must be at least 2, got %d", cfg.Chat.HistoryLimit)
	}

	return cfg, nil
}

func applyString(lookup LookupFunc, key string, target *string) {
	if raw, ok := lookup(key); ok {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			*target = trimmed
		}
	}
}

func applyInt(lookup LookupFunc, key string, target *int) error {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	*target = value
	return nil
}

func applyBool(lookup LookupFunc, key string, target *bool) error {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	*target = value
	return nil
}

func applyDuration(lookup LookupFunc, key string, target *time.Duration) error {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	*target = value
	return nil
}
