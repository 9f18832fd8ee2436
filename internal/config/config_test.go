package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, 8*time.Second, cfg.DB.QueryTimeout)
	assert.Equal(t, 10, cfg.Chat.HistoryLimit)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Console)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(lookupFrom(map[string]string{
		"ADDR":                 ":9090",
		"DB_DSN":               "postgres://db01/sales",
		"DB_QUERY_TIMEOUT":     "15s",
		"DBCHAT_HISTORY_LIMIT": "6",
		"LLM_PROVIDER":         "anthropic",
		"LLM_API_KEY":          "sk-test",
		"DBCHAT_LOG_LEVEL":     "DEBUG",
		"DBCHAT_LOG_CONSOLE":   "false",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "postgres://db01/sales", cfg.DB.DSN)
	assert.Equal(t, 15*time.Second, cfg.DB.QueryTimeout)
	assert.Equal(t, 6, cfg.Chat.HistoryLimit)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Console)
}

func TestLoadIgnoresBlankValues(t *testing.T) {
	cfg, err := Load(lookupFrom(map[string]string{
		"ADDR":      "  ",
		"DB_DRIVER": "",
	}))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "postgres", cfg.DB.Driver)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	_, err := Load(lookupFrom(map[string]string{"DBCHAT_HISTORY_LIMIT": "ten"}))
	assert.ErrorContains(t, err, "DBCHAT_HISTORY_LIMIT")

	_, err = Load(lookupFrom(map[string]string{"DB_QUERY_TIMEOUT": "soon"}))
	assert.ErrorContains(t, err, "DB_QUERY_TIMEOUT")

	_, err = Load(lookupFrom(map[string]string{"DBCHAT_LOG_CONSOLE": "maybe"}))
	assert.ErrorContains(t, err, "DBCHAT_LOG_CONSOLE")
}

func TestLoadRejectsTinyHistoryLimit(t *testing.T) {
	_, err := Load(lookupFrom(map[string]string{"DBCHAT_HISTORY_LIMIT": "1"}))
	assert.ErrorContains(t, err, "at least 2")
}

func TestLoadRequiresLookup(t *testing.T) {
	_, err := Load(nil)
	assert.Error(t, err)
}
