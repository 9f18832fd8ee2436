// Package nlsql implements the query processor: it turns a natural-language
// question plus conversation context into SQL via a language model, executes
// the SQL read-only against PostgreSQL, and renders the result as a text
// answer.
package nlsql

import (
	"context"
	"fmt"
	"strings"
)

// Message is one entry in the completion conversation sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the provider-agnostic input for one model call.
type CompletionRequest struct {
	System    string
	Messages  []Message
	MaxTokens int // 0 = provider default
}

// CompletionResult is the raw model output plus usage accounting.
type CompletionResult struct {
	Text   string
	Tokens int
}

// Provider is a chat-completion client for one LLM API.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)

	// Name identifies the provider for logging.
	Name() string
}

// ProviderConfig selects and parameterizes a provider.
type ProviderConfig struct {
	Provider string // "openai" or "anthropic"
	APIKey   string
	Model    string // empty selects a per-provider default
	BaseURL  string // empty selects the provider's public endpoint
}

// NewProvider builds a provider from configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM API key is required")
	}

	switch cfg.Provider {
	case "openai":
		if cfg.Model == "" {
			cfg.Model = "gpt-4o"
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api.openai.com/v1"
		}
		return NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.BaseURL), nil

	case "anthropic":
		if cfg.Model == "" {
			cfg.Model = "claude-sonnet-4-20250514"
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api.anthropic.com/v1"
		}
		return NewAnthropicProvider(cfg.APIKey, cfg.Model, cfg.BaseURL), nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (supported: openai, anthropic)", cfg.Provider)
	}
}

// Completion is a parsed model response: either SQL to run, or an
// explanation of why the request cannot be answered from the schema.
type Completion struct {
	SQL     string
	Missing string
}

// ParseCompletion extracts SQL or a MISSING explanation from raw model
// output, stripping the code fences models like to add.
func ParseCompletion(raw string) Completion {
	trimmed := strings.TrimSpace(raw)

	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "MISSING:") {
		return Completion{Missing: strings.TrimSpace(trimmed[len("MISSING:"):])}
	}

	sql := trimmed
	sql = strings.TrimPrefix(sql, "```sql")
	sql = strings.TrimPrefix(sql, "```SQL")
	sql = strings.TrimPrefix(sql, "```")
	sql = strings.TrimSuffix(sql, "```")
	return Completion{SQL: strings.TrimSpace(sql)}
}
