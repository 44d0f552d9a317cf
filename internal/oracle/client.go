// Package oracle wraps the external text-generation service used for
// judgment tasks: extraction, scoring, summarization, and correlation.
// The engine treats it as a black box that may fail, time out, or return
// malformed output; every caller has a defined fallback.
package oracle

import (
	"context"
	"fmt"

	"github.com/keepsake-ai/keepsake/internal/config"
)

// Client is the interface for oracle providers.
type Client interface {
	Complete(ctx context.Context, prompt string) (*Response, error)
}

// Response holds the result of an oracle completion.
type Response struct {
	Content    string
	Provider   string
	TokensUsed int
}

// Error marks a failure of the oracle itself: network, timeout, non-2xx
// status, or an undecodable response body. Callers check for it with
// errors.As and apply their documented fallback.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("oracle (%s): %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewClient creates an oracle client based on the config provider setting.
func NewClient(cfg config.OracleConfig) (Client, error) {
	switch cfg.Provider {
	case "anthropic":
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("anthropic provider requires ANTHROPIC_API_KEY or config")
		}
		model := cfg.Model
		if model == "" {
			model = "claude-haiku-4-5-20251001"
		}
		return NewAnthropic(cfg.AnthropicKey, model), nil
	case "ollama":
		url := cfg.OllamaURL
		if url == "" {
			url = "http://localhost:11434"
		}
		model := cfg.OllamaModel
		if model == "" {
			model = "llama3.2"
		}
		return NewOllama(url, model), nil
	default:
		return nil, fmt.Errorf("unknown oracle provider: %q", cfg.Provider)
	}
}
