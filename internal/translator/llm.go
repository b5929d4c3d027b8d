// Package translator performs the actual chapter translation. It defines a
// provider-agnostic LLM interface with an OpenAI implementation and a
// deterministic mock for testing, plus the prompt assembly that injects the
// optional per-segment guidance block produced by the context engine.
package translator

import (
	"context"
	"errors"
)

var (
	ErrLLMFailed     = errors.New("LLM request failed")
	ErrInvalidConfig = errors.New("invalid LLM configuration")
)

// LLM defines the interface for interacting with language models.
// Implementations must be stateless and thread-safe.
type LLM interface {
	// Generate produces text from a prompt using the configured model.
	// Returns the generated text or an error if generation fails.
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLMConfig holds common configuration options for LLM providers.
type LLMConfig struct {
	// Model specifies the model identifier (e.g., "gpt-4o")
	Model string

	// Temperature controls randomness (0.0 = deterministic, 2.0 = very random)
	Temperature float32

	// MaxTokens limits the response length (0 = use provider default)
	MaxTokens int

	// APIKey is the authentication key for the provider
	APIKey string
}

// DefaultLLMConfig returns sensible defaults for literary translation.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Model:       "gpt-4o",
		Temperature: 0.3,
		MaxTokens:   4000,
	}
}
