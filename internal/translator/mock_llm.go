package translator

import (
	"context"
	"fmt"
	"strings"
)

// MockLLM is a deterministic LLM implementation for testing.
// It returns predictable responses based on prompt content.
type MockLLM struct {
	// Response is the fixed text returned by Generate.
	// If empty, a default response is generated from the prompt.
	Response string

	// Error, if set, is returned by Generate instead of a response.
	Error error

	// Prompts stores every prompt passed to Generate, in call order.
	Prompts []string
}

// NewMockLLM creates a mock LLM with the given fixed response.
func NewMockLLM(response string) *MockLLM {
	return &MockLLM{Response: response}
}

// Generate returns the configured response or a deterministic echo.
func (m *MockLLM) Generate(_ context.Context, prompt string) (string, error) {
	m.Prompts = append(m.Prompts, prompt)

	if m.Error != nil {
		return "", m.Error
	}
	if m.Response != "" {
		return m.Response, nil
	}

	// Default: echo the source text so round trips stay inspectable.
	if idx := strings.Index(prompt, sourceHeader); idx >= 0 {
		body := prompt[idx+len(sourceHeader):]
		if end := strings.Index(body, "\n## "); end >= 0 {
			body = body[:end]
		}
		return fmt.Sprintf("[translated] %s", strings.TrimSpace(body)), nil
	}
	return "[translated]", nil
}

// LastPrompt returns the most recent prompt, or empty when none were made.
func (m *MockLLM) LastPrompt() string {
	if len(m.Prompts) == 0 {
		return ""
	}
	return m.Prompts[len(m.Prompts)-1]
}
