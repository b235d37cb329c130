// Package provider adapts model vendor SDKs behind one Client interface so
// the orchestrator can drive a turn without knowing which API it talks to.
package provider

import (
	"context"
	"fmt"

	"github.com/halim/aria/pkg/conversation"
)

// ToolSpec describes one callable tool as advertised to the model.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Request is one model call: the windowed history plus tool advertisements.
type Request struct {
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	Messages     []conversation.Message
	Tools        []ToolSpec
}

// ToolCall is a tool invocation the model asked for.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Usage is the token accounting reported by the vendor.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the model's reply: text, zero or more tool calls, or both.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
}

// Client is a model vendor adapter. Implementations classify their failures
// as *Error so callers can pick rotation, retry, or surfacing.
type Client interface {
	// Name identifies the vendor ("anthropic", "openai").
	Name() string
	// Complete performs one model call over the given history.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// New builds a client for the named vendor with the given credential.
func New(providerName, apiKey string) (Client, error) {
	switch providerName {
	case "anthropic":
		return NewAnthropic(apiKey), nil
	case "openai":
		return NewOpenAI(apiKey), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", providerName)
	}
}
