// Package llm is the language-model boundary: provider-neutral message types,
// the Provider interface, and the OpenAI-compatible and Gemini backends.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Role is a chat message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a conversation. Exactly one of Content or
// ImageURL is set, except for assistant messages that only carry
// ToolCalls.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ImageURL   string     `json:"image_url,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a model's request to invoke a tool. Arguments is the raw
// JSON object the model produced.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Schema is the JSON-schema subset used to describe tool parameters.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
}

// Tool is a function the model may call.
type Tool struct {
	Name        string
	Description string
	Parameters  Schema
}

// ToolChoice values understood by every backend.
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceRequired = "required"
)

// Request is a chat completion request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float32
	// MaxTokens caps the response; zero leaves it to the provider.
	MaxTokens  int
	Tools      []Tool
	ToolChoice string
}

// Response is a complete, non-streamed reply.
type Response struct {
	Model   string
	Message Message
}

// Stream yields reply text fragments in order. Next returns io.EOF after
// the last fragment. Close must be called even when iteration ends early.
type Stream interface {
	Next() (string, error)
	Close() error
}

// Provider is the interface for chat backends.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Stream(ctx context.Context, req Request) (Stream, error)
}

// ProviderError is returned when the API responds with an error.
type ProviderError struct {
	StatusCode int
	Type       string
	Message    string
}

func (err *ProviderError) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("llm: HTTP %d: %s: %s", err.StatusCode, err.Type, err.Message)
	}
	return fmt.Sprintf("llm: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsRateLimited reports an HTTP 429.
func (err *ProviderError) IsRateLimited() bool {
	return err.StatusCode == 429
}

// Collect drains s and returns the concatenated text.
func Collect(s Stream) (string, error) {
	defer s.Close()
	var out []byte
	for {
		frag, err := s.Next()
		if err == io.EOF {
			return string(out), nil
		}
		if err != nil {
			return string(out), err
		}
		out = append(out, frag...)
	}
}

// MarshalArguments renders v as a tool-call argument string.
func MarshalArguments(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("llm: marshal arguments: %w", err)
	}
	return string(b), nil
}
