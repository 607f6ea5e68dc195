// Package llm defines the provider-neutral shapes the chat orchestrator uses
// to talk to a streaming chat-completion model.
package llm

import (
	"context"

	"weather-chat/internal/domain"
)

type ToolChoice string

const (
	ToolChoiceAuto ToolChoice = "auto"
	ToolChoiceNone ToolChoice = "none"
)

// FinishReasonToolCalls is reported when the model stops to call tools.
const FinishReasonToolCalls = "tool_calls"

// Message is one transcript entry sent to the model.
type Message struct {
	Role       domain.Role
	Content    string
	Name       string
	ToolCallID string
	ToolCalls  []ToolCall
}

// ToolCall is a completed tool invocation issued by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDefinition advertises a callable function. Parameters must marshal to a
// JSON Schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  any
}

type CompletionRequest struct {
	Messages    []Message
	Tools       []ToolDefinition
	ToolChoice  ToolChoice
	Temperature float32
}

// Chunk is one streamed delta. HasChoice is false for provider frames that
// carry no choice at all (usage frames, keep-alives).
type Chunk struct {
	HasChoice    bool
	Content      string
	ToolCalls    []ToolCallDelta
	FinishReason string
}

// ToolCallDelta is a fragment of a tool call keyed by its provider index.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Stream yields chunks until Recv returns io.EOF.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

// Client opens streaming completions against a model provider.
type Client interface {
	// CheckCredential returns ErrMissingCredential when no API key is available.
	CheckCredential(ctx context.Context) error
	OpenStream(ctx context.Context, req CompletionRequest) (Stream, error)
}
