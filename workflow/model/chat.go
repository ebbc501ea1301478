// Package model provides LLM integration adapters for FlowMaestro's llm,
// vision, and agent node executors.
//
// The ChatModel interface abstracts the differences between providers
// (OpenAI, Anthropic, Google) into a unified chat API. Implementations
// handle provider-specific authentication, format conversion, and error
// translation, and report token usage so the engine can accrue credits
// from real consumption rather than node-type defaults.
package model

import "context"

// ChatModel is the provider contract for chat-based LLM interactions.
//
// Implementations should:
//   - Handle provider-specific authentication
//   - Convert the standard Message format to the provider's wire format
//   - Parse provider responses back to ChatOut, including token usage
//   - Respect context cancellation and timeouts
//
// Example:
//
//	m := openai.NewChatModel(os.Getenv("OPENAI_API_KEY"), "gpt-4o")
//	out, err := m.Chat(ctx, []model.Message{
//	    {Role: model.RoleUser, Content: "Summarize this document."},
//	}, nil)
type ChatModel interface {
	// Chat sends the conversation to the provider and returns the response.
	// tools is optional; pass nil when tool calling is not wanted.
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Message is a single entry in an LLM conversation.
type Message struct {
	// Role identifies the sender; use the Role* constants.
	Role string

	// Content is the message text. May be empty for tool-call-only turns.
	Content string
}

// Standard conversation roles, aligned with major provider conventions.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolSpec describes a tool the LLM may call. Schema follows JSON Schema
// and describes the expected input parameters; nil for parameterless tools.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// ToolCall is a request from the LLM to invoke a tool. Input matches the
// tool's declared schema; nil for parameterless tools.
type ToolCall struct {
	Name  string
	Input map[string]any
}

// Usage reports token consumption for one chat completion. The engine
// converts usage to credits via the pricing tables.
type Usage struct {
	InputTokens  int64
	OutputTokens int64

	// Model is the concrete model that served the request, which may be
	// more specific than the requested name.
	Model string
}

// ChatOut is the outcome of one chat completion: generated text, requested
// tool calls, or both.
type ChatOut struct {
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
}
