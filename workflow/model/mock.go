package model

import (
	"context"
	"sync"
)

// MockChatModel is a test implementation of ChatModel.
//
// Use it to verify node and workflow behavior without real LLM calls. It
// provides configurable responses, error injection, and thread-safe call
// history.
//
// Example:
//
//	mock := &MockChatModel{
//	    Responses: []ChatOut{
//	        {Text: "first", Usage: Usage{InputTokens: 120, OutputTokens: 40, Model: "gpt-4o"}},
//	        {Text: "second"},
//	    },
//	}
//
// When all responses are consumed, the last one repeats.
type MockChatModel struct {
	// Responses is returned in order across successive Chat calls.
	Responses []ChatOut

	// Err, when set, is returned by Chat instead of a response.
	Err error

	// Calls records every Chat invocation.
	Calls []MockChatCall

	mu        sync.Mutex
	callIndex int
}

// MockChatCall records one Chat invocation.
type MockChatCall struct {
	Messages []Message
	Tools    []ToolSpec
}

// Chat implements ChatModel. The call is recorded regardless of outcome.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockChatCall{Messages: messages, Tools: tools})

	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// Reset clears the call history and response cursor.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.callIndex = 0
}

// CallCount returns the number of Chat invocations so far.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
