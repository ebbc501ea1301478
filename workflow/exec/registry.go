// Package exec provides the built-in node executor for FlowMaestro
// workflows.
//
// The Registry maps each node type to a handler and implements
// workflow.NodeExecutor, so an engine wired with a Registry can run every
// built-in node type out of the box. Handlers receive config with all
// {{Node.path}} templates already resolved by the engine.
//
// Example:
//
//	registry := exec.NewRegistry(
//	    exec.WithChatModel(openai.NewChatModel(apiKey, "gpt-4o")),
//	)
//	engine, err := workflow.NewEngine(registry)
//
// Individual handlers can be replaced, e.g. to stub side effects in tests:
//
//	registry.Register(workflow.NodeHTTP, func(ctx context.Context, req exec.Request) workflow.Result {
//	    return workflow.Result{Success: true, Output: map[string]any{"body": "stubbed"}}
//	})
package exec

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/nbaghiro/flowmaestro/workflow"
	"github.com/nbaghiro/flowmaestro/workflow/model"
)

// Request bundles the arguments of one handler invocation.
type Request struct {
	// Config is the node configuration with templates resolved.
	Config map[string]any

	// ExecCtx is the read-only execution context snapshot.
	ExecCtx *workflow.ExecutionContext

	// Meta carries execution and node identity.
	Meta workflow.Meta
}

// Handler executes one node type.
type Handler func(ctx context.Context, req Request) workflow.Result

// Registry dispatches node executions to per-type handlers. It implements
// workflow.NodeExecutor and is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[workflow.NodeType]Handler

	chat       model.ChatModel
	httpClient *http.Client
	baseDir    string
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithChatModel supplies the LLM backend used by llm, vision, and agent
// nodes. Without one those handlers fail with a configuration error.
func WithChatModel(m model.ChatModel) RegistryOption {
	return func(r *Registry) { r.chat = m }
}

// WithHTTPClient replaces the default client used by http nodes.
func WithHTTPClient(client *http.Client) RegistryOption {
	return func(r *Registry) { r.httpClient = client }
}

// WithBaseDir confines fileOperations nodes to the given directory.
// Empty (the default) resolves paths relative to the working directory.
func WithBaseDir(dir string) RegistryOption {
	return func(r *Registry) { r.baseDir = dir }
}

// NewRegistry creates a registry with all built-in handlers installed.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		handlers:   make(map[workflow.NodeType]Handler),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(r)
	}

	r.Register(workflow.NodeInput, handleInput)
	r.Register(workflow.NodeOutput, handleOutput)
	r.Register(workflow.NodeTransform, handleTransform)
	r.Register(workflow.NodeConditional, handleConditional)
	r.Register(workflow.NodeSwitch, handleSwitch)
	r.Register(workflow.NodeLoop, handleLoopBody)
	r.Register(workflow.NodeWaitForUser, handleWaitForUser)
	r.Register(workflow.NodeHTTP, r.handleHTTP)
	r.Register(workflow.NodeLLM, r.handleLLM)
	r.Register(workflow.NodeVision, r.handleVision)
	r.Register(workflow.NodeAgent, r.handleAgent)
	r.Register(workflow.NodeDatabase, handleDatabase)
	r.Register(workflow.NodeFileOperations, r.handleFileOperations)

	return r
}

// Register installs or replaces the handler for a node type.
func (r *Registry) Register(nodeType workflow.NodeType, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[nodeType] = handler
}

// ExecuteNode implements workflow.NodeExecutor.
func (r *Registry) ExecuteNode(ctx context.Context, nodeType workflow.NodeType, config map[string]any, execCtx *workflow.ExecutionContext, meta workflow.Meta) workflow.Result {
	r.mu.RLock()
	handler, ok := r.handlers[nodeType]
	r.mu.RUnlock()
	if !ok {
		return workflow.Result{
			Success: false,
			Error:   fmt.Sprintf("no handler registered for node type %q", nodeType),
		}
	}
	return handler(ctx, Request{Config: config, ExecCtx: execCtx, Meta: meta})
}

// failf builds a failed result with a formatted message.
func failf(format string, args ...any) workflow.Result {
	return workflow.Result{Success: false, Error: fmt.Sprintf(format, args...)}
}
