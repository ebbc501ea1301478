package workflow

import "context"

// Meta carries execution identity into executors for logging and telemetry.
type Meta struct {
	ExecutionID string
	NodeID      string
	NodeName    string
	WorkspaceID string
	UserID      string
}

// TokenUsage reports LLM token consumption for credit accrual.
type TokenUsage struct {
	PromptTokens     int    `json:"promptTokens"`
	CompletionTokens int    `json:"completionTokens"`
	Model            string `json:"model,omitempty"`
}

// Signals carries out-of-band information from an executor back to the
// scheduler: cooperative pause requests and cost hints.
type Signals struct {
	// Pause requests that the execution suspend after this node completes.
	Pause bool

	// PauseContext describes why and how the execution suspended and what
	// input it awaits. Required when Pause is set.
	PauseContext *PauseContext

	// CreditCost overrides the node-type default credit cost when > 0.
	CreditCost int64

	// TokenUsage, when present, prices the node by token consumption
	// instead of the node-type default.
	TokenUsage *TokenUsage
}

// Result is the outcome of one node execution.
type Result struct {
	Success bool
	Output  map[string]any
	Error   string
	Signals *Signals
}

// NodeExecutor is the uniform contract through which the engine invokes node
// implementations. The scheduler does not interpret node-specific semantics
// beyond the pause signal and cost hints.
//
// config arrives with {{Node.path}} templates already resolved against the
// execution context. execCtx is read-only; executors must not mutate it.
//
// Executors should be idempotent to the extent feasible; the engine does not
// retry on its own. Blocking and cooperatively asynchronous executors are
// both acceptable: the engine only observes batch completion.
type NodeExecutor interface {
	ExecuteNode(ctx context.Context, nodeType NodeType, config map[string]any, execCtx *ExecutionContext, meta Meta) Result
}

// ExecutorFunc adapts a plain function to the NodeExecutor interface.
type ExecutorFunc func(ctx context.Context, nodeType NodeType, config map[string]any, execCtx *ExecutionContext, meta Meta) Result

// ExecuteNode implements NodeExecutor.
func (f ExecutorFunc) ExecuteNode(ctx context.Context, nodeType NodeType, config map[string]any, execCtx *ExecutionContext, meta Meta) Result {
	return f(ctx, nodeType, config, execCtx, meta)
}

// sideEffectNodeTypes lists node types whose executor invocations represent
// tool-like side effects and therefore emit tool call events.
var sideEffectNodeTypes = map[NodeType]bool{
	NodeLLM: true, NodeHTTP: true, NodeDatabase: true,
	NodeVision: true, NodeFileOperations: true, NodeAgent: true,
}
