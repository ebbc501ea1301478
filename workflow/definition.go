package workflow

import "strings"

// NodeType identifies the role of a node in a workflow.
//
// The set is closed: adding a new type requires an executor implementation
// behind the NodeExecutor contract and, if it introduces new handle types,
// edge router rules to match.
type NodeType string

// Supported node types.
const (
	NodeInput          NodeType = "input"
	NodeOutput         NodeType = "output"
	NodeLLM            NodeType = "llm"
	NodeHTTP           NodeType = "http"
	NodeTransform      NodeType = "transform"
	NodeConditional    NodeType = "conditional"
	NodeSwitch         NodeType = "switch"
	NodeLoop           NodeType = "loop"
	NodeWaitForUser    NodeType = "waitForUser"
	NodeDatabase       NodeType = "database"
	NodeVision         NodeType = "vision"
	NodeFileOperations NodeType = "fileOperations"
	NodeAgent          NodeType = "agent"
)

var knownNodeTypes = map[NodeType]bool{
	NodeInput: true, NodeOutput: true, NodeLLM: true, NodeHTTP: true,
	NodeTransform: true, NodeConditional: true, NodeSwitch: true, NodeLoop: true,
	NodeWaitForUser: true, NodeDatabase: true, NodeVision: true,
	NodeFileOperations: true, NodeAgent: true,
}

// HandleType classifies an edge's source handle for routing purposes.
//
// After a node completes, the edge router decides which outgoing edges fire
// based on their handle type:
//
//   - HandleDefault: fires whenever the source completed successfully.
//   - HandleTrue / HandleFalse: conditional branches; exactly one fires.
//   - HandleCase: switch branch; fires when the selector equals Edge.CaseValue.
//   - HandleFallback: fires when the source failed or produced no content;
//     suppresses default edges from the same source.
type HandleType string

// Supported handle types.
const (
	HandleDefault  HandleType = "default"
	HandleTrue     HandleType = "true"
	HandleFalse    HandleType = "false"
	HandleCase     HandleType = "case"
	HandleFallback HandleType = "fallback"
)

// caseHandlePrefix marks switch-branch handles of the form "case-<value>".
const caseHandlePrefix = "case-"

// parseHandle maps a raw source handle string to a HandleType and, for switch
// branches, the case value it matches.
func parseHandle(sourceHandle string) (HandleType, string) {
	switch sourceHandle {
	case "", "default", "output", "source":
		return HandleDefault, ""
	case "true":
		return HandleTrue, ""
	case "false":
		return HandleFalse, ""
	case "fallback":
		return HandleFallback, ""
	}
	if strings.HasPrefix(sourceHandle, caseHandlePrefix) {
		return HandleCase, strings.TrimPrefix(sourceHandle, caseHandlePrefix)
	}
	return HandleDefault, ""
}

// NodeDef is the raw, user-supplied description of a node in a Definition.
type NodeDef struct {
	// ID is the stable node identifier, unique within the workflow.
	ID string `json:"id"`

	// Type selects the node's role. Must be one of the known node types.
	Type NodeType `json:"type"`

	// Name is the human-readable label. Output node names key the final
	// outputs of an execution.
	Name string `json:"name"`

	// Config is the opaque node configuration: a nested mapping of
	// primitive, array, and mapping values. String leaves may carry
	// {{Node.path}} templates resolved against the execution context.
	Config map[string]any `json:"config,omitempty"`
}

// EdgeDef is the raw, user-supplied description of a typed connection.
type EdgeDef struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// Definition is a raw workflow as supplied by a caller, prior to validation.
//
// Build validates a Definition and produces the execution-ready BuiltWorkflow.
type Definition struct {
	ID    string    `json:"id,omitempty"`
	Name  string    `json:"name,omitempty"`
	Nodes []NodeDef `json:"nodes"`
	Edges []EdgeDef `json:"edges"`

	// MaxConcurrentNodes caps in-flight node executions. Zero selects the
	// default of 10.
	MaxConcurrentNodes int `json:"maxConcurrentNodes,omitempty"`
}

// Node is a validated unit of work in a BuiltWorkflow. Immutable after Build.
type Node struct {
	ID     string
	Type   NodeType
	Name   string
	Config map[string]any

	// Depth is the longest dependency chain from the trigger (trigger = 0).
	Depth int

	// Dependencies are node IDs that must complete before this node runs.
	Dependencies []string

	// Dependents are node IDs this node enables.
	Dependents []string
}

// Edge is a validated, typed connection between two nodes.
type Edge struct {
	ID           string
	Source       string
	Target       string
	SourceHandle string
	TargetHandle string
	Handle       HandleType

	// CaseValue is the matched selector value for HandleCase edges.
	CaseValue string

	// Order is the edge's position in the original definition. Routing
	// tie-breaks (overlapping switch cases) follow declaration order.
	Order int
}

// LoopContext records the bookkeeping for one loop node and its body.
type LoopContext struct {
	// LoopNodeID is the loop-typed node that owns this context.
	LoopNodeID string

	// BodyNodes are the node IDs executed once per iteration, ordered by
	// depth within the body.
	BodyNodes []string

	// MaxIterations bounds the loop. Iterations never exceed this value.
	MaxIterations int

	// IterationVar is the variable name bound to the current iteration
	// index (or item) inside the body's template scope.
	IterationVar string
}

// BuiltWorkflow is the execution-ready graph produced by Build.
//
// Invariants: exactly one trigger, every output node reachable from the
// trigger, and every dependency present in the node map.
type BuiltWorkflow struct {
	ID    string
	Name  string
	Nodes map[string]*Node
	Edges map[string]*Edge

	// ExecutionLevels groups node IDs by depth, in depth order. It is an
	// advisory ordering; the scheduler uses the fine-grained ready set.
	ExecutionLevels [][]string

	TriggerNodeID string
	OutputNodeIDs []string

	// LoopContexts maps loop node ID to its recorded context.
	LoopContexts map[string]*LoopContext

	MaxConcurrentNodes int

	// orderedEdges holds edges in declaration order for deterministic
	// routing.
	orderedEdges []*Edge
}

// DefaultMaxConcurrentNodes is the concurrency cap applied when a Definition
// does not specify one.
const DefaultMaxConcurrentNodes = 10

// OutgoingEdges returns the edges whose source is nodeID, in declaration order.
func (w *BuiltWorkflow) OutgoingEdges(nodeID string) []*Edge {
	var out []*Edge
	for _, e := range w.orderedEdges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// IncomingEdges returns the edges whose target is nodeID, in declaration order.
func (w *BuiltWorkflow) IncomingEdges(nodeID string) []*Edge {
	var in []*Edge
	for _, e := range w.orderedEdges {
		if e.Target == nodeID {
			in = append(in, e)
		}
	}
	return in
}

// loopBodyMembership maps body node ID -> owning loop node ID.
func (w *BuiltWorkflow) loopBodyMembership() map[string]string {
	owned := make(map[string]string)
	for loopID, lc := range w.LoopContexts {
		for _, id := range lc.BodyNodes {
			owned[id] = loopID
		}
	}
	return owned
}
