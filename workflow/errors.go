package workflow

import "errors"

// ErrDuplicateOutput indicates a node output was written twice within a single
// execution. This is an invariant violation (a programming error in the
// scheduler), not a user-facing condition.
var ErrDuplicateOutput = errors.New("duplicate node output: id already written")

// ErrInsufficientCredits indicates the pre-flight credit reservation was
// refused. The execution terminates before any node is dispatched.
var ErrInsufficientCredits = errors.New("insufficient credits for execution")

// ErrExecutionCancelled indicates the execution was cancelled externally via
// Cancel. Remaining pending and ready nodes are never dispatched.
var ErrExecutionCancelled = errors.New("execution cancelled")

// ErrMaxStepsExceeded indicates the scheduler exceeded its step budget without
// reaching a terminal queue state. This guards against runaway executions.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum scheduler steps")

// DefinitionError reports a structural problem in a raw workflow definition.
// Execution cannot start from an invalid definition.
type DefinitionError struct {
	// Code is a machine-readable classification, e.g. "UNKNOWN_NODE_REFERENCE",
	// "MISSING_OR_AMBIGUOUS_TRIGGER", "CYCLE_DETECTED", "UNREACHABLE_OUTPUT".
	Code string

	// Message is the human-readable description.
	Message string

	// NodeID or EdgeID locate the offending element when known.
	NodeID string
	EdgeID string
}

func (e *DefinitionError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Definition error codes.
const (
	CodeUnknownNodeReference      = "UNKNOWN_NODE_REFERENCE"
	CodeMissingOrAmbiguousTrigger = "MISSING_OR_AMBIGUOUS_TRIGGER"
	CodeCycleDetected             = "CYCLE_DETECTED"
	CodeUnreachableOutput         = "UNREACHABLE_OUTPUT"
	CodeUnknownNodeType           = "UNKNOWN_NODE_TYPE"
	CodeDuplicateNodeID           = "DUPLICATE_NODE_ID"
	CodeDuplicateEdgeID           = "DUPLICATE_EDGE_ID"
	CodeInvalidLoop               = "INVALID_LOOP"
)

// NodeExecutionError wraps a failure reported by an executor for one node.
// The node is marked failed and its strict descendants become unreachable;
// independent branches continue.
type NodeExecutionError struct {
	NodeID  string
	Message string
	Cause   error
}

func (e *NodeExecutionError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *NodeExecutionError) Unwrap() error { return e.Cause }

// EngineError reports a failure in engine orchestration itself, as opposed to
// a node-level failure.
type EngineError struct {
	Message string
	Code    string
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}
