// Package emit provides the ordered per-execution event stream for the
// FlowMaestro workflow engine.
package emit

// Event names emitted by the engine. Every execution's stream begins with
// ExecutionStarted and ends with exactly one of ExecutionCompleted or
// ExecutionFailed; a paused execution defers its terminal event to the
// eventual resumption.
const (
	ExecutionStarted   = "agent:execution:started"
	ExecutionCompleted = "agent:execution:completed"
	ExecutionFailed    = "agent:execution:failed"
	ExecutionPaused    = "agent:execution:paused"
	ExecutionResumed   = "agent:execution:resumed"
	ToolCallStarted    = "agent:tool:call:started"
	ToolCallCompleted  = "agent:tool:call:completed"
)

// Event is one entry in an execution's ordered event stream.
//
// Timestamps are monotonic ticks assigned by the engine: within one execution
// they are non-decreasing, two events may share a timestamp but never invert.
// Sinks receive events with at-least-once delivery; consumers may deduplicate
// by (ExecutionID, Event, Timestamp).
type Event struct {
	// Channel groups events for sink routing, conventionally
	// "execution:<executionID>".
	Channel string `json:"channel"`

	// Event is the event name, e.g. "agent:execution:started".
	Event string `json:"event"`

	// ExecutionID identifies the workflow execution that emitted this event.
	ExecutionID string `json:"executionId"`

	// NodeID identifies the node involved, empty for execution-level events.
	NodeID string `json:"nodeId,omitempty"`

	// Data carries structured event payload. Common keys:
	//   - "error": failure details
	//   - "nodeType", "nodeName": node identity for tool call events
	//   - "accumulatedCredits": credit total on terminal events
	//   - "pauseContext": serialized pause context on paused events
	Data map[string]any `json:"data,omitempty"`

	// Timestamp is the engine-assigned monotonic tick.
	Timestamp int64 `json:"timestamp"`
}
