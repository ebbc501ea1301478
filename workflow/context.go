package workflow

import (
	"encoding/json"
	"fmt"
	"time"
)

// Metadata carries execution identity through the context and into executors.
type Metadata struct {
	ExecutionID string    `json:"executionId"`
	WorkflowID  string    `json:"workflowId,omitempty"`
	WorkspaceID string    `json:"workspaceId,omitempty"`
	UserID      string    `json:"userId,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	ResumedAt   time.Time `json:"resumedAt,omitempty"`
}

// ExecutionContext is the single source of truth for all inter-node values
// within one execution: trigger inputs, per-node outputs, and user variables.
//
// The context is copy-on-write: mutating operations return a new snapshot and
// never modify the receiver. Snapshots make pause serialization trivially
// correct and eliminate write-write races in the scheduler.
//
// Invariant: once a node ID appears in NodeOutputs it is never overwritten
// within a single execution (WithNodeOutput returns ErrDuplicateOutput).
type ExecutionContext struct {
	Inputs      map[string]any `json:"inputs"`
	NodeOutputs map[string]any `json:"nodeOutputs"`
	Variables   map[string]any `json:"variables"`
	Metadata    Metadata       `json:"metadata"`
}

// NewExecutionContext returns a fresh context with inputs populated and empty
// node outputs and variables.
func NewExecutionContext(inputs map[string]any, meta Metadata) *ExecutionContext {
	in := make(map[string]any, len(inputs))
	for k, v := range inputs {
		in[k] = v
	}
	return &ExecutionContext{
		Inputs:      in,
		NodeOutputs: make(map[string]any),
		Variables:   make(map[string]any),
		Metadata:    meta,
	}
}

// WithNodeOutput returns a new snapshot with nodeID -> value recorded.
// Returns ErrDuplicateOutput if the ID was already written.
func (c *ExecutionContext) WithNodeOutput(nodeID string, value any) (*ExecutionContext, error) {
	if _, exists := c.NodeOutputs[nodeID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateOutput, nodeID)
	}
	next := c.shallowClone()
	next.NodeOutputs[nodeID] = value
	return next, nil
}

// WithVariable returns a new snapshot with the named variable updated.
func (c *ExecutionContext) WithVariable(name string, value any) *ExecutionContext {
	next := c.shallowClone()
	next.Variables[name] = value
	return next
}

// WithInputs returns a new snapshot with extra inputs merged in. Supplied
// values take precedence on key conflict. Used when resuming a paused
// execution with caller-provided data.
func (c *ExecutionContext) WithInputs(extra map[string]any) *ExecutionContext {
	next := c.shallowClone()
	for k, v := range extra {
		next.Inputs[k] = v
	}
	return next
}

// Scope materializes the flat mapping used for template substitution.
// Node outputs shadow inputs, which shadow variables. When two layers hold
// mappings under the same key the mappings merge per key, the higher layer
// winning, so a path absent from a node's output still resolves against the
// input of the same name.
func (c *ExecutionContext) Scope() map[string]any {
	scope := make(map[string]any, len(c.NodeOutputs)+len(c.Inputs)+len(c.Variables))
	for k, v := range c.Variables {
		scope[k] = v
	}
	for k, v := range c.Inputs {
		scope[k] = layerValue(v, scope[k])
	}
	for k, v := range c.NodeOutputs {
		scope[k] = layerValue(v, scope[k])
	}
	return scope
}

// layerValue overlays over onto under. Map-over-map collisions merge into a
// fresh map so neither stored layer is mutated; anything else resolves to
// over wholesale. Iterative, like the template walker: nesting depth is
// caller-controlled.
func layerValue(over, under any) any {
	om, ok := over.(map[string]any)
	if !ok {
		return over
	}
	um, ok := under.(map[string]any)
	if !ok {
		return over
	}

	type frame struct {
		dst         map[string]any
		over, under map[string]any
	}
	merged := make(map[string]any, len(om)+len(um))
	stack := []frame{{dst: merged, over: om, under: um}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for k, v := range f.under {
			f.dst[k] = v
		}
		for k, v := range f.over {
			ov, overIsMap := v.(map[string]any)
			uv, underIsMap := f.dst[k].(map[string]any)
			if overIsMap && underIsMap {
				child := make(map[string]any, len(ov)+len(uv))
				f.dst[k] = child
				stack = append(stack, frame{dst: child, over: ov, under: uv})
			} else {
				f.dst[k] = v
			}
		}
	}
	return merged
}

// FinalOutputs returns, for each output node that executed, its recorded
// output keyed by the node's configured name. Output nodes that never
// executed (unreachable) are omitted.
func (c *ExecutionContext) FinalOutputs(wf *BuiltWorkflow) map[string]any {
	outputs := make(map[string]any)
	for _, id := range wf.OutputNodeIDs {
		if v, ok := c.NodeOutputs[id]; ok {
			outputs[wf.Nodes[id].Name] = v
		}
	}
	return outputs
}

// Clone returns a fully independent deep copy via JSON round-trip. Used when
// a snapshot must outlive the execution that produced it.
func (c *ExecutionContext) Clone() (*ExecutionContext, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal execution context: %w", err)
	}
	var copied ExecutionContext
	if err := json.Unmarshal(data, &copied); err != nil {
		return nil, fmt.Errorf("unmarshal execution context: %w", err)
	}
	if copied.Inputs == nil {
		copied.Inputs = make(map[string]any)
	}
	if copied.NodeOutputs == nil {
		copied.NodeOutputs = make(map[string]any)
	}
	if copied.Variables == nil {
		copied.Variables = make(map[string]any)
	}
	return &copied, nil
}

// shallowClone copies the three maps but shares the values they point to.
// Values are treated as immutable once stored.
func (c *ExecutionContext) shallowClone() *ExecutionContext {
	next := &ExecutionContext{
		Inputs:      make(map[string]any, len(c.Inputs)),
		NodeOutputs: make(map[string]any, len(c.NodeOutputs)),
		Variables:   make(map[string]any, len(c.Variables)),
		Metadata:    c.Metadata,
	}
	for k, v := range c.Inputs {
		next.Inputs[k] = v
	}
	for k, v := range c.NodeOutputs {
		next.NodeOutputs[k] = v
	}
	for k, v := range c.Variables {
		next.Variables[k] = v
	}
	return next
}
