package exec

import (
	"context"
	"fmt"
	"strings"

	"github.com/nbaghiro/flowmaestro/workflow"
)

// handleInput exposes the execution's trigger inputs as the node's output.
// Config may carry a "defaults" mapping applied under the inputs.
func handleInput(_ context.Context, req Request) workflow.Result {
	output := make(map[string]any)
	if defaults, ok := req.Config["defaults"].(map[string]any); ok {
		for k, v := range defaults {
			output[k] = v
		}
	}
	for k, v := range req.ExecCtx.Inputs {
		output[k] = v
	}
	return workflow.Result{Success: true, Output: output}
}

// handleOutput materializes the node's resolved config as the final value.
// Output nodes do the shaping in their config templates; by the time the
// handler runs, everything is substituted.
func handleOutput(_ context.Context, req Request) workflow.Result {
	output := make(map[string]any, len(req.Config))
	for k, v := range req.Config {
		output[k] = v
	}
	return workflow.Result{Success: true, Output: output}
}

// handleTransform reshapes context values. The resolved config is the
// transformation: an "assign" mapping becomes the output verbatim; otherwise
// the whole config passes through. Template substitution upstream has
// already pulled in the referenced values.
func handleTransform(_ context.Context, req Request) workflow.Result {
	if assign, ok := req.Config["assign"].(map[string]any); ok {
		output := make(map[string]any, len(assign))
		for k, v := range assign {
			output[k] = v
		}
		return workflow.Result{Success: true, Output: output}
	}
	output := make(map[string]any, len(req.Config))
	for k, v := range req.Config {
		output[k] = v
	}
	return workflow.Result{Success: true, Output: output}
}

// handleConditional evaluates a comparison over resolved config values and
// reports the predicate under "result", which drives true/false edges.
//
// Config: left, operator, right. Operators: eq, neq, gt, gte, lt, lte,
// contains, empty, notEmpty. A bare "value" config is tested for truthiness.
func handleConditional(_ context.Context, req Request) workflow.Result {
	if _, ok := req.Config["operator"]; !ok {
		return workflow.Result{
			Success: true,
			Output:  map[string]any{"result": isTruthy(req.Config["value"])},
		}
	}

	op, _ := req.Config["operator"].(string)
	left := req.Config["left"]
	right := req.Config["right"]

	result, err := compare(op, left, right)
	if err != nil {
		return failf("conditional %s: %v", req.Meta.NodeID, err)
	}
	return workflow.Result{Success: true, Output: map[string]any{"result": result}}
}

func compare(op string, left, right any) (bool, error) {
	switch op {
	case "eq":
		return asString(left) == asString(right), nil
	case "neq":
		return asString(left) != asString(right), nil
	case "contains":
		return strings.Contains(asString(left), asString(right)), nil
	case "empty":
		return asString(left) == "", nil
	case "notEmpty":
		return asString(left) != "", nil
	case "gt", "gte", "lt", "lte":
		l, lok := asNumber(left)
		r, rok := asNumber(right)
		if !lok || !rok {
			return false, fmt.Errorf("operator %s requires numeric operands", op)
		}
		switch op {
		case "gt":
			return l > r, nil
		case "gte":
			return l >= r, nil
		case "lt":
			return l < r, nil
		default:
			return l <= r, nil
		}
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}

// handleSwitch reports the routing selector under "selected", which the edge
// router matches against case-<v> handles.
func handleSwitch(_ context.Context, req Request) workflow.Result {
	value, ok := req.Config["value"]
	if !ok {
		value = req.Config["selected"]
	}
	return workflow.Result{
		Success: true,
		Output:  map[string]any{"selected": asString(value)},
	}
}

// handleLoopBody covers loop nodes the builder recorded no body for (a loop
// with no back edge degenerates to a no-op marker). Loops with bodies are
// driven by the engine and never reach the executor.
func handleLoopBody(_ context.Context, req Request) workflow.Result {
	return workflow.Result{Success: true, Output: map[string]any{"iterations": 0}}
}

// handleWaitForUser suspends the execution pending external input.
//
// Config:
//   - variableName: input key the resume value is expected under (required)
//   - reason: human-readable pause description
//   - timeoutMs: advisory resume deadline
func handleWaitForUser(_ context.Context, req Request) workflow.Result {
	name, _ := req.Config["variableName"].(string)
	if name == "" {
		return failf("waitForUser %s: variableName is required", req.Meta.NodeID)
	}
	reason, _ := req.Config["reason"].(string)
	if reason == "" {
		reason = "waiting for user input"
	}
	var timeoutMs int64
	if n, ok := asNumber(req.Config["timeoutMs"]); ok {
		timeoutMs = int64(n)
	}

	return workflow.Result{
		Success: true,
		Output:  map[string]any{"status": "waiting", "variableName": name},
		Signals: &workflow.Signals{
			Pause: true,
			PauseContext: &workflow.PauseContext{
				Reason:        reason,
				NodeID:        req.Meta.NodeID,
				ResumeTrigger: workflow.ResumeSignal,
				TimeoutMs:     timeoutMs,
				PreservedData: map[string]any{"variableName": name},
			},
		},
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

func isTruthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != "" && t != "false" && t != "0"
	case float64:
		return t != 0
	case int:
		return t != 0
	case nil:
		return false
	default:
		return true
	}
}
