package workflow

import (
	"fmt"
	"strconv"
)

// routeEdges classifies every routable outgoing edge of a terminal node as
// fired or not fired, based on its handle type and the node's outcome.
//
// Firing rules:
//
//	default   source completed successfully (suppressed when a fallback
//	          edge from the same source fired)
//	true      source is a conditional and its predicate was truthy
//	false     source is a conditional and its predicate was falsy
//	case-<v>  source is a switch and its selector equals v; at most one
//	          case edge fires, first match in declaration order
//	fallback  source failed or produced no content
//
// When no case matches a switch's selector, edges carrying the switch's
// configured defaultCase label fire instead.
func routeEdges(wf *BuiltWorkflow, node *Node, output map[string]any, success bool) (fired, unfired []*Edge) {
	outgoing := routableEdges(wf, node)
	if len(outgoing) == 0 {
		return nil, nil
	}

	fallbackActive := !success || outputHasNoContent(output)
	fallbackPresent := false
	for _, e := range outgoing {
		if e.Handle == HandleFallback {
			fallbackPresent = true
			break
		}
	}
	suppressDefault := fallbackActive && fallbackPresent

	predicate := false
	if node.Type == NodeConditional {
		predicate = conditionalPredicate(output)
	}
	selector := ""
	if node.Type == NodeSwitch {
		selector = switchSelector(output)
	}

	caseMatched := false
	for _, e := range outgoing {
		fires := false
		switch e.Handle {
		case HandleDefault:
			fires = success && !suppressDefault
		case HandleTrue:
			fires = success && node.Type == NodeConditional && predicate
		case HandleFalse:
			fires = success && node.Type == NodeConditional && !predicate
		case HandleCase:
			if success && node.Type == NodeSwitch && !caseMatched && e.CaseValue == selector {
				fires = true
				caseMatched = true
			}
		case HandleFallback:
			fires = fallbackActive
		}
		if fires {
			fired = append(fired, e)
		} else {
			unfired = append(unfired, e)
		}
	}

	// No case matched: the switch's defaultCase label fires instead.
	if success && node.Type == NodeSwitch && !caseMatched {
		if defaultCase, _ := node.Config["defaultCase"].(string); defaultCase != "" {
			fired, unfired = promoteCaseEdges(fired, unfired, defaultCase)
		}
	}

	return fired, unfired
}

// promoteCaseEdges moves the first case edge matching label from unfired to
// fired.
func promoteCaseEdges(fired, unfired []*Edge, label string) ([]*Edge, []*Edge) {
	for i, e := range unfired {
		if e.Handle == HandleCase && e.CaseValue == label {
			fired = append(fired, e)
			return fired, append(unfired[:i], unfired[i+1:]...)
		}
	}
	return fired, unfired
}

// routableEdges returns the node's outgoing edges that participate in queue
// routing. Edges into a loop node's own body are driven by the loop itself,
// and back-edges from a body to its loop never route.
func routableEdges(wf *BuiltWorkflow, node *Node) []*Edge {
	owned := wf.loopBodyMembership()
	var out []*Edge
	for _, e := range wf.OutgoingEdges(node.ID) {
		if owner, ok := owned[e.Target]; ok && owner == node.ID {
			continue
		}
		if owner, ok := owned[e.Source]; ok && e.Target == owner {
			continue
		}
		out = append(out, e)
	}
	return out
}

// routableIncoming mirrors routableEdges for a node's incoming side.
func routableIncoming(wf *BuiltWorkflow, nodeID string) []*Edge {
	owned := wf.loopBodyMembership()
	var in []*Edge
	for _, e := range wf.IncomingEdges(nodeID) {
		if owner, ok := owned[e.Source]; ok && e.Target == owner {
			continue
		}
		if owner, ok := owned[e.Target]; ok && owner == e.Source {
			continue
		}
		in = append(in, e)
	}
	return in
}

// conditionalPredicate extracts the evaluated predicate from a conditional
// node's output. Executors report it under "result" (or "value").
func conditionalPredicate(output map[string]any) bool {
	if output == nil {
		return false
	}
	if v, ok := output["result"]; ok {
		return truthy(v)
	}
	if v, ok := output["value"]; ok {
		return truthy(v)
	}
	return false
}

// switchSelector extracts the evaluated selector from a switch node's output.
func switchSelector(output map[string]any) string {
	if output == nil {
		return ""
	}
	for _, key := range []string{"selected", "value", "result"} {
		if v, ok := output[key]; ok {
			return selectorString(v)
		}
	}
	return ""
}

func selectorString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func truthy(v any) bool {
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

// outputHasNoContent reports whether a successful node produced no usable
// content, which activates fallback edges.
func outputHasNoContent(output map[string]any) bool {
	if len(output) == 0 {
		return true
	}
	if v, ok := output["content"]; ok {
		if s, isStr := v.(string); isStr {
			return s == ""
		}
		return v == nil
	}
	return false
}
