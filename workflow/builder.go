package workflow

import (
	"fmt"
	"sort"
)

// Build validates a raw Definition and produces an execution-ready
// BuiltWorkflow.
//
// Validation performed, in order:
//  1. Node IDs are unique and node types are known.
//  2. Every edge refers to existing source and target nodes.
//  3. Exactly one input-typed node exists; it becomes the trigger.
//  4. The dependency graph has no cycles other than those formed by a loop
//     node and its body; loop cycles are annotated in LoopContexts.
//  5. Every output node is reachable from the trigger.
//
// Derivations: per-node dependencies and dependents, depth (longest chain
// from the trigger), and execution levels grouped by depth.
func Build(def Definition) (*BuiltWorkflow, error) {
	if len(def.Nodes) == 0 {
		return nil, &DefinitionError{Code: CodeMissingOrAmbiguousTrigger, Message: "workflow has no nodes"}
	}

	nodes := make(map[string]*Node, len(def.Nodes))
	for _, nd := range def.Nodes {
		if nd.ID == "" {
			return nil, &DefinitionError{Code: CodeUnknownNodeReference, Message: "node with empty id"}
		}
		if _, dup := nodes[nd.ID]; dup {
			return nil, &DefinitionError{Code: CodeDuplicateNodeID, Message: "duplicate node id: " + nd.ID, NodeID: nd.ID}
		}
		if !knownNodeTypes[nd.Type] {
			return nil, &DefinitionError{Code: CodeUnknownNodeType, Message: fmt.Sprintf("node %s has unknown type %q", nd.ID, nd.Type), NodeID: nd.ID}
		}
		name := nd.Name
		if name == "" {
			name = nd.ID
		}
		nodes[nd.ID] = &Node{ID: nd.ID, Type: nd.Type, Name: name, Config: nd.Config}
	}

	edges := make(map[string]*Edge, len(def.Edges))
	ordered := make([]*Edge, 0, len(def.Edges))
	for i, ed := range def.Edges {
		if _, ok := nodes[ed.Source]; !ok {
			return nil, &DefinitionError{Code: CodeUnknownNodeReference, Message: "edge " + ed.ID + " references unknown source: " + ed.Source, EdgeID: ed.ID}
		}
		if _, ok := nodes[ed.Target]; !ok {
			return nil, &DefinitionError{Code: CodeUnknownNodeReference, Message: "edge " + ed.ID + " references unknown target: " + ed.Target, EdgeID: ed.ID}
		}
		id := ed.ID
		if id == "" {
			id = fmt.Sprintf("%s->%s#%d", ed.Source, ed.Target, i)
		}
		if _, dup := edges[id]; dup {
			return nil, &DefinitionError{Code: CodeDuplicateEdgeID, Message: "duplicate edge id: " + id, EdgeID: id}
		}
		handle, caseValue := parseHandle(ed.SourceHandle)
		e := &Edge{
			ID:           id,
			Source:       ed.Source,
			Target:       ed.Target,
			SourceHandle: ed.SourceHandle,
			TargetHandle: ed.TargetHandle,
			Handle:       handle,
			CaseValue:    caseValue,
			Order:        i,
		}
		edges[id] = e
		ordered = append(ordered, e)
	}

	trigger := ""
	for _, nd := range def.Nodes {
		if nd.Type == NodeInput {
			if trigger != "" {
				return nil, &DefinitionError{Code: CodeMissingOrAmbiguousTrigger, Message: "multiple input nodes: " + trigger + ", " + nd.ID}
			}
			trigger = nd.ID
		}
	}
	if trigger == "" {
		return nil, &DefinitionError{Code: CodeMissingOrAmbiguousTrigger, Message: "no input node present"}
	}

	wf := &BuiltWorkflow{
		ID:                 def.ID,
		Name:               def.Name,
		Nodes:              nodes,
		Edges:              edges,
		TriggerNodeID:      trigger,
		LoopContexts:       make(map[string]*LoopContext),
		MaxConcurrentNodes: def.MaxConcurrentNodes,
		orderedEdges:       ordered,
	}
	if wf.MaxConcurrentNodes <= 0 {
		wf.MaxConcurrentNodes = DefaultMaxConcurrentNodes
	}

	if err := annotateLoops(wf); err != nil {
		return nil, err
	}
	if err := deriveDependencies(wf); err != nil {
		return nil, err
	}
	// Loop bodies dispatch in depth order. Depths exist only after
	// derivation, so the provisional ordering from annotateLoops is
	// finalized here.
	for _, lc := range wf.LoopContexts {
		body := lc.BodyNodes
		sort.Slice(body, func(i, j int) bool {
			a, b := nodes[body[i]], nodes[body[j]]
			if a.Depth != b.Depth {
				return a.Depth < b.Depth
			}
			return a.ID < b.ID
		})
	}
	if err := checkReachability(wf); err != nil {
		return nil, err
	}

	for _, n := range nodes {
		if n.Type == NodeOutput {
			wf.OutputNodeIDs = append(wf.OutputNodeIDs, n.ID)
		}
	}
	sort.Strings(wf.OutputNodeIDs)

	return wf, nil
}

// annotateLoops finds back-edges into loop nodes, records a LoopContext per
// loop, and remembers which edges are excluded from the dependency graph.
//
// A back-edge is an edge whose target is a loop node and whose source is
// reachable from that loop node. The body is every node on a path from the
// loop node to the back-edge source.
func annotateLoops(wf *BuiltWorkflow) error {
	forward := make(map[string][]string)
	for _, e := range wf.orderedEdges {
		forward[e.Source] = append(forward[e.Source], e.Target)
	}

	for _, n := range wf.Nodes {
		if n.Type != NodeLoop {
			continue
		}
		reach := reachableFrom(forward, n.ID)

		var backSources []string
		for _, e := range wf.IncomingEdges(n.ID) {
			if reach[e.Source] {
				backSources = append(backSources, e.Source)
			}
		}
		if len(backSources) == 0 {
			// Loop node with no body cycle; treated as a plain node.
			continue
		}

		reverse := make(map[string][]string)
		for _, e := range wf.orderedEdges {
			reverse[e.Target] = append(reverse[e.Target], e.Source)
		}
		body := make(map[string]bool)
		for _, src := range backSources {
			toSource := reachableFrom(reverse, src)
			for id := range reach {
				if id != n.ID && toSource[id] {
					body[id] = true
				}
			}
			body[src] = true
		}
		delete(body, n.ID)

		// Body must be self-contained: its edges stay inside the body or
		// return to the loop node.
		for _, e := range wf.orderedEdges {
			if body[e.Source] && !body[e.Target] && e.Target != n.ID {
				return &DefinitionError{
					Code:    CodeInvalidLoop,
					Message: fmt.Sprintf("loop %s body node %s has edge escaping to %s", n.ID, e.Source, e.Target),
					EdgeID:  e.ID,
				}
			}
		}

		// Provisional ordering; Build re-sorts by depth once depths are
		// derived.
		ids := make([]string, 0, len(body))
		for id := range body {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		maxIter := intFromConfig(n.Config, "maxIterations", 1)
		if maxIter < 1 {
			maxIter = 1
		}
		iterVar, _ := n.Config["iterationVariable"].(string)
		if iterVar == "" {
			iterVar = "index"
		}
		wf.LoopContexts[n.ID] = &LoopContext{
			LoopNodeID:    n.ID,
			BodyNodes:     ids,
			MaxIterations: maxIter,
			IterationVar:  iterVar,
		}
	}
	return nil
}

// deriveDependencies computes per-node dependencies, dependents, depths, and
// execution levels over the dependency graph with loop back-edges removed.
func deriveDependencies(wf *BuiltWorkflow) error {
	owned := wf.loopBodyMembership()

	depEdge := func(e *Edge) bool {
		// Back-edge from a loop body into its loop node is not a
		// dependency; the loop drives its body directly.
		if owner, ok := owned[e.Source]; ok && e.Target == owner {
			return false
		}
		return true
	}

	depSet := make(map[string]map[string]bool)
	for _, e := range wf.orderedEdges {
		if !depEdge(e) {
			continue
		}
		if depSet[e.Target] == nil {
			depSet[e.Target] = make(map[string]bool)
		}
		depSet[e.Target][e.Source] = true
	}

	for id, n := range wf.Nodes {
		for dep := range depSet[id] {
			n.Dependencies = append(n.Dependencies, dep)
		}
		sort.Strings(n.Dependencies)
	}
	for id, n := range wf.Nodes {
		for _, dep := range n.Dependencies {
			wf.Nodes[dep].Dependents = append(wf.Nodes[dep].Dependents, id)
		}
	}
	for _, n := range wf.Nodes {
		sort.Strings(n.Dependents)
	}

	// Kahn's algorithm: topological order doubles as cycle detection.
	indegree := make(map[string]int, len(wf.Nodes))
	for id := range wf.Nodes {
		indegree[id] = len(depSet[id])
	}
	var queue []string
	for id, d := range indegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++

		n := wf.Nodes[id]
		depth := 0
		for _, dep := range n.Dependencies {
			if d := wf.Nodes[dep].Depth + 1; d > depth {
				depth = d
			}
		}
		n.Depth = depth

		next := wf.Nodes[id].Dependents
		for _, t := range next {
			indegree[t]--
			if indegree[t] == 0 {
				queue = append(queue, t)
			}
		}
		sort.Strings(queue)
	}
	if visited != len(wf.Nodes) {
		var stuck []string
		for id, d := range indegree {
			if d > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return &DefinitionError{
			Code:    CodeCycleDetected,
			Message: fmt.Sprintf("dependency cycle involving nodes %v (only loop nodes may close cycles)", stuck),
		}
	}

	maxDepth := 0
	for _, n := range wf.Nodes {
		if n.Depth > maxDepth {
			maxDepth = n.Depth
		}
	}
	wf.ExecutionLevels = make([][]string, maxDepth+1)
	for id, n := range wf.Nodes {
		wf.ExecutionLevels[n.Depth] = append(wf.ExecutionLevels[n.Depth], id)
	}
	for _, level := range wf.ExecutionLevels {
		sort.Strings(level)
	}
	return nil
}

// checkReachability verifies every output node is reachable from the trigger.
func checkReachability(wf *BuiltWorkflow) error {
	forward := make(map[string][]string)
	for _, e := range wf.orderedEdges {
		forward[e.Source] = append(forward[e.Source], e.Target)
	}
	reach := reachableFrom(forward, wf.TriggerNodeID)
	for _, n := range wf.Nodes {
		if n.Type == NodeOutput && !reach[n.ID] {
			return &DefinitionError{
				Code:    CodeUnreachableOutput,
				Message: "output node not reachable from trigger: " + n.ID,
				NodeID:  n.ID,
			}
		}
	}
	return nil
}

// reachableFrom returns the set of nodes reachable from start via adjacency,
// excluding start itself unless it lies on a cycle.
func reachableFrom(adjacency map[string][]string, start string) map[string]bool {
	seen := make(map[string]bool)
	stack := append([]string(nil), adjacency[start]...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		stack = append(stack, adjacency[id]...)
	}
	return seen
}

// intFromConfig reads an integer config value, tolerating JSON float64 decoding.
func intFromConfig(config map[string]any, key string, fallback int) int {
	if config == nil {
		return fallback
	}
	switch v := config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}
