package workflow

import "sort"

// Status is the lifecycle state of one node within an execution.
type Status string

// Node lifecycle states.
//
//	pending -> ready -> executing -> completed
//	                              -> failed
//	pending -> unreachable   (no incoming edge can ever fire)
//	pending/ready -> skipped (cancellation, or loop-body nodes driven by
//	                          their loop rather than the queue)
const (
	StatusPending     Status = "pending"
	StatusReady       Status = "ready"
	StatusExecuting   Status = "executing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusSkipped     Status = "skipped"
	StatusUnreachable Status = "unreachable"
)

// terminal reports whether a status contributes to completion.
func (s Status) terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped, StatusUnreachable:
		return true
	}
	return false
}

// QueueState is the scheduler's bookkeeping: per-node status plus the set of
// resolved and fired edges. It answers "what is ready?" and "are we done?".
//
// A node enters ready only when every routable incoming edge is resolved and
// at least one fired; a node whose every incoming edge resolved without any
// firing becomes unreachable, which cascades to its strict descendants.
//
// QueueState is not safe for concurrent use. The engine applies all
// transitions sequentially between dispatch batches.
type QueueState struct {
	statuses map[string]Status
	fired    map[string]bool
	resolved map[string]bool
	failures map[string]string
	order    []string
}

// InitializeQueue creates the queue state for a fresh execution: the trigger
// is ready, loop-body nodes are skipped (their loop drives them), non-trigger
// nodes with no incoming edges are unreachable, and everything else is
// pending.
func InitializeQueue(wf *BuiltWorkflow) *QueueState {
	q := &QueueState{
		statuses: make(map[string]Status, len(wf.Nodes)),
		fired:    make(map[string]bool),
		resolved: make(map[string]bool),
		failures: make(map[string]string),
	}
	owned := wf.loopBodyMembership()
	for id := range wf.Nodes {
		switch {
		case id == wf.TriggerNodeID:
			q.statuses[id] = StatusReady
		case owned[id] != "":
			q.statuses[id] = StatusSkipped
		case len(routableIncoming(wf, id)) == 0:
			q.statuses[id] = StatusUnreachable
		default:
			q.statuses[id] = StatusPending
		}
	}
	// Cascade from initially unreachable roots.
	for id, st := range q.statuses {
		if st == StatusUnreachable {
			q.resolveUnfired(wf, id)
		}
	}
	return q
}

// Status returns the current status of a node.
func (q *QueueState) Status(nodeID string) Status { return q.statuses[nodeID] }

// FailureMessage returns the recorded failure message for a failed node.
func (q *QueueState) FailureMessage(nodeID string) string { return q.failures[nodeID] }

// ExecutionOrder returns node IDs in the order their outcomes were applied.
func (q *QueueState) ExecutionOrder() []string {
	return append([]string(nil), q.order...)
}

// EdgeFired reports whether the given edge fired.
func (q *QueueState) EdgeFired(edgeID string) bool { return q.fired[edgeID] }

// ReadyNodes returns up to cap - |executing| ready node IDs, ordered by
// (depth asc, id asc) for reproducibility.
func (q *QueueState) ReadyNodes(wf *BuiltWorkflow, cap int) []string {
	budget := cap - q.countStatus(StatusExecuting)
	if budget <= 0 {
		return nil
	}
	var ready []string
	for id, st := range q.statuses {
		if st == StatusReady {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		di, dj := wf.Nodes[ready[i]].Depth, wf.Nodes[ready[j]].Depth
		if di != dj {
			return di < dj
		}
		return ready[i] < ready[j]
	})
	if len(ready) > budget {
		ready = ready[:budget]
	}
	return ready
}

// MarkExecuting moves the given nodes from ready to executing.
func (q *QueueState) MarkExecuting(ids []string) {
	for _, id := range ids {
		if q.statuses[id] == StatusReady {
			q.statuses[id] = StatusExecuting
		}
	}
}

// MarkCompleted records a successful node outcome, routes its outgoing edges,
// and promotes any targets that became ready.
func (q *QueueState) MarkCompleted(wf *BuiltWorkflow, nodeID string, output map[string]any) {
	q.statuses[nodeID] = StatusCompleted
	q.order = append(q.order, nodeID)
	fired, unfired := routeEdges(wf, wf.Nodes[nodeID], output, true)
	q.applyResolution(wf, fired, unfired)
}

// MarkFailed records a failed node outcome. Fallback edges still fire; all
// other outgoing edges resolve unfired, so strict descendants become
// unreachable while alternate paths remain eligible.
func (q *QueueState) MarkFailed(wf *BuiltWorkflow, nodeID, message string) {
	q.statuses[nodeID] = StatusFailed
	q.failures[nodeID] = message
	q.order = append(q.order, nodeID)
	fired, unfired := routeEdges(wf, wf.Nodes[nodeID], nil, false)
	q.applyResolution(wf, fired, unfired)
}

// CancelRemaining moves every pending and ready node to skipped. Called after
// the in-flight batch drains on external cancellation.
func (q *QueueState) CancelRemaining() {
	for id, st := range q.statuses {
		if st == StatusPending || st == StatusReady {
			q.statuses[id] = StatusSkipped
		}
	}
}

// IsExecutionComplete reports whether no node remains pending, ready, or
// executing.
func (q *QueueState) IsExecutionComplete() bool {
	for _, st := range q.statuses {
		if !st.terminal() {
			return false
		}
	}
	return true
}

// NodesInStatus returns the sorted node IDs currently in the given status.
func (q *QueueState) NodesInStatus(status Status) []string {
	var ids []string
	for id, st := range q.statuses {
		if st == status {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Progress returns the percentage of nodes in a terminal state, 0-100.
func (q *QueueState) Progress() int {
	if len(q.statuses) == 0 {
		return 100
	}
	done := 0
	for _, st := range q.statuses {
		if st.terminal() {
			done++
		}
	}
	return done * 100 / len(q.statuses)
}

// applyResolution records edge outcomes and re-evaluates affected targets:
// pending targets with every incoming edge resolved promote to ready if at
// least one fired, or become unreachable (cascading) if none did.
func (q *QueueState) applyResolution(wf *BuiltWorkflow, fired, unfired []*Edge) {
	targets := make(map[string]bool)
	for _, e := range fired {
		q.resolved[e.ID] = true
		q.fired[e.ID] = true
		targets[e.Target] = true
	}
	for _, e := range unfired {
		q.resolved[e.ID] = true
		targets[e.Target] = true
	}
	for target := range targets {
		q.evaluateTarget(wf, target)
	}
}

// evaluateTarget promotes or buries one pending node based on its incoming
// edge resolution state.
func (q *QueueState) evaluateTarget(wf *BuiltWorkflow, nodeID string) {
	if q.statuses[nodeID] != StatusPending {
		return
	}
	incoming := routableIncoming(wf, nodeID)
	anyFired := false
	for _, e := range incoming {
		if !q.resolved[e.ID] {
			return
		}
		if q.fired[e.ID] {
			anyFired = true
		}
	}
	if anyFired {
		q.statuses[nodeID] = StatusReady
		return
	}
	q.statuses[nodeID] = StatusUnreachable
	q.resolveUnfired(wf, nodeID)
}

// resolveUnfired resolves every routable outgoing edge of an unreachable node
// as not fired and re-evaluates the affected targets, iteratively.
func (q *QueueState) resolveUnfired(wf *BuiltWorkflow, nodeID string) {
	worklist := []string{nodeID}
	for len(worklist) > 0 {
		id := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, e := range routableEdges(wf, wf.Nodes[id]) {
			if q.resolved[e.ID] {
				continue
			}
			q.resolved[e.ID] = true
			target := e.Target
			if q.statuses[target] != StatusPending {
				continue
			}
			before := q.statuses[target]
			q.evaluateTarget(wf, target)
			if before == StatusPending && q.statuses[target] == StatusUnreachable {
				worklist = append(worklist, target)
			}
		}
	}
}

func (q *QueueState) countStatus(status Status) int {
	n := 0
	for _, st := range q.statuses {
		if st == status {
			n++
		}
	}
	return n
}

// RestoreQueue rebuilds queue state from snapshot data: terminal statuses are
// reinstated and edge resolution is replayed deterministically from the
// recorded node outputs, so the ready set and unreachable cascade do not need
// to be persisted.
func RestoreQueue(wf *BuiltWorkflow, nodeOutputs map[string]any, failed map[string]string, skipped []string) *QueueState {
	q := InitializeQueue(wf)

	owned := wf.loopBodyMembership()
	terminal := make([]string, 0, len(nodeOutputs)+len(failed))
	for id := range nodeOutputs {
		if _, known := wf.Nodes[id]; known && owned[id] == "" {
			q.statuses[id] = StatusCompleted
			terminal = append(terminal, id)
		}
	}
	for id, msg := range failed {
		if _, known := wf.Nodes[id]; known {
			q.statuses[id] = StatusFailed
			q.failures[id] = msg
			terminal = append(terminal, id)
		}
	}
	for _, id := range skipped {
		if _, known := wf.Nodes[id]; known {
			q.statuses[id] = StatusSkipped
		}
	}

	// Replay routing in depth order so promotions observe resolved parents.
	sort.Slice(terminal, func(i, j int) bool {
		di, dj := wf.Nodes[terminal[i]].Depth, wf.Nodes[terminal[j]].Depth
		if di != dj {
			return di < dj
		}
		return terminal[i] < terminal[j]
	})
	for _, id := range terminal {
		q.order = append(q.order, id)
		if q.statuses[id] == StatusFailed {
			fired, unfired := routeEdges(wf, wf.Nodes[id], nil, false)
			q.applyResolution(wf, fired, unfired)
			continue
		}
		output, _ := nodeOutputs[id].(map[string]any)
		fired, unfired := routeEdges(wf, wf.Nodes[id], output, true)
		q.applyResolution(wf, fired, unfired)
	}
	return q
}
