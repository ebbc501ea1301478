package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nbaghiro/flowmaestro/workflow/store"
)

// ResumeTrigger names what is expected to resume a paused execution.
type ResumeTrigger string

// Resume trigger kinds.
const (
	ResumeSignal   ResumeTrigger = "signal"
	ResumeTimeout  ResumeTrigger = "timeout"
	ResumeExternal ResumeTrigger = "external"
)

// PauseContext describes why an execution suspended and what input it awaits.
//
// TimeoutMs is advisory: the engine does not enforce it internally. A
// surrounding collaborator may resume with default values or cancel the
// execution when the timeout elapses.
type PauseContext struct {
	Reason        string         `json:"reason"`
	NodeID        string         `json:"nodeId"`
	PausedAt      int64          `json:"pausedAt"`
	ResumeTrigger ResumeTrigger  `json:"resumeTrigger"`
	TimeoutMs     int64          `json:"timeoutMs,omitempty"`
	PreservedData map[string]any `json:"preservedData,omitempty"`
}

// VariableName returns the conventional input key declared by the pausing
// node, under which resume input is expected.
func (p *PauseContext) VariableName() string {
	if p == nil || p.PreservedData == nil {
		return ""
	}
	name, _ := p.PreservedData["variableName"].(string)
	return name
}

// asMap converts the pause context to the free-form mapping persisted inside
// a snapshot, keeping the store package independent of workflow types.
func (p *PauseContext) asMap() map[string]any {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return map[string]any{"reason": p.Reason, "nodeId": p.NodeID}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"reason": p.Reason, "nodeId": p.NodeID}
	}
	return m
}

// pauseContextFromMap restores a PauseContext persisted via asMap.
func pauseContextFromMap(m map[string]any) (*PauseContext, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal pause context: %w", err)
	}
	var pc PauseContext
	if err := json.Unmarshal(data, &pc); err != nil {
		return nil, fmt.Errorf("unmarshal pause context: %w", err)
	}
	return &pc, nil
}

// buildSnapshot serializes execution state into a store.Snapshot.
func buildSnapshot(
	wf *BuiltWorkflow,
	execCtx *ExecutionContext,
	queue *QueueState,
	snapshotType store.SnapshotType,
	pause *PauseContext,
	loopStates map[string]int,
	now time.Time,
) store.Snapshot {
	failed := make(map[string]string)
	for _, id := range queue.NodesInStatus(StatusFailed) {
		failed[id] = queue.FailureMessage(id)
	}

	return store.Snapshot{
		ExecutionID:    execCtx.Metadata.ExecutionID,
		WorkflowID:     wf.ID,
		SnapshotType:   snapshotType,
		WorkspaceID:    execCtx.Metadata.WorkspaceID,
		UserID:         execCtx.Metadata.UserID,
		CompletedNodes: queue.NodesInStatus(StatusCompleted),
		PendingNodes:   append(queue.NodesInStatus(StatusPending), queue.NodesInStatus(StatusReady)...),
		ExecutingNodes: queue.NodesInStatus(StatusExecuting),
		FailedNodes:    queue.NodesInStatus(StatusFailed),
		SkippedNodes:   append(queue.NodesInStatus(StatusSkipped), queue.NodesInStatus(StatusUnreachable)...),
		FailureReasons: failed,
		NodeOutputs:    execCtx.NodeOutputs,
		Variables:      execCtx.Variables,
		Inputs:         execCtx.Inputs,
		LoopStates:     loopStates,
		PauseContext:   pause.asMap(),
		Progress:       queue.Progress(),
		CreatedAt:      now.UTC(),
	}
}
