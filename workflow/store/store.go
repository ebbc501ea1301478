// Package store provides snapshot persistence for the FlowMaestro workflow
// engine.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested execution has no stored snapshots.
var ErrNotFound = errors.New("not found")

// SnapshotType classifies why a snapshot was taken.
type SnapshotType string

// Snapshot types.
const (
	SnapshotCheckpoint SnapshotType = "checkpoint"
	SnapshotPause      SnapshotType = "pause"
	SnapshotFailure    SnapshotType = "failure"
	SnapshotFinal      SnapshotType = "final"
)

// Snapshot is a serializable record of an execution paused or checkpointed.
//
// It contains everything the engine needs to reconstruct queue state and
// execution context on resume: node status sets, recorded node outputs,
// variables, inputs, loop iteration counters, and the pause context when the
// snapshot type is pause. Snapshots are value types; stores persist them
// verbatim keyed by (executionID, createdAt).
type Snapshot struct {
	ExecutionID  string       `json:"executionId"`
	WorkflowID   string       `json:"workflowId,omitempty"`
	SnapshotType SnapshotType `json:"snapshotType"`

	// WorkspaceID and UserID record the identity the execution ran under,
	// so resumption can restore credit accounting without the caller
	// re-supplying it.
	WorkspaceID string `json:"workspaceId,omitempty"`
	UserID      string `json:"userId,omitempty"`

	CompletedNodes []string `json:"completedNodes"`
	PendingNodes   []string `json:"pendingNodes"`
	ExecutingNodes []string `json:"executingNodes"`
	FailedNodes    []string `json:"failedNodes"`
	SkippedNodes   []string `json:"skippedNodes"`

	// FailureReasons maps failed node ID to its recorded error message.
	FailureReasons map[string]string `json:"failureReasons,omitempty"`

	NodeOutputs map[string]any `json:"nodeOutputs"`
	Variables   map[string]any `json:"variables"`
	Inputs      map[string]any `json:"inputs"`

	// LoopStates maps loop node ID to completed iteration count.
	LoopStates map[string]int `json:"loopStates,omitempty"`

	// PauseContext is the serialized pause context for pause snapshots.
	PauseContext map[string]any `json:"pauseContext,omitempty"`

	// Progress is the share of nodes in a terminal state, 0-100.
	Progress int `json:"progress"`

	CreatedAt time.Time `json:"createdAt"`
}

// SnapshotStore persists execution snapshots.
//
// Implementations include in-memory (testing), SQLite (single-process
// persistence), and MySQL (production). All are keyed by
// (executionID, createdAt); Latest returns the most recent snapshot.
type SnapshotStore interface {
	// Save persists one snapshot. Snapshots for the same execution
	// accumulate; nothing is overwritten.
	Save(ctx context.Context, snap Snapshot) error

	// Latest returns the most recent snapshot for an execution, or
	// ErrNotFound when none exists.
	Latest(ctx context.Context, executionID string) (Snapshot, error)

	// List returns all snapshots for an execution in creation order.
	List(ctx context.Context, executionID string) ([]Snapshot, error)
}
