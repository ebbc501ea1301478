package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemStore is an in-memory SnapshotStore.
//
// Designed for testing, development, and single-process executions where
// durability is not required. Data is lost when the process terminates.
//
// MemStore is thread-safe. Snapshots are deep-copied on save and load via
// JSON round-trip so callers can never alias stored state.
type MemStore struct {
	mu        sync.RWMutex
	snapshots map[string][]Snapshot
}

// NewMemStore creates an empty in-memory snapshot store.
func NewMemStore() *MemStore {
	return &MemStore{snapshots: make(map[string][]Snapshot)}
}

// Save appends a deep copy of the snapshot to the execution's history.
func (m *MemStore) Save(_ context.Context, snap Snapshot) error {
	copied, err := copySnapshot(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snap.ExecutionID] = append(m.snapshots[snap.ExecutionID], copied)
	return nil
}

// Latest returns the most recently saved snapshot for the execution.
func (m *MemStore) Latest(_ context.Context, executionID string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := m.snapshots[executionID]
	if len(history) == 0 {
		return Snapshot{}, ErrNotFound
	}
	return copySnapshot(history[len(history)-1])
}

// List returns all snapshots for the execution in save order.
func (m *MemStore) List(_ context.Context, executionID string) ([]Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := m.snapshots[executionID]
	out := make([]Snapshot, 0, len(history))
	for _, snap := range history {
		copied, err := copySnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, copied)
	}
	return out, nil
}

// copySnapshot deep-copies via JSON round-trip; snapshots are required to be
// JSON-serializable by contract.
func copySnapshot(snap Snapshot) (Snapshot, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return Snapshot{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	var copied Snapshot
	if err := json.Unmarshal(data, &copied); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return copied, nil
}
