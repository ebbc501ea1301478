package emit

import "sync"

// BufferedEmitter stores events in memory, organized by execution ID, and
// provides query capabilities for tests, debugging, and post-execution
// analysis.
//
// All events are held in memory: for long-running deployments prefer a
// persistent sink and use this emitter for development.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// HistoryFilter selects a subset of an execution's events. All fields are
// optional and combine with AND semantics.
type HistoryFilter struct {
	// NodeID filters by node (empty = no filter).
	NodeID string

	// Event filters by event name (empty = no filter).
	Event string

	// MinTimestamp and MaxTimestamp bound the tick range (nil = unbounded).
	MinTimestamp *int64
	MaxTimestamp *int64
}

// NewBufferedEmitter creates an empty in-memory emitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit appends the event to its execution's history.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.ExecutionID] = append(b.events[event.ExecutionID], event)
}

// History returns all recorded events for an execution in emission order.
func (b *BufferedEmitter) History(executionID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	history := b.events[executionID]
	out := make([]Event, len(history))
	copy(out, history)
	return out
}

// HistoryWithFilter returns the execution's events matching the filter, in
// emission order.
func (b *BufferedEmitter) HistoryWithFilter(executionID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Event
	for _, ev := range b.events[executionID] {
		if filter.NodeID != "" && ev.NodeID != filter.NodeID {
			continue
		}
		if filter.Event != "" && ev.Event != filter.Event {
			continue
		}
		if filter.MinTimestamp != nil && ev.Timestamp < *filter.MinTimestamp {
			continue
		}
		if filter.MaxTimestamp != nil && ev.Timestamp > *filter.MaxTimestamp {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Clear drops the recorded history for one execution.
func (b *BufferedEmitter) Clear(executionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.events, executionID)
}

// ClearAll drops all recorded history.
func (b *BufferedEmitter) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = make(map[string][]Event)
}
