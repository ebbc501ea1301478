package emit

// Emitter receives the engine's per-execution event stream.
//
// Emitters enable pluggable sinks: logging, buffering for inspection,
// OpenTelemetry spans, or message brokers. Implementations should be:
//
//   - Non-blocking: avoid slowing down workflow execution
//   - Thread-safe: the engine may emit from concurrent executions
//   - Resilient: a failing sink must not crash the workflow
//
// Emit must not panic; errors should be handled internally.
type Emitter interface {
	Emit(event Event)
}

// Multi fans one event out to several emitters in order.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(event Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(event)
		}
	}
}
