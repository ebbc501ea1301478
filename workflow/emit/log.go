package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogEmitter writes structured event output to a writer.
//
// Two output modes:
//   - Text (default): human-readable key=value lines
//   - JSON: one event per line (JSONL), machine-readable
//
// Example text output:
//
//	[agent:execution:started] execution=exec-001 ts=1
//	[agent:tool:call:started] execution=exec-001 node=fetch ts=4
//
// Example JSON output:
//
//	{"channel":"execution:exec-001","event":"agent:execution:started","executionId":"exec-001","timestamp":1}
type LogEmitter struct {
	mu       sync.Mutex
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a LogEmitter writing to writer (os.Stdout when nil).
// Set jsonMode for JSONL output.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{writer: writer, jsonMode: jsonMode}
}

// Emit writes one event in the configured format.
func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.jsonMode {
		data, err := json.Marshal(event)
		if err != nil {
			fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
			return
		}
		fmt.Fprintf(l.writer, "%s\n", data)
		return
	}

	fmt.Fprintf(l.writer, "[%s] execution=%s", event.Event, event.ExecutionID)
	if event.NodeID != "" {
		fmt.Fprintf(l.writer, " node=%s", event.NodeID)
	}
	fmt.Fprintf(l.writer, " ts=%d", event.Timestamp)
	if len(event.Data) > 0 {
		if dataJSON, err := json.Marshal(event.Data); err == nil {
			fmt.Fprintf(l.writer, " data=%s", dataJSON)
		}
	}
	fmt.Fprint(l.writer, "\n")
}
