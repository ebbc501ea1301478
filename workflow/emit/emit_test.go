package emit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func sampleEvent(event string, node string, ts int64) Event {
	return Event{
		Channel:     "execution:exec-1",
		Event:       event,
		ExecutionID: "exec-1",
		NodeID:      node,
		Timestamp:   ts,
	}
}

func TestBufferedEmitter(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(sampleEvent(ExecutionStarted, "", 1))
	b.Emit(sampleEvent(ToolCallStarted, "fetch", 2))
	b.Emit(sampleEvent(ToolCallCompleted, "fetch", 3))
	b.Emit(sampleEvent(ExecutionCompleted, "", 4))
	b.Emit(Event{ExecutionID: "exec-2", Event: ExecutionStarted, Timestamp: 1})

	history := b.History("exec-1")
	if len(history) != 4 {
		t.Fatalf("history = %d events, want 4", len(history))
	}
	if history[0].Event != ExecutionStarted || history[3].Event != ExecutionCompleted {
		t.Errorf("history order wrong: %v", history)
	}

	t.Run("filter by node", func(t *testing.T) {
		got := b.HistoryWithFilter("exec-1", HistoryFilter{NodeID: "fetch"})
		if len(got) != 2 {
			t.Errorf("filtered = %d, want 2", len(got))
		}
	})
	t.Run("filter by event", func(t *testing.T) {
		got := b.HistoryWithFilter("exec-1", HistoryFilter{Event: ToolCallStarted})
		if len(got) != 1 || got[0].NodeID != "fetch" {
			t.Errorf("filtered = %v", got)
		}
	})
	t.Run("filter by tick range", func(t *testing.T) {
		min, max := int64(2), int64(3)
		got := b.HistoryWithFilter("exec-1", HistoryFilter{MinTimestamp: &min, MaxTimestamp: &max})
		if len(got) != 2 {
			t.Errorf("filtered = %d, want 2", len(got))
		}
	})

	t.Run("returned slice is a copy", func(t *testing.T) {
		history := b.History("exec-1")
		history[0].Event = "mutated"
		if b.History("exec-1")[0].Event != ExecutionStarted {
			t.Error("History aliases internal storage")
		}
	})

	b.Clear("exec-1")
	if len(b.History("exec-1")) != 0 {
		t.Error("Clear did not drop history")
	}
	if len(b.History("exec-2")) != 1 {
		t.Error("Clear dropped another execution's history")
	}
	b.ClearAll()
	if len(b.History("exec-2")) != 0 {
		t.Error("ClearAll did not drop everything")
	}
}

func TestLogEmitterText(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogEmitter(&buf, false)
	ev := sampleEvent(ToolCallStarted, "fetch", 7)
	ev.Data = map[string]any{"nodeType": "http"}
	l.Emit(ev)

	out := buf.String()
	for _, want := range []string{"[" + ToolCallStarted + "]", "execution=exec-1", "node=fetch", "ts=7", "nodeType"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestLogEmitterJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogEmitter(&buf, true)
	l.Emit(sampleEvent(ExecutionStarted, "", 1))
	l.Emit(sampleEvent(ExecutionCompleted, "", 2))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2 (JSONL)", len(lines))
	}
	var decoded Event
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("line not valid JSON: %v", err)
	}
	if decoded.Event != ExecutionStarted || decoded.ExecutionID != "exec-1" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestMulti(t *testing.T) {
	a := NewBufferedEmitter()
	b := NewBufferedEmitter()
	m := Multi{a, nil, b}

	m.Emit(sampleEvent(ExecutionStarted, "", 1))

	if len(a.History("exec-1")) != 1 || len(b.History("exec-1")) != 1 {
		t.Error("Multi did not fan out to all emitters")
	}
}

func TestNullEmitter(t *testing.T) {
	// Emit must be a safe no-op.
	NewNullEmitter().Emit(sampleEvent(ExecutionStarted, "", 1))
}
