package workflow

import (
	"reflect"
	"testing"
)

func mustBuild(t *testing.T, def Definition) *BuiltWorkflow {
	t.Helper()
	wf, err := Build(def)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return wf
}

func TestInitializeQueue(t *testing.T) {
	wf := mustBuild(t, linearDef())
	q := InitializeQueue(wf)

	if q.Status("trigger") != StatusReady {
		t.Errorf("trigger = %s, want ready", q.Status("trigger"))
	}
	for _, id := range []string{"t", "h", "out"} {
		if q.Status(id) != StatusPending {
			t.Errorf("%s = %s, want pending", id, q.Status(id))
		}
	}
	if q.IsExecutionComplete() {
		t.Error("fresh queue reported complete")
	}
	if got := q.Progress(); got != 0 {
		t.Errorf("progress = %d, want 0", got)
	}
}

func TestInitializeQueueLoopBodySkipped(t *testing.T) {
	wf := mustBuild(t, Definition{
		Nodes: []NodeDef{
			{ID: "in", Type: NodeInput},
			{ID: "loop", Type: NodeLoop},
			{ID: "work", Type: NodeTransform},
			{ID: "out", Type: NodeOutput},
		},
		Edges: []EdgeDef{
			{Source: "in", Target: "loop"},
			{Source: "loop", Target: "work"},
			{Source: "work", Target: "loop"},
			{Source: "loop", Target: "out"},
		},
	})
	q := InitializeQueue(wf)
	if q.Status("work") != StatusSkipped {
		t.Errorf("loop body = %s, want skipped (driven by its loop)", q.Status("work"))
	}
	if q.Status("loop") != StatusPending {
		t.Errorf("loop = %s, want pending", q.Status("loop"))
	}
}

func TestQueueLinearProgression(t *testing.T) {
	wf := mustBuild(t, linearDef())
	q := InitializeQueue(wf)

	ready := q.ReadyNodes(wf, 10)
	if !reflect.DeepEqual(ready, []string{"trigger"}) {
		t.Fatalf("ready = %v, want [trigger]", ready)
	}
	q.MarkExecuting(ready)
	if q.Status("trigger") != StatusExecuting {
		t.Fatalf("trigger = %s, want executing", q.Status("trigger"))
	}

	q.MarkCompleted(wf, "trigger", map[string]any{})
	if q.Status("t") != StatusReady {
		t.Errorf("t = %s, want ready after trigger completed", q.Status("t"))
	}

	q.MarkExecuting([]string{"t"})
	q.MarkCompleted(wf, "t", map[string]any{"v": 1})
	q.MarkExecuting([]string{"h"})
	q.MarkCompleted(wf, "h", map[string]any{"content": "x"})
	q.MarkExecuting([]string{"out"})
	q.MarkCompleted(wf, "out", map[string]any{})

	if !q.IsExecutionComplete() {
		t.Error("execution not complete after all nodes terminal")
	}
	if got := q.Progress(); got != 100 {
		t.Errorf("progress = %d, want 100", got)
	}
	wantOrder := []string{"trigger", "t", "h", "out"}
	if !reflect.DeepEqual(q.ExecutionOrder(), wantOrder) {
		t.Errorf("order = %v, want %v", q.ExecutionOrder(), wantOrder)
	}
}

func TestQueueFailureCascade(t *testing.T) {
	wf := mustBuild(t, linearDef())
	q := InitializeQueue(wf)

	q.MarkExecuting([]string{"trigger"})
	q.MarkCompleted(wf, "trigger", map[string]any{})
	q.MarkExecuting([]string{"t"})
	q.MarkFailed(wf, "t", "boom")

	if q.Status("h") != StatusUnreachable {
		t.Errorf("h = %s, want unreachable", q.Status("h"))
	}
	if q.Status("out") != StatusUnreachable {
		t.Errorf("out = %s, want unreachable (cascade)", q.Status("out"))
	}
	if !q.IsExecutionComplete() {
		t.Error("execution should be complete after cascade")
	}
	if msg := q.FailureMessage("t"); msg != "boom" {
		t.Errorf("failure message = %q, want boom", msg)
	}
}

func TestQueueFailureKeepsFallbackAlive(t *testing.T) {
	wf := mustBuild(t, Definition{
		Nodes: []NodeDef{
			{ID: "in", Type: NodeInput},
			{ID: "fetch", Type: NodeHTTP},
			{ID: "next", Type: NodeTransform},
			{ID: "recover", Type: NodeTransform},
		},
		Edges: []EdgeDef{
			{Source: "in", Target: "fetch"},
			{Source: "fetch", Target: "next"},
			{Source: "fetch", Target: "recover", SourceHandle: "fallback"},
		},
	})
	q := InitializeQueue(wf)
	q.MarkExecuting([]string{"in"})
	q.MarkCompleted(wf, "in", map[string]any{})
	q.MarkExecuting([]string{"fetch"})
	q.MarkFailed(wf, "fetch", "http 500")

	if q.Status("recover") != StatusReady {
		t.Errorf("recover = %s, want ready via fallback edge", q.Status("recover"))
	}
	if q.Status("next") != StatusUnreachable {
		t.Errorf("next = %s, want unreachable", q.Status("next"))
	}
}

func TestQueueBranchConvergence(t *testing.T) {
	// A node fed by both conditional branches runs once, as soon as the
	// firing branch resolves; it must not wait for the dead branch.
	wf := mustBuild(t, Definition{
		Nodes: []NodeDef{
			{ID: "in", Type: NodeInput},
			{ID: "cond", Type: NodeConditional},
			{ID: "yes", Type: NodeTransform},
			{ID: "no", Type: NodeTransform},
			{ID: "join", Type: NodeTransform},
		},
		Edges: []EdgeDef{
			{Source: "in", Target: "cond"},
			{Source: "cond", Target: "yes", SourceHandle: "true"},
			{Source: "cond", Target: "no", SourceHandle: "false"},
			{Source: "yes", Target: "join"},
			{Source: "no", Target: "join"},
		},
	})
	q := InitializeQueue(wf)
	q.MarkExecuting([]string{"in"})
	q.MarkCompleted(wf, "in", map[string]any{})
	q.MarkExecuting([]string{"cond"})
	q.MarkCompleted(wf, "cond", map[string]any{"result": true})

	if q.Status("yes") != StatusReady {
		t.Errorf("yes = %s, want ready", q.Status("yes"))
	}
	if q.Status("no") != StatusUnreachable {
		t.Errorf("no = %s, want unreachable", q.Status("no"))
	}
	// The dead branch resolved its outgoing edge unfired, so join needs
	// only the live branch.
	q.MarkExecuting([]string{"yes"})
	q.MarkCompleted(wf, "yes", map[string]any{"v": 1})
	if q.Status("join") != StatusReady {
		t.Errorf("join = %s, want ready once the live branch completed", q.Status("join"))
	}
}

func TestReadyNodesOrderAndCap(t *testing.T) {
	wf := mustBuild(t, Definition{
		Nodes: []NodeDef{
			{ID: "in", Type: NodeInput},
			{ID: "b", Type: NodeTransform},
			{ID: "a", Type: NodeTransform},
			{ID: "c", Type: NodeTransform},
		},
		Edges: []EdgeDef{
			{Source: "in", Target: "b"},
			{Source: "in", Target: "a"},
			{Source: "in", Target: "c"},
		},
	})
	q := InitializeQueue(wf)
	q.MarkExecuting([]string{"in"})
	q.MarkCompleted(wf, "in", map[string]any{})

	ready := q.ReadyNodes(wf, 10)
	if !reflect.DeepEqual(ready, []string{"a", "b", "c"}) {
		t.Errorf("ready = %v, want sorted [a b c]", ready)
	}

	capped := q.ReadyNodes(wf, 2)
	if !reflect.DeepEqual(capped, []string{"a", "b"}) {
		t.Errorf("capped ready = %v, want [a b]", capped)
	}

	// Budget shrinks by in-flight nodes.
	q.MarkExecuting([]string{"a"})
	if got := q.ReadyNodes(wf, 2); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("ready with one executing = %v, want [b]", got)
	}
	if got := q.ReadyNodes(wf, 1); got != nil {
		t.Errorf("ready with exhausted budget = %v, want nil", got)
	}
}

func TestCancelRemaining(t *testing.T) {
	wf := mustBuild(t, linearDef())
	q := InitializeQueue(wf)
	q.MarkExecuting([]string{"trigger"})
	q.MarkCompleted(wf, "trigger", map[string]any{})

	q.CancelRemaining()
	if q.Status("t") != StatusSkipped || q.Status("h") != StatusSkipped || q.Status("out") != StatusSkipped {
		t.Errorf("statuses after cancel: t=%s h=%s out=%s, want all skipped",
			q.Status("t"), q.Status("h"), q.Status("out"))
	}
	if !q.IsExecutionComplete() {
		t.Error("cancelled execution should be complete")
	}
}

func TestRestoreQueue(t *testing.T) {
	wf := mustBuild(t, linearDef())

	t.Run("mid-run restore promotes the frontier", func(t *testing.T) {
		q := RestoreQueue(wf, map[string]any{
			"trigger": map[string]any{},
			"t":       map[string]any{"v": 1},
		}, nil, nil)

		if q.Status("trigger") != StatusCompleted || q.Status("t") != StatusCompleted {
			t.Errorf("restored statuses: trigger=%s t=%s", q.Status("trigger"), q.Status("t"))
		}
		if q.Status("h") != StatusReady {
			t.Errorf("h = %s, want ready", q.Status("h"))
		}
		if q.Status("out") != StatusPending {
			t.Errorf("out = %s, want pending", q.Status("out"))
		}
	})

	t.Run("failed nodes replay their cascade", func(t *testing.T) {
		q := RestoreQueue(wf, map[string]any{
			"trigger": map[string]any{},
		}, map[string]string{"t": "boom"}, nil)

		if q.Status("t") != StatusFailed {
			t.Errorf("t = %s, want failed", q.Status("t"))
		}
		if q.FailureMessage("t") != "boom" {
			t.Errorf("failure message = %q", q.FailureMessage("t"))
		}
		if q.Status("h") != StatusUnreachable || q.Status("out") != StatusUnreachable {
			t.Errorf("cascade not replayed: h=%s out=%s", q.Status("h"), q.Status("out"))
		}
	})

	t.Run("switch routing replays from recorded output", func(t *testing.T) {
		swWf := mustBuild(t, Definition{
			Nodes: []NodeDef{
				{ID: "in", Type: NodeInput},
				{ID: "sw", Type: NodeSwitch},
				{ID: "a", Type: NodeTransform},
				{ID: "b", Type: NodeTransform},
			},
			Edges: []EdgeDef{
				{Source: "in", Target: "sw"},
				{Source: "sw", Target: "a", SourceHandle: "case-a"},
				{Source: "sw", Target: "b", SourceHandle: "case-b"},
			},
		})
		q := RestoreQueue(swWf, map[string]any{
			"in": map[string]any{},
			"sw": map[string]any{"selected": "b"},
		}, nil, nil)

		if q.Status("b") != StatusReady {
			t.Errorf("b = %s, want ready", q.Status("b"))
		}
		if q.Status("a") != StatusUnreachable {
			t.Errorf("a = %s, want unreachable", q.Status("a"))
		}
	})
}
