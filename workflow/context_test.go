package workflow

import (
	"errors"
	"testing"
)

func TestExecutionContextCopyOnWrite(t *testing.T) {
	base := NewExecutionContext(map[string]any{"topic": "go"}, Metadata{ExecutionID: "exec-1"})

	next, err := base.WithNodeOutput("a", map[string]any{"content": "hi"})
	if err != nil {
		t.Fatalf("WithNodeOutput failed: %v", err)
	}
	if _, ok := base.NodeOutputs["a"]; ok {
		t.Error("base snapshot mutated by WithNodeOutput")
	}
	if _, ok := next.NodeOutputs["a"]; !ok {
		t.Error("new snapshot missing recorded output")
	}

	withVar := next.WithVariable("count", 3)
	if _, ok := next.Variables["count"]; ok {
		t.Error("base snapshot mutated by WithVariable")
	}
	if withVar.Variables["count"] != 3 {
		t.Errorf("variable = %v, want 3", withVar.Variables["count"])
	}

	merged := withVar.WithInputs(map[string]any{"topic": "rust", "extra": 1})
	if withVar.Inputs["topic"] != "go" {
		t.Error("base snapshot mutated by WithInputs")
	}
	if merged.Inputs["topic"] != "rust" || merged.Inputs["extra"] != 1 {
		t.Errorf("merged inputs = %v", merged.Inputs)
	}
}

func TestExecutionContextDuplicateOutput(t *testing.T) {
	ec := NewExecutionContext(nil, Metadata{})
	ec, err := ec.WithNodeOutput("a", map[string]any{"v": 1})
	if err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	_, err = ec.WithNodeOutput("a", map[string]any{"v": 2})
	if !errors.Is(err, ErrDuplicateOutput) {
		t.Errorf("err = %v, want ErrDuplicateOutput", err)
	}
}

func TestExecutionContextScopeShadowing(t *testing.T) {
	ec := NewExecutionContext(map[string]any{"k": "input", "onlyInput": 1}, Metadata{})
	ec = ec.WithVariable("k", "variable")
	ec = ec.WithVariable("onlyVar", 2)
	ec, err := ec.WithNodeOutput("k", "output")
	if err != nil {
		t.Fatalf("WithNodeOutput failed: %v", err)
	}

	scope := ec.Scope()
	if scope["k"] != "output" {
		t.Errorf("scope[k] = %v, want node output to shadow", scope["k"])
	}
	if scope["onlyInput"] != 1 || scope["onlyVar"] != 2 {
		t.Errorf("scope missing unshadowed entries: %v", scope)
	}
}

func TestExecutionContextScopePathFallback(t *testing.T) {
	// A node output sharing its key with an input shadows per path, not
	// wholesale: paths the output lacks still resolve against the input.
	ec := NewExecutionContext(map[string]any{
		"fetch": map[string]any{"url": "https://example.com", "retries": 3},
	}, Metadata{})
	ec, err := ec.WithNodeOutput("fetch", map[string]any{"retries": 5, "body": "ok"})
	if err != nil {
		t.Fatalf("WithNodeOutput failed: %v", err)
	}

	scope := ec.Scope()
	merged, ok := scope["fetch"].(map[string]any)
	if !ok {
		t.Fatalf("scope[fetch] = %T, want merged map", scope["fetch"])
	}
	if merged["url"] != "https://example.com" {
		t.Errorf("url = %v, want the input value to survive", merged["url"])
	}
	if merged["retries"] != 5 {
		t.Errorf("retries = %v, want the output value to win", merged["retries"])
	}
	if merged["body"] != "ok" {
		t.Errorf("body = %v, want ok", merged["body"])
	}

	resolved := ResolveTemplates(map[string]any{
		"u": "{{fetch.url}}",
		"r": "{{fetch.retries}}",
	}, scope)
	if resolved["u"] != "https://example.com" {
		t.Errorf("resolved url = %v", resolved["u"])
	}
	if resolved["r"] != 5 {
		t.Errorf("resolved retries = %v, want typed 5", resolved["r"])
	}

	// The stored layers are untouched by the merge.
	if _, ok := ec.Inputs["fetch"].(map[string]any)["body"]; ok {
		t.Error("input layer mutated by Scope")
	}
	if _, ok := ec.NodeOutputs["fetch"].(map[string]any)["url"]; ok {
		t.Error("output layer mutated by Scope")
	}
}

func TestExecutionContextFinalOutputs(t *testing.T) {
	wf, err := Build(Definition{
		Nodes: []NodeDef{
			{ID: "in", Type: NodeInput},
			{ID: "out1", Type: NodeOutput, Name: "Summary"},
			{ID: "out2", Type: NodeOutput, Name: "Report"},
		},
		Edges: []EdgeDef{
			{Source: "in", Target: "out1"},
			{Source: "in", Target: "out2"},
		},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ec := NewExecutionContext(nil, Metadata{})
	ec, _ = ec.WithNodeOutput("out1", map[string]any{"text": "done"})

	outputs := ec.FinalOutputs(wf)
	if len(outputs) != 1 {
		t.Fatalf("outputs = %v, want only the executed output node", outputs)
	}
	if _, ok := outputs["Summary"]; !ok {
		t.Errorf("outputs keyed by %v, want node name Summary", outputs)
	}
}

func TestExecutionContextClone(t *testing.T) {
	ec := NewExecutionContext(map[string]any{"topic": "go"}, Metadata{ExecutionID: "exec-1"})
	ec, _ = ec.WithNodeOutput("a", map[string]any{"nested": map[string]any{"v": "x"}})

	clone, err := ec.Clone()
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	// Deep copy: mutating the clone's nested values leaves the original alone.
	clone.NodeOutputs["a"].(map[string]any)["nested"].(map[string]any)["v"] = "mutated"
	if got := ec.NodeOutputs["a"].(map[string]any)["nested"].(map[string]any)["v"]; got != "x" {
		t.Errorf("original mutated through clone: %v", got)
	}
	if clone.Metadata.ExecutionID != "exec-1" {
		t.Errorf("clone metadata = %v", clone.Metadata)
	}
}
