package workflow

import (
	"errors"
	"testing"
)

// linearDef builds Trigger -> T -> H -> Out.
func linearDef() Definition {
	return Definition{
		ID: "wf-linear",
		Nodes: []NodeDef{
			{ID: "trigger", Type: NodeInput, Name: "Trigger"},
			{ID: "t", Type: NodeTransform, Name: "T"},
			{ID: "h", Type: NodeHTTP, Name: "H"},
			{ID: "out", Type: NodeOutput, Name: "Out"},
		},
		Edges: []EdgeDef{
			{ID: "e1", Source: "trigger", Target: "t"},
			{ID: "e2", Source: "t", Target: "h"},
			{ID: "e3", Source: "h", Target: "out"},
		},
	}
}

func TestBuildLinear(t *testing.T) {
	wf, err := Build(linearDef())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if wf.TriggerNodeID != "trigger" {
		t.Errorf("trigger = %q, want trigger", wf.TriggerNodeID)
	}
	if len(wf.OutputNodeIDs) != 1 || wf.OutputNodeIDs[0] != "out" {
		t.Errorf("output nodes = %v, want [out]", wf.OutputNodeIDs)
	}

	wantDepths := map[string]int{"trigger": 0, "t": 1, "h": 2, "out": 3}
	for id, want := range wantDepths {
		if got := wf.Nodes[id].Depth; got != want {
			t.Errorf("depth of %s = %d, want %d", id, got, want)
		}
	}
	if len(wf.ExecutionLevels) != 4 {
		t.Errorf("execution levels = %d, want 4", len(wf.ExecutionLevels))
	}

	if deps := wf.Nodes["h"].Dependencies; len(deps) != 1 || deps[0] != "t" {
		t.Errorf("h dependencies = %v, want [t]", deps)
	}
	if deps := wf.Nodes["t"].Dependents; len(deps) != 1 || deps[0] != "h" {
		t.Errorf("t dependents = %v, want [h]", deps)
	}
}

func TestBuildDiamond(t *testing.T) {
	def := Definition{
		Nodes: []NodeDef{
			{ID: "in", Type: NodeInput},
			{ID: "a", Type: NodeTransform},
			{ID: "b", Type: NodeTransform},
			{ID: "join", Type: NodeTransform},
			{ID: "out", Type: NodeOutput},
		},
		Edges: []EdgeDef{
			{Source: "in", Target: "a"},
			{Source: "in", Target: "b"},
			{Source: "a", Target: "join"},
			{Source: "b", Target: "join"},
			{Source: "join", Target: "out"},
		},
	}
	wf, err := Build(def)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if wf.Nodes["join"].Depth != 2 {
		t.Errorf("join depth = %d, want 2", wf.Nodes["join"].Depth)
	}
	if got := wf.Nodes["join"].Dependencies; len(got) != 2 {
		t.Errorf("join dependencies = %v, want 2 entries", got)
	}
	if got := wf.ExecutionLevels[1]; len(got) != 2 {
		t.Errorf("level 1 = %v, want [a b]", got)
	}
}

func TestBuildValidation(t *testing.T) {
	tests := []struct {
		name     string
		def      Definition
		wantCode string
	}{
		{
			name:     "empty workflow",
			def:      Definition{},
			wantCode: CodeMissingOrAmbiguousTrigger,
		},
		{
			name: "duplicate node id",
			def: Definition{Nodes: []NodeDef{
				{ID: "a", Type: NodeInput},
				{ID: "a", Type: NodeOutput},
			}},
			wantCode: CodeDuplicateNodeID,
		},
		{
			name: "unknown node type",
			def: Definition{Nodes: []NodeDef{
				{ID: "a", Type: NodeType("teleport")},
			}},
			wantCode: CodeUnknownNodeType,
		},
		{
			name: "edge to unknown node",
			def: Definition{
				Nodes: []NodeDef{{ID: "a", Type: NodeInput}},
				Edges: []EdgeDef{{ID: "e", Source: "a", Target: "ghost"}},
			},
			wantCode: CodeUnknownNodeReference,
		},
		{
			name: "no trigger",
			def: Definition{Nodes: []NodeDef{
				{ID: "a", Type: NodeTransform},
			}},
			wantCode: CodeMissingOrAmbiguousTrigger,
		},
		{
			name: "two triggers",
			def: Definition{Nodes: []NodeDef{
				{ID: "a", Type: NodeInput},
				{ID: "b", Type: NodeInput},
			}},
			wantCode: CodeMissingOrAmbiguousTrigger,
		},
		{
			name: "cycle without loop node",
			def: Definition{
				Nodes: []NodeDef{
					{ID: "in", Type: NodeInput},
					{ID: "a", Type: NodeTransform},
					{ID: "b", Type: NodeTransform},
				},
				Edges: []EdgeDef{
					{Source: "in", Target: "a"},
					{Source: "a", Target: "b"},
					{Source: "b", Target: "a"},
				},
			},
			wantCode: CodeCycleDetected,
		},
		{
			name: "unreachable output",
			def: Definition{
				Nodes: []NodeDef{
					{ID: "in", Type: NodeInput},
					{ID: "orphan", Type: NodeOutput},
				},
			},
			wantCode: CodeUnreachableOutput,
		},
		{
			name: "duplicate edge id",
			def: Definition{
				Nodes: []NodeDef{
					{ID: "in", Type: NodeInput},
					{ID: "out", Type: NodeOutput},
				},
				Edges: []EdgeDef{
					{ID: "e", Source: "in", Target: "out"},
					{ID: "e", Source: "in", Target: "out"},
				},
			},
			wantCode: CodeDuplicateEdgeID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.def)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var defErr *DefinitionError
			if !errors.As(err, &defErr) {
				t.Fatalf("error type = %T, want *DefinitionError", err)
			}
			if defErr.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", defErr.Code, tt.wantCode)
			}
		})
	}
}

func TestBuildLoopAnnotation(t *testing.T) {
	def := Definition{
		Nodes: []NodeDef{
			{ID: "in", Type: NodeInput},
			{ID: "loop", Type: NodeLoop, Config: map[string]any{
				"maxIterations":     float64(3),
				"iterationVariable": "i",
			}},
			{ID: "work", Type: NodeTransform},
			{ID: "out", Type: NodeOutput},
		},
		Edges: []EdgeDef{
			{Source: "in", Target: "loop"},
			{Source: "loop", Target: "work"},
			{Source: "work", Target: "loop"},
			{Source: "loop", Target: "out"},
		},
	}
	wf, err := Build(def)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	lc := wf.LoopContexts["loop"]
	if lc == nil {
		t.Fatal("no loop context recorded for loop")
	}
	if lc.MaxIterations != 3 {
		t.Errorf("maxIterations = %d, want 3", lc.MaxIterations)
	}
	if lc.IterationVar != "i" {
		t.Errorf("iterationVar = %q, want i", lc.IterationVar)
	}
	if len(lc.BodyNodes) != 1 || lc.BodyNodes[0] != "work" {
		t.Errorf("body nodes = %v, want [work]", lc.BodyNodes)
	}

	// Back-edge is excluded from dependencies: the loop node depends only
	// on the trigger, and out depends on the loop.
	if deps := wf.Nodes["loop"].Dependencies; len(deps) != 1 || deps[0] != "in" {
		t.Errorf("loop dependencies = %v, want [in]", deps)
	}
	if deps := wf.Nodes["out"].Dependencies; len(deps) != 1 || deps[0] != "loop" {
		t.Errorf("out dependencies = %v, want [loop]", deps)
	}
}

func TestBuildLoopBodyOrder(t *testing.T) {
	// Body node IDs chosen so alphabetical order (a2, z1) contradicts
	// dependency order (z1 feeds a2).
	def := Definition{
		Nodes: []NodeDef{
			{ID: "in", Type: NodeInput},
			{ID: "loop", Type: NodeLoop, Config: map[string]any{"maxIterations": float64(2)}},
			{ID: "z1", Type: NodeTransform},
			{ID: "a2", Type: NodeTransform},
			{ID: "out", Type: NodeOutput},
		},
		Edges: []EdgeDef{
			{Source: "in", Target: "loop"},
			{Source: "loop", Target: "z1"},
			{Source: "z1", Target: "a2"},
			{Source: "a2", Target: "loop"},
			{Source: "loop", Target: "out"},
		},
	}
	wf, err := Build(def)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	lc := wf.LoopContexts["loop"]
	if lc == nil {
		t.Fatal("no loop context recorded for loop")
	}
	if len(lc.BodyNodes) != 2 || lc.BodyNodes[0] != "z1" || lc.BodyNodes[1] != "a2" {
		t.Errorf("body nodes = %v, want [z1 a2] (depth order, not alphabetical)", lc.BodyNodes)
	}
	if wf.Nodes["z1"].Depth >= wf.Nodes["a2"].Depth {
		t.Errorf("depths z1=%d a2=%d, want z1 shallower", wf.Nodes["z1"].Depth, wf.Nodes["a2"].Depth)
	}
}

func TestBuildLoopBodyEscape(t *testing.T) {
	def := Definition{
		Nodes: []NodeDef{
			{ID: "in", Type: NodeInput},
			{ID: "loop", Type: NodeLoop},
			{ID: "work", Type: NodeTransform},
			{ID: "leak", Type: NodeTransform},
			{ID: "out", Type: NodeOutput},
		},
		Edges: []EdgeDef{
			{Source: "in", Target: "loop"},
			{Source: "loop", Target: "work"},
			{Source: "work", Target: "loop"},
			{Source: "work", Target: "leak"},
			{Source: "loop", Target: "out"},
		},
	}
	_, err := Build(def)
	var defErr *DefinitionError
	if !errors.As(err, &defErr) || defErr.Code != CodeInvalidLoop {
		t.Fatalf("err = %v, want INVALID_LOOP", err)
	}
}

func TestBuildDefaultsAndNaming(t *testing.T) {
	def := Definition{
		Nodes: []NodeDef{
			{ID: "in", Type: NodeInput},
			{ID: "out", Type: NodeOutput},
		},
		Edges: []EdgeDef{{Source: "in", Target: "out"}},
	}
	wf, err := Build(def)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if wf.MaxConcurrentNodes != DefaultMaxConcurrentNodes {
		t.Errorf("maxConcurrentNodes = %d, want %d", wf.MaxConcurrentNodes, DefaultMaxConcurrentNodes)
	}
	// Node name defaults to the ID when unset.
	if wf.Nodes["in"].Name != "in" {
		t.Errorf("node name = %q, want in", wf.Nodes["in"].Name)
	}
	// Unnamed edges get synthetic IDs.
	if len(wf.Edges) != 1 {
		t.Errorf("edges = %d, want 1", len(wf.Edges))
	}
}

func TestParseHandle(t *testing.T) {
	tests := []struct {
		raw       string
		wantType  HandleType
		wantValue string
	}{
		{"", HandleDefault, ""},
		{"default", HandleDefault, ""},
		{"output", HandleDefault, ""},
		{"source", HandleDefault, ""},
		{"true", HandleTrue, ""},
		{"false", HandleFalse, ""},
		{"fallback", HandleFallback, ""},
		{"case-image", HandleCase, "image"},
		{"case-", HandleCase, ""},
		{"something-else", HandleDefault, ""},
	}
	for _, tt := range tests {
		ht, value := parseHandle(tt.raw)
		if ht != tt.wantType || value != tt.wantValue {
			t.Errorf("parseHandle(%q) = (%s, %q), want (%s, %q)", tt.raw, ht, value, tt.wantType, tt.wantValue)
		}
	}
}
