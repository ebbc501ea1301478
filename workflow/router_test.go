package workflow

import (
	"sort"
	"testing"
)

func edgeIDs(edges []*Edge) []string {
	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.ID)
	}
	sort.Strings(ids)
	return ids
}

func equalIDs(got []*Edge, want ...string) bool {
	ids := edgeIDs(got)
	sort.Strings(want)
	if len(ids) != len(want) {
		return false
	}
	for i := range ids {
		if ids[i] != want[i] {
			return false
		}
	}
	return true
}

func TestRouteConditionalEdges(t *testing.T) {
	wf, err := Build(Definition{
		Nodes: []NodeDef{
			{ID: "in", Type: NodeInput},
			{ID: "cond", Type: NodeConditional},
			{ID: "yes", Type: NodeTransform},
			{ID: "no", Type: NodeTransform},
		},
		Edges: []EdgeDef{
			{ID: "e0", Source: "in", Target: "cond"},
			{ID: "eTrue", Source: "cond", Target: "yes", SourceHandle: "true"},
			{ID: "eFalse", Source: "cond", Target: "no", SourceHandle: "false"},
		},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	cond := wf.Nodes["cond"]

	t.Run("truthy predicate fires true edge", func(t *testing.T) {
		fired, unfired := routeEdges(wf, cond, map[string]any{"result": true}, true)
		if !equalIDs(fired, "eTrue") || !equalIDs(unfired, "eFalse") {
			t.Errorf("fired=%v unfired=%v", edgeIDs(fired), edgeIDs(unfired))
		}
	})
	t.Run("falsy predicate fires false edge", func(t *testing.T) {
		fired, unfired := routeEdges(wf, cond, map[string]any{"result": false}, true)
		if !equalIDs(fired, "eFalse") || !equalIDs(unfired, "eTrue") {
			t.Errorf("fired=%v unfired=%v", edgeIDs(fired), edgeIDs(unfired))
		}
	})
	t.Run("value key also carries the predicate", func(t *testing.T) {
		fired, _ := routeEdges(wf, cond, map[string]any{"value": "nonempty"}, true)
		if !equalIDs(fired, "eTrue") {
			t.Errorf("fired=%v, want [eTrue]", edgeIDs(fired))
		}
	})
	t.Run("failure fires neither branch", func(t *testing.T) {
		fired, unfired := routeEdges(wf, cond, nil, false)
		if len(fired) != 0 || len(unfired) != 2 {
			t.Errorf("fired=%v unfired=%v", edgeIDs(fired), edgeIDs(unfired))
		}
	})
}

func TestRouteSwitchEdges(t *testing.T) {
	wf, err := Build(Definition{
		Nodes: []NodeDef{
			{ID: "in", Type: NodeInput},
			{ID: "sw", Type: NodeSwitch, Config: map[string]any{"defaultCase": "word"}},
			{ID: "pdf", Type: NodeTransform},
			{ID: "img", Type: NodeTransform},
			{ID: "word", Type: NodeTransform},
		},
		Edges: []EdgeDef{
			{ID: "e0", Source: "in", Target: "sw"},
			{ID: "ePDF", Source: "sw", Target: "pdf", SourceHandle: "case-pdf"},
			{ID: "eImg", Source: "sw", Target: "img", SourceHandle: "case-image"},
			{ID: "eWord", Source: "sw", Target: "word", SourceHandle: "case-word"},
		},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	sw := wf.Nodes["sw"]

	t.Run("selector fires its case only", func(t *testing.T) {
		fired, unfired := routeEdges(wf, sw, map[string]any{"selected": "image"}, true)
		if !equalIDs(fired, "eImg") || !equalIDs(unfired, "ePDF", "eWord") {
			t.Errorf("fired=%v unfired=%v", edgeIDs(fired), edgeIDs(unfired))
		}
	})
	t.Run("no match falls back to defaultCase", func(t *testing.T) {
		fired, _ := routeEdges(wf, sw, map[string]any{"selected": "csv"}, true)
		if !equalIDs(fired, "eWord") {
			t.Errorf("fired=%v, want [eWord]", edgeIDs(fired))
		}
	})
	t.Run("numeric selector stringified", func(t *testing.T) {
		wf2, err := Build(Definition{
			Nodes: []NodeDef{
				{ID: "in", Type: NodeInput},
				{ID: "sw", Type: NodeSwitch},
				{ID: "a", Type: NodeTransform},
			},
			Edges: []EdgeDef{
				{ID: "e0", Source: "in", Target: "sw"},
				{ID: "e1", Source: "sw", Target: "a", SourceHandle: "case-2"},
			},
		})
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		fired, _ := routeEdges(wf2, wf2.Nodes["sw"], map[string]any{"selected": float64(2)}, true)
		if !equalIDs(fired, "e1") {
			t.Errorf("fired=%v, want [e1]", edgeIDs(fired))
		}
	})
}

func TestRouteSwitchOverlappingCases(t *testing.T) {
	// Two case edges with the same value: first in declaration order wins.
	wf, err := Build(Definition{
		Nodes: []NodeDef{
			{ID: "in", Type: NodeInput},
			{ID: "sw", Type: NodeSwitch},
			{ID: "a", Type: NodeTransform},
			{ID: "b", Type: NodeTransform},
		},
		Edges: []EdgeDef{
			{ID: "e0", Source: "in", Target: "sw"},
			{ID: "eA", Source: "sw", Target: "a", SourceHandle: "case-x"},
			{ID: "eB", Source: "sw", Target: "b", SourceHandle: "case-x"},
		},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	fired, unfired := routeEdges(wf, wf.Nodes["sw"], map[string]any{"selected": "x"}, true)
	if !equalIDs(fired, "eA") || !equalIDs(unfired, "eB") {
		t.Errorf("fired=%v unfired=%v, want first declared case only", edgeIDs(fired), edgeIDs(unfired))
	}
}

func TestRouteFallbackEdges(t *testing.T) {
	wf, err := Build(Definition{
		Nodes: []NodeDef{
			{ID: "in", Type: NodeInput},
			{ID: "fetch", Type: NodeHTTP},
			{ID: "next", Type: NodeTransform},
			{ID: "recover", Type: NodeTransform},
		},
		Edges: []EdgeDef{
			{ID: "e0", Source: "in", Target: "fetch"},
			{ID: "eNext", Source: "fetch", Target: "next"},
			{ID: "eFall", Source: "fetch", Target: "recover", SourceHandle: "fallback"},
		},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	fetch := wf.Nodes["fetch"]

	t.Run("success with content fires default, not fallback", func(t *testing.T) {
		fired, unfired := routeEdges(wf, fetch, map[string]any{"content": "body"}, true)
		if !equalIDs(fired, "eNext") || !equalIDs(unfired, "eFall") {
			t.Errorf("fired=%v unfired=%v", edgeIDs(fired), edgeIDs(unfired))
		}
	})
	t.Run("failure fires fallback and suppresses default", func(t *testing.T) {
		fired, unfired := routeEdges(wf, fetch, nil, false)
		if !equalIDs(fired, "eFall") || !equalIDs(unfired, "eNext") {
			t.Errorf("fired=%v unfired=%v", edgeIDs(fired), edgeIDs(unfired))
		}
	})
	t.Run("empty content activates fallback", func(t *testing.T) {
		fired, unfired := routeEdges(wf, fetch, map[string]any{"content": ""}, true)
		if !equalIDs(fired, "eFall") || !equalIDs(unfired, "eNext") {
			t.Errorf("fired=%v unfired=%v", edgeIDs(fired), edgeIDs(unfired))
		}
	})
	t.Run("failure without fallback edge fires nothing", func(t *testing.T) {
		wf2, err := Build(Definition{
			Nodes: []NodeDef{
				{ID: "in", Type: NodeInput},
				{ID: "fetch", Type: NodeHTTP},
				{ID: "next", Type: NodeTransform},
			},
			Edges: []EdgeDef{
				{ID: "e0", Source: "in", Target: "fetch"},
				{ID: "eNext", Source: "fetch", Target: "next"},
			},
		})
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		fired, unfired := routeEdges(wf2, wf2.Nodes["fetch"], nil, false)
		if len(fired) != 0 || !equalIDs(unfired, "eNext") {
			t.Errorf("fired=%v unfired=%v", edgeIDs(fired), edgeIDs(unfired))
		}
	})
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		v    any
		want bool
	}{
		{true, true},
		{false, false},
		{"", false},
		{"false", false},
		{"0", false},
		{"yes", true},
		{float64(0), false},
		{float64(1), true},
		{0, false},
		{2, true},
		{nil, false},
		{map[string]any{}, true},
	}
	for _, tt := range tests {
		if got := truthy(tt.v); got != tt.want {
			t.Errorf("truthy(%#v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}
