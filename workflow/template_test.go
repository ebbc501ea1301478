package workflow

import (
	"reflect"
	"testing"
)

func TestResolveTemplates(t *testing.T) {
	scope := map[string]any{
		"Fetch": map[string]any{
			"content":    "hello world",
			"statusCode": float64(200),
			"rows": []any{
				map[string]any{"name": "ada"},
				map[string]any{"name": "grace"},
			},
		},
		"topic": "testing",
		"flag":  true,
	}

	tests := []struct {
		name   string
		config map[string]any
		want   map[string]any
	}{
		{
			name:   "whole-string reference preserves type",
			config: map[string]any{"status": "{{Fetch.statusCode}}"},
			want:   map[string]any{"status": float64(200)},
		},
		{
			name:   "interpolation stringifies",
			config: map[string]any{"prompt": "Summarize: {{Fetch.content}} about {{topic}}"},
			want:   map[string]any{"prompt": "Summarize: hello world about testing"},
		},
		{
			name:   "unresolved path becomes empty string",
			config: map[string]any{"text": "a{{Missing.path}}b"},
			want:   map[string]any{"text": "ab"},
		},
		{
			name:   "whole-string unresolved becomes empty string",
			config: map[string]any{"value": "{{Missing.path}}"},
			want:   map[string]any{"value": ""},
		},
		{
			name:   "array index path",
			config: map[string]any{"second": "{{Fetch.rows.1.name}}"},
			want:   map[string]any{"second": "grace"},
		},
		{
			name:   "out of range index unresolved",
			config: map[string]any{"v": "{{Fetch.rows.9.name}}"},
			want:   map[string]any{"v": ""},
		},
		{
			name: "nested containers",
			config: map[string]any{
				"outer": map[string]any{
					"list": []any{"{{topic}}", float64(7), map[string]any{"flag": "{{flag}}"}},
				},
			},
			want: map[string]any{
				"outer": map[string]any{
					"list": []any{"testing", float64(7), map[string]any{"flag": true}},
				},
			},
		},
		{
			name:   "non-string leaves pass through",
			config: map[string]any{"n": float64(3), "b": false, "nothing": nil},
			want:   map[string]any{"n": float64(3), "b": false, "nothing": nil},
		},
		{
			name:   "bool interpolation",
			config: map[string]any{"s": "flag={{flag}}"},
			want:   map[string]any{"s": "flag=true"},
		},
		{
			name:   "whitespace inside braces",
			config: map[string]any{"s": "{{ topic }}"},
			want:   map[string]any{"s": "testing"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveTemplates(tt.config, scope)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ResolveTemplates() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestResolveTemplatesDoesNotMutateInput(t *testing.T) {
	config := map[string]any{
		"prompt": "{{topic}}",
		"nested": map[string]any{"inner": "{{topic}}"},
	}
	ResolveTemplates(config, map[string]any{"topic": "resolved"})

	if config["prompt"] != "{{topic}}" {
		t.Errorf("input config mutated: prompt = %v", config["prompt"])
	}
	if config["nested"].(map[string]any)["inner"] != "{{topic}}" {
		t.Errorf("input config mutated: nested.inner = %v", config["nested"].(map[string]any)["inner"])
	}
}

func TestResolveTemplatesDeepConfig(t *testing.T) {
	// A deeply nested config must not exhaust the stack; the walk is
	// iterative.
	depth := 10000
	leaf := map[string]any{"v": "{{topic}}"}
	config := map[string]any{"child": any(leaf)}
	for i := 0; i < depth; i++ {
		config = map[string]any{"child": any(config)}
	}

	resolved := ResolveTemplates(config, map[string]any{"topic": "deep"})
	for i := 0; i < depth; i++ {
		resolved = resolved["child"].(map[string]any)
	}
	if got := resolved["child"].(map[string]any)["v"]; got != "deep" {
		t.Errorf("deep leaf = %v, want deep", got)
	}
}

func TestResolveTemplatesNilConfig(t *testing.T) {
	if got := ResolveTemplates(nil, map[string]any{}); got != nil {
		t.Errorf("ResolveTemplates(nil) = %v, want nil", got)
	}
}
