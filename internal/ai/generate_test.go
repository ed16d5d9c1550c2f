package ai_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/p-n-ai/pai-academy/internal/ai"
)

var milestoneSchema = json.RawMessage(`{
	"type": "array",
	"items": {
		"type": "object",
		"properties": {
			"week": {"type": "integer"},
			"title": {"type": "string"}
		},
		"required": ["week", "title"]
	}
}`)

func TestGenerateText(t *testing.T) {
	tests := []struct {
		name     string
		provider ai.Provider
		want     string
	}{
		{"answer", ai.NewMockProvider("  Recursion is a function calling itself.  "), "Recursion is a function calling itself."},
		{"provider error", &ai.MockProvider{Err: errors.New("quota")}, "offline"},
		{"empty answer", ai.NewMockProvider("   "), "offline"},
		{"no provider", nil, "offline"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := ai.NewGenerator(tt.provider, "offline")
			if got := g.GenerateText(context.Background(), "what is recursion?", "be brief", 0.7); got != tt.want {
				t.Errorf("GenerateText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGenerateText_PassesSystemAndTemperature(t *testing.T) {
	mock := ai.NewMockProvider("ok")
	ai.NewGenerator(mock, "").GenerateText(context.Background(), "hi", "system text", 0.7)

	req := mock.LastRequest()
	if req.System != "system text" || req.Temperature != 0.7 {
		t.Errorf("request = %+v", req)
	}
}

func TestNewGenerator_DefaultFallback(t *testing.T) {
	g := ai.NewGenerator(nil, "")
	if g.Fallback() != ai.DefaultFallbackText {
		t.Errorf("Fallback() = %q", g.Fallback())
	}
}

func TestGenerateStructured(t *testing.T) {
	tests := []struct {
		name     string
		response string
		err      error
		want     int
	}{
		{"valid array", `[{"week":1,"title":"Basics"},{"week":2,"title":"More"}]`, nil, 2},
		{"fenced", "```json\n[{\"week\":1,\"title\":\"Basics\"}]\n```", nil, 1},
		{"drops invalid items", `[{"week":1,"title":"ok"},{"week":"two"},{"title":"no week"}]`, nil, 1},
		{"not an array", `{"week":1}`, nil, 0},
		{"malformed", `[{"week":`, nil, 0},
		{"empty", ``, nil, 0},
		{"provider error", ``, errors.New("boom"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &ai.MockProvider{Response: tt.response, Err: tt.err}
			g := ai.NewGenerator(mock, "")

			got := g.GenerateStructured(context.Background(), ai.TaskRoadmap, "plan", milestoneSchema, ai.Tools{Search: true})
			if got.Items == nil {
				t.Fatal("Items is nil, want empty slice")
			}
			if len(got.Items) != tt.want {
				t.Errorf("len(Items) = %d, want %d", len(got.Items), tt.want)
			}
			if req := mock.LastRequest(); req == nil || !req.Search || len(req.Schema) == 0 {
				t.Errorf("request = %+v, want schema and search", req)
			}
		})
	}
}

func TestGenerateStructured_Sources(t *testing.T) {
	mock := ai.NewMockProvider(`[{"week":1,"title":"x"}]`)
	mock.Sources = []ai.Source{{URI: "https://example.com"}}

	got := ai.NewGenerator(mock, "").GenerateStructured(context.Background(), ai.TaskNews, "news", milestoneSchema, ai.Tools{})
	if len(got.Sources) != 1 || got.Sources[0].URI != "https://example.com" {
		t.Errorf("Sources = %+v", got.Sources)
	}
}

func TestDecodeItems_NoSchema(t *testing.T) {
	items, err := ai.DecodeItems(`[1, "two", {"three": 3}]`, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Errorf("len(items) = %d, want 3", len(items))
	}
}

func TestDecodeItems_BadSchema(t *testing.T) {
	if _, err := ai.DecodeItems(`[]`, json.RawMessage(`{"items": {"type": 12}}`)); err == nil {
		t.Error("DecodeItems() expected error for invalid schema")
	}
}
