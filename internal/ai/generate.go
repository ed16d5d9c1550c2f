package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// DefaultFallbackText is returned by GenerateText when no provider answers.
const DefaultFallbackText = "Connectivity hiccup! Please try again in a moment."

// Tools toggles provider-side tools for structured generation.
type Tools struct {
	Search bool
}

// Structured is the result of GenerateStructured. Items is empty, never nil,
// when the provider failed or returned something unusable.
type Structured struct {
	Items   []json.RawMessage
	Sources []Source
}

// Generator offers request/response helpers that never fail: errors degrade
// to a fallback text or an empty item list.
type Generator struct {
	provider Provider
	fallback string
}

// NewGenerator wraps provider. An empty fallback uses DefaultFallbackText.
func NewGenerator(provider Provider, fallback string) *Generator {
	if fallback == "" {
		fallback = DefaultFallbackText
	}
	return &Generator{provider: provider, fallback: fallback}
}

// Fallback returns the text substituted for failed generations.
func (g *Generator) Fallback() string {
	if g == nil {
		return DefaultFallbackText
	}
	return g.fallback
}

// GenerateText answers prompt under the system instruction.
func (g *Generator) GenerateText(ctx context.Context, prompt, system string, temperature float64) string {
	text, _, err := g.Complete(ctx, CompletionRequest{
		Messages:    []Message{{Role: "user", Content: prompt}},
		System:      system,
		Temperature: temperature,
	})
	if err != nil {
		return g.Fallback()
	}
	return text
}

// Complete runs req and reports failures instead of substituting the
// fallback, so callers can tell an answer from a degraded one.
func (g *Generator) Complete(ctx context.Context, req CompletionRequest) (string, CompletionResponse, error) {
	if g == nil || g.provider == nil {
		return "", CompletionResponse{}, ErrNoProvider
	}
	resp, err := g.provider.Complete(ctx, req)
	if err != nil {
		slog.Warn("text generation failed", "task", req.Task.String(), "error", err)
		return "", CompletionResponse{}, err
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		slog.Warn("text generation returned empty content", "task", req.Task.String())
		return "", resp, fmt.Errorf("empty response")
	}
	return text, resp, nil
}

// GenerateStructured asks for a JSON array matching schema and returns the
// items that validate against the schema's item definition.
func (g *Generator) GenerateStructured(ctx context.Context, task TaskType, prompt string, schema json.RawMessage, tools Tools) Structured {
	empty := Structured{Items: []json.RawMessage{}}
	if g == nil || g.provider == nil {
		return empty
	}

	resp, err := g.provider.Complete(ctx, CompletionRequest{
		Messages: []Message{{Role: "user", Content: prompt}},
		Task:     task,
		Schema:   schema,
		Search:   tools.Search,
	})
	if err != nil {
		slog.Warn("structured generation failed", "task", task.String(), "error", err)
		return empty
	}

	items, err := DecodeItems(resp.Content, schema)
	if err != nil {
		slog.Warn("structured generation returned unusable content", "task", task.String(), "error", err)
		return empty
	}
	return Structured{Items: items, Sources: resp.Sources}
}

// DecodeItems parses content as a JSON array and keeps the elements valid
// under schema's "items" definition. Invalid elements are dropped.
func DecodeItems(content string, schema json.RawMessage) ([]json.RawMessage, error) {
	content = stripFence(strings.TrimSpace(content))
	if content == "" {
		return nil, fmt.Errorf("empty content")
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("content is not a JSON array: %w", err)
	}

	itemSchema, err := itemsSchema(schema)
	if err != nil {
		return nil, err
	}
	if itemSchema == nil {
		return raw, nil
	}

	items := make([]json.RawMessage, 0, len(raw))
	for i, item := range raw {
		res, err := itemSchema.Validate(gojsonschema.NewBytesLoader(item))
		if err != nil {
			return nil, fmt.Errorf("validating item %d: %w", i, err)
		}
		if !res.Valid() {
			slog.Debug("dropping structured item", "index", i, "errors", fmt.Sprint(res.Errors()))
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func itemsSchema(schema json.RawMessage) (*gojsonschema.Schema, error) {
	if len(bytes.TrimSpace(schema)) == 0 {
		return nil, nil
	}
	var top struct {
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(schema, &top); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if len(top.Items) == 0 {
		return nil, nil
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(top.Items))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return s, nil
}

// stripFence removes a surrounding Markdown code fence, which grounded
// responses sometimes add despite the JSON mime type.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
