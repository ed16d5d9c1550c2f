// Package ai wraps generative-language providers behind a small interface
// with ordered fallback and degrade-to-default helpers.
package ai

import (
	"context"
	"encoding/json"
)

// TaskType labels a request for logging and routing.
type TaskType int

const (
	TaskChat TaskType = iota
	TaskExplain
	TaskRoadmap
	TaskNews
)

func (t TaskType) String() string {
	switch t {
	case TaskChat:
		return "chat"
	case TaskExplain:
		return "explain"
	case TaskRoadmap:
		return "roadmap"
	case TaskNews:
		return "news"
	default:
		return "unknown"
	}
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to an AI completion.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Task        TaskType  `json:"task,omitempty"`
	// Schema, when set, asks for a JSON response conforming to it.
	Schema json.RawMessage `json:"schema,omitempty"`
	// Search enables web-search grounding.
	Search bool `json:"search,omitempty"`
}

// Source is a web page the model grounded its answer on.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title,omitempty"`
}

// CompletionResponse is the output from an AI completion.
type CompletionResponse struct {
	Content      string   `json:"content"`
	Model        string   `json:"model"`
	InputTokens  int      `json:"input_tokens"`
	OutputTokens int      `json:"output_tokens"`
	Sources      []Source `json:"sources,omitempty"`
}

// TotalTokens returns the sum of input and output tokens.
func (r CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// StreamChunk represents a streaming response chunk.
type StreamChunk struct {
	Content string
	Done    bool
	Error   error
}

// ModelInfo describes an available model.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MaxTokens   int    `json:"max_tokens"`
	Description string `json:"description"`
}

// Provider is the interface all AI providers must implement.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	StreamComplete(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)
	Models() []ModelInfo
	HealthCheck(ctx context.Context) error
}
