package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/p-n-ai/pai-academy/internal/ai"
	"github.com/p-n-ai/pai-academy/internal/catalog"
)

// StaticExplanation is shown when no explanation could be generated.
const StaticExplanation = "Analyzing your code snippet... It seems you might be missing a specific comparison or return value. Remember, AI logic often relies on precise thresholds."

const explainSystem = `You are a patient programming tutor reviewing a learner's failed coding challenge.
Point at the most likely mistake in two or three sentences.
Do not write the full solution.`

// Explainer turns a failed coding submission into feedback text. It never
// affects the assessment outcome.
type Explainer struct {
	gen *ai.Generator
}

// NewExplainer creates an explainer. A nil generator always yields the
// static explanation.
func NewExplainer(gen *ai.Generator) *Explainer {
	return &Explainer{gen: gen}
}

// Explain returns feedback for code submitted against challenge. The
// challenge hint is appended when present.
func (e *Explainer) Explain(ctx context.Context, code string, challenge catalog.CodingChallenge) string {
	text := StaticExplanation
	if e.gen != nil {
		prompt := fmt.Sprintf("Challenge:\n%s\n\nLearner's code:\n%s", challenge.Task, strings.TrimSpace(code))
		if answer, _, err := e.gen.Complete(ctx, ai.CompletionRequest{
			Messages:    []ai.Message{{Role: "user", Content: prompt}},
			System:      explainSystem,
			Temperature: chatTemperature,
			Task:        ai.TaskExplain,
			MaxTokens:   512,
		}); err == nil {
			text = answer
		}
	}
	if challenge.Hint != "" {
		text += "\n\nHint: " + challenge.Hint
	}
	return text
}
