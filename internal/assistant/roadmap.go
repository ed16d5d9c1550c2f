package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/p-n-ai/pai-academy/internal/ai"
)

// RoadmapWeeks is the length of a generated roadmap.
const RoadmapWeeks = 8

// Milestone is one week of a learning roadmap.
type Milestone struct {
	Week        int      `json:"week"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Resources   []string `json:"resources"`
}

var roadmapSchema = json.RawMessage(`{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "week": {"type": "integer", "description": "The week number of the milestone."},
      "title": {"type": "string", "description": "A short, descriptive title for the week's focus."},
      "description": {"type": "string", "description": "A brief summary of the topics and goals for the week."},
      "resources": {
        "type": "array",
        "description": "A list of suggested resources, tutorials, or small projects.",
        "items": {"type": "string"}
      }
    },
    "required": ["week", "title", "description", "resources"]
  }
}`)

// Roadmaps generates week-by-week learning plans.
type Roadmaps struct {
	gen *ai.Generator
}

func NewRoadmaps(gen *ai.Generator) *Roadmaps {
	return &Roadmaps{gen: gen}
}

// Generate returns milestones for goal ordered by week. The list is empty
// when generation fails.
func (r *Roadmaps) Generate(ctx context.Context, goal string) ([]Milestone, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, fmt.Errorf("goal is required")
	}

	prompt := fmt.Sprintf(`Generate a detailed, week-by-week learning roadmap for a beginner wanting to learn %q.
The roadmap should span %d weeks. For each week, provide a clear title, a concise description of the topics to cover, and a list of 2-3 specific, actionable resources or project ideas.
Ensure the output is a clean JSON array.`, goal, RoadmapWeeks)

	out := r.gen.GenerateStructured(ctx, ai.TaskRoadmap, prompt, roadmapSchema, ai.Tools{})

	milestones := make([]Milestone, 0, len(out.Items))
	for _, item := range out.Items {
		var m Milestone
		if err := json.Unmarshal(item, &m); err != nil {
			slog.Debug("skipping roadmap item", "error", err)
			continue
		}
		milestones = append(milestones, m)
	}
	return milestones, nil
}
