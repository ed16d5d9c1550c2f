package catalog

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
)

// markdown renders topic bodies. Raw HTML in the source is escaped.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// Lesson is the presentation-neutral document for one topic. It never carries
// quiz answers or solution patterns.
type Lesson struct {
	TopicID     string           `json:"topicId"`
	Title       string           `json:"title"`
	Duration    string           `json:"duration"`
	Sections    []LessonSection  `json:"sections"`
	BodyHTML    string           `json:"bodyHtml,omitempty"`
	CodeExample string           `json:"codeExample,omitempty"`
	Quiz        *LessonQuiz      `json:"quiz,omitempty"`
	Challenge   *LessonChallenge `json:"challenge,omitempty"`
}

// LessonSection is one titled block of the lesson.
type LessonSection struct {
	Kind  string   `json:"kind"`
	Title string   `json:"title"`
	Text  string   `json:"text,omitempty"`
	Items []string `json:"items,omitempty"`
}

// LessonQuiz is the knowledge check as shown to the learner.
type LessonQuiz struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// LessonChallenge is the coding lab as shown to the learner.
type LessonChallenge struct {
	Task        string `json:"task"`
	InitialCode string `json:"initialCode"`
	Hint        string `json:"hint,omitempty"`
}

// RenderLesson builds the structured lesson document for a topic.
func RenderLesson(t Topic) (Lesson, error) {
	l := Lesson{
		TopicID:     t.ID,
		Title:       t.Title,
		Duration:    t.Duration,
		CodeExample: t.CodeExample,
	}

	c := t.Content
	if c.Heading != "" || c.Overview != "" {
		l.Sections = append(l.Sections, LessonSection{Kind: "overview", Title: c.Heading, Text: c.Overview})
	}
	if len(c.Concepts) > 0 {
		items := make([]string, 0, len(c.Concepts))
		for _, concept := range c.Concepts {
			items = append(items, concept.Name+": "+concept.Description)
		}
		l.Sections = append(l.Sections, LessonSection{Kind: "concepts", Title: "Core Concepts", Items: items})
	}
	if c.Analogy != "" {
		l.Sections = append(l.Sections, LessonSection{Kind: "analogy", Title: "The Mental Model (Analogy)", Text: c.Analogy})
	}
	if c.Relevance != "" {
		l.Sections = append(l.Sections, LessonSection{Kind: "relevance", Title: "Industry Relevance", Text: c.Relevance})
	}
	if len(c.Summary) > 0 {
		l.Sections = append(l.Sections, LessonSection{Kind: "summary", Title: "Deep Dive Summary", Items: c.Summary})
	}

	if t.Body != "" {
		var buf bytes.Buffer
		if err := markdown.Convert([]byte(t.Body), &buf); err != nil {
			return Lesson{}, fmt.Errorf("rendering topic %s body: %w", t.ID, err)
		}
		l.BodyHTML = buf.String()
	}

	if q := t.MiniQuiz; q != nil {
		l.Quiz = &LessonQuiz{Question: q.Question, Options: append([]string(nil), q.Options...)}
	}
	if cc := t.CodingChallenge; cc != nil {
		l.Challenge = &LessonChallenge{Task: cc.Task, InitialCode: cc.InitialCode, Hint: cc.Hint}
	}
	return l, nil
}
