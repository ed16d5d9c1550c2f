// Package catalog holds the read-only registry of courses, quiz banks and learner records.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// ErrCourseNotFound is returned when a course id is not in the catalog.
var ErrCourseNotFound = errors.New("course not found")

// document is the on-disk YAML layout. A file may carry any subset of sections.
type document struct {
	Curricula map[string][]Topic        `yaml:"curricula"`
	Courses   []Course                  `yaml:"courses"`
	Quizzes   map[string][]QuizQuestion `yaml:"quizzes"`
	Users     []User                    `yaml:"users"`
}

// Catalog is immutable after Load and safe for concurrent readers.
type Catalog struct {
	courses    []Course
	byID       map[string]int
	categories []string
	quizzes    map[string][]QuizQuestion
	users      []User
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(defaultCatalog, &doc); err != nil {
		return nil, fmt.Errorf("parsing embedded catalog: %w", err)
	}
	return build([]document{doc})
}

// Load reads every YAML file under dir. An empty dir loads the embedded catalog.
func Load(dir string) (*Catalog, error) {
	if dir == "" {
		return Default()
	}

	var docs []document
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var doc document
		if err := yaml.Unmarshal(data, &doc); err != nil {
			slog.Warn("skipping invalid catalog YAML", "path", path, "error", err)
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	c, err := build(docs)
	if err != nil {
		return nil, err
	}
	slog.Info("catalog loaded", "dir", dir, "courses", len(c.courses))
	return c, nil
}

func build(docs []document) (*Catalog, error) {
	c := &Catalog{
		byID:    make(map[string]int),
		quizzes: make(map[string][]QuizQuestion),
	}

	curricula := make(map[string][]Topic)
	for _, doc := range docs {
		for name, topics := range doc.Curricula {
			curricula[name] = topics
		}
	}

	seenCategory := make(map[string]bool)
	for _, doc := range docs {
		for _, course := range doc.Courses {
			if course.ID == "" {
				continue
			}
			if _, dup := c.byID[course.ID]; dup {
				return nil, fmt.Errorf("duplicate course id %q", course.ID)
			}
			if len(course.Topics) == 0 && course.Curriculum != "" {
				course.Topics = expandCurriculum(curricula, course.Curriculum)
			}
			c.byID[course.ID] = len(c.courses)
			c.courses = append(c.courses, course)
			if course.Category != "" && !seenCategory[course.Category] {
				seenCategory[course.Category] = true
				c.categories = append(c.categories, course.Category)
			}
		}
		for category, questions := range doc.Quizzes {
			c.quizzes[category] = append(c.quizzes[category], questions...)
		}
		c.users = append(c.users, doc.Users...)
	}

	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return c, nil
}

// expandCurriculum instantiates a shared topic template for one course.
// The template is referenced by "<base>:<template>", e.g. "cloud-aws:standard".
func expandCurriculum(curricula map[string][]Topic, ref string) []Topic {
	base, name, ok := strings.Cut(ref, ":")
	if !ok {
		name = "standard"
	}
	template := curricula[name]
	topics := make([]Topic, 0, len(template))
	for _, t := range template {
		t.ID = strings.ReplaceAll(t.ID, "{base}", base)
		t.Content.Heading = strings.ReplaceAll(t.Content.Heading, "{base}", base)
		t.Content.Concepts = append([]Concept(nil), t.Content.Concepts...)
		t.Content.Summary = append([]string(nil), t.Content.Summary...)
		if t.CodingChallenge != nil {
			cc := *t.CodingChallenge
			t.CodingChallenge = &cc
		}
		if t.MiniQuiz != nil {
			q := *t.MiniQuiz
			q.Options = append([]string(nil), q.Options...)
			t.MiniQuiz = &q
		}
		topics = append(topics, t)
	}
	return topics
}

func (c *Catalog) validate() error {
	topicIDs := make(map[string]string)
	for _, course := range c.courses {
		if len(course.Topics) == 0 {
			return fmt.Errorf("course %q has no topics", course.ID)
		}
		if !course.IsFree && course.Price <= 0 {
			return fmt.Errorf("paid course %q needs a positive price", course.ID)
		}
		for _, t := range course.Topics {
			if t.ID == "" {
				return fmt.Errorf("course %q has a topic without id", course.ID)
			}
			if owner, dup := topicIDs[t.ID]; dup {
				return fmt.Errorf("topic %q appears in %q and %q", t.ID, owner, course.ID)
			}
			topicIDs[t.ID] = course.ID

			if q := t.MiniQuiz; q != nil {
				if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
					return fmt.Errorf("topic %q: correct_index %d out of range", t.ID, q.CorrectIndex)
				}
			}
			if cc := t.CodingChallenge; cc != nil {
				if _, err := regexp.Compile("(?i)" + cc.SolutionPattern); err != nil {
					return fmt.Errorf("topic %q: solution pattern: %w", t.ID, err)
				}
			}
		}
	}
	for category, questions := range c.quizzes {
		for _, q := range questions {
			if !containsString(q.Options, q.Answer) {
				return fmt.Errorf("quiz %q question %d: answer is not an option", category, q.ID)
			}
		}
	}
	return nil
}

// FindCourse returns a course by id.
func (c *Catalog) FindCourse(id string) (Course, error) {
	i, ok := c.byID[id]
	if !ok {
		return Course{}, fmt.Errorf("%w: %s", ErrCourseNotFound, id)
	}
	return c.courses[i], nil
}

// Courses returns all courses in catalog order.
func (c *Catalog) Courses() []Course {
	return append([]Course(nil), c.courses...)
}

// Search filters courses by a case-insensitive match on title, description or
// category, optionally restricted to one category.
func (c *Catalog) Search(query, category string) []Course {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []Course
	for _, course := range c.courses {
		if category != "" && course.Category != category {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(course.Title), q) &&
			!strings.Contains(strings.ToLower(course.Description), q) &&
			!strings.Contains(strings.ToLower(course.Category), q) {
			continue
		}
		out = append(out, course)
	}
	return out
}

// Categories returns course categories in first-seen order.
func (c *Catalog) Categories() []string {
	return append([]string(nil), c.categories...)
}

// QuizBank returns the category quiz questions.
func (c *Catalog) QuizBank(category string) ([]QuizQuestion, bool) {
	q, ok := c.quizzes[category]
	return append([]QuizQuestion(nil), q...), ok
}

// Users returns the admin-view learner records.
func (c *Catalog) Users() []User {
	return append([]User(nil), c.users...)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
