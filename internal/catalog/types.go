package catalog

import "github.com/p-n-ai/pai-academy/internal/enrollment"

// Course is a catalog entry. Topic order defines navigation and the premium boundary.
type Course struct {
	ID          string  `yaml:"id" json:"id"`
	Title       string  `yaml:"title" json:"title"`
	Description string  `yaml:"description" json:"description"`
	Category    string  `yaml:"category" json:"category"`
	Difficulty  string  `yaml:"difficulty" json:"difficulty"`
	Duration    string  `yaml:"duration" json:"duration"`
	IsFree      bool    `yaml:"is_free" json:"isFree"`
	Price       int     `yaml:"price,omitempty" json:"price,omitempty"`
	Curriculum  string  `yaml:"curriculum,omitempty" json:"-"`
	Topics      []Topic `yaml:"topics" json:"topics"`
}

// TopicIndex returns the position of a topic in the course, or -1.
func (c Course) TopicIndex(topicID string) int {
	for i, t := range c.Topics {
		if t.ID == topicID {
			return i
		}
	}
	return -1
}

// Topic is a single lesson unit within a course.
type Topic struct {
	ID              string           `yaml:"id" json:"id"`
	Title           string           `yaml:"title" json:"title"`
	Duration        string           `yaml:"duration" json:"duration"`
	Content         Content          `yaml:"content" json:"content"`
	Body            string           `yaml:"body,omitempty" json:"body,omitempty"`
	CodeExample     string           `yaml:"code_example,omitempty" json:"codeExample,omitempty"`
	CodingChallenge *CodingChallenge `yaml:"coding_challenge,omitempty" json:"codingChallenge,omitempty"`
	MiniQuiz        *MiniQuiz        `yaml:"mini_quiz,omitempty" json:"miniQuiz,omitempty"`
}

// Content holds the structured lesson text, kept apart from presentation.
type Content struct {
	Heading   string    `yaml:"heading" json:"heading"`
	Overview  string    `yaml:"overview" json:"overview"`
	Concepts  []Concept `yaml:"concepts" json:"concepts"`
	Analogy   string    `yaml:"analogy" json:"analogy"`
	Relevance string    `yaml:"relevance" json:"relevance"`
	Summary   []string  `yaml:"summary" json:"summary"`
}

// Concept is a named idea explained in a lesson.
type Concept struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"desc" json:"desc"`
}

// CodingChallenge is a lab task checked against SolutionPattern.
type CodingChallenge struct {
	Task            string `yaml:"task" json:"task"`
	InitialCode     string `yaml:"initial_code" json:"initialCode"`
	SolutionPattern string `yaml:"solution_pattern" json:"solutionPattern"`
	Explanation     string `yaml:"explanation" json:"explanation"`
	Hint            string `yaml:"hint,omitempty" json:"hint,omitempty"`
}

// MiniQuiz is a single knowledge-check question attached to a topic.
type MiniQuiz struct {
	Question     string   `yaml:"question" json:"question"`
	Options      []string `yaml:"options" json:"options"`
	CorrectIndex int      `yaml:"correct_index" json:"correctIndex"`
	Explanation  string   `yaml:"explanation" json:"explanation"`
}

// QuizQuestion belongs to a category quiz bank. Answer holds the correct option text.
type QuizQuestion struct {
	ID          int      `yaml:"id" json:"id"`
	Question    string   `yaml:"question" json:"question"`
	Options     []string `yaml:"options" json:"options"`
	Answer      string   `yaml:"answer" json:"answer"`
	Explanation string   `yaml:"explanation" json:"explanation"`
}

// User is an admin-view learner record.
type User struct {
	ID          string                  `yaml:"id" json:"id"`
	Name        string                  `yaml:"name" json:"name"`
	Email       string                  `yaml:"email" json:"email"`
	Avatar      string                  `yaml:"avatar" json:"avatar"`
	Role        string                  `yaml:"role" json:"role,omitempty"`
	Enrollments []enrollment.Enrollment `yaml:"enrolled_courses" json:"enrolledCourses"`
}
