package catalog_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-academy/internal/catalog"
)

func TestDefault_Courses(t *testing.T) {
	c, err := catalog.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}

	courses := c.Courses()
	if len(courses) != 11 {
		t.Fatalf("Courses() = %d, want 11", len(courses))
	}
	for _, course := range courses {
		if len(course.Topics) != 6 {
			t.Errorf("course %s has %d topics, want 6", course.ID, len(course.Topics))
		}
	}
}

func TestDefault_PaidCourses(t *testing.T) {
	c, err := catalog.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}

	want := map[string]int{"cloud-aws": 1500, "mobile-flutter": 1200, "devops-cicd": 2500, "web3-solidity": 2000}
	for _, course := range c.Courses() {
		price, paid := want[course.ID]
		if course.IsFree == paid {
			t.Errorf("course %s IsFree = %v", course.ID, course.IsFree)
		}
		if paid && course.Price != price {
			t.Errorf("course %s Price = %d, want %d", course.ID, course.Price, price)
		}
	}
}

func TestFindCourse(t *testing.T) {
	c, err := catalog.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}

	course, err := c.FindCourse("cloud-aws")
	if err != nil {
		t.Fatalf("FindCourse() error = %v", err)
	}
	if course.Topics[0].ID != "cloud-aws-01" {
		t.Errorf("first topic = %q, want cloud-aws-01", course.Topics[0].ID)
	}
	if course.Topics[2].CodingChallenge == nil {
		t.Error("topic 03 should carry a coding challenge")
	}
	if course.TopicIndex("cloud-aws-04") != 3 {
		t.Errorf("TopicIndex(cloud-aws-04) = %d, want 3", course.TopicIndex("cloud-aws-04"))
	}

	_, err = c.FindCourse("missing")
	if !errors.Is(err, catalog.ErrCourseNotFound) {
		t.Errorf("FindCourse(missing) error = %v, want ErrCourseNotFound", err)
	}
}

func TestExpandedTopicsAreIndependent(t *testing.T) {
	c, err := catalog.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}

	a, _ := c.FindCourse("intro-ai-ml")
	b, _ := c.FindCourse("fullstack-web")
	a.Topics[0].MiniQuiz.Options[0] = "changed"
	if b.Topics[0].MiniQuiz.Options[0] == "changed" {
		t.Error("courses share quiz option storage")
	}
}

func TestSearch(t *testing.T) {
	c, err := catalog.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}

	tests := []struct {
		name     string
		query    string
		category string
		want     int
	}{
		{"all", "", "", 11},
		{"title match", "flutter", "", 1},
		{"case insensitive", "AWS", "", 1},
		{"category filter", "", "Data Science", 1},
		{"no match", "cobol", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(c.Search(tt.query, tt.category)); got != tt.want {
				t.Errorf("Search(%q, %q) = %d, want %d", tt.query, tt.category, got, tt.want)
			}
		})
	}
}

func TestQuizBankAndUsers(t *testing.T) {
	c, err := catalog.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}

	bank, ok := c.QuizBank("Web Development")
	if !ok || len(bank) != 5 {
		t.Errorf("QuizBank(Web Development) = %d, %v; want 5, true", len(bank), ok)
	}
	if _, ok := c.QuizBank("Underwater Basket Weaving"); ok {
		t.Error("QuizBank should not find unknown category")
	}
	if len(c.Categories()) != 11 {
		t.Errorf("Categories() = %d, want 11", len(c.Categories()))
	}
	if len(c.Users()) == 0 {
		t.Error("Users() returned empty")
	}
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "courses.yaml"), []byte(`
courses:
  - id: go-basics
    title: Go Basics
    category: Software Engineering
    is_free: true
    topics:
      - id: go-01
        title: Hello
      - id: go-02
        title: Types
`), 0o644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644)

	c, err := catalog.Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(c.Courses()) != 1 {
		t.Errorf("Courses() = %d, want 1", len(c.Courses()))
	}
}

func TestLoad_InvalidCatalog(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no topics", `
courses:
  - id: empty
    is_free: true
`, "no topics"},
		{"paid without price", `
courses:
  - id: paid
    is_free: false
    topics: [{id: p-01}]
`, "positive price"},
		{"quiz index out of range", `
courses:
  - id: q
    is_free: true
    topics:
      - id: q-01
        mini_quiz: {question: x, options: [a, b], correct_index: 2}
`, "out of range"},
		{"bad pattern", `
courses:
  - id: r
    is_free: true
    topics:
      - id: r-01
        coding_challenge: {task: x, solution_pattern: "([a-z"}
`, "solution pattern"},
		{"duplicate topic", `
courses:
  - id: a
    is_free: true
    topics: [{id: same}]
  - id: b
    is_free: true
    topics: [{id: same}]
`, "appears in"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			os.WriteFile(filepath.Join(dir, "c.yaml"), []byte(tt.yaml), 0o644)

			_, err := catalog.Load(dir)
			if err == nil {
				t.Fatal("Load() should fail")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}
