// Package quiz runs timed multiple-choice assessments over a category bank.
package quiz

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-academy/internal/catalog"
	"github.com/p-n-ai/pai-academy/internal/platform/clock"
)

const (
	// DefaultTimeLimit is the countdown for one attempt.
	DefaultTimeLimit = 5 * time.Minute
	// DefaultMasteryThreshold is the percentage required for mastery.
	DefaultMasteryThreshold = 80

	tick = time.Second
)

var (
	ErrNotFound      = errors.New("quiz not found")
	ErrNoSelection   = errors.New("no answer selected")
	ErrSubmitted     = errors.New("attempt already submitted")
	ErrInvalidAnswer = errors.New("invalid answer")
)

// ReviewItem describes one graded question.
type ReviewItem struct {
	QuestionID  int    `json:"questionId"`
	Question    string `json:"question"`
	Selected    string `json:"selected"`
	Answer      string `json:"answer"`
	Correct     bool   `json:"correct"`
	Explanation string `json:"explanation"`
}

// Result is the graded outcome of an attempt.
type Result struct {
	AttemptID     string       `json:"attemptId"`
	Category      string       `json:"category"`
	Score         int          `json:"score"`
	Total         int          `json:"total"`
	Percentage    int          `json:"percentage"`
	Mastery       bool         `json:"mastery"`
	AutoSubmitted bool         `json:"autoSubmitted"`
	Review        []ReviewItem `json:"review"`
}

// Question is a bank question without its answer.
type Question struct {
	ID       int      `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// State is a snapshot of an attempt in progress.
type State struct {
	ID        string         `json:"id"`
	Category  string         `json:"category"`
	Current   int            `json:"current"`
	Question  Question       `json:"question"`
	Total     int            `json:"total"`
	Remaining int            `json:"remainingSeconds"`
	Answers   map[int]string `json:"answers"`
	Submitted bool           `json:"submitted"`
	Result    *Result        `json:"result,omitempty"`
}

// Attempt is one timed run through a category bank.
type Attempt struct {
	id        string
	category  string
	questions []catalog.QuizQuestion
	threshold int
	clock     clock.Clock
	onSubmit  func(Result)

	mu        sync.Mutex
	current   int
	answers   map[int]string
	remaining int
	timer     clock.Timer
	submitted bool
	result    Result
	once      sync.Once
}

// Start begins an attempt and its countdown. onSubmit, if set, is called
// exactly once with the graded result, whichever of the manual submit or the
// countdown gets there first.
func Start(clk clock.Clock, category string, bank []catalog.QuizQuestion, limit time.Duration, threshold int, onSubmit func(Result)) (*Attempt, error) {
	if len(bank) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, category)
	}
	if limit <= 0 {
		limit = DefaultTimeLimit
	}
	if threshold <= 0 || threshold > 100 {
		threshold = DefaultMasteryThreshold
	}

	a := &Attempt{
		id:        uuid.NewString(),
		category:  category,
		questions: append([]catalog.QuizQuestion{}, bank...),
		threshold: threshold,
		clock:     clk,
		onSubmit:  onSubmit,
		answers:   make(map[int]string),
		remaining: int(math.Ceil(limit.Seconds())),
	}
	a.mu.Lock()
	a.timer = clk.AfterFunc(tick, a.tick)
	a.mu.Unlock()
	return a, nil
}

// ID returns the attempt identifier.
func (a *Attempt) ID() string {
	return a.id
}

func (a *Attempt) tick() {
	a.mu.Lock()
	if a.submitted {
		a.mu.Unlock()
		return
	}
	a.remaining--
	if a.remaining > 0 {
		a.timer = a.clock.AfterFunc(tick, a.tick)
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()
	a.finish(true)
}

// Answer records option as the answer to the question at index.
func (a *Attempt) Answer(index int, option string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.submitted {
		return ErrSubmitted
	}
	if index < 0 || index >= len(a.questions) {
		return fmt.Errorf("%w: question index %d out of range", ErrInvalidAnswer, index)
	}
	if option == "" {
		return ErrNoSelection
	}
	q := a.questions[index]
	valid := false
	for _, o := range q.Options {
		if o == option {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: %q is not an option of question %d", ErrInvalidAnswer, option, q.ID)
	}
	a.answers[q.ID] = option
	return nil
}

// Goto moves to the question at index, clamped to the bank.
func (a *Attempt) Goto(index int) State {
	a.mu.Lock()
	a.current = min(max(index, 0), len(a.questions)-1)
	a.mu.Unlock()
	return a.State()
}

// Submit grades the attempt and stops the countdown. Later calls, including
// a countdown expiring afterwards, return the same result with first=false.
func (a *Attempt) Submit() (result Result, first bool) {
	return a.finish(false)
}

func (a *Attempt) finish(auto bool) (Result, bool) {
	first := false
	a.once.Do(func() {
		first = true
		a.mu.Lock()
		if a.timer != nil {
			a.timer.Stop()
		}
		a.submitted = true
		a.result = a.grade(auto)
		res := a.result
		a.mu.Unlock()

		if a.onSubmit != nil {
			a.onSubmit(res)
		}
	})

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result, first
}

// Stop cancels the countdown without submitting.
func (a *Attempt) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
	}
}

func (a *Attempt) grade(auto bool) Result {
	res := Result{
		AttemptID:     a.id,
		Category:      a.category,
		Total:         len(a.questions),
		AutoSubmitted: auto,
		Review:        make([]ReviewItem, 0, len(a.questions)),
	}
	for _, q := range a.questions {
		selected := a.answers[q.ID]
		correct := selected == q.Answer
		if correct {
			res.Score++
		}
		res.Review = append(res.Review, ReviewItem{
			QuestionID:  q.ID,
			Question:    q.Question,
			Selected:    selected,
			Answer:      q.Answer,
			Correct:     correct,
			Explanation: q.Explanation,
		})
	}
	res.Percentage = Percentage(res.Score, res.Total)
	res.Mastery = res.Percentage >= a.threshold
	return res
}

// State snapshots the attempt.
func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()

	q := a.questions[a.current]
	st := State{
		ID:       a.id,
		Category: a.category,
		Current:  a.current,
		Question: Question{
			ID:       q.ID,
			Question: q.Question,
			Options:  append([]string{}, q.Options...),
		},
		Total:     len(a.questions),
		Remaining: max(a.remaining, 0),
		Answers:   make(map[int]string, len(a.answers)),
		Submitted: a.submitted,
	}
	for k, v := range a.answers {
		st.Answers[k] = v
	}
	if a.submitted {
		res := a.result
		st.Result = &res
	}
	return st
}

// Percentage is round(100 * score / total), 0 for an empty quiz.
func Percentage(score, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(score) / float64(total)))
}
