// Package progress implements course progression: topic navigation, completion
// tracking, premium gating and the completion trigger for certificates.
package progress

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/p-n-ai/pai-academy/internal/assessment"
	"github.com/p-n-ai/pai-academy/internal/catalog"
)

// FreeTopicLimit is the number of leading topics open in every paid course.
const FreeTopicLimit = 2

// ErrTopicLocked is returned when completing a premium topic before unlock.
var ErrTopicLocked = errors.New("topic is locked")

// NotFoundError reports a topic id that is not part of the session's course.
type NotFoundError struct {
	CourseID string
	TopicID  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("topic %q not found in course %q", e.TopicID, e.CourseID)
}

// Direction moves the topic cursor.
type Direction int

const (
	Next Direction = iota
	Prev
)

func (d Direction) String() string {
	switch d {
	case Next:
		return "next"
	case Prev:
		return "prev"
	default:
		return "unknown"
	}
}

// ParseDirection accepts "next" or "prev".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "next":
		return Next, nil
	case "prev":
		return Prev, nil
	default:
		return 0, fmt.Errorf("invalid direction %q", s)
	}
}

// Observer receives state transitions in the order they happened. Calls
// happen after the session lock is released but must not call back into the
// session. A CourseCompleted error re-arms the trigger, so the next update
// that finds the course at 100% reports completion again.
type Observer interface {
	ProgressChanged(course catalog.Course, percent int)
	CourseCompleted(course catalog.Course) error
	CourseUnlocked(course catalog.Course)
}

// Change is the outcome of a completion update.
type Change struct {
	Percent int
	// Completed is the topic's state after the update.
	Completed bool
	// Changed is false when the update left the completion set as it was.
	Changed bool
}

// Attempt is the transient per-topic check state, reset whenever the active topic changes.
type Attempt struct {
	Draft           string             `json:"draft"`
	QuizSelection   *int               `json:"quizSelection,omitempty"`
	QuizResult      assessment.Outcome `json:"quizResult,omitempty"`
	ChallengeResult assessment.Outcome `json:"challengeResult,omitempty"`
	Feedback        string             `json:"feedback,omitempty"`
}

// Session is one learner's pass through one course. The completion set lives
// only as long as the session.
type Session struct {
	mu        sync.Mutex
	course    catalog.Course
	active    int
	completed map[string]struct{}
	unlocked  bool
	atFull    bool
	attempt   Attempt
	observer  Observer

	// delivery is taken under mu and held until the observer returns.
	delivery sync.Mutex
	rearm    atomic.Bool
}

// Option configures a Session.
type Option func(*Session)

// WithObserver registers the observer for progress, completion and unlock events.
func WithObserver(o Observer) Option {
	return func(s *Session) {
		s.observer = o
	}
}

// WithUnlocked starts the session with premium topics already unlocked.
func WithUnlocked(unlocked bool) Option {
	return func(s *Session) {
		s.unlocked = unlocked
	}
}

// NewSession opens a course with the cursor on the first topic.
func NewSession(course catalog.Course, opts ...Option) (*Session, error) {
	if len(course.Topics) == 0 {
		return nil, fmt.Errorf("course %q has no topics", course.ID)
	}
	s := &Session{
		course:    course,
		completed: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resetAttempt()
	return s, nil
}

// Course returns the session's course.
func (s *Session) Course() catalog.Course {
	return s.course
}

// ActiveTopic returns the topic under the cursor and its index.
func (s *Session) ActiveTopic() (catalog.Topic, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.course.Topics[s.active], s.active
}

// SelectTopic moves the cursor to topicID and resets the per-topic check state.
func (s *Session) SelectTopic(topicID string) (catalog.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.course.TopicIndex(topicID)
	if i < 0 {
		return catalog.Topic{}, &NotFoundError{CourseID: s.course.ID, TopicID: topicID}
	}
	s.active = i
	s.resetAttempt()
	return s.course.Topics[i], nil
}

// IsLocked reports whether the topic at index is behind the paywall.
func (s *Session) IsLocked(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isLocked(index)
}

func (s *Session) isLocked(index int) bool {
	return !s.course.IsFree && index >= FreeTopicLimit && !s.unlocked
}

// IsUnlocked reports whether premium topics were unlocked in this session.
func (s *Session) IsUnlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlocked
}

// Unlock opens the premium topics. There is no way back.
func (s *Session) Unlock() {
	s.mu.Lock()
	if s.unlocked {
		s.mu.Unlock()
		return
	}
	s.unlocked = true
	s.delivery.Lock()
	s.mu.Unlock()
	defer s.delivery.Unlock()

	if s.observer != nil {
		s.observer.CourseUnlocked(s.course)
	}
}

// MarkComplete adds or removes a topic from the completion set and returns
// the recomputed progress. Repeating the same call changes nothing.
func (s *Session) MarkComplete(topicID string, completed bool) (int, error) {
	c, err := s.Mark(topicID, completed)
	return c.Percent, err
}

// ToggleComplete flips a topic's completion.
func (s *Session) ToggleComplete(topicID string) (int, error) {
	c, err := s.Toggle(topicID)
	return c.Percent, err
}

// Mark is MarkComplete reporting whether the completion set changed.
func (s *Session) Mark(topicID string, completed bool) (Change, error) {
	return s.update(topicID, func(bool) bool { return completed })
}

// Toggle flips a topic's completion in one step, so concurrent toggles each
// see the other's result.
func (s *Session) Toggle(topicID string) (Change, error) {
	return s.update(topicID, func(had bool) bool { return !had })
}

func (s *Session) update(topicID string, want func(had bool) bool) (Change, error) {
	s.mu.Lock()
	i := s.course.TopicIndex(topicID)
	if i < 0 {
		s.mu.Unlock()
		return Change{}, &NotFoundError{CourseID: s.course.ID, TopicID: topicID}
	}
	if s.isLocked(i) {
		s.mu.Unlock()
		return Change{}, fmt.Errorf("%w: %s", ErrTopicLocked, topicID)
	}

	_, had := s.completed[topicID]
	completed := want(had)
	if completed {
		s.completed[topicID] = struct{}{}
	} else {
		delete(s.completed, topicID)
	}
	c := Change{Completed: completed, Changed: had != completed}
	var reachedFull bool
	c.Percent, reachedFull = s.recompute()
	if !c.Changed && !reachedFull {
		s.mu.Unlock()
		return c, nil
	}
	s.delivery.Lock()
	s.mu.Unlock()
	defer s.delivery.Unlock()

	s.notify(c.Percent, reachedFull)
	return c, nil
}

// IsCompleted reports whether topicID is in the completion set.
func (s *Session) IsCompleted(topicID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.completed[topicID]
	return ok
}

// CompletedTopics returns completed topic ids in course order.
func (s *Session) CompletedTopics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.completed))
	for _, t := range s.course.Topics {
		if _, ok := s.completed[t.ID]; ok {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// Advance moves the cursor one topic. Moving forward requires the active topic
// to be complete; at either end of the course it does nothing.
func (s *Session) Advance(dir Direction) (catalog.Topic, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.active
	switch dir {
	case Next:
		if _, done := s.completed[s.course.Topics[s.active].ID]; !done {
			return catalog.Topic{}, false
		}
		next++
	case Prev:
		next--
	}
	if next < 0 || next >= len(s.course.Topics) || next == s.active {
		return catalog.Topic{}, false
	}

	s.active = next
	s.resetAttempt()
	return s.course.Topics[next], true
}

// ProgressPercent returns round(100 * completed / topics).
func (s *Session) ProgressPercent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.percent()
}

// Attempt returns the check state of the active topic.
func (s *Session) Attempt() Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.attempt
	if a.QuizSelection != nil {
		v := *a.QuizSelection
		a.QuizSelection = &v
	}
	return a
}

// SetDraft stores the learner's in-progress code for the active topic.
func (s *Session) SetDraft(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempt.Draft = code
}

// RecordQuiz stores a knowledge-check answer for topicID if it is still active.
func (s *Session) RecordQuiz(topicID string, selection int, outcome assessment.Outcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.course.Topics[s.active].ID != topicID {
		return false
	}
	s.attempt.QuizSelection = &selection
	s.attempt.QuizResult = outcome
	return true
}

// RecordChallenge stores a lab result for topicID if it is still active.
func (s *Session) RecordChallenge(topicID, code string, outcome assessment.Outcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.course.Topics[s.active].ID != topicID {
		return false
	}
	s.attempt.Draft = code
	s.attempt.ChallengeResult = outcome
	s.attempt.Feedback = ""
	return true
}

// RecordFeedback stores mentor feedback for topicID if it is still active.
func (s *Session) RecordFeedback(topicID, feedback string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.course.Topics[s.active].ID != topicID {
		return false
	}
	s.attempt.Feedback = feedback
	return true
}

func (s *Session) percent() int {
	n := len(s.course.Topics)
	if n == 0 {
		return 0
	}
	done := 0
	for _, t := range s.course.Topics {
		if _, ok := s.completed[t.ID]; ok {
			done++
		}
	}
	p := int(math.Round(100 * float64(done) / float64(n)))
	return min(max(p, 0), 100)
}

// recompute reports the new percentage and whether this change entered 100%.
// A failed completion delivery re-arms the trigger for the next update at 100%.
func (s *Session) recompute() (int, bool) {
	p := s.percent()
	if p < 100 {
		s.atFull = false
		s.rearm.Store(false)
		return p, false
	}
	if s.atFull && !s.rearm.Swap(false) {
		return p, false
	}
	s.atFull = true
	return p, true
}

// notify runs with delivery held.
func (s *Session) notify(percent int, reachedFull bool) {
	if s.observer == nil {
		return
	}
	s.observer.ProgressChanged(s.course, percent)
	if reachedFull {
		if err := s.observer.CourseCompleted(s.course); err != nil {
			s.rearm.Store(true)
		}
	}
}

func (s *Session) resetAttempt() {
	s.attempt = Attempt{}
	if cc := s.course.Topics[s.active].CodingChallenge; cc != nil {
		s.attempt.Draft = cc.InitialCode
	}
}
