// Package enrollment tracks per-user course progress.
package enrollment

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// Enrollment is one user's progress in one course.
type Enrollment struct {
	CourseID string `yaml:"course_id" json:"courseId"`
	Progress int    `yaml:"progress" json:"progress"`
}

// Ledger stores enrollments. Only the progression engine writes to it.
type Ledger interface {
	Set(ctx context.Context, userID, courseID string, progress int) error
	Get(ctx context.Context, userID, courseID string) (Enrollment, bool, error)
	List(ctx context.Context, userID string) ([]Enrollment, error)
}

// OverallProgress averages progress across enrollments, rounded to the nearest integer.
func OverallProgress(enrollments []Enrollment) int {
	if len(enrollments) == 0 {
		return 0
	}
	total := 0
	for _, e := range enrollments {
		total += Clamp(e.Progress)
	}
	return int(math.Round(float64(total) / float64(len(enrollments))))
}

// Stats counts finished and unfinished enrollments.
type Stats struct {
	Completed  int `json:"completed"`
	InProgress int `json:"inProgress"`
}

// Summarize counts enrollments at 100% as completed and the rest as in progress.
func Summarize(enrollments []Enrollment) Stats {
	var s Stats
	for _, e := range enrollments {
		if Clamp(e.Progress) == 100 {
			s.Completed++
		} else {
			s.InProgress++
		}
	}
	return s
}

// Clamp bounds a progress value to 0..100.
func Clamp(progress int) int {
	switch {
	case progress < 0:
		return 0
	case progress > 100:
		return 100
	default:
		return progress
	}
}

// MemoryLedger is an in-memory Ledger. List preserves enrollment order.
type MemoryLedger struct {
	mu    sync.RWMutex
	users map[string][]Enrollment
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{users: make(map[string][]Enrollment)}
}

// Seed loads initial enrollments for a user without overwriting existing ones.
func (l *MemoryLedger) Seed(userID string, enrollments []Enrollment) {
	for _, e := range enrollments {
		if _, found, _ := l.Get(context.Background(), userID, e.CourseID); found {
			continue
		}
		_ = l.Set(context.Background(), userID, e.CourseID, e.Progress)
	}
}

func (l *MemoryLedger) Set(_ context.Context, userID, courseID string, progress int) error {
	if userID == "" || courseID == "" {
		return fmt.Errorf("user_id and course_id are required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	list := l.users[userID]
	for i := range list {
		if list[i].CourseID == courseID {
			list[i].Progress = Clamp(progress)
			return nil
		}
	}
	l.users[userID] = append(list, Enrollment{CourseID: courseID, Progress: Clamp(progress)})
	return nil
}

func (l *MemoryLedger) Get(_ context.Context, userID, courseID string) (Enrollment, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, e := range l.users[userID] {
		if e.CourseID == courseID {
			return e, true, nil
		}
	}
	return Enrollment{}, false, nil
}

func (l *MemoryLedger) List(_ context.Context, userID string) ([]Enrollment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Enrollment{}, l.users[userID]...), nil
}
