package quiz

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/p-n-ai/pai-academy/internal/catalog"
	"github.com/p-n-ai/pai-academy/internal/platform/clock"
)

// Service tracks attempts across users.
type Service struct {
	catalog   *catalog.Catalog
	clock     clock.Clock
	limit     time.Duration
	threshold int

	mu       sync.Mutex
	onSubmit func(userID string, r Result)
	attempts map[string]*Attempt
	owners   map[string]string
	history  map[string][]Result
}

// NewService creates a quiz service over the catalog's category banks.
func NewService(cat *catalog.Catalog, clk clock.Clock, limit time.Duration, threshold int) *Service {
	return &Service{
		catalog:   cat,
		clock:     clk,
		limit:     limit,
		threshold: threshold,
		attempts:  make(map[string]*Attempt),
		owners:    make(map[string]string),
		history:   make(map[string][]Result),
	}
}

// OnSubmit registers fn to run after every graded attempt, including
// auto-submitted ones.
func (s *Service) OnSubmit(fn func(userID string, r Result)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSubmit = fn
}

// Start begins a new attempt for userID on category.
func (s *Service) Start(userID, category string) (*Attempt, error) {
	bank, ok := s.catalog.QuizBank(category)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, category)
	}

	a, err := Start(s.clock, category, bank, s.limit, s.threshold, func(r Result) {
		s.record(userID, r)
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.attempts[a.ID()] = a
	s.owners[a.ID()] = userID
	s.mu.Unlock()
	return a, nil
}

// Get returns an attempt owned by userID.
func (s *Service) Get(userID, attemptID string) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok || s.owners[attemptID] != userID {
		return nil, fmt.Errorf("%w: attempt %s", ErrNotFound, attemptID)
	}
	return a, nil
}

// History returns the user's graded attempts, oldest first.
func (s *Service) History(userID string) []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Result{}, s.history[userID]...)
}

// Close stops every running countdown.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		a.Stop()
	}
}

func (s *Service) record(userID string, r Result) {
	s.mu.Lock()
	s.history[userID] = append(s.history[userID], r)
	onSubmit := s.onSubmit
	s.mu.Unlock()

	if onSubmit != nil {
		onSubmit(userID, r)
	}

	slog.Info("quiz submitted",
		"user_id", userID,
		"category", r.Category,
		"score", r.Score,
		"percentage", r.Percentage,
		"mastery", r.Mastery,
		"auto", r.AutoSubmitted,
	)
}
