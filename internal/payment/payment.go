// Package payment simulates the checkout that unlocks premium course content.
// No money moves: a charge is a timed wait that always succeeds unless the
// amount is invalid or the caller gives up.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-academy/internal/platform/clock"
)

// DefaultDelay matches the checkout spinner of the course page.
const DefaultDelay = 2 * time.Second

// ErrDeclined is returned for charges the processor refuses.
var ErrDeclined = errors.New("payment declined")

// Receipt confirms a completed charge.
type Receipt struct {
	ID       string    `json:"id"`
	UserID   string    `json:"userId"`
	CourseID string    `json:"courseId"`
	Amount   int       `json:"amount"`
	PaidAt   time.Time `json:"paidAt"`
}

// Processor charges a user for a course.
type Processor struct {
	clock    clock.Clock
	delay    time.Duration
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewProcessor creates a processor that waits delay on clk before confirming.
func NewProcessor(clk clock.Clock, delay time.Duration) *Processor {
	return &Processor{
		clock:    clk,
		delay:    delay,
		inFlight: make(map[string]struct{}),
	}
}

// Pending reports whether a charge for (userID, courseID) is in progress.
func (p *Processor) Pending(userID, courseID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inFlight[key(userID, courseID)]
	return ok
}

// Charge takes payment. While a charge for the same user and course is still
// pending a second call returns accepted=false and does nothing.
func (p *Processor) Charge(ctx context.Context, userID, courseID string, amount int) (receipt Receipt, accepted bool, err error) {
	if amount <= 0 {
		return Receipt{}, true, fmt.Errorf("%w: invalid amount %d", ErrDeclined, amount)
	}

	k := key(userID, courseID)
	p.mu.Lock()
	if _, busy := p.inFlight[k]; busy {
		p.mu.Unlock()
		return Receipt{}, false, nil
	}
	p.inFlight[k] = struct{}{}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.inFlight, k)
		p.mu.Unlock()
	}()

	if err := clock.Sleep(ctx, p.clock, p.delay); err != nil {
		return Receipt{}, true, fmt.Errorf("charging %s: %w", courseID, err)
	}

	receipt = Receipt{
		ID:       uuid.NewString(),
		UserID:   userID,
		CourseID: courseID,
		Amount:   amount,
		PaidAt:   p.clock.Now(),
	}
	slog.Info("payment confirmed",
		"user_id", userID,
		"course_id", courseID,
		"amount", amount,
		"receipt", receipt.ID,
	)
	return receipt, true, nil
}

func key(userID, courseID string) string {
	return userID + "\x00" + courseID
}
