package assessment

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/p-n-ai/pai-academy/internal/catalog"
	"github.com/p-n-ai/pai-academy/internal/platform/clock"
)

// DefaultLabDelay matches the simulated kernel start-up of the lab UI.
const DefaultLabDelay = 1500 * time.Millisecond

// LabRun is a completed lab submission with the simulated terminal transcript.
type LabRun struct {
	Result
	Terminal []string `json:"terminal"`
}

// Lab runs coding challenge checks with simulated latency, one at a time.
type Lab struct {
	clock   clock.Clock
	delay   time.Duration
	running atomic.Bool
}

// NewLab creates a lab timed by clk. A non-positive delay reports results immediately.
func NewLab(clk clock.Clock, delay time.Duration) *Lab {
	return &Lab{clock: clk, delay: delay}
}

// Running reports whether a submission is pending.
func (l *Lab) Running() bool {
	return l.running.Load()
}

// Submit checks code after the simulated delay. If another submission is
// still pending it returns accepted=false and does nothing.
func (l *Lab) Submit(ctx context.Context, code string, challenge catalog.CodingChallenge) (run LabRun, accepted bool, err error) {
	if !l.running.CompareAndSwap(false, true) {
		return LabRun{}, false, nil
	}
	defer l.running.Store(false)

	if err := clock.Sleep(ctx, l.clock, l.delay); err != nil {
		return LabRun{}, true, err
	}

	res := CheckCode(code, challenge)
	terminal := []string{
		"> Initializing Python kernel...",
		"> Loading environment...",
		"> Running logic...",
	}
	if res.Passed() {
		terminal = append(terminal, "✓ EXECUTION SUCCESSFUL", "---", "Result: Input validated against pattern.")
	} else {
		terminal = append(terminal, "✖ LOGIC ERROR DETECTED", "---", "Traceback: LogicMismatchError at module level.", "Explanation: "+res.Explanation)
	}
	return LabRun{Result: res, Terminal: terminal}, true, nil
}
