package core

import (
	"fmt"
	"sync"
)

// ModelLimiter caps the number of model calls one run may make. The host
// consumes one slot before every generation turn; once the cap is hit the
// run fails instead of looping on the model. A max of 0 disables the cap.
type ModelLimiter struct {
	mu    sync.Mutex
	max   int
	count int
}

// NewModelLimiter creates a limiter allowing max calls, 0 for unlimited.
func NewModelLimiter(max int) *ModelLimiter {
	return &ModelLimiter{max: max}
}

// Increment consumes one call slot and fails once the cap is exceeded.
func (l *ModelLimiter) Increment() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.count++
	if l.max > 0 && l.count > l.max {
		return fmt.Errorf("exceeded max model calls: %d", l.max)
	}

	return nil
}

// Count reports the calls consumed so far.
func (l *ModelLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}

// Remaining reports how many calls are left before the cap, -1 when
// unlimited.
func (l *ModelLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max == 0 {
		return -1
	}

	return l.max - l.count
}
