// Package budget splits one global wall-clock deadline into per-stage
// allowances. A tail fraction is reserved after scoring so a slow scorer
// cannot starve the advice and speech stages entirely.
package budget

import (
	"fmt"
	"time"
)

const (
	// minTailReserveMS is the floor of the post-score reservation.
	minTailReserveMS = 3000
	// tailReserveFraction is the proportional post-score reservation.
	tailReserveFraction = 0.15
	// minScoreBudgetMS is the floor granted to the score stage.
	minScoreBudgetMS = 500
)

// Allocator tracks elapsed time against one global deadline.
type Allocator struct {
	start    time.Time
	globalMS int64
	now      func() time.Time
}

// NewAllocator starts the request clock against the given global deadline.
func NewAllocator(globalMS int64, now func() time.Time) (*Allocator, error) {
	if globalMS <= 0 {
		return nil, fmt.Errorf("global deadline must be >0ms, got %d", globalMS)
	}
	if now == nil {
		now = time.Now
	}
	return &Allocator{start: now(), globalMS: globalMS, now: now}, nil
}

// GlobalMS returns the full deadline in milliseconds.
func (a *Allocator) GlobalMS() int64 {
	return a.globalMS
}

// TailReserveMS returns the reservation held back for stages after scoring:
// at least 3000ms, or 15% of the global deadline, whichever is larger.
func (a *Allocator) TailReserveMS() int64 {
	proportional := int64(float64(a.globalMS) * tailReserveFraction)
	if proportional < minTailReserveMS {
		return minTailReserveMS
	}
	return proportional
}

// ScoreBudgetMS returns the allowance for the score stage.
func (a *Allocator) ScoreBudgetMS() int64 {
	raw := a.globalMS - a.TailReserveMS()
	capped := a.globalMS - 500
	if raw > capped {
		raw = capped
	}
	if raw < minScoreBudgetMS {
		return minScoreBudgetMS
	}
	return raw
}

// ElapsedMS returns wall-clock time consumed since request start.
func (a *Allocator) ElapsedMS() int64 {
	return a.now().Sub(a.start).Milliseconds()
}

// RemainingMS returns the budget left for any post-score stage. Zero means
// the stage must fail immediately rather than attempt a network call.
func (a *Allocator) RemainingMS() int64 {
	remaining := a.globalMS - a.ElapsedMS()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AttemptTimeout clamps a provider's default timeout to the remaining budget.
// The clamped value is used as-is even when it falls below one second.
func (a *Allocator) AttemptTimeout(providerDefault time.Duration) time.Duration {
	remaining := time.Duration(a.RemainingMS()) * time.Millisecond
	if providerDefault <= 0 || providerDefault > remaining {
		return remaining
	}
	return providerDefault
}

// ScoreAttemptTimeout clamps a provider's default timeout to what is left of
// the score budget, re-evaluated at call time.
func (a *Allocator) ScoreAttemptTimeout(providerDefault time.Duration) time.Duration {
	left := a.ScoreBudgetMS() - a.ElapsedMS()
	if left < 0 {
		left = 0
	}
	remaining := time.Duration(left) * time.Millisecond
	if providerDefault <= 0 || providerDefault > remaining {
		return remaining
	}
	return providerDefault
}
