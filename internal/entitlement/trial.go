package entitlement

import (
	"time"

	"chainvoice/internal/types"
)

// DefaultTrialDays is the fixed trial length.
const DefaultTrialDays = 5

// TrialClock computes trial activity from a start timestamp and the fixed
// trial length. The clock function is injectable for tests.
type TrialClock struct {
	trialDays int
	now       func() time.Time
}

// NewTrialClock creates a TrialClock with the given trial length in days.
// A non-positive length falls back to the default.
func NewTrialClock(trialDays int) *TrialClock {
	if trialDays <= 0 {
		trialDays = DefaultTrialDays
	}
	return &TrialClock{
		trialDays: trialDays,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithNow returns a copy of the clock using the given time source.
// Intended for tests.
func (c *TrialClock) WithNow(now func() time.Time) *TrialClock {
	return &TrialClock{trialDays: c.trialDays, now: now}
}

// Status computes the trial state for an identity.
//
// DaysRemaining = max(0, trialDays - floor(elapsed days)) and the trial is
// active while days remain. A nil start with the consumed latch unset means
// the trial has not started yet: it reports active with the full allowance.
// Once consumed, the trial is never active again regardless of elapsed
// time; consumption is a one-way latch, not reversible by clock drift.
func (c *TrialClock) Status(startedAt *time.Time, consumed bool) types.TrialStatus {
	if consumed {
		return types.TrialStatus{Active: false, DaysRemaining: 0}
	}

	if startedAt == nil {
		return types.TrialStatus{Active: true, DaysRemaining: c.trialDays}
	}

	elapsed := c.now().Sub(startedAt.UTC())
	elapsedDays := int(elapsed.Hours() / 24)
	if elapsedDays < 0 {
		// A start timestamp in the future grants the full allowance.
		elapsedDays = 0
	}

	remaining := c.trialDays - elapsedDays
	if remaining < 0 {
		remaining = 0
	}

	return types.TrialStatus{
		Active:        remaining > 0,
		DaysRemaining: remaining,
	}
}
