// Package rotation implements the staff hand-off arithmetic for therapy
// sessions: which slot is active, how much time each slot has absorbed and
// which transition, if any, is due. Evaluation is a pure function of the
// recorded session state and a caller supplied instant, so the periodic
// scheduler, the manual operations and the agenda view all derive the same
// answer from the same record.
package rotation

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotRunning is returned when a session without a start timestamp is
// evaluated; only running sessions rotate.
var ErrNotRunning = errors.New("rotation: session is not running")

// Session is the slice of recorded state the engine needs. ActiveSlot and
// Elapsed reflect what has been persisted so far; a manual hand-off may have
// closed a slot below its full duration, and the frozen value must be
// honoured on recomputation.
type Session struct {
	ID           string
	SlotCount    int
	SlotDuration time.Duration
	StartedAt    time.Time
	ActiveSlot   int
	Elapsed      []time.Duration
}

// Action names the transition the scheduler must persist next.
type Action string

const (
	// ActionContinue means the active slot still has time left.
	ActionContinue Action = "continue"
	// ActionAdvance means the recorded active slot is exhausted and the
	// hand-off to Evaluation.AdvanceTo is due.
	ActionAdvance Action = "advance"
	// ActionFinalize means the last slot is exhausted and the session must
	// be closed.
	ActionFinalize Action = "finalize"
)

// Evaluation is the derived rotation state at a given instant.
type Evaluation struct {
	// ActiveSlot is the 1-based slot that should be in charge right now.
	ActiveSlot int
	// Elapsed holds per-slot absorbed time: the full slot duration for
	// finished slots, a partial value for the active one, zero beyond it.
	Elapsed []time.Duration
	// Remaining is the time left in the active slot, never negative.
	Remaining time.Duration
	// Next is the transition due against the recorded state.
	Next Action
	// AdvanceTo is the 1-based target slot when Next is ActionAdvance.
	AdvanceTo int
	// Overdue reports that a transition is due but not yet persisted.
	Overdue bool
}

// Evaluate derives the rotation state of a running session at the supplied
// instant. It never mutates the input and calling it twice with identical
// arguments yields identical results.
func Evaluate(s Session, now time.Time) (Evaluation, error) {
	if s.StartedAt.IsZero() {
		return Evaluation{}, ErrNotRunning
	}
	if s.SlotCount < 1 || s.SlotCount > MaxSlots {
		return Evaluation{}, fmt.Errorf("rotation: slot count %d out of range", s.SlotCount)
	}
	if s.SlotDuration <= 0 {
		return Evaluation{}, fmt.Errorf("rotation: slot duration %s must be positive", s.SlotDuration)
	}

	recorded := s.ActiveSlot
	if recorded < 1 {
		recorded = 1
	}
	if recorded > s.SlotCount {
		recorded = s.SlotCount
	}

	total := now.Sub(s.StartedAt)
	if total < 0 {
		total = 0
	}

	// Distribute the wall-clock elapsed time across the slots in order.
	// Slots behind the recorded active slot are capped at their frozen
	// credit rather than the full duration, so an early manual hand-off
	// keeps the short slot short instead of snapping back in time.
	elapsed := make([]time.Duration, s.SlotCount)
	left := total
	for i := 0; i < s.SlotCount; i++ {
		limit := s.SlotDuration
		if i < recorded-1 && i < len(s.Elapsed) && s.Elapsed[i] < limit {
			limit = s.Elapsed[i]
		}
		take := left
		if take > limit {
			take = limit
		}
		elapsed[i] = take
		left -= take
	}

	// The active slot is the first unexhausted one at or past the recorded
	// slot; it never moves backwards.
	active := recorded
	for active < s.SlotCount && elapsed[active-1] >= s.SlotDuration {
		active++
	}

	remaining := s.SlotDuration - elapsed[active-1]
	if remaining < 0 {
		remaining = 0
	}

	eval := Evaluation{
		ActiveSlot: active,
		Elapsed:    elapsed,
		Remaining:  remaining,
		Next:       ActionContinue,
	}

	switch {
	case active == s.SlotCount && remaining == 0:
		eval.Next = ActionFinalize
		eval.Overdue = true
	case active > recorded:
		eval.Next = ActionAdvance
		eval.AdvanceTo = active
		eval.Overdue = true
	}

	return eval, nil
}
