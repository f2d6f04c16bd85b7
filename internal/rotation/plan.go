package rotation

import (
	"fmt"
	"strings"
	"time"
)

// MaxSlots is the largest number of staff slots a session may carry.
const MaxSlots = 3

// SessionType identifies how many staff members share a session.
type SessionType string

const (
	// TypeIndividual is a single-staff session.
	TypeIndividual SessionType = "individual"
	// TypeShared is a two-staff session with one hand-off.
	TypeShared SessionType = "shared"
	// TypeTriple is a three-staff session with two hand-offs.
	TypeTriple SessionType = "triple"
)

// Slots returns the number of staff slots the session type occupies.
func (t SessionType) Slots() int {
	switch t {
	case TypeShared:
		return 2
	case TypeTriple:
		return 3
	default:
		return 1
	}
}

// Valid reports whether the value is a known session type.
func (t SessionType) Valid() bool {
	switch t {
	case TypeIndividual, TypeShared, TypeTriple:
		return true
	}
	return false
}

// ParseSessionType normalizes a caller supplied session type string.
func ParseSessionType(value string) (SessionType, error) {
	t := SessionType(strings.ToLower(strings.TrimSpace(value)))
	if !t.Valid() {
		return "", fmt.Errorf("rotation: unknown session type %q", value)
	}
	return t, nil
}

// RoomCategory selects which duration rule applies to sessions in a room.
type RoomCategory string

const (
	// CategoryStandard rooms run a fixed total session length split evenly
	// across the staff slots, whatever the session type.
	CategoryStandard RoomCategory = "standard"
	// CategoryAssessment rooms (intake, anamnesis, neuropsychology) run a
	// fixed per-slot length instead, so the total grows with the slot count.
	CategoryAssessment RoomCategory = "assessment"
)

// Policy carries the two duration knobs observed in production: assessment
// rooms rotate on a fixed per-slot duration while every other room fits the
// whole session into a flat total regardless of type. The flat total looks
// like an accidental rule rather than a deliberate one; it is kept exactly as
// observed and configurable until product confirms the intent.
type Policy struct {
	FlexibleSlotDuration    time.Duration
	StandardSessionDuration time.Duration
}

// DefaultPolicy returns the durations the clinic runs today: 30 minute slots
// in assessment rooms, 90 minute sessions everywhere else.
func DefaultPolicy() Policy {
	return Policy{
		FlexibleSlotDuration:    30 * time.Minute,
		StandardSessionDuration: 90 * time.Minute,
	}
}

// SlotPlan fixes the slot count and per-slot duration for one session.
type SlotPlan struct {
	Slots        int
	SlotDuration time.Duration
}

// Total returns the wall-clock length of the whole session.
func (p SlotPlan) Total() time.Duration {
	return time.Duration(p.Slots) * p.SlotDuration
}

// PlanFor derives the slot plan for a session of the given type held in a
// room of the given category.
func (p Policy) PlanFor(category RoomCategory, sessionType SessionType) SlotPlan {
	slots := sessionType.Slots()
	if category == CategoryAssessment {
		return SlotPlan{Slots: slots, SlotDuration: p.FlexibleSlotDuration}
	}
	return SlotPlan{Slots: slots, SlotDuration: p.StandardSessionDuration / time.Duration(slots)}
}
