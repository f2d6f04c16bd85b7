package persistence

import "time"

// Session lifecycle statuses as persisted.
const (
	StatusScheduled  = "scheduled"
	StatusArrived    = "arrived"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusNoShow     = "no_show"
)

// Room represents a treatment room catalog entry. Category selects the
// duration rule applied to sessions held in the room; DisplayOrder fixes the
// column order on the agenda board.
type Room struct {
	ID           string
	Name         string
	Category     string
	Capacity     int
	DisplayOrder int
	LabelColor   *string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TherapySession represents one scheduled appointment and its rotation state.
// StaffSlots holds up to three staff identifiers in hand-off order; ActiveSlot
// is 1-based and SlotElapsed mirrors StaffSlots with the persisted per-slot
// credit.
type TherapySession struct {
	ID             string
	RoomID         string
	PatientRef     string
	PatientLabel   string
	SessionType    string
	StaffSlots     []string
	Status         string
	ScheduledStart time.Time
	ScheduledEnd   time.Time
	ArrivedAt      *time.Time
	StartedAt      *time.Time
	FinalizedAt    *time.Time
	ActiveSlot     int
	SlotElapsed    []time.Duration
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StaffAllocation represents a standing assignment of a staff member to a
// room for a weekday and period, used to tell assigned from free staff.
type StaffAllocation struct {
	ID        string
	StaffRef  string
	StaffName string
	RoomID    string
	Weekday   time.Weekday
	Period    string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
