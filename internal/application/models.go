package application

import (
	"time"

	"github.com/example/therapy-scheduler/internal/persistence"
	"github.com/example/therapy-scheduler/internal/rotation"
)

// Session lifecycle statuses surfaced to callers.
const (
	StatusScheduled  = persistence.StatusScheduled
	StatusArrived    = persistence.StatusArrived
	StatusInProgress = persistence.StatusInProgress
	StatusCompleted  = persistence.StatusCompleted
	StatusNoShow     = persistence.StatusNoShow
)

// Room is the catalog view of a treatment room.
type Room struct {
	ID           string
	Name         string
	Category     rotation.RoomCategory
	Capacity     int
	DisplayOrder int
	LabelColor   *string
	Active       bool
}

// TherapySession is the caller-facing view of one appointment.
type TherapySession struct {
	ID             string
	RoomID         string
	PatientRef     string
	PatientLabel   string
	SessionType    rotation.SessionType
	StaffSlots     []string
	Status         string
	ScheduledStart time.Time
	ScheduledEnd   time.Time
	ArrivedAt      *time.Time
	StartedAt      *time.Time
	FinalizedAt    *time.Time
	ActiveSlot     int
	SlotElapsed    []time.Duration
}

// ActiveStaff returns the staff member in the recorded active slot.
func (s TherapySession) ActiveStaff() string {
	if s.ActiveSlot < 1 || s.ActiveSlot > len(s.StaffSlots) {
		return ""
	}
	return s.StaffSlots[s.ActiveSlot-1]
}

// CreateSessionInput carries the fields accepted when booking a session.
// ScheduledEnd may be zero, in which case the duration policy fills it in.
type CreateSessionInput struct {
	RoomID         string
	PatientRef     string
	PatientLabel   string
	SessionType    string
	StaffRefs      []string
	ScheduledStart time.Time
	ScheduledEnd   time.Time
}

// RoomInput carries the fields accepted when registering a room.
type RoomInput struct {
	Name         string
	Category     string
	Capacity     int
	DisplayOrder int
	LabelColor   *string
}

// AllocationInput carries the fields accepted when assigning staff to a room.
type AllocationInput struct {
	StaffRef  string
	StaffName string
	RoomID    string
	Weekday   time.Weekday
	Period    string
}

// StaffAllocation is the caller-facing view of a standing assignment.
type StaffAllocation struct {
	ID        string
	StaffRef  string
	StaffName string
	RoomID    string
	Weekday   time.Weekday
	Period    string
}

// AlertKind labels the attention states the detector reports.
type AlertKind string

const (
	// AlertRotationImminent fires shortly before a hand-off is due.
	AlertRotationImminent AlertKind = "rotation_imminent"
	// AlertRotationOverdue fires once a hand-off or finalization is due
	// but not yet persisted.
	AlertRotationOverdue AlertKind = "rotation_overdue"
	// AlertArrivalOverdue fires when a scheduled patient has not arrived
	// past the tolerance window.
	AlertArrivalOverdue AlertKind = "arrival_overdue"
)

// Alert is one attention item surfaced on the agenda board.
type Alert struct {
	Kind      AlertKind
	SessionID string
	RoomID    string
	Message   string
}

// SessionView is a session enriched with live rotation state for the board.
type SessionView struct {
	TherapySession
	// CurrentSlot is the time-derived active slot; it may run ahead of the
	// recorded ActiveSlot when a transition is pending.
	CurrentSlot int
	Elapsed     []time.Duration
	Remaining   time.Duration
	NextAction  rotation.Action
	Overdue     bool
	Alerts      []Alert
}

// StaffPresence distinguishes assigned staff currently inside a session from
// the rest of the room's roster.
type StaffPresence struct {
	StaffRef  string
	StaffName string
	InSession bool
}

// RoomColumn is one room's column on the agenda board.
type RoomColumn struct {
	Room Room
	// Occupancy counts the sessions currently running in the room, to be
	// read against Room.Capacity.
	Occupancy int
	Sessions  []SessionView
	Staff     []StaffPresence
}

// RoomBoard is the full agenda view for one day.
type RoomBoard struct {
	Date        time.Time
	GeneratedAt time.Time
	// Stale marks a board served from cache because the store was
	// unreachable.
	Stale bool
	Rooms []RoomColumn
}

func roomFromPersistence(room persistence.Room) Room {
	return Room{
		ID:           room.ID,
		Name:         room.Name,
		Category:     rotation.RoomCategory(room.Category),
		Capacity:     room.Capacity,
		DisplayOrder: room.DisplayOrder,
		LabelColor:   room.LabelColor,
		Active:       room.Active,
	}
}

func sessionFromPersistence(session persistence.TherapySession) TherapySession {
	return TherapySession{
		ID:             session.ID,
		RoomID:         session.RoomID,
		PatientRef:     session.PatientRef,
		PatientLabel:   session.PatientLabel,
		SessionType:    rotation.SessionType(session.SessionType),
		StaffSlots:     append([]string(nil), session.StaffSlots...),
		Status:         session.Status,
		ScheduledStart: session.ScheduledStart,
		ScheduledEnd:   session.ScheduledEnd,
		ArrivedAt:      session.ArrivedAt,
		StartedAt:      session.StartedAt,
		FinalizedAt:    session.FinalizedAt,
		ActiveSlot:     session.ActiveSlot,
		SlotElapsed:    append([]time.Duration(nil), session.SlotElapsed...),
	}
}

func allocationFromPersistence(a persistence.StaffAllocation) StaffAllocation {
	return StaffAllocation{
		ID:        a.ID,
		StaffRef:  a.StaffRef,
		StaffName: a.StaffName,
		RoomID:    a.RoomID,
		Weekday:   a.Weekday,
		Period:    a.Period,
	}
}
