package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/therapy-scheduler/internal/persistence"
)

var (
	roomCounter       uint64
	sessionCounter    uint64
	allocationCounter uint64
)

var referenceTime = time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Room fixtures -----------------------------

// RoomFixture represents a deterministic treatment room record.
type RoomFixture struct {
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

// RoomOption configures the generated room fixture.
type RoomOption func(*RoomFixture)

// NewRoomFixture returns a deterministic room fixture with optional overrides.
func NewRoomFixture(opts ...RoomOption) RoomFixture {
	idx := atomic.AddUint64(&roomCounter, 1)
	id := fmt.Sprintf("room-%03d", idx)
	fixture := RoomFixture{
		ID:           id,
		Name:         fmt.Sprintf("Sala %03d", idx),
		Category:     "standard",
		Capacity:     1,
		DisplayOrder: int(idx),
		Active:       true,
		CreatedAt:    referenceTime,
		UpdatedAt:    referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithRoomID overrides the generated room ID.
func WithRoomID(id string) RoomOption {
	return func(f *RoomFixture) {
		f.ID = id
	}
}

// WithRoomName overrides the generated room name.
func WithRoomName(name string) RoomOption {
	return func(f *RoomFixture) {
		f.Name = name
	}
}

// WithRoomCategory sets the duration rule category.
func WithRoomCategory(category string) RoomOption {
	return func(f *RoomFixture) {
		f.Category = category
	}
}

// WithRoomCapacity overrides the concurrent session capacity.
func WithRoomCapacity(capacity int) RoomOption {
	return func(f *RoomFixture) {
		f.Capacity = capacity
	}
}

// WithRoomDisplayOrder sets the agenda column position.
func WithRoomDisplayOrder(order int) RoomOption {
	return func(f *RoomFixture) {
		f.DisplayOrder = order
	}
}

// WithRoomInactive marks the room inactive.
func WithRoomInactive() RoomOption {
	return func(f *RoomFixture) {
		f.Active = false
	}
}

// Persistence returns the fixture as a persistence.Room value.
func (f RoomFixture) Persistence() persistence.Room {
	return persistence.Room{
		ID:           f.ID,
		Name:         f.Name,
		Category:     f.Category,
		Capacity:     f.Capacity,
		DisplayOrder: f.DisplayOrder,
		LabelColor:   copyStringPtr(f.LabelColor),
		Active:       f.Active,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

// --------------------------- Session fixtures ----------------------------

// SessionFixture represents a deterministic therapy session record.
type SessionFixture struct {
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

// SessionOption configures the generated session fixture.
type SessionOption func(*SessionFixture)

// NewSessionFixture returns a deterministic individual session scheduled at
// the reference time, with optional overrides.
func NewSessionFixture(opts ...SessionOption) SessionFixture {
	idx := atomic.AddUint64(&sessionCounter, 1)
	id := fmt.Sprintf("session-%03d", idx)
	start := referenceTime.Add(time.Duration(idx) * time.Hour)
	fixture := SessionFixture{
		ID:             id,
		RoomID:         fmt.Sprintf("room-%03d", idx),
		PatientRef:     fmt.Sprintf("patient-%03d", idx),
		PatientLabel:   fmt.Sprintf("Paciente %03d", idx),
		SessionType:    "individual",
		StaffSlots:     []string{fmt.Sprintf("staff-%03d", idx)},
		Status:         persistence.StatusScheduled,
		ScheduledStart: start,
		ScheduledEnd:   start.Add(90 * time.Minute),
		ActiveSlot:     1,
		SlotElapsed:    []time.Duration{0},
		CreatedAt:      referenceTime,
		UpdatedAt:      referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSessionID overrides the session ID.
func WithSessionID(id string) SessionOption {
	return func(f *SessionFixture) {
		f.ID = id
	}
}

// WithSessionRoom sets the room the session is held in.
func WithSessionRoom(roomID string) SessionOption {
	return func(f *SessionFixture) {
		f.RoomID = roomID
	}
}

// WithSessionType sets the session type and matching staff slots.
func WithSessionType(sessionType string, staff ...string) SessionOption {
	return func(f *SessionFixture) {
		f.SessionType = sessionType
		f.StaffSlots = append([]string(nil), staff...)
		f.SlotElapsed = make([]time.Duration, len(staff))
	}
}

// WithSessionStatus sets the lifecycle status.
func WithSessionStatus(status string) SessionOption {
	return func(f *SessionFixture) {
		f.Status = status
	}
}

// WithSessionSchedule sets the scheduled start and end times.
func WithSessionSchedule(start, end time.Time) SessionOption {
	return func(f *SessionFixture) {
		f.ScheduledStart = start
		f.ScheduledEnd = end
	}
}

// WithSessionStartedAt marks the session in progress since the given time.
func WithSessionStartedAt(t time.Time) SessionOption {
	return func(f *SessionFixture) {
		started := t
		f.StartedAt = &started
		f.Status = persistence.StatusInProgress
	}
}

// WithSessionArrivedAt records the patient arrival time.
func WithSessionArrivedAt(t time.Time) SessionOption {
	return func(f *SessionFixture) {
		arrived := t
		f.ArrivedAt = &arrived
	}
}

// WithSessionActiveSlot sets the recorded active slot.
func WithSessionActiveSlot(slot int) SessionOption {
	return func(f *SessionFixture) {
		f.ActiveSlot = slot
	}
}

// WithSessionElapsed sets the persisted per-slot credit.
func WithSessionElapsed(elapsed ...time.Duration) SessionOption {
	return func(f *SessionFixture) {
		f.SlotElapsed = append([]time.Duration(nil), elapsed...)
	}
}

// Persistence returns the fixture as a persistence.TherapySession value.
func (f SessionFixture) Persistence() persistence.TherapySession {
	return persistence.TherapySession{
		ID:             f.ID,
		RoomID:         f.RoomID,
		PatientRef:     f.PatientRef,
		PatientLabel:   f.PatientLabel,
		SessionType:    f.SessionType,
		StaffSlots:     append([]string(nil), f.StaffSlots...),
		Status:         f.Status,
		ScheduledStart: f.ScheduledStart,
		ScheduledEnd:   f.ScheduledEnd,
		ArrivedAt:      copyTimePtr(f.ArrivedAt),
		StartedAt:      copyTimePtr(f.StartedAt),
		FinalizedAt:    copyTimePtr(f.FinalizedAt),
		ActiveSlot:     f.ActiveSlot,
		SlotElapsed:    append([]time.Duration(nil), f.SlotElapsed...),
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
	}
}

// -------------------------- Allocation fixtures --------------------------

// AllocationFixture represents a deterministic staff allocation record.
type AllocationFixture struct {
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

// AllocationOption configures the generated allocation fixture.
type AllocationOption func(*AllocationFixture)

// NewAllocationFixture returns a deterministic allocation fixture with
// optional overrides.
func NewAllocationFixture(opts ...AllocationOption) AllocationFixture {
	idx := atomic.AddUint64(&allocationCounter, 1)
	fixture := AllocationFixture{
		ID:        fmt.Sprintf("allocation-%03d", idx),
		StaffRef:  fmt.Sprintf("staff-%03d", idx),
		StaffName: fmt.Sprintf("Profissional %03d", idx),
		RoomID:    fmt.Sprintf("room-%03d", idx),
		Weekday:   time.Monday,
		Period:    "morning",
		Active:    true,
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithAllocationStaff sets the staff reference and display name.
func WithAllocationStaff(ref, name string) AllocationOption {
	return func(f *AllocationFixture) {
		f.StaffRef = ref
		f.StaffName = name
	}
}

// WithAllocationRoom sets the assigned room.
func WithAllocationRoom(roomID string) AllocationOption {
	return func(f *AllocationFixture) {
		f.RoomID = roomID
	}
}

// WithAllocationSlot sets the weekday and period.
func WithAllocationSlot(weekday time.Weekday, period string) AllocationOption {
	return func(f *AllocationFixture) {
		f.Weekday = weekday
		f.Period = period
	}
}

// Persistence returns the fixture as a persistence.StaffAllocation value.
func (f AllocationFixture) Persistence() persistence.StaffAllocation {
	return persistence.StaffAllocation{
		ID:        f.ID,
		StaffRef:  f.StaffRef,
		StaffName: f.StaffName,
		RoomID:    f.RoomID,
		Weekday:   f.Weekday,
		Period:    f.Period,
		Active:    f.Active,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

func copyStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}

func copyTimePtr(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}
