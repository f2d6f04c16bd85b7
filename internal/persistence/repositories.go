package persistence

import "context"
import "time"

// SessionFilter narrows therapy session queries.
type SessionFilter struct {
	Date     *time.Time
	RoomID   *string
	Statuses []string
}

// SessionExpectation is the precondition for a conditional session update.
// The update is applied only while the stored row still matches.
type SessionExpectation struct {
	Status     string
	ActiveSlot int
}

// SessionMutation carries the fields a conditional update may change; nil
// fields are left untouched.
type SessionMutation struct {
	Status      *string
	ActiveSlot  *int
	SlotElapsed []time.Duration
	ArrivedAt   *time.Time
	StartedAt   *time.Time
	FinalizedAt *time.Time
}

// SessionRepository stores therapy sessions and their rotation state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session TherapySession) error
	GetSession(ctx context.Context, id string) (TherapySession, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]TherapySession, error)
	// UpdateSessionIf applies the mutation only while the stored row still
	// matches the expectation. A row that exists but no longer matches
	// yields ErrConflict; a missing row yields ErrNotFound.
	UpdateSessionIf(ctx context.Context, id string, expect SessionExpectation, change SessionMutation) (TherapySession, error)
}

// RoomRepository exposes CRUD operations for treatment rooms.
type RoomRepository interface {
	CreateRoom(ctx context.Context, room Room) error
	UpdateRoom(ctx context.Context, room Room) error
	GetRoom(ctx context.Context, id string) (Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
}

// AllocationRepository stores standing staff-to-room assignments.
type AllocationRepository interface {
	CreateAllocation(ctx context.Context, allocation StaffAllocation) error
	ListActiveAllocations(ctx context.Context) ([]StaffAllocation, error)
	ListAllocationsForRoom(ctx context.Context, roomID string) ([]StaffAllocation, error)
}
