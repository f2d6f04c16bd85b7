package testfixtures

import (
	"context"
	"sync"
	"time"

	"github.com/example/therapy-scheduler/internal/persistence"
)

// Store is an in-memory implementation of the persistence repositories for
// service tests. It enforces the same conditional-update contract as the
// SQLite repositories.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]persistence.TherapySession
	rooms       map[string]persistence.Room
	allocations map[string]persistence.StaffAllocation

	// FailWith, when set, makes every call return the error. Used to
	// exercise store-unavailable paths.
	FailWith error
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		sessions:    make(map[string]persistence.TherapySession),
		rooms:       make(map[string]persistence.Room),
		allocations: make(map[string]persistence.StaffAllocation),
	}
}

// SeedRoom inserts a room without going through CreateRoom validation.
func (s *Store) SeedRoom(room persistence.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room
}

// SeedSession inserts a session without going through CreateSession.
func (s *Store) SeedSession(session persistence.TherapySession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = cloneSession(session)
}

// SeedAllocation inserts an allocation directly.
func (s *Store) SeedAllocation(allocation persistence.StaffAllocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocations[allocation.ID] = allocation
}

// CreateSession implements persistence.SessionRepository.
func (s *Store) CreateSession(ctx context.Context, session persistence.TherapySession) error {
	if s.FailWith != nil {
		return s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return persistence.ErrDuplicate
	}
	if _, ok := s.rooms[session.RoomID]; !ok {
		return persistence.ErrForeignKeyViolation
	}
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

// GetSession implements persistence.SessionRepository.
func (s *Store) GetSession(ctx context.Context, id string) (persistence.TherapySession, error) {
	if s.FailWith != nil {
		return persistence.TherapySession{}, s.FailWith
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return persistence.TherapySession{}, persistence.ErrNotFound
	}
	return cloneSession(session), nil
}

// ListSessions implements persistence.SessionRepository.
func (s *Store) ListSessions(ctx context.Context, filter persistence.SessionFilter) ([]persistence.TherapySession, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []persistence.TherapySession
	for _, session := range s.sessions {
		if filter.Date != nil {
			y1, m1, d1 := filter.Date.Date()
			y2, m2, d2 := session.ScheduledStart.Date()
			if y1 != y2 || m1 != m2 || d1 != d2 {
				continue
			}
		}
		if filter.RoomID != nil && session.RoomID != *filter.RoomID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsString(filter.Statuses, session.Status) {
			continue
		}
		result = append(result, cloneSession(session))
	}

	// Start order, ID as tiebreak, matching the SQLite repository.
	for i := 1; i < len(result); i++ {
		for j := i; j > 0 && before(result[j], result[j-1]); j-- {
			result[j], result[j-1] = result[j-1], result[j]
		}
	}
	return result, nil
}

// UpdateSessionIf implements persistence.SessionRepository with the same
// precondition contract as the SQLite version.
func (s *Store) UpdateSessionIf(ctx context.Context, id string, expect persistence.SessionExpectation, change persistence.SessionMutation) (persistence.TherapySession, error) {
	if s.FailWith != nil {
		return persistence.TherapySession{}, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return persistence.TherapySession{}, persistence.ErrNotFound
	}
	if session.Status != expect.Status || session.ActiveSlot != expect.ActiveSlot {
		return persistence.TherapySession{}, persistence.ErrConflict
	}

	if change.Status != nil {
		session.Status = *change.Status
	}
	if change.ActiveSlot != nil {
		session.ActiveSlot = *change.ActiveSlot
	}
	if change.SlotElapsed != nil {
		session.SlotElapsed = append([]time.Duration(nil), change.SlotElapsed...)
	}
	if change.ArrivedAt != nil {
		session.ArrivedAt = copyTimePtr(change.ArrivedAt)
	}
	if change.StartedAt != nil {
		session.StartedAt = copyTimePtr(change.StartedAt)
	}
	if change.FinalizedAt != nil {
		session.FinalizedAt = copyTimePtr(change.FinalizedAt)
	}
	session.UpdatedAt = time.Now().UTC()

	s.sessions[id] = cloneSession(session)
	return cloneSession(session), nil
}

// CreateRoom implements persistence.RoomRepository.
func (s *Store) CreateRoom(ctx context.Context, room persistence.Room) error {
	if s.FailWith != nil {
		return s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.rooms[room.ID] = room
	return nil
}

// UpdateRoom implements persistence.RoomRepository.
func (s *Store) UpdateRoom(ctx context.Context, room persistence.Room) error {
	if s.FailWith != nil {
		return s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; !ok {
		return persistence.ErrNotFound
	}
	s.rooms[room.ID] = room
	return nil
}

// GetRoom implements persistence.RoomRepository.
func (s *Store) GetRoom(ctx context.Context, id string) (persistence.Room, error) {
	if s.FailWith != nil {
		return persistence.Room{}, s.FailWith
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return persistence.Room{}, persistence.ErrNotFound
	}
	return room, nil
}

// ListRooms implements persistence.RoomRepository.
func (s *Store) ListRooms(ctx context.Context) ([]persistence.Room, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rooms []persistence.Room
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	for i := 1; i < len(rooms); i++ {
		for j := i; j > 0 && roomBefore(rooms[j], rooms[j-1]); j-- {
			rooms[j], rooms[j-1] = rooms[j-1], rooms[j]
		}
	}
	return rooms, nil
}

// CreateAllocation implements persistence.AllocationRepository.
func (s *Store) CreateAllocation(ctx context.Context, allocation persistence.StaffAllocation) error {
	if s.FailWith != nil {
		return s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.allocations[allocation.ID]; ok {
		return persistence.ErrDuplicate
	}
	if _, ok := s.rooms[allocation.RoomID]; !ok {
		return persistence.ErrForeignKeyViolation
	}
	for _, existing := range s.allocations {
		if existing.StaffRef == allocation.StaffRef &&
			existing.RoomID == allocation.RoomID &&
			existing.Weekday == allocation.Weekday &&
			existing.Period == allocation.Period {
			return persistence.ErrDuplicate
		}
	}
	s.allocations[allocation.ID] = allocation
	return nil
}

// ListActiveAllocations implements persistence.AllocationRepository.
func (s *Store) ListActiveAllocations(ctx context.Context) ([]persistence.StaffAllocation, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []persistence.StaffAllocation
	for _, a := range s.allocations {
		if a.Active {
			result = append(result, a)
		}
	}
	return result, nil
}

// ListAllocationsForRoom implements persistence.AllocationRepository.
func (s *Store) ListAllocationsForRoom(ctx context.Context, roomID string) ([]persistence.StaffAllocation, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []persistence.StaffAllocation
	for _, a := range s.allocations {
		if a.Active && a.RoomID == roomID {
			result = append(result, a)
		}
	}
	return result, nil
}

func cloneSession(session persistence.TherapySession) persistence.TherapySession {
	session.StaffSlots = append([]string(nil), session.StaffSlots...)
	session.SlotElapsed = append([]time.Duration(nil), session.SlotElapsed...)
	session.ArrivedAt = copyTimePtr(session.ArrivedAt)
	session.StartedAt = copyTimePtr(session.StartedAt)
	session.FinalizedAt = copyTimePtr(session.FinalizedAt)
	return session
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func before(a, b persistence.TherapySession) bool {
	if a.ScheduledStart.Equal(b.ScheduledStart) {
		return a.ID < b.ID
	}
	return a.ScheduledStart.Before(b.ScheduledStart)
}

func roomBefore(a, b persistence.Room) bool {
	if a.DisplayOrder == b.DisplayOrder {
		return a.Name < b.Name
	}
	return a.DisplayOrder < b.DisplayOrder
}
