package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/therapy-scheduler/internal/persistence"
	"github.com/example/therapy-scheduler/internal/rotation"
)

// RoomService manages the treatment room catalog and the standing staff
// allocations.
type RoomService struct {
	rooms       persistence.RoomRepository
	allocations persistence.AllocationRepository
	idGenerator func() string
	logger      *slog.Logger
}

// NewRoomService wires dependencies for room and allocation operations.
func NewRoomService(rooms persistence.RoomRepository, allocations persistence.AllocationRepository, idGenerator func() string, logger *slog.Logger) *RoomService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	return &RoomService{
		rooms:       rooms,
		allocations: allocations,
		idGenerator: idGenerator,
		logger:      defaultLogger(logger),
	}
}

// CreateRoom validates and registers a new room.
func (s *RoomService) CreateRoom(ctx context.Context, input RoomInput) (Room, error) {
	if s == nil {
		return Room{}, fmt.Errorf("RoomService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "rooms", "create_room")

	vErr := &ValidationError{}
	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "room name is required")
	}
	category := rotation.RoomCategory(strings.TrimSpace(input.Category))
	if category == "" {
		category = rotation.CategoryStandard
	}
	if category != rotation.CategoryStandard && category != rotation.CategoryAssessment {
		vErr.add("category", "category must be standard or assessment")
	}
	if input.Capacity < 1 {
		vErr.add("capacity", "capacity must be at least 1")
	}
	if vErr.HasErrors() {
		return Room{}, vErr
	}

	room := persistence.Room{
		ID:           s.idGenerator(),
		Name:         strings.TrimSpace(input.Name),
		Category:     string(category),
		Capacity:     input.Capacity,
		DisplayOrder: input.DisplayOrder,
		LabelColor:   input.LabelColor,
		Active:       true,
	}
	if err := s.rooms.CreateRoom(ctx, room); err != nil {
		logger.Error("room create failed", "error", err, "error_kind", ErrorKind(err))
		if errors.Is(err, persistence.ErrDuplicate) {
			vErr.add("name", "a room with this name already exists")
			return Room{}, vErr
		}
		return Room{}, mapRepoError(err)
	}

	logger.Info("room created", "room_id", room.ID)
	return roomFromPersistence(room), nil
}

// ListRooms returns the full catalog in display order.
func (s *RoomService) ListRooms(ctx context.Context) ([]Room, error) {
	rooms, err := s.rooms.ListRooms(ctx)
	if err != nil {
		return nil, mapRepoError(err)
	}
	result := make([]Room, 0, len(rooms))
	for _, room := range rooms {
		result = append(result, roomFromPersistence(room))
	}
	return result, nil
}

// CreateAllocation validates and registers a staff-to-room assignment.
func (s *RoomService) CreateAllocation(ctx context.Context, input AllocationInput) (StaffAllocation, error) {
	if s == nil {
		return StaffAllocation{}, fmt.Errorf("RoomService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "rooms", "create_allocation", "room_id", input.RoomID)

	vErr := &ValidationError{}
	if strings.TrimSpace(input.StaffRef) == "" {
		vErr.add("staff_ref", "staff reference is required")
	}
	if strings.TrimSpace(input.StaffName) == "" {
		vErr.add("staff_name", "staff name is required")
	}
	if strings.TrimSpace(input.RoomID) == "" {
		vErr.add("room_id", "room is required")
	}
	if input.Weekday < time.Sunday || input.Weekday > time.Saturday {
		vErr.add("weekday", "weekday must be between Sunday and Saturday")
	}
	if input.Period != "morning" && input.Period != "afternoon" {
		vErr.add("period", "period must be morning or afternoon")
	}
	if vErr.HasErrors() {
		return StaffAllocation{}, vErr
	}

	allocation := persistence.StaffAllocation{
		ID:        s.idGenerator(),
		StaffRef:  strings.TrimSpace(input.StaffRef),
		StaffName: strings.TrimSpace(input.StaffName),
		RoomID:    strings.TrimSpace(input.RoomID),
		Weekday:   input.Weekday,
		Period:    input.Period,
		Active:    true,
	}
	if err := s.allocations.CreateAllocation(ctx, allocation); err != nil {
		logger.Error("allocation create failed", "error", err, "error_kind", ErrorKind(err))
		switch {
		case errors.Is(err, persistence.ErrDuplicate):
			vErr.add("staff_ref", "this staff member is already assigned to the room for this slot")
			return StaffAllocation{}, vErr
		case errors.Is(err, persistence.ErrForeignKeyViolation):
			vErr.add("room_id", "unknown room")
			return StaffAllocation{}, vErr
		}
		return StaffAllocation{}, mapRepoError(err)
	}

	logger.Info("allocation created", "allocation_id", allocation.ID)
	return allocationFromPersistence(allocation), nil
}

// ListAllocations returns every active assignment.
func (s *RoomService) ListAllocations(ctx context.Context) ([]StaffAllocation, error) {
	allocations, err := s.allocations.ListActiveAllocations(ctx)
	if err != nil {
		return nil, mapRepoError(err)
	}
	result := make([]StaffAllocation, 0, len(allocations))
	for _, a := range allocations {
		result = append(result, allocationFromPersistence(a))
	}
	return result, nil
}
