package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/therapy-scheduler/internal/rotation"
	"github.com/example/therapy-scheduler/internal/testfixtures"
)

func newRoomServiceTest(t *testing.T) (*RoomService, *testfixtures.Store) {
	t.Helper()
	store := testfixtures.NewStore()
	ids := testfixtures.NewIDGenerator("room")
	return NewRoomService(store, store, ids.NextFunc(), nil), store
}

func TestCreateRoom(t *testing.T) {
	service, _ := newRoomServiceTest(t)

	room, err := service.CreateRoom(context.Background(), RoomInput{
		Name:         "Sala Neuropsicologia",
		Category:     "assessment",
		Capacity:     2,
		DisplayOrder: 5,
	})
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if room.ID == "" {
		t.Error("Expected generated room ID")
	}
	if room.Category != rotation.CategoryAssessment {
		t.Errorf("Expected assessment category, got %s", room.Category)
	}
	if !room.Active {
		t.Error("Expected new room active")
	}
}

func TestCreateRoom_DefaultsToStandard(t *testing.T) {
	service, _ := newRoomServiceTest(t)

	room, err := service.CreateRoom(context.Background(), RoomInput{Name: "Sala Fono", Capacity: 1})
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if room.Category != rotation.CategoryStandard {
		t.Errorf("Expected standard category by default, got %s", room.Category)
	}
}

func TestCreateRoom_Validation(t *testing.T) {
	service, _ := newRoomServiceTest(t)

	_, err := service.CreateRoom(context.Background(), RoomInput{Category: "lounge"})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	for _, field := range []string{"name", "category", "capacity"} {
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Errorf("Expected field error for %s, got %v", field, vErr.FieldErrors)
		}
	}
}

func TestCreateAllocation(t *testing.T) {
	service, store := newRoomServiceTest(t)
	ctx := context.Background()

	store.SeedRoom(testfixtures.NewRoomFixture(testfixtures.WithRoomID("room-1")).Persistence())

	allocation, err := service.CreateAllocation(ctx, AllocationInput{
		StaffRef:  "staff-1",
		StaffName: "Ana",
		RoomID:    "room-1",
		Weekday:   time.Wednesday,
		Period:    "afternoon",
	})
	if err != nil {
		t.Fatalf("CreateAllocation failed: %v", err)
	}
	if allocation.ID == "" || allocation.Weekday != time.Wednesday {
		t.Errorf("Unexpected allocation: %+v", allocation)
	}

	listed, err := service.ListAllocations(ctx)
	if err != nil {
		t.Fatalf("ListAllocations failed: %v", err)
	}
	if len(listed) != 1 {
		t.Errorf("Expected 1 allocation, got %d", len(listed))
	}
}

func TestCreateAllocation_Validation(t *testing.T) {
	service, _ := newRoomServiceTest(t)

	_, err := service.CreateAllocation(context.Background(), AllocationInput{Period: "night"})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	for _, field := range []string{"staff_ref", "staff_name", "room_id", "period"} {
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Errorf("Expected field error for %s, got %v", field, vErr.FieldErrors)
		}
	}
}

func TestCreateAllocation_UnknownRoom(t *testing.T) {
	service, _ := newRoomServiceTest(t)

	_, err := service.CreateAllocation(context.Background(), AllocationInput{
		StaffRef:  "staff-1",
		StaffName: "Ana",
		RoomID:    "ghost",
		Weekday:   time.Monday,
		Period:    "morning",
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	if _, ok := vErr.FieldErrors["room_id"]; !ok {
		t.Errorf("Expected room_id error, got %v", vErr.FieldErrors)
	}
}
