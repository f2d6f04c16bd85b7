package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/therapy-scheduler/internal/persistence"
	"github.com/example/therapy-scheduler/internal/rotation"
	"github.com/example/therapy-scheduler/internal/testfixtures"
)

func newSchedulingServiceTest(t *testing.T) (*SchedulingService, *testfixtures.Store, *testfixtures.Clock) {
	t.Helper()

	store := testfixtures.NewStore()
	store.SeedRoom(testfixtures.NewRoomFixture(
		testfixtures.WithRoomID("room-standard"),
		testfixtures.WithRoomCategory("standard"),
		testfixtures.WithRoomCapacity(1),
	).Persistence())
	store.SeedRoom(testfixtures.NewRoomFixture(
		testfixtures.WithRoomID("room-assess"),
		testfixtures.WithRoomCategory("assessment"),
		testfixtures.WithRoomCapacity(2),
	).Persistence())

	clock := testfixtures.NewClock(time.Time{})
	ids := testfixtures.NewIDGenerator("session")
	service := NewSchedulingService(store, store, rotation.DefaultPolicy(), ids.NextFunc(), clock.NowFunc(), nil)
	return service, store, clock
}

func TestCreateSession_FillsEndFromDurationRule(t *testing.T) {
	service, _, clock := newSchedulingServiceTest(t)
	ctx := context.Background()
	start := clock.Now().Add(time.Hour)

	// Assessment room, triple: three 30 minute slots.
	created, err := service.CreateSession(ctx, CreateSessionInput{
		RoomID:         "room-assess",
		PatientRef:     "patient-1",
		PatientLabel:   "P. Silva",
		SessionType:    "triple",
		StaffRefs:      []string{"staff-1", "staff-2", "staff-3"},
		ScheduledStart: start,
	})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if got := created.ScheduledEnd.Sub(created.ScheduledStart); got != 90*time.Minute {
		t.Errorf("Expected 90m assessment triple, got %s", got)
	}
	if created.Status != StatusScheduled || created.ActiveSlot != 1 {
		t.Errorf("Expected fresh scheduled session, got %+v", created)
	}

	// Standard room, individual: flat total regardless of type.
	created, err = service.CreateSession(ctx, CreateSessionInput{
		RoomID:         "room-standard",
		PatientRef:     "patient-2",
		PatientLabel:   "M. Costa",
		SessionType:    "individual",
		StaffRefs:      []string{"staff-4"},
		ScheduledStart: start,
	})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if got := created.ScheduledEnd.Sub(created.ScheduledStart); got != 90*time.Minute {
		t.Errorf("Expected 90m standard individual, got %s", got)
	}
}

func TestCreateSession_Validation(t *testing.T) {
	service, _, _ := newSchedulingServiceTest(t)

	_, err := service.CreateSession(context.Background(), CreateSessionInput{
		SessionType: "quadruple",
		StaffRefs:   []string{"staff-1"},
	})

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	for _, field := range []string{"room_id", "patient_ref", "patient_label", "scheduled_start", "session_type"} {
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Errorf("Expected field error for %s, got %v", field, vErr.FieldErrors)
		}
	}
}

func TestCreateSession_StaffCountMustMatchType(t *testing.T) {
	service, _, clock := newSchedulingServiceTest(t)

	_, err := service.CreateSession(context.Background(), CreateSessionInput{
		RoomID:         "room-standard",
		PatientRef:     "patient-1",
		PatientLabel:   "P. Silva",
		SessionType:    "shared",
		StaffRefs:      []string{"staff-1"},
		ScheduledStart: clock.Now(),
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	if _, ok := vErr.FieldErrors["staff_refs"]; !ok {
		t.Errorf("Expected staff_refs error, got %v", vErr.FieldErrors)
	}
}

func TestCreateSession_UnknownRoom(t *testing.T) {
	service, _, clock := newSchedulingServiceTest(t)

	_, err := service.CreateSession(context.Background(), CreateSessionInput{
		RoomID:         "ghost",
		PatientRef:     "patient-1",
		PatientLabel:   "P. Silva",
		SessionType:    "individual",
		StaffRefs:      []string{"staff-1"},
		ScheduledStart: clock.Now(),
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	if _, ok := vErr.FieldErrors["room_id"]; !ok {
		t.Errorf("Expected room_id error, got %v", vErr.FieldErrors)
	}
}

func TestCreateSession_CapacityReached(t *testing.T) {
	service, _, clock := newSchedulingServiceTest(t)
	ctx := context.Background()
	start := clock.Now().Add(time.Hour)

	input := CreateSessionInput{
		RoomID:         "room-standard",
		PatientRef:     "patient-1",
		PatientLabel:   "P. Silva",
		SessionType:    "individual",
		StaffRefs:      []string{"staff-1"},
		ScheduledStart: start,
	}
	if _, err := service.CreateSession(ctx, input); err != nil {
		t.Fatalf("first CreateSession failed: %v", err)
	}

	// Overlapping booking in a capacity-1 room must be rejected.
	input.PatientRef = "patient-2"
	input.PatientLabel = "M. Costa"
	input.StaffRefs = []string{"staff-2"}
	input.ScheduledStart = start.Add(30 * time.Minute)
	_, err := service.CreateSession(ctx, input)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	if _, ok := vErr.FieldErrors["room_id"]; !ok {
		t.Errorf("Expected room_id capacity error, got %v", vErr.FieldErrors)
	}

	// A booking after the first one ends is fine.
	input.ScheduledStart = start.Add(2 * time.Hour)
	if _, err := service.CreateSession(ctx, input); err != nil {
		t.Errorf("non-overlapping CreateSession failed: %v", err)
	}
}

func TestMarkArrivalAndStart(t *testing.T) {
	service, store, clock := newSchedulingServiceTest(t)
	ctx := context.Background()

	store.SeedSession(testfixtures.NewSessionFixture(
		testfixtures.WithSessionID("s1"),
		testfixtures.WithSessionRoom("room-standard"),
	).Persistence())

	arrived, err := service.MarkArrival(ctx, "s1")
	if err != nil {
		t.Fatalf("MarkArrival failed: %v", err)
	}
	if arrived.Status != StatusArrived || arrived.ArrivedAt == nil {
		t.Fatalf("Expected arrived session, got %+v", arrived)
	}

	// Marking again is a no-op.
	if _, err := service.MarkArrival(ctx, "s1"); err != nil {
		t.Fatalf("repeated MarkArrival failed: %v", err)
	}

	clock.Advance(5 * time.Minute)
	started, err := service.StartSession(ctx, "s1")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if started.Status != StatusInProgress {
		t.Errorf("Expected in_progress, got %s", started.Status)
	}
	if started.StartedAt == nil || !started.StartedAt.Equal(clock.Now()) {
		t.Errorf("Expected started_at %v, got %v", clock.Now(), started.StartedAt)
	}

	// Two operators pressing start must not error.
	again, err := service.StartSession(ctx, "s1")
	if err != nil {
		t.Fatalf("repeated StartSession failed: %v", err)
	}
	if !again.StartedAt.Equal(*started.StartedAt) {
		t.Errorf("Expected original start time preserved, got %v", again.StartedAt)
	}
}

func TestStartSession_RoomAtCapacity(t *testing.T) {
	service, store, clock := newSchedulingServiceTest(t)
	ctx := context.Background()

	// One session runs overdue in the capacity-1 room while the next
	// back-to-back booking waits.
	start := clock.Now().Add(-2 * time.Hour)
	store.SeedSession(testfixtures.NewSessionFixture(
		testfixtures.WithSessionID("s1"),
		testfixtures.WithSessionRoom("room-standard"),
		testfixtures.WithSessionSchedule(start, start.Add(90*time.Minute)),
		testfixtures.WithSessionStartedAt(start),
	).Persistence())
	store.SeedSession(testfixtures.NewSessionFixture(
		testfixtures.WithSessionID("s2"),
		testfixtures.WithSessionRoom("room-standard"),
		testfixtures.WithSessionSchedule(start.Add(90*time.Minute), start.Add(3*time.Hour)),
	).Persistence())

	_, err := service.StartSession(ctx, "s2")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Expected ErrInvalidState while the room is occupied, got %v", err)
	}

	// Once the running session closes, the waiting one may start.
	if _, err := service.FinalizeSession(ctx, "s1"); err != nil {
		t.Fatalf("FinalizeSession failed: %v", err)
	}
	started, err := service.StartSession(ctx, "s2")
	if err != nil {
		t.Fatalf("StartSession after finalize failed: %v", err)
	}
	if started.Status != StatusInProgress {
		t.Errorf("Expected in_progress, got %s", started.Status)
	}
}

func TestStartSession_InvalidFromCompleted(t *testing.T) {
	service, store, _ := newSchedulingServiceTest(t)

	store.SeedSession(testfixtures.NewSessionFixture(
		testfixtures.WithSessionID("s1"),
		testfixtures.WithSessionRoom("room-standard"),
		testfixtures.WithSessionStatus(persistence.StatusCompleted),
	).Persistence())

	_, err := service.StartSession(context.Background(), "s1")
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState, got %v", err)
	}
}

func TestAdvanceRotation_FreezesShortSlot(t *testing.T) {
	service, store, clock := newSchedulingServiceTest(t)
	ctx := context.Background()

	start := clock.Now()
	store.SeedSession(testfixtures.NewSessionFixture(
		testfixtures.WithSessionID("s1"),
		testfixtures.WithSessionRoom("room-assess"),
		testfixtures.WithSessionType("shared", "staff-1", "staff-2"),
		testfixtures.WithSessionStartedAt(start),
	).Persistence())

	// Hand off 20 minutes in, before the 30 minute slot is up.
	clock.Advance(20 * time.Minute)
	advanced, err := service.AdvanceRotation(ctx, "s1")
	if err != nil {
		t.Fatalf("AdvanceRotation failed: %v", err)
	}
	if advanced.ActiveSlot != 2 {
		t.Errorf("Expected active slot 2, got %d", advanced.ActiveSlot)
	}
	if advanced.SlotElapsed[0] != 20*time.Minute {
		t.Errorf("Expected slot 1 frozen at 20m, got %v", advanced.SlotElapsed[0])
	}
	if advanced.ActiveStaff() != "staff-2" {
		t.Errorf("Expected staff-2 active, got %s", advanced.ActiveStaff())
	}

	// Advancing past the last slot is not allowed.
	_, err = service.AdvanceRotation(ctx, "s1")
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState at last slot, got %v", err)
	}
}

func TestAdvanceRotation_RequiresRunningSession(t *testing.T) {
	service, store, _ := newSchedulingServiceTest(t)

	store.SeedSession(testfixtures.NewSessionFixture(
		testfixtures.WithSessionID("s1"),
		testfixtures.WithSessionRoom("room-assess"),
		testfixtures.WithSessionType("shared", "staff-1", "staff-2"),
	).Persistence())

	_, err := service.AdvanceRotation(context.Background(), "s1")
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState for scheduled session, got %v", err)
	}
}

func TestFinalizeSession(t *testing.T) {
	service, store, clock := newSchedulingServiceTest(t)
	ctx := context.Background()

	start := clock.Now()
	store.SeedSession(testfixtures.NewSessionFixture(
		testfixtures.WithSessionID("s1"),
		testfixtures.WithSessionRoom("room-assess"),
		testfixtures.WithSessionStartedAt(start),
	).Persistence())

	clock.Advance(25 * time.Minute)
	finalized, err := service.FinalizeSession(ctx, "s1")
	if err != nil {
		t.Fatalf("FinalizeSession failed: %v", err)
	}
	if finalized.Status != StatusCompleted {
		t.Errorf("Expected completed, got %s", finalized.Status)
	}
	if finalized.FinalizedAt == nil || !finalized.FinalizedAt.Equal(clock.Now()) {
		t.Errorf("Expected finalized_at %v, got %v", clock.Now(), finalized.FinalizedAt)
	}
	if finalized.SlotElapsed[0] != 25*time.Minute {
		t.Errorf("Expected 25m recorded for slot 1, got %v", finalized.SlotElapsed[0])
	}

	// Idempotent: finalizing again succeeds and changes nothing.
	clock.Advance(time.Hour)
	again, err := service.FinalizeSession(ctx, "s1")
	if err != nil {
		t.Fatalf("repeated FinalizeSession failed: %v", err)
	}
	if !again.FinalizedAt.Equal(*finalized.FinalizedAt) {
		t.Errorf("Expected original finalized_at preserved, got %v", again.FinalizedAt)
	}
}

func TestFinalizeSession_InvalidFromScheduled(t *testing.T) {
	service, store, _ := newSchedulingServiceTest(t)

	store.SeedSession(testfixtures.NewSessionFixture(
		testfixtures.WithSessionID("s1"),
		testfixtures.WithSessionRoom("room-standard"),
	).Persistence())

	_, err := service.FinalizeSession(context.Background(), "s1")
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState, got %v", err)
	}
}

func TestMarkNoShow(t *testing.T) {
	service, store, _ := newSchedulingServiceTest(t)
	ctx := context.Background()

	store.SeedSession(testfixtures.NewSessionFixture(
		testfixtures.WithSessionID("s1"),
		testfixtures.WithSessionRoom("room-standard"),
	).Persistence())

	marked, err := service.MarkNoShow(ctx, "s1")
	if err != nil {
		t.Fatalf("MarkNoShow failed: %v", err)
	}
	if marked.Status != StatusNoShow {
		t.Errorf("Expected no_show, got %s", marked.Status)
	}

	// A running session cannot become a no-show.
	store.SeedSession(testfixtures.NewSessionFixture(
		testfixtures.WithSessionID("s2"),
		testfixtures.WithSessionRoom("room-standard"),
		testfixtures.WithSessionStartedAt(testfixtures.ReferenceTime()),
	).Persistence())
	_, err = service.MarkNoShow(ctx, "s2")
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState, got %v", err)
	}
}

func TestSessionOperations_NotFound(t *testing.T) {
	service, _, _ := newSchedulingServiceTest(t)
	ctx := context.Background()

	if _, err := service.GetSession(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSession: expected ErrNotFound, got %v", err)
	}
	if _, err := service.StartSession(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("StartSession: expected ErrNotFound, got %v", err)
	}
	if _, err := service.FinalizeSession(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FinalizeSession: expected ErrNotFound, got %v", err)
	}
}

func TestSessionOperations_StoreUnavailable(t *testing.T) {
	service, store, _ := newSchedulingServiceTest(t)
	store.FailWith = persistence.ErrUnavailable

	_, err := service.GetSession(context.Background(), "s1")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable, got %v", err)
	}
}
