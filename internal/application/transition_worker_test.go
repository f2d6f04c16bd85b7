package application

import (
	"context"
	"testing"
	"time"

	"github.com/example/therapy-scheduler/internal/persistence"
	"github.com/example/therapy-scheduler/internal/rotation"
	"github.com/example/therapy-scheduler/internal/testfixtures"
)

func newWorkerTest(t *testing.T) (*TransitionWorker, *testfixtures.Store, *testfixtures.Clock) {
	t.Helper()

	store := testfixtures.NewStore()
	store.SeedRoom(testfixtures.NewRoomFixture(
		testfixtures.WithRoomID("room-assess"),
		testfixtures.WithRoomCategory("assessment"),
	).Persistence())

	clock := testfixtures.NewClock(time.Time{})
	worker := NewTransitionWorker(store, store, rotation.DefaultPolicy(), 30*time.Second, clock.NowFunc(), nil)
	return worker, store, clock
}

func TestSweep_AdvancesOverdueSession(t *testing.T) {
	worker, store, clock := newWorkerTest(t)
	ctx := context.Background()

	start := clock.Now()
	store.SeedSession(testfixtures.NewSessionFixture(
		testfixtures.WithSessionID("s1"),
		testfixtures.WithSessionRoom("room-assess"),
		testfixtures.WithSessionType("triple", "staff-1", "staff-2", "staff-3"),
		testfixtures.WithSessionStartedAt(start),
	).Persistence())

	// 45 minutes in, slot 1 (30m) is exhausted and slot 2 is due.
	clock.Advance(45 * time.Minute)
	if applied := worker.Sweep(ctx); applied != 1 {
		t.Fatalf("Expected 1 transition, got %d", applied)
	}

	session, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session.ActiveSlot != 2 {
		t.Errorf("Expected active slot 2, got %d", session.ActiveSlot)
	}
	if session.SlotElapsed[0] != 30*time.Minute || session.SlotElapsed[1] != 15*time.Minute {
		t.Errorf("Expected elapsed [30m 15m], got %v", session.SlotElapsed)
	}
	if session.Status != persistence.StatusInProgress {
		t.Errorf("Expected still in_progress, got %s", session.Status)
	}

	// A second sweep at the same instant is a no-op.
	if applied := worker.Sweep(ctx); applied != 0 {
		t.Errorf("Expected idempotent sweep, got %d transitions", applied)
	}
}

func TestSweep_FinalizesExhaustedSession(t *testing.T) {
	worker, store, clock := newWorkerTest(t)
	ctx := context.Background()

	start := clock.Now()
	store.SeedSession(testfixtures.NewSessionFixture(
		testfixtures.WithSessionID("s1"),
		testfixtures.WithSessionRoom("room-assess"),
		testfixtures.WithSessionStartedAt(start),
	).Persistence())

	clock.Advance(31 * time.Minute)
	if applied := worker.Sweep(ctx); applied != 1 {
		t.Fatalf("Expected 1 transition, got %d", applied)
	}

	session, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session.Status != persistence.StatusCompleted {
		t.Errorf("Expected completed, got %s", session.Status)
	}
	if session.FinalizedAt == nil || !session.FinalizedAt.Equal(clock.Now()) {
		t.Errorf("Expected finalized_at %v, got %v", clock.Now(), session.FinalizedAt)
	}
	if session.SlotElapsed[0] != 30*time.Minute {
		t.Errorf("Expected slot clamped to 30m, got %v", session.SlotElapsed[0])
	}
}

func TestSweep_LeavesOnTimeSessionAlone(t *testing.T) {
	worker, store, clock := newWorkerTest(t)
	ctx := context.Background()

	start := clock.Now()
	store.SeedSession(testfixtures.NewSessionFixture(
		testfixtures.WithSessionID("s1"),
		testfixtures.WithSessionRoom("room-assess"),
		testfixtures.WithSessionType("shared", "staff-1", "staff-2"),
		testfixtures.WithSessionStartedAt(start),
	).Persistence())

	clock.Advance(10 * time.Minute)
	if applied := worker.Sweep(ctx); applied != 0 {
		t.Fatalf("Expected no transitions, got %d", applied)
	}

	session, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session.ActiveSlot != 1 || session.SlotElapsed[0] != 0 {
		t.Errorf("Expected untouched record, got %+v", session)
	}
}

func TestSweep_IgnoresSessionsNotRunning(t *testing.T) {
	worker, store, clock := newWorkerTest(t)

	store.SeedSession(testfixtures.NewSessionFixture(
		testfixtures.WithSessionID("s1"),
		testfixtures.WithSessionRoom("room-assess"),
	).Persistence())
	store.SeedSession(testfixtures.NewSessionFixture(
		testfixtures.WithSessionID("s2"),
		testfixtures.WithSessionRoom("room-assess"),
		testfixtures.WithSessionStatus(persistence.StatusCompleted),
	).Persistence())

	clock.Advance(2 * time.Hour)
	if applied := worker.Sweep(context.Background()); applied != 0 {
		t.Errorf("Expected no transitions, got %d", applied)
	}
}

// conflictingSessions wedges a conflict between read and write to mimic an
// operator action landing mid-sweep.
type conflictingSessions struct {
	persistence.SessionRepository
}

func (c *conflictingSessions) UpdateSessionIf(ctx context.Context, id string, expect persistence.SessionExpectation, change persistence.SessionMutation) (persistence.TherapySession, error) {
	return persistence.TherapySession{}, persistence.ErrConflict
}

func TestSweep_SwallowsLostRaces(t *testing.T) {
	_, store, clock := newWorkerTest(t)

	start := clock.Now()
	store.SeedSession(testfixtures.NewSessionFixture(
		testfixtures.WithSessionID("s1"),
		testfixtures.WithSessionRoom("room-assess"),
		testfixtures.WithSessionStartedAt(start),
	).Persistence())
	clock.Advance(time.Hour)

	worker := NewTransitionWorker(&conflictingSessions{SessionRepository: store}, store, rotation.DefaultPolicy(), 30*time.Second, clock.NowFunc(), nil)
	if applied := worker.Sweep(context.Background()); applied != 0 {
		t.Errorf("Expected conflict to be skipped, got %d transitions", applied)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	worker, _, _ := newWorkerTest(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
