package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/therapy-scheduler/internal/persistence"
	"github.com/example/therapy-scheduler/internal/rotation"
)

// TransitionWorker periodically sweeps running sessions and persists the
// hand-offs and finalizations the rotation engine says are due. All writes
// are conditional: a lost race with an operator action is skipped silently
// and the session is picked up again on the next tick.
type TransitionWorker struct {
	sessions persistence.SessionRepository
	rooms    persistence.RoomRepository
	policy   rotation.Policy
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewTransitionWorker wires dependencies for the periodic sweep. A
// non-positive interval falls back to 30 seconds.
func NewTransitionWorker(sessions persistence.SessionRepository, rooms persistence.RoomRepository, policy rotation.Policy, interval time.Duration, now func() time.Time, logger *slog.Logger) *TransitionWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	if policy == (rotation.Policy{}) {
		policy = rotation.DefaultPolicy()
	}
	return &TransitionWorker{
		sessions: sessions,
		rooms:    rooms,
		policy:   policy,
		interval: interval,
		now:      now,
		logger:   defaultLogger(logger),
	}
}

// Run sweeps on every tick until the context is cancelled.
func (w *TransitionWorker) Run(ctx context.Context) {
	w.logger.Info("transition worker started", "interval", w.interval.String())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("transition worker stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep evaluates every running session once and persists due transitions.
// It returns the number of transitions applied.
func (w *TransitionWorker) Sweep(ctx context.Context) int {
	sessions, err := w.sessions.ListSessions(ctx, persistence.SessionFilter{
		Statuses: []string{persistence.StatusInProgress},
	})
	if err != nil {
		w.logger.Error("sweep list failed", "error", err, "error_kind", ErrorKind(mapRepoError(err)))
		return 0
	}

	rooms := make(map[string]persistence.Room)
	applied := 0
	for _, session := range sessions {
		// One failing session must not block the rest of the sweep.
		ok, err := w.transition(ctx, session, rooms)
		if err != nil {
			w.logger.Error("transition failed", "session_id", session.ID, "error", err)
			continue
		}
		if ok {
			applied++
		}
	}
	return applied
}

func (w *TransitionWorker) transition(ctx context.Context, session persistence.TherapySession, rooms map[string]persistence.Room) (bool, error) {
	room, ok := rooms[session.RoomID]
	if !ok {
		var err error
		room, err = w.rooms.GetRoom(ctx, session.RoomID)
		if err != nil {
			return false, mapRepoError(err)
		}
		rooms[session.RoomID] = room
	}

	eval, err := evaluateSession(session, room, w.policy, w.now())
	if err != nil {
		return false, err
	}

	var change persistence.SessionMutation
	switch eval.Next {
	case rotation.ActionAdvance:
		target := eval.AdvanceTo
		change = persistence.SessionMutation{ActiveSlot: &target, SlotElapsed: eval.Elapsed}
	case rotation.ActionFinalize:
		finalized := w.now()
		status := persistence.StatusCompleted
		change = persistence.SessionMutation{Status: &status, FinalizedAt: &finalized, SlotElapsed: eval.Elapsed}
	default:
		return false, nil
	}

	_, err = w.sessions.UpdateSessionIf(ctx, session.ID,
		persistence.SessionExpectation{Status: session.Status, ActiveSlot: session.ActiveSlot},
		change,
	)
	if errors.Is(err, persistence.ErrConflict) || errors.Is(err, persistence.ErrNotFound) {
		// An operator action landed first; the next tick sees fresh state.
		w.logger.Debug("transition skipped", "session_id", session.ID, "reason", ErrorKind(err))
		return false, nil
	}
	if err != nil {
		return false, mapRepoError(err)
	}

	w.logger.Info("transition applied",
		"session_id", session.ID,
		"action", string(eval.Next),
		"active_slot", eval.ActiveSlot)
	return true, nil
}
