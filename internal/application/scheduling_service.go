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

// SchedulingService orchestrates the session lifecycle: intake, arrival,
// start, staff hand-offs and finalization. Every state change goes through a
// conditional update so concurrent operators and the transition worker cannot
// clobber each other.
type SchedulingService struct {
	sessions    persistence.SessionRepository
	rooms       persistence.RoomRepository
	policy      rotation.Policy
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewSchedulingService wires dependencies for session operations.
func NewSchedulingService(sessions persistence.SessionRepository, rooms persistence.RoomRepository, policy rotation.Policy, idGenerator func() string, now func() time.Time, logger *slog.Logger) *SchedulingService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if policy == (rotation.Policy{}) {
		policy = rotation.DefaultPolicy()
	}
	return &SchedulingService{
		sessions:    sessions,
		rooms:       rooms,
		policy:      policy,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// CreateSession validates and books a new appointment. When ScheduledEnd is
// zero the room's duration rule fills it in.
func (s *SchedulingService) CreateSession(ctx context.Context, input CreateSessionInput) (TherapySession, error) {
	if s == nil {
		return TherapySession{}, fmt.Errorf("SchedulingService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "scheduling", "create_session", "room_id", input.RoomID)

	vErr := &ValidationError{}

	if strings.TrimSpace(input.RoomID) == "" {
		vErr.add("room_id", "room is required")
	}
	if strings.TrimSpace(input.PatientRef) == "" {
		vErr.add("patient_ref", "patient reference is required")
	}
	if strings.TrimSpace(input.PatientLabel) == "" {
		vErr.add("patient_label", "patient label is required")
	}
	if input.ScheduledStart.IsZero() {
		vErr.add("scheduled_start", "scheduled start is required")
	}

	sessionType, typeErr := rotation.ParseSessionType(input.SessionType)
	if typeErr != nil {
		vErr.add("session_type", "session type must be individual, shared or triple")
	} else {
		if len(input.StaffRefs) != sessionType.Slots() {
			vErr.add("staff_refs", fmt.Sprintf("session type %s requires %d staff members", sessionType, sessionType.Slots()))
		}
		seen := make(map[string]struct{}, len(input.StaffRefs))
		for _, ref := range input.StaffRefs {
			ref = strings.TrimSpace(ref)
			if ref == "" {
				vErr.add("staff_refs", "staff references must not be empty")
				break
			}
			if _, dup := seen[ref]; dup {
				vErr.add("staff_refs", "staff references must be distinct")
				break
			}
			seen[ref] = struct{}{}
		}
	}

	if vErr.HasErrors() {
		return TherapySession{}, vErr
	}

	room, err := s.rooms.GetRoom(ctx, input.RoomID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			vErr.add("room_id", "unknown room")
			return TherapySession{}, vErr
		}
		return TherapySession{}, mapRepoError(err)
	}
	if !room.Active {
		vErr.add("room_id", "room is inactive")
		return TherapySession{}, vErr
	}

	plan := s.policy.PlanFor(rotation.RoomCategory(room.Category), sessionType)
	scheduledEnd := input.ScheduledEnd
	if scheduledEnd.IsZero() {
		scheduledEnd = input.ScheduledStart.Add(plan.Total())
	}
	if !scheduledEnd.After(input.ScheduledStart) {
		vErr.add("scheduled_end", "scheduled end must be after the start")
		return TherapySession{}, vErr
	}

	if err := s.ensureRoomCapacity(ctx, room, input.ScheduledStart, scheduledEnd); err != nil {
		return TherapySession{}, err
	}

	session := persistence.TherapySession{
		ID:             s.idGenerator(),
		RoomID:         room.ID,
		PatientRef:     strings.TrimSpace(input.PatientRef),
		PatientLabel:   strings.TrimSpace(input.PatientLabel),
		SessionType:    string(sessionType),
		StaffSlots:     trimmedStrings(input.StaffRefs),
		Status:         persistence.StatusScheduled,
		ScheduledStart: input.ScheduledStart,
		ScheduledEnd:   scheduledEnd,
		ActiveSlot:     1,
		SlotElapsed:    make([]time.Duration, sessionType.Slots()),
	}

	if err := s.sessions.CreateSession(ctx, session); err != nil {
		logger.Error("session create failed", "error", err, "error_kind", ErrorKind(err))
		return TherapySession{}, mapRepoError(err)
	}

	logger.Info("session created", "session_id", session.ID, "session_type", session.SessionType)
	return sessionFromPersistence(session), nil
}

// GetSession returns one session by ID.
func (s *SchedulingService) GetSession(ctx context.Context, id string) (TherapySession, error) {
	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return TherapySession{}, mapRepoError(err)
	}
	return sessionFromPersistence(session), nil
}

// MarkArrival records that the patient has arrived. Repeated calls are
// accepted; a session already past arrival keeps its state.
func (s *SchedulingService) MarkArrival(ctx context.Context, id string) (TherapySession, error) {
	logger := serviceLogger(ctx, s.logger, "scheduling", "mark_arrival", "session_id", id)

	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return TherapySession{}, mapRepoError(err)
	}

	switch session.Status {
	case persistence.StatusArrived, persistence.StatusInProgress:
		return sessionFromPersistence(session), nil
	case persistence.StatusScheduled:
	default:
		return TherapySession{}, fmt.Errorf("%w: cannot mark arrival in status %s", ErrInvalidState, session.Status)
	}

	arrived := s.now()
	status := persistence.StatusArrived
	updated, err := s.sessions.UpdateSessionIf(ctx, id,
		persistence.SessionExpectation{Status: session.Status, ActiveSlot: session.ActiveSlot},
		persistence.SessionMutation{Status: &status, ArrivedAt: &arrived},
	)
	if errors.Is(err, persistence.ErrConflict) {
		// Another operator got there first; accept the current state if it
		// already moved past arrival.
		current, getErr := s.sessions.GetSession(ctx, id)
		if getErr != nil {
			return TherapySession{}, mapRepoError(getErr)
		}
		if current.Status == persistence.StatusArrived || current.Status == persistence.StatusInProgress {
			return sessionFromPersistence(current), nil
		}
		return TherapySession{}, fmt.Errorf("%w: cannot mark arrival in status %s", ErrInvalidState, current.Status)
	}
	if err != nil {
		return TherapySession{}, mapRepoError(err)
	}

	logger.Info("patient arrived", "status", updated.Status)
	return sessionFromPersistence(updated), nil
}

// StartSession moves a session into in_progress and anchors the rotation to
// the current instant. Starting an already running session is a no-op.
func (s *SchedulingService) StartSession(ctx context.Context, id string) (TherapySession, error) {
	logger := serviceLogger(ctx, s.logger, "scheduling", "start_session", "session_id", id)

	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return TherapySession{}, mapRepoError(err)
	}

	switch session.Status {
	case persistence.StatusInProgress:
		return sessionFromPersistence(session), nil
	case persistence.StatusScheduled, persistence.StatusArrived:
	default:
		return TherapySession{}, fmt.Errorf("%w: cannot start session in status %s", ErrInvalidState, session.Status)
	}

	// The room must have a free spot now; a session running overdue still
	// occupies it, whatever the bookings said.
	room, err := s.rooms.GetRoom(ctx, session.RoomID)
	if err != nil {
		return TherapySession{}, mapRepoError(err)
	}
	running, err := s.sessions.ListSessions(ctx, persistence.SessionFilter{
		RoomID:   &session.RoomID,
		Statuses: []string{persistence.StatusInProgress},
	})
	if err != nil {
		return TherapySession{}, mapRepoError(err)
	}
	if len(running) >= room.Capacity {
		return TherapySession{}, fmt.Errorf("%w: room %s is already at capacity", ErrInvalidState, session.RoomID)
	}

	started := s.now()
	status := persistence.StatusInProgress
	one := 1
	updated, err := s.sessions.UpdateSessionIf(ctx, id,
		persistence.SessionExpectation{Status: session.Status, ActiveSlot: session.ActiveSlot},
		persistence.SessionMutation{
			Status:      &status,
			StartedAt:   &started,
			ActiveSlot:  &one,
			SlotElapsed: make([]time.Duration, len(session.StaffSlots)),
		},
	)
	if errors.Is(err, persistence.ErrConflict) {
		current, getErr := s.sessions.GetSession(ctx, id)
		if getErr != nil {
			return TherapySession{}, mapRepoError(getErr)
		}
		if current.Status == persistence.StatusInProgress {
			return sessionFromPersistence(current), nil
		}
		return TherapySession{}, fmt.Errorf("%w: cannot start session in status %s", ErrInvalidState, current.Status)
	}
	if err != nil {
		return TherapySession{}, mapRepoError(err)
	}

	logger.Info("session started", "started_at", started)
	return sessionFromPersistence(updated), nil
}

// AdvanceRotation hands the session to the next staff slot right now, before
// the current slot's time is up. The short slot keeps its partial credit.
func (s *SchedulingService) AdvanceRotation(ctx context.Context, id string) (TherapySession, error) {
	logger := serviceLogger(ctx, s.logger, "scheduling", "advance_rotation", "session_id", id)

	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return TherapySession{}, mapRepoError(err)
	}
	if session.Status != persistence.StatusInProgress {
		return TherapySession{}, fmt.Errorf("%w: cannot advance session in status %s", ErrInvalidState, session.Status)
	}
	if session.ActiveSlot >= len(session.StaffSlots) {
		return TherapySession{}, fmt.Errorf("%w: session is already in its last slot", ErrInvalidState)
	}

	eval, err := s.evaluate(ctx, session)
	if err != nil {
		return TherapySession{}, err
	}

	next := session.ActiveSlot + 1
	updated, err := s.sessions.UpdateSessionIf(ctx, id,
		persistence.SessionExpectation{Status: session.Status, ActiveSlot: session.ActiveSlot},
		persistence.SessionMutation{ActiveSlot: &next, SlotElapsed: eval.Elapsed},
	)
	if errors.Is(err, persistence.ErrConflict) {
		current, getErr := s.sessions.GetSession(ctx, id)
		if getErr != nil {
			return TherapySession{}, mapRepoError(getErr)
		}
		// The worker may have persisted the same hand-off between our read
		// and write.
		if current.Status == persistence.StatusInProgress && current.ActiveSlot > session.ActiveSlot {
			return sessionFromPersistence(current), nil
		}
		return TherapySession{}, fmt.Errorf("%w: session changed concurrently", ErrInvalidState)
	}
	if err != nil {
		return TherapySession{}, mapRepoError(err)
	}

	logger.Info("rotation advanced", "active_slot", updated.ActiveSlot)
	return sessionFromPersistence(updated), nil
}

// FinalizeSession closes a running session and freezes the per-slot credit.
// Finalizing an already completed session is a no-op.
func (s *SchedulingService) FinalizeSession(ctx context.Context, id string) (TherapySession, error) {
	logger := serviceLogger(ctx, s.logger, "scheduling", "finalize_session", "session_id", id)

	// One retry: the worker may advance the active slot between our read
	// and the conditional write.
	for attempt := 0; attempt < 2; attempt++ {
		session, err := s.sessions.GetSession(ctx, id)
		if err != nil {
			return TherapySession{}, mapRepoError(err)
		}

		if session.Status == persistence.StatusCompleted {
			return sessionFromPersistence(session), nil
		}
		if session.Status != persistence.StatusInProgress {
			return TherapySession{}, fmt.Errorf("%w: cannot finalize session in status %s", ErrInvalidState, session.Status)
		}

		eval, err := s.evaluate(ctx, session)
		if err != nil {
			return TherapySession{}, err
		}

		finalized := s.now()
		status := persistence.StatusCompleted
		updated, err := s.sessions.UpdateSessionIf(ctx, id,
			persistence.SessionExpectation{Status: session.Status, ActiveSlot: session.ActiveSlot},
			persistence.SessionMutation{Status: &status, FinalizedAt: &finalized, SlotElapsed: eval.Elapsed},
		)
		if errors.Is(err, persistence.ErrConflict) {
			continue
		}
		if err != nil {
			return TherapySession{}, mapRepoError(err)
		}

		logger.Info("session finalized", "finalized_at", finalized)
		return sessionFromPersistence(updated), nil
	}

	return TherapySession{}, fmt.Errorf("%w: session changed concurrently", ErrInvalidState)
}

// MarkNoShow records that the patient never arrived.
func (s *SchedulingService) MarkNoShow(ctx context.Context, id string) (TherapySession, error) {
	logger := serviceLogger(ctx, s.logger, "scheduling", "mark_no_show", "session_id", id)

	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return TherapySession{}, mapRepoError(err)
	}

	switch session.Status {
	case persistence.StatusNoShow:
		return sessionFromPersistence(session), nil
	case persistence.StatusScheduled, persistence.StatusArrived:
	default:
		return TherapySession{}, fmt.Errorf("%w: cannot mark no-show in status %s", ErrInvalidState, session.Status)
	}

	status := persistence.StatusNoShow
	updated, err := s.sessions.UpdateSessionIf(ctx, id,
		persistence.SessionExpectation{Status: session.Status, ActiveSlot: session.ActiveSlot},
		persistence.SessionMutation{Status: &status},
	)
	if errors.Is(err, persistence.ErrConflict) {
		return TherapySession{}, fmt.Errorf("%w: session changed concurrently", ErrInvalidState)
	}
	if err != nil {
		return TherapySession{}, mapRepoError(err)
	}

	logger.Info("session marked no-show")
	return sessionFromPersistence(updated), nil
}

// evaluate derives the live rotation state for a running session using the
// room's duration rule.
func (s *SchedulingService) evaluate(ctx context.Context, session persistence.TherapySession) (rotation.Evaluation, error) {
	room, err := s.rooms.GetRoom(ctx, session.RoomID)
	if err != nil {
		return rotation.Evaluation{}, mapRepoError(err)
	}
	return evaluateSession(session, room, s.policy, s.now())
}

// ensureRoomCapacity rejects a booking when the room already holds its
// maximum of concurrent sessions in the requested window.
func (s *SchedulingService) ensureRoomCapacity(ctx context.Context, room persistence.Room, start, end time.Time) error {
	day := start
	existing, err := s.sessions.ListSessions(ctx, persistence.SessionFilter{
		Date:   &day,
		RoomID: &room.ID,
		Statuses: []string{
			persistence.StatusScheduled,
			persistence.StatusArrived,
			persistence.StatusInProgress,
		},
	})
	if err != nil {
		return mapRepoError(err)
	}

	overlapping := 0
	for _, other := range existing {
		if other.ScheduledStart.Before(end) && other.ScheduledEnd.After(start) {
			overlapping++
		}
	}
	if overlapping >= room.Capacity {
		vErr := &ValidationError{}
		vErr.add("room_id", "room capacity reached for the requested time")
		return vErr
	}
	return nil
}

// evaluateSession builds the engine input from the stored record and the
// room's duration rule.
func evaluateSession(session persistence.TherapySession, room persistence.Room, policy rotation.Policy, now time.Time) (rotation.Evaluation, error) {
	if session.StartedAt == nil {
		return rotation.Evaluation{}, rotation.ErrNotRunning
	}
	plan := policy.PlanFor(rotation.RoomCategory(room.Category), rotation.SessionType(session.SessionType))
	return rotation.Evaluate(rotation.Session{
		ID:           session.ID,
		SlotCount:    plan.Slots,
		SlotDuration: plan.SlotDuration,
		StartedAt:    *session.StartedAt,
		ActiveSlot:   session.ActiveSlot,
		Elapsed:      session.SlotElapsed,
	}, now)
}

// mapRepoError converts persistence sentinels into application errors.
// Conflicts pass through untouched so callers can react to lost races.
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		return err
	}
}

func trimmedStrings(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimSpace(v)
	}
	return out
}
