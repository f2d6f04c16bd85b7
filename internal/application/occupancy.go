package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/therapy-scheduler/internal/persistence"
	"github.com/example/therapy-scheduler/internal/rotation"
)

// OccupancyService builds the live agenda board: rooms in display order, each
// with its sessions, live rotation state, alerts and staff roster. When the
// store is unreachable the last good board is served flagged stale.
type OccupancyService struct {
	sessions    persistence.SessionRepository
	rooms       persistence.RoomRepository
	allocations persistence.AllocationRepository
	policy      rotation.Policy
	detector    *AlertDetector
	cache       *boardCache
	now         func() time.Time
	logger      *slog.Logger
}

// NewOccupancyService wires dependencies for the agenda board.
func NewOccupancyService(sessions persistence.SessionRepository, rooms persistence.RoomRepository, allocations persistence.AllocationRepository, policy rotation.Policy, detector *AlertDetector, now func() time.Time, logger *slog.Logger) *OccupancyService {
	if now == nil {
		now = time.Now
	}
	if detector == nil {
		detector = NewAlertDetector(AlertConfig{})
	}
	if policy == (rotation.Policy{}) {
		policy = rotation.DefaultPolicy()
	}
	return &OccupancyService{
		sessions:    sessions,
		rooms:       rooms,
		allocations: allocations,
		policy:      policy,
		detector:    detector,
		cache:       newBoardCache(0, 0, now),
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// RoomBoard assembles the agenda for one day, optionally narrowed to a room.
func (s *OccupancyService) RoomBoard(ctx context.Context, date time.Time, roomID *string) (RoomBoard, error) {
	logger := serviceLogger(ctx, s.logger, "occupancy", "room_board", "date", date.Format("2006-01-02"))
	key := buildBoardCacheKey(date, roomID)

	board, err := s.buildBoard(ctx, date, roomID)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			if cached, ok := s.cache.Get(key); ok {
				logger.Warn("serving stale board, store unavailable", "error", err)
				cached.Stale = true
				return cached, nil
			}
		}
		logger.Error("board build failed", "error", err, "error_kind", ErrorKind(err))
		return RoomBoard{}, err
	}

	s.cache.Store(key, board)
	return board, nil
}

func (s *OccupancyService) buildBoard(ctx context.Context, date time.Time, roomID *string) (RoomBoard, error) {
	rooms, err := s.rooms.ListRooms(ctx)
	if err != nil {
		return RoomBoard{}, mapRepoError(err)
	}
	if roomID != nil {
		filtered := rooms[:0]
		for _, room := range rooms {
			if room.ID == *roomID {
				filtered = append(filtered, room)
			}
		}
		if len(filtered) == 0 {
			return RoomBoard{}, ErrNotFound
		}
		rooms = filtered
	}

	sessions, err := s.sessions.ListSessions(ctx, persistence.SessionFilter{Date: &date, RoomID: roomID})
	if err != nil {
		return RoomBoard{}, mapRepoError(err)
	}

	allocations, err := s.allocations.ListActiveAllocations(ctx)
	if err != nil {
		return RoomBoard{}, mapRepoError(err)
	}

	now := s.now()
	byRoom := make(map[string][]persistence.TherapySession)
	for _, session := range sessions {
		byRoom[session.RoomID] = append(byRoom[session.RoomID], session)
	}

	board := RoomBoard{Date: date, GeneratedAt: now}
	for _, room := range rooms {
		if !room.Active {
			continue
		}
		column := RoomColumn{Room: roomFromPersistence(room)}

		inSession := make(map[string]bool)
		for _, session := range byRoom[room.ID] {
			view := s.sessionView(session, room, now)
			if session.Status == persistence.StatusInProgress {
				inSession[view.ActiveStaff()] = true
				column.Occupancy++
			}
			column.Sessions = append(column.Sessions, view)
		}

		for _, allocation := range allocations {
			if allocation.RoomID != room.ID {
				continue
			}
			if allocation.Weekday != date.Weekday() || allocation.Period != periodOf(now) {
				continue
			}
			column.Staff = append(column.Staff, StaffPresence{
				StaffRef:  allocation.StaffRef,
				StaffName: allocation.StaffName,
				InSession: inSession[allocation.StaffRef],
			})
		}

		board.Rooms = append(board.Rooms, column)
	}

	return board, nil
}

// sessionView enriches one session with live rotation state and alerts.
func (s *OccupancyService) sessionView(session persistence.TherapySession, room persistence.Room, now time.Time) SessionView {
	view := SessionView{
		TherapySession: sessionFromPersistence(session),
		CurrentSlot:    session.ActiveSlot,
		NextAction:     rotation.ActionContinue,
	}

	var evalPtr *rotation.Evaluation
	if session.Status == persistence.StatusInProgress && session.StartedAt != nil {
		eval, err := evaluateSession(session, room, s.policy, now)
		if err == nil {
			view.CurrentSlot = eval.ActiveSlot
			view.Elapsed = eval.Elapsed
			view.Remaining = eval.Remaining
			view.NextAction = eval.Next
			view.Overdue = eval.Overdue
			evalPtr = &eval
		}
	}

	view.Alerts = s.detector.Detect(session, evalPtr, now)
	return view
}

// periodOf maps an instant to the clinic's morning or afternoon shift.
func periodOf(now time.Time) string {
	if now.Hour() < 13 {
		return "morning"
	}
	return "afternoon"
}
