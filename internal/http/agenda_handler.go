package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/therapy-scheduler/internal/application"
)

type occupancyService interface {
	RoomBoard(ctx context.Context, date time.Time, roomID *string) (application.RoomBoard, error)
}

type AgendaHandler struct {
	service   occupancyService
	responder responder
	now       func() time.Time
}

func NewAgendaHandler(service occupancyService, now func() time.Time, logger *slog.Logger) *AgendaHandler {
	if now == nil {
		now = time.Now
	}
	return &AgendaHandler{service: service, responder: newResponder(logger), now: now}
}

// Board serves the day's occupancy board, optionally narrowed to one room.
func (h *AgendaHandler) Board(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	date := h.now().UTC()
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
			return
		}
		date = parsed
	}

	var roomID *string
	if raw := strings.TrimSpace(r.URL.Query().Get("room")); raw != "" {
		roomID = &raw
	}

	board, err := h.service.RoomBoard(r.Context(), date, roomID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toBoardDTO(board))
}

type boardDTO struct {
	Date        string          `json:"date"`
	GeneratedAt string          `json:"generated_at"`
	Stale       bool            `json:"stale"`
	Rooms       []roomColumnDTO `json:"rooms"`
}

type roomColumnDTO struct {
	Room      roomDTO            `json:"room"`
	Occupancy int                `json:"occupancy"`
	Sessions  []sessionViewDTO   `json:"sessions"`
	Staff     []staffPresenceDTO `json:"staff"`
}

type sessionViewDTO struct {
	sessionDTO
	CurrentSlot      int    `json:"current_slot"`
	RemainingSeconds int    `json:"remaining_seconds"`
	NextAction       string `json:"next_action"`
	Overdue          bool       `json:"overdue"`
	Alerts           []alertDTO `json:"alerts,omitempty"`
}

type staffPresenceDTO struct {
	StaffRef  string `json:"staff_ref"`
	StaffName string `json:"staff_name"`
	InSession bool   `json:"in_session"`
}

type alertDTO struct {
	Kind      string `json:"kind"`
	SessionID string `json:"session_id"`
	RoomID    string `json:"room_id"`
	Message   string `json:"message"`
}

func toBoardDTO(board application.RoomBoard) boardDTO {
	rooms := make([]roomColumnDTO, 0, len(board.Rooms))
	for _, column := range board.Rooms {
		rooms = append(rooms, roomColumnDTO{
			Room:      toRoomDTO(column.Room),
			Occupancy: column.Occupancy,
			Sessions:  toSessionViewDTOs(column.Sessions),
			Staff:     toStaffPresenceDTOs(column.Staff),
		})
	}

	return boardDTO{
		Date:        board.Date.UTC().Format("2006-01-02"),
		GeneratedAt: board.GeneratedAt.UTC().Format(time.RFC3339),
		Stale:       board.Stale,
		Rooms:       rooms,
	}
}

func toSessionViewDTOs(views []application.SessionView) []sessionViewDTO {
	out := make([]sessionViewDTO, 0, len(views))
	for _, view := range views {
		out = append(out, sessionViewDTO{
			sessionDTO:       toSessionDTO(view.TherapySession),
			CurrentSlot:      view.CurrentSlot,
			RemainingSeconds: int(view.Remaining.Seconds()),
			NextAction:       string(view.NextAction),
			Overdue:          view.Overdue,
			Alerts:           toAlertDTOs(view.Alerts),
		})
	}
	return out
}

func toStaffPresenceDTOs(staff []application.StaffPresence) []staffPresenceDTO {
	out := make([]staffPresenceDTO, 0, len(staff))
	for _, member := range staff {
		out = append(out, staffPresenceDTO{
			StaffRef:  member.StaffRef,
			StaffName: member.StaffName,
			InSession: member.InSession,
		})
	}
	return out
}

func toAlertDTOs(alerts []application.Alert) []alertDTO {
	if len(alerts) == 0 {
		return nil
	}
	out := make([]alertDTO, 0, len(alerts))
	for _, alert := range alerts {
		out = append(out, alertDTO{
			Kind:      string(alert.Kind),
			SessionID: alert.SessionID,
			RoomID:    alert.RoomID,
			Message:   alert.Message,
		})
	}
	return out
}
