package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/therapy-scheduler/internal/application"
)

type schedulingService interface {
	CreateSession(ctx context.Context, input application.CreateSessionInput) (application.TherapySession, error)
	GetSession(ctx context.Context, id string) (application.TherapySession, error)
	MarkArrival(ctx context.Context, id string) (application.TherapySession, error)
	StartSession(ctx context.Context, id string) (application.TherapySession, error)
	AdvanceRotation(ctx context.Context, id string) (application.TherapySession, error)
	FinalizeSession(ctx context.Context, id string) (application.TherapySession, error)
	MarkNoShow(ctx context.Context, id string) (application.TherapySession, error)
}

type SessionHandler struct {
	service   schedulingService
	responder responder
}

func NewSessionHandler(service schedulingService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{service: service, responder: newResponder(logger)}
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	session, err := h.service.CreateSession(r.Context(), req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, sessionResponse{Session: toSessionDTO(session)})
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.withSession(w, r, h.service.GetSession)
}

func (h *SessionHandler) MarkArrival(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.withSession(w, r, h.service.MarkArrival)
}

func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.withSession(w, r, h.service.StartSession)
}

func (h *SessionHandler) Advance(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.withSession(w, r, h.service.AdvanceRotation)
}

func (h *SessionHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.withSession(w, r, h.service.FinalizeSession)
}

func (h *SessionHandler) MarkNoShow(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.withSession(w, r, h.service.MarkNoShow)
}

type sessionOperation func(ctx context.Context, id string) (application.TherapySession, error)

func (h *SessionHandler) withSession(w http.ResponseWriter, r *http.Request, op sessionOperation) {
	sessionID, ok := SessionIDFromContext(r.Context())
	if !ok || strings.TrimSpace(sessionID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingSession)
		return
	}

	session, err := op(r.Context(), sessionID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionResponse{Session: toSessionDTO(session)})
}

type sessionRequest struct {
	RoomID         string   `json:"room_id"`
	PatientRef     string   `json:"patient_ref"`
	PatientLabel   string   `json:"patient_label"`
	SessionType    string   `json:"session_type"`
	StaffRefs      []string `json:"staff_refs"`
	ScheduledStart string   `json:"scheduled_start"`
	ScheduledEnd   string   `json:"scheduled_end"`
}

func (r sessionRequest) toInput() application.CreateSessionInput {
	return application.CreateSessionInput{
		RoomID:         strings.TrimSpace(r.RoomID),
		PatientRef:     strings.TrimSpace(r.PatientRef),
		PatientLabel:   strings.TrimSpace(r.PatientLabel),
		SessionType:    strings.TrimSpace(r.SessionType),
		StaffRefs:      append([]string(nil), r.StaffRefs...),
		ScheduledStart: parseTime(r.ScheduledStart),
		ScheduledEnd:   parseTime(r.ScheduledEnd),
	}
}

func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts
	}
	return time.Time{}
}

type sessionResponse struct {
	Session sessionDTO `json:"session"`
}

type sessionDTO struct {
	ID             string   `json:"id"`
	RoomID         string   `json:"room_id"`
	PatientRef     string   `json:"patient_ref"`
	PatientLabel   string   `json:"patient_label"`
	SessionType    string   `json:"session_type"`
	StaffRefs      []string `json:"staff_refs"`
	Status         string   `json:"status"`
	ScheduledStart string   `json:"scheduled_start"`
	ScheduledEnd   string   `json:"scheduled_end"`
	ArrivedAt      string   `json:"arrived_at,omitempty"`
	StartedAt      string   `json:"started_at,omitempty"`
	FinalizedAt    string   `json:"finalized_at,omitempty"`
	ActiveSlot     int      `json:"active_slot"`
	SlotElapsed    []int    `json:"slot_elapsed_seconds"`
}

func toSessionDTO(session application.TherapySession) sessionDTO {
	seconds := make([]int, 0, len(session.SlotElapsed))
	for _, elapsed := range session.SlotElapsed {
		seconds = append(seconds, int(elapsed.Seconds()))
	}

	return sessionDTO{
		ID:             session.ID,
		RoomID:         session.RoomID,
		PatientRef:     session.PatientRef,
		PatientLabel:   session.PatientLabel,
		SessionType:    string(session.SessionType),
		StaffRefs:      append([]string(nil), session.StaffSlots...),
		Status:         session.Status,
		ScheduledStart: session.ScheduledStart.UTC().Format(time.RFC3339),
		ScheduledEnd:   session.ScheduledEnd.UTC().Format(time.RFC3339),
		ArrivedAt:      formatOptionalTime(session.ArrivedAt),
		StartedAt:      formatOptionalTime(session.StartedAt),
		FinalizedAt:    formatOptionalTime(session.FinalizedAt),
		ActiveSlot:     session.ActiveSlot,
		SlotElapsed:    seconds,
	}
}

func formatOptionalTime(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}
