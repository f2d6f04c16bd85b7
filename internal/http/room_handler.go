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

type roomService interface {
	CreateRoom(ctx context.Context, input application.RoomInput) (application.Room, error)
	ListRooms(ctx context.Context) ([]application.Room, error)
	CreateAllocation(ctx context.Context, input application.AllocationInput) (application.StaffAllocation, error)
	ListAllocations(ctx context.Context) ([]application.StaffAllocation, error)
}

type RoomHandler struct {
	service   roomService
	responder responder
}

func NewRoomHandler(service roomService, logger *slog.Logger) *RoomHandler {
	return &RoomHandler{service: service, responder: newResponder(logger)}
}

func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req roomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	room, err := h.service.CreateRoom(r.Context(), req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, roomResponse{Room: toRoomDTO(room)})
}

func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	rooms, err := h.service.ListRooms(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listRoomsResponse{Rooms: toRoomDTOs(rooms)})
}

func (h *RoomHandler) CreateAllocation(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req allocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	allocation, err := h.service.CreateAllocation(r.Context(), req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, allocationResponse{Allocation: toAllocationDTO(allocation)})
}

func (h *RoomHandler) ListAllocations(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	allocations, err := h.service.ListAllocations(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listAllocationsResponse{Allocations: toAllocationDTOs(allocations)})
}

type roomRequest struct {
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	Capacity     int     `json:"capacity"`
	DisplayOrder int     `json:"display_order"`
	LabelColor   *string `json:"label_color"`
}

func (r roomRequest) toInput() application.RoomInput {
	return application.RoomInput{
		Name:         strings.TrimSpace(r.Name),
		Category:     strings.TrimSpace(r.Category),
		Capacity:     r.Capacity,
		DisplayOrder: r.DisplayOrder,
		LabelColor:   r.LabelColor,
	}
}

type allocationRequest struct {
	StaffRef  string `json:"staff_ref"`
	StaffName string `json:"staff_name"`
	RoomID    string `json:"room_id"`
	Weekday   int    `json:"weekday"`
	Period    string `json:"period"`
}

func (r allocationRequest) toInput() application.AllocationInput {
	return application.AllocationInput{
		StaffRef:  strings.TrimSpace(r.StaffRef),
		StaffName: strings.TrimSpace(r.StaffName),
		RoomID:    strings.TrimSpace(r.RoomID),
		Weekday:   time.Weekday(r.Weekday),
		Period:    strings.TrimSpace(r.Period),
	}
}

type roomResponse struct {
	Room roomDTO `json:"room"`
}

type listRoomsResponse struct {
	Rooms []roomDTO `json:"rooms"`
}

type roomDTO struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	Capacity     int     `json:"capacity"`
	DisplayOrder int     `json:"display_order"`
	LabelColor   *string `json:"label_color,omitempty"`
	Active       bool    `json:"active"`
}

func toRoomDTO(room application.Room) roomDTO {
	return roomDTO{
		ID:           room.ID,
		Name:         room.Name,
		Category:     string(room.Category),
		Capacity:     room.Capacity,
		DisplayOrder: room.DisplayOrder,
		LabelColor:   room.LabelColor,
		Active:       room.Active,
	}
}

func toRoomDTOs(rooms []application.Room) []roomDTO {
	if len(rooms) == 0 {
		return nil
	}
	out := make([]roomDTO, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, toRoomDTO(room))
	}
	return out
}

type allocationResponse struct {
	Allocation allocationDTO `json:"allocation"`
}

type listAllocationsResponse struct {
	Allocations []allocationDTO `json:"allocations"`
}

type allocationDTO struct {
	ID        string `json:"id"`
	StaffRef  string `json:"staff_ref"`
	StaffName string `json:"staff_name"`
	RoomID    string `json:"room_id"`
	Weekday   int    `json:"weekday"`
	Period    string `json:"period"`
}

func toAllocationDTO(allocation application.StaffAllocation) allocationDTO {
	return allocationDTO{
		ID:        allocation.ID,
		StaffRef:  allocation.StaffRef,
		StaffName: allocation.StaffName,
		RoomID:    allocation.RoomID,
		Weekday:   int(allocation.Weekday),
		Period:    allocation.Period,
	}
}

func toAllocationDTOs(allocations []application.StaffAllocation) []allocationDTO {
	if len(allocations) == 0 {
		return nil
	}
	out := make([]allocationDTO, 0, len(allocations))
	for _, allocation := range allocations {
		out = append(out, toAllocationDTO(allocation))
	}
	return out
}
