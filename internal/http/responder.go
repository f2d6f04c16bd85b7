package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/therapy-scheduler/internal/application"
)

var (
	errBadRequestBody = errors.New("Formato de requisição inválido.")
	errInvalidDate    = errors.New("Data inválida. Use o formato AAAA-MM-DD.")
	errMissingSession = errors.New("Identificador de sessão inválido.")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := localizedStatusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	switch {
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Message: "Sessão ou sala não encontrada."})
	case errors.Is(err, application.ErrInvalidState):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "INVALID_STATE",
			Message:   "A sessão mudou de estado. Atualize a agenda e tente novamente.",
		})
	case errors.Is(err, application.ErrStoreUnavailable):
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{Message: "Banco de dados indisponível. Tente novamente em instantes."})
	default:
		var vErr *application.ValidationError
		if errors.As(err, &vErr) {
			r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
				Message: "Há erros nos dados informados.",
				Errors:  localizeValidationErrors(vErr),
			})
			return
		}

		r.loggerFor(ctx).ErrorContext(ctx, "unexpected service error", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: "Erro interno do servidor."})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func localizedStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "Requisição inválida."
	case http.StatusNotFound:
		return "Recurso não encontrado."
	case http.StatusConflict:
		return "A requisição conflita com o estado atual do recurso."
	case http.StatusUnprocessableEntity:
		return "Há erros nos dados informados."
	case http.StatusServiceUnavailable:
		return "Serviço temporariamente indisponível."
	default:
		return "Erro interno do servidor."
	}
}

func localizeValidationErrors(vErr *application.ValidationError) map[string]string {
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return nil
	}

	translated := make(map[string]string, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		translated[field] = translateValidationMessage(msg)
	}
	return translated
}

func translateValidationMessage(message string) string {
	switch message {
	case "room is required":
		return "A sala é obrigatória."
	case "unknown room":
		return "A sala informada não existe."
	case "room is inactive":
		return "A sala informada está desativada."
	case "room capacity reached for the requested time":
		return "A sala já está ocupada no horário solicitado."
	case "patient reference is required":
		return "O paciente é obrigatório."
	case "patient label is required":
		return "O nome do paciente é obrigatório."
	case "scheduled start is required":
		return "O horário de início é obrigatório."
	case "scheduled end must be after the start":
		return "O horário de término deve ser após o início."
	case "session type must be individual, shared or triple":
		return "O tipo de sessão deve ser individual, compartilhada ou tripla."
	case "staff references must not be empty":
		return "Informe todos os profissionais da sessão."
	case "staff references must be distinct":
		return "Os profissionais da sessão devem ser distintos."
	case "room name is required":
		return "O nome da sala é obrigatório."
	case "a room with this name already exists":
		return "Já existe uma sala com este nome."
	case "category must be standard or assessment":
		return "A categoria deve ser padrão ou avaliação."
	case "capacity must be at least 1":
		return "A capacidade deve ser de pelo menos 1."
	case "staff reference is required":
		return "O profissional é obrigatório."
	case "staff name is required":
		return "O nome do profissional é obrigatório."
	case "weekday must be between Sunday and Saturday":
		return "O dia da semana é inválido."
	case "period must be morning or afternoon":
		return "O período deve ser manhã ou tarde."
	case "this staff member is already assigned to the room for this slot":
		return "Este profissional já está alocado nesta sala e horário."
	default:
		if strings.HasPrefix(message, "session type ") {
			return "A quantidade de profissionais não corresponde ao tipo de sessão."
		}
		return message
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
