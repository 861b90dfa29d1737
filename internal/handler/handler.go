// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ISTE-SAL/InGress/internal/model"
	"github.com/ISTE-SAL/InGress/internal/repository"
	"github.com/ISTE-SAL/InGress/internal/service"
	"github.com/ISTE-SAL/InGress/internal/token"
	"github.com/go-chi/chi/v5"
)

const maxRosterBytes = 8 << 20

// EventHandler holds the event administration handlers.
type EventHandler struct {
	svc    *service.EventService
	logger *slog.Logger
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(svc *service.EventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{svc: svc, logger: logger}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeServiceError maps service and store errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var invalid *service.ValidationError
	switch {
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrEmptyRoster):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, service.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrNoActiveEvent),
		errors.Is(err, service.ErrEventNotActive),
		errors.Is(err, service.ErrSessionPaused):
		writeError(w, http.StatusConflict, err.Error())
	default:
		logger.Error("request failed", "component", "http", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// CreateEvent handles POST /events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.svc.CreateEvent(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListEvents(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	stats, err := h.svc.Stats(r.Context(), event.ID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		*model.Event
		Stats *model.EventStats `json:"stats"`
	}{event, stats})
}

// SetStatus handles PATCH /events/{id}/status
func (h *EventHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req model.SetStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.svc.SetEventActive(r.Context(), chi.URLParam(r, "id"), req.IsActive)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// ImportRoster handles POST /events/{id}/participants/import
// The body is the CSV sheet itself.
func (h *EventHandler) ImportRoster(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxRosterBytes)
	report, err := h.svc.ImportRoster(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, report)
}

// ListParticipants handles GET /events/{id}/participants
func (h *EventHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListParticipants(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if list == nil {
		list = []model.Participant{}
	}

	writeJSON(w, http.StatusOK, list)
}

// ExportAttendance handles GET /events/{id}/attendance.csv
func (h *EventHandler) ExportAttendance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// Resolve first so a missing event still gets a JSON 404.
	if _, err := h.svc.GetEvent(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "attendance-"+id+".csv"))
	if _, err := h.svc.ExportAttendance(r.Context(), id, w); err != nil {
		h.logger.Error("attendance export interrupted", "component", "http", "event_id", id, "error", err)
	}
}

// Token handles GET /events/{id}/participants/{pid}/token
func (h *EventHandler) Token(w http.ResponseWriter, r *http.Request) {
	raw, p, err := h.svc.IssueToken(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "pid"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"token": raw, "participant": p})
}

// QRCode handles GET /events/{id}/participants/{pid}/qr.png
// An optional ?size= sets the image width in pixels.
func (h *EventHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	size := token.DefaultImageSize
	if s := r.URL.Query().Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 64 || n > 2048 {
			writeError(w, http.StatusBadRequest, "size must be between 64 and 2048")
			return
		}
		size = n
	}

	raw, _, err := h.svc.IssueToken(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "pid"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	png, err := token.PNG(raw, size)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
