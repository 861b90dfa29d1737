package handler

import (
	"log/slog"
	"net/http"

	"github.com/ISTE-SAL/InGress/internal/auth"
	"github.com/ISTE-SAL/InGress/internal/model"
	"github.com/ISTE-SAL/InGress/internal/service"
	"github.com/go-chi/chi/v5"
)

// ScanHandler exposes scan sessions to scanner devices.
type ScanHandler struct {
	sessions *service.ScanSessions
	logger   *slog.Logger
}

// NewScanHandler constructs a ScanHandler.
func NewScanHandler(sessions *service.ScanSessions, logger *slog.Logger) *ScanHandler {
	return &ScanHandler{sessions: sessions, logger: logger}
}

type sessionResponse struct {
	ID     string        `json:"id"`
	Event  model.Event   `json:"event"`
	Active []model.Event `json:"activeEvents"`
	Paused bool          `json:"paused"`
}

func (h *ScanHandler) session(w http.ResponseWriter, r *http.Request) (*service.ScanSession, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "sid"), auth.FromContext(r.Context()).Subject)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return nil, false
	}
	return s, true
}

// Start handles POST /scan/sessions
func (h *ScanHandler) Start(w http.ResponseWriter, r *http.Request) {
	s, sel, err := h.sessions.Start(r.Context(), auth.FromContext(r.Context()).Subject)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{ID: s.ID, Event: sel.Current, Active: sel.Active})
}

// SwitchEvent handles PUT /scan/sessions/{sid}/event
func (h *ScanHandler) SwitchEvent(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req model.SwitchEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sel, err := s.SwitchEvent(r.Context(), req.EventID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{ID: s.ID, Event: sel.Current, Active: sel.Active, Paused: s.Paused()})
}

// Scan handles POST /scan/sessions/{sid}/scans
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req model.ScanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := s.Submit(r.Context(), req.Text)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if res.Suppressed {
		writeJSON(w, http.StatusAccepted, res)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// Resume handles POST /scan/sessions/{sid}/resume
func (h *ScanHandler) Resume(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.Resume()
	w.WriteHeader(http.StatusNoContent)
}

// End handles DELETE /scan/sessions/{sid}
func (h *ScanHandler) End(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.End(chi.URLParam(r, "sid"), auth.FromContext(r.Context()).Subject); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
