package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ISTE-SAL/InGress/internal/auth"
	"github.com/ISTE-SAL/InGress/internal/model"
)

// OperatorHandler issues bearer tokens for scanner and admin operators.
type OperatorHandler struct {
	issuer *auth.Issuer
	ttl    time.Duration
	logger *slog.Logger
}

// NewOperatorHandler constructs an OperatorHandler. ttl is the lifetime
// used when a request does not name one.
func NewOperatorHandler(issuer *auth.Issuer, ttl time.Duration, logger *slog.Logger) *OperatorHandler {
	return &OperatorHandler{issuer: issuer, ttl: ttl, logger: logger}
}

// IssueSession handles POST /operators/sessions
// Callers may only hand out capabilities they hold themselves.
func (h *OperatorHandler) IssueSession(w http.ResponseWriter, r *http.Request) {
	var req model.IssueSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ttl := h.ttl
	if req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "ttl must be a positive duration such as 8h")
			return
		}
		ttl = d
	}
	session, err := auth.NewOperatorSession(req.Subject, req.Name, req.Roles)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller := auth.FromContext(r.Context())
	if !caller.Grants(session.Capabilities) {
		writeError(w, http.StatusForbidden, "cannot grant capabilities you do not hold")
		return
	}

	raw, err := h.issuer.Issue(session, ttl)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	issued, err := h.issuer.Parse(raw)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	caps := make([]string, 0, len(issued.Capabilities))
	for _, c := range issued.Capabilities.List() {
		caps = append(caps, string(c))
	}
	h.logger.Info(
		"operator session issued",
		"component", "auth",
		"issued_by", caller.Subject,
		"subject", issued.Subject,
		"capabilities", caps,
		"expires_at", issued.ExpiresAt,
	)
	writeJSON(w, http.StatusCreated, model.IssuedSession{
		Token:        raw,
		Subject:      issued.Subject,
		Capabilities: caps,
		ExpiresAt:    issued.ExpiresAt,
	})
}
