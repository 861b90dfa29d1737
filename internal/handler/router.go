package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ISTE-SAL/InGress/internal/auth"
	"github.com/ISTE-SAL/InGress/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the collaborators the router dispatches to.
type Deps struct {
	Events      *service.EventService
	Sessions    *service.ScanSessions
	Issuer      *auth.Issuer
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
	SessionTTL  time.Duration
	Logger      *slog.Logger
}

// NewRouter builds the HTTP API.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	if d.SessionTTL <= 0 {
		d.SessionTTL = 12 * time.Hour
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	events := NewEventHandler(d.Events, d.Logger)
	scans := NewScanHandler(d.Sessions, d.Logger)
	operators := NewOperatorHandler(d.Issuer, d.SessionTTL, d.Logger)

	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger(d.Logger))
	r.Use(CORS(d.CORSOrigins))

	r.Get("/health", HealthCheck)
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(d.Issuer))

		r.Route("/events", func(r chi.Router) {
			r.Use(Require(auth.CapManageEvents))
			r.Post("/", events.CreateEvent)
			r.Get("/", events.ListEvents)
			r.Get("/{id}", events.GetEvent)
			r.Patch("/{id}/status", events.SetStatus)
			r.Post("/{id}/participants/import", events.ImportRoster)
			r.Get("/{id}/participants", events.ListParticipants)
			r.Get("/{id}/attendance.csv", events.ExportAttendance)
			r.Get("/{id}/participants/{pid}/token", events.Token)
			r.Get("/{id}/participants/{pid}/qr.png", events.QRCode)
		})

		r.With(Require(auth.CapManageUsers)).Post("/operators/sessions", operators.IssueSession)

		r.Route("/scan/sessions", func(r chi.Router) {
			r.Use(Require(auth.CapScan))
			r.Post("/", scans.Start)
			r.Put("/{sid}/event", scans.SwitchEvent)
			r.Post("/{sid}/scans", scans.Scan)
			r.Post("/{sid}/resume", scans.Resume)
			r.Delete("/{sid}", scans.End)
		})
	})

	return r
}
