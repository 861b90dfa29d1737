// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the storage layer.
package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ISTE-SAL/InGress/internal/model"
	"github.com/ISTE-SAL/InGress/internal/repository"
	"github.com/ISTE-SAL/InGress/internal/roster"
	"github.com/ISTE-SAL/InGress/internal/token"
)

// EventStore persists events.
type EventStore interface {
	Create(ctx context.Context, event *model.Event) error
	List(ctx context.Context) ([]model.Event, error)
	ListActive(ctx context.Context) ([]model.Event, error)
	GetByID(ctx context.Context, id string) (*model.Event, error)
	SetActive(ctx context.Context, id string, active bool) (*model.Event, error)
}

// RosterStore persists participants. CheckIn must perform the
// read-check-write as one atomic unit; its error return is reserved for
// transient failures.
type RosterStore interface {
	Get(ctx context.Context, eventID, participantID string) (*model.Participant, error)
	ListByEvent(ctx context.Context, eventID string) ([]model.Participant, error)
	InsertBatch(ctx context.Context, eventID string, participants []model.Participant) error
	CheckIn(ctx context.Context, eventID, participantID string) (model.CheckInOutcome, error)
}

// ErrEmptyRoster is returned when an upload has no usable rows.
var ErrEmptyRoster = errors.New("no valid participants found; check the Name, Enrollment and Email column headers")

// ValidationError is returned for a bad request payload.
type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

const dateLayout = "2006-01-02"

// EventService orchestrates event administration.
type EventService struct {
	events       EventStore
	participants RosterStore
	codec        *token.Codec
	logger       *slog.Logger
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(
	events EventStore,
	participants RosterStore,
	codec *token.Codec,
	logger *slog.Logger,
) *EventService {
	return &EventService{
		events:       events,
		participants: participants,
		codec:        codec,
		logger:       orDiscard(logger),
	}
}

// CreateEvent validates the request and delegates to the store.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Venue = strings.TrimSpace(req.Venue)
	req.Date = strings.TrimSpace(req.Date)
	if req.Name == "" {
		return nil, invalid("event name is required")
	}
	if req.Venue == "" {
		return nil, invalid("venue is required")
	}
	if _, err := time.Parse(dateLayout, req.Date); err != nil {
		return nil, invalid("date must be formatted as YYYY-MM-DD")
	}
	event := &model.Event{
		ID:       repository.NewID(),
		Name:     req.Name,
		Date:     req.Date,
		Venue:    req.Venue,
		IsActive: req.IsActive,
	}
	if err := s.events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.logger.Info("event created", "component", "events", "event_id", event.ID, "active", event.IsActive)
	return event, nil
}

// ListEvents returns all events.
func (s *EventService) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.events.List(ctx)
}

// GetEvent returns a single event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, invalid("event id is required")
	}
	return s.events.GetByID(ctx, id)
}

// SetEventActive marks an event live or completed.
func (s *EventService) SetEventActive(ctx context.Context, id string, active bool) (*model.Event, error) {
	event, err := s.events.SetActive(ctx, id, active)
	if err != nil {
		return nil, err
	}
	s.logger.Info("event status changed", "component", "events", "event_id", id, "active", active)
	return event, nil
}

// ImportRoster parses an uploaded CSV sheet and inserts its participants
// under the event in one batch.
func (s *EventService) ImportRoster(ctx context.Context, eventID string, sheet io.Reader) (*model.ImportReport, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	res, err := roster.Parse(sheet)
	if err != nil {
		return nil, invalid("unreadable roster: %v", err)
	}
	if len(res.Participants) == 0 {
		return nil, ErrEmptyRoster
	}
	for i := range res.Participants {
		res.Participants[i].ID = repository.NewID()
		res.Participants[i].EventID = eventID
	}
	if err := s.participants.InsertBatch(ctx, eventID, res.Participants); err != nil {
		return nil, fmt.Errorf("import roster: %w", err)
	}
	report := &model.ImportReport{Imported: len(res.Participants), Skipped: res.Skipped}
	s.logger.Info(
		"roster imported",
		"component", "events",
		"event_id", eventID,
		"imported", report.Imported,
		"skipped", report.Skipped,
	)
	return report, nil
}

// ListParticipants returns the roster of an event.
func (s *EventService) ListParticipants(ctx context.Context, eventID string) ([]model.Participant, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.participants.ListByEvent(ctx, eventID)
}

// Stats counts the roster and admissions of an event.
func (s *EventService) Stats(ctx context.Context, eventID string) (*model.EventStats, error) {
	list, err := s.ListParticipants(ctx, eventID)
	if err != nil {
		return nil, err
	}
	stats := &model.EventStats{Total: len(list)}
	for _, p := range list {
		if p.CheckedIn {
			stats.CheckedIn++
		}
	}
	return stats, nil
}

// ExportAttendance writes the checked-in participants of an event as CSV
// and returns how many rows were written.
func (s *EventService) ExportAttendance(ctx context.Context, eventID string, w io.Writer) (int, error) {
	list, err := s.ListParticipants(ctx, eventID)
	if err != nil {
		return 0, err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Sr No.", "Name", "Enrollment", "Email", "Checked In At"}); err != nil {
		return 0, err
	}
	n := 0
	for _, p := range list {
		if !p.CheckedIn {
			continue
		}
		n++
		at := "N/A"
		if p.CheckedInAt != nil {
			at = p.CheckedInAt.UTC().Format(time.RFC3339)
		}
		if err := cw.Write([]string{strconv.Itoa(n), p.Name, p.Enrollment, p.Email, at}); err != nil {
			return n, err
		}
	}
	cw.Flush()
	return n, cw.Error()
}

// IssueToken returns the QR payload of an existing participant.
func (s *EventService) IssueToken(ctx context.Context, eventID, participantID string) (string, *model.Participant, error) {
	p, err := s.participants.Get(ctx, eventID, participantID)
	if err != nil {
		return "", nil, err
	}
	raw, err := s.codec.Encode(p.EventID, p.ID)
	if err != nil {
		return "", nil, err
	}
	return raw, p, nil
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return logger
}
