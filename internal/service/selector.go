package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ISTE-SAL/InGress/internal/model"
)

// ErrNoActiveEvent is returned when no event is accepting check-ins.
var ErrNoActiveEvent = errors.New("there are no events currently marked as active")

// ErrEventNotActive is returned when choosing an event that is not active.
var ErrEventNotActive = errors.New("event is not active")

// Preferences remembers an operator's chosen event between sessions.
type Preferences interface {
	SelectedEvent(operatorID string) (string, bool, error)
	SetSelectedEvent(operatorID, eventID string) error
}

// Selection is the outcome of resolving a scan session's event.
type Selection struct {
	Current model.Event   `json:"current"`
	Active  []model.Event `json:"active"`
}

// EventSelector binds a scan session to exactly one active event.
type EventSelector struct {
	events EventStore
	prefs  Preferences
	logger *slog.Logger
}

// NewEventSelector constructs an EventSelector.
func NewEventSelector(events EventStore, prefs Preferences, logger *slog.Logger) *EventSelector {
	return &EventSelector{events: events, prefs: prefs, logger: orDiscard(logger)}
}

// Select resolves the event operatorID should redeem against: the
// remembered choice while it is still active, otherwise the first active
// event in store order.
func (s *EventSelector) Select(ctx context.Context, operatorID string) (*Selection, error) {
	active, err := s.events.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active events: %w", err)
	}
	if len(active) == 0 {
		return nil, ErrNoActiveEvent
	}
	sel := &Selection{Current: active[0], Active: active}

	remembered, ok, err := s.prefs.SelectedEvent(operatorID)
	if err != nil {
		s.logger.Warn("could not read selected event", "component", "selector", "operator", operatorID, "error", err)
		return sel, nil
	}
	if ok {
		for _, e := range active {
			if e.ID == remembered {
				sel.Current = e
				break
			}
		}
	}
	return sel, nil
}

// Choose switches operatorID to eventID and remembers the choice.
func (s *EventSelector) Choose(ctx context.Context, operatorID, eventID string) (*Selection, error) {
	active, err := s.events.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active events: %w", err)
	}
	if len(active) == 0 {
		return nil, ErrNoActiveEvent
	}
	for _, e := range active {
		if e.ID != eventID {
			continue
		}
		if err := s.prefs.SetSelectedEvent(operatorID, eventID); err != nil {
			return nil, err
		}
		return &Selection{Current: e, Active: active}, nil
	}
	return nil, ErrEventNotActive
}
