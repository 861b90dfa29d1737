package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ISTE-SAL/InGress/internal/model"
	"github.com/ISTE-SAL/InGress/internal/repository"
	"github.com/ISTE-SAL/InGress/internal/token"
	"github.com/prometheus/client_golang/prometheus"
)

// RedemptionService decides whether a decoded token grants entry and, if
// so, commits the one-time check-in.
type RedemptionService struct {
	participants RosterStore
	codec        *token.Codec
	logger       *slog.Logger
	metrics      *redemptionMetrics
}

// NewRedemptionService constructs a RedemptionService. reg may be nil.
func NewRedemptionService(
	participants RosterStore,
	codec *token.Codec,
	logger *slog.Logger,
	reg prometheus.Registerer,
) *RedemptionService {
	return &RedemptionService{
		participants: participants,
		codec:        codec,
		logger:       orDiscard(logger),
		metrics:      newRedemptionMetrics(reg),
	}
}

// Codec returns the token codec used to verify scans.
func (s *RedemptionService) Codec() *token.Codec {
	return s.codec
}

// Redeem admits the participant referenced by tok to current, the event
// the scanner is bound to. Every non-granted outcome is a
// *model.DenialError.
func (s *RedemptionService) Redeem(ctx context.Context, tok model.Token, current model.Event) (*model.Admission, error) {
	start := time.Now()
	adm, err := s.redeem(ctx, tok, current)
	s.metrics.duration.Observe(time.Since(start).Seconds())

	outcome := "granted"
	var denial *model.DenialError
	if errors.As(err, &denial) {
		outcome = string(denial.Reason)
	}
	s.metrics.outcomes.WithLabelValues(outcome).Inc()

	attrs := []any{
		"component", "redemption",
		"event_id", current.ID,
		"token_event_id", tok.EventID,
		"participant_id", tok.ParticipantID,
		"outcome", outcome,
	}
	switch {
	case err == nil:
		s.logger.Info("participant admitted", attrs...)
	case errors.Is(err, model.ErrTransientStoreFailure):
		s.logger.Error("redemption failed", append(attrs, "error", err)...)
	default:
		s.logger.Info("redemption denied", attrs...)
	}
	return adm, err
}

func (s *RedemptionService) redeem(ctx context.Context, tok model.Token, current model.Event) (*model.Admission, error) {
	// 1. Local checks never touch the store.
	if tok.EventID != current.ID {
		return nil, wrongEvent(current)
	}
	if err := s.codec.Verify(tok); err != nil {
		return nil, err
	}

	// 2. Point lookup.
	if _, err := s.participants.Get(ctx, tok.EventID, tok.ParticipantID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.ErrParticipantNotFound
		}
		return nil, transient(err)
	}

	// 3. Atomic conditional transition; the flag is re-read inside.
	out, err := s.participants.CheckIn(ctx, tok.EventID, tok.ParticipantID)
	if err != nil {
		return nil, transient(err)
	}
	switch out.Status {
	case model.CheckInAlreadyDone:
		return nil, alreadyCheckedIn(out.Participant)
	case model.CheckInNotFound:
		return nil, model.ErrParticipantNotFound
	}

	p := out.Participant
	adm := &model.Admission{
		EventID:       p.EventID,
		ParticipantID: p.ID,
		Name:          p.Name,
		Enrollment:    p.Enrollment,
		Email:         p.Email,
	}
	if p.CheckedInAt != nil {
		adm.CheckedInAt = *p.CheckedInAt
	}
	return adm, nil
}

func wrongEvent(current model.Event) error {
	name := current.Name
	if name == "" {
		name = "event " + current.ID
	}
	return model.Deny(model.ReasonWrongEvent,
		fmt.Sprintf("QR invalid for this event: scanner is checking in to %s", name), nil)
}

func transient(err error) error {
	return model.Deny(model.ReasonTransientStoreFailure, model.ErrTransientStoreFailure.Message, err)
}

func alreadyCheckedIn(p model.Participant) error {
	msg := model.ErrAlreadyCheckedIn.Message
	if p.Name != "" {
		msg = fmt.Sprintf("Already checked in! (%s, %s)", p.Name, p.Enrollment)
	}
	return model.Deny(model.ReasonAlreadyCheckedIn, msg, nil)
}
