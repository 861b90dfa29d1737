package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ISTE-SAL/InGress/internal/model"
	"github.com/ISTE-SAL/InGress/internal/repository"
	"github.com/ISTE-SAL/InGress/internal/scan"
)

var (
	// ErrSessionNotFound is returned for unknown or foreign session ids.
	ErrSessionNotFound = errors.New("scan session not found")
	// ErrSessionPaused is returned while a result awaits acknowledgement.
	ErrSessionPaused = errors.New("scanner is paused until the last result is acknowledged")
)

// ScanSession is one scanner device's live session. After a scan is
// admitted to redemption the session stays paused until Resume, so a code
// left under the lens cannot queue further attempts.
type ScanSession struct {
	ID       string
	Operator string

	redemption *RedemptionService
	selector   *EventSelector
	metrics    *redemptionMetrics
	now        func() time.Time

	mu        sync.Mutex
	event     model.Event
	paused    bool
	debouncer *scan.Debouncer
}

// Event returns the event the session is redeeming against.
func (s *ScanSession) Event() model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.event
}

// Paused reports whether the session is waiting for acknowledgement.
func (s *ScanSession) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Submit handles one decoded camera frame.
func (s *ScanSession) Submit(ctx context.Context, text string) (*model.ScanResult, error) {
	s.mu.Lock()
	if s.paused {
		s.mu.Unlock()
		return nil, ErrSessionPaused
	}
	// The gate and the pause are taken together before any I/O.
	if !s.debouncer.ShouldProcess(text, s.now()) {
		s.mu.Unlock()
		s.metrics.suppressed.Inc()
		return &model.ScanResult{Suppressed: true}, nil
	}
	s.paused = true
	current := s.event
	s.mu.Unlock()

	tok, err := s.redemption.Codec().Decode(text)
	if err != nil {
		s.metrics.outcomes.WithLabelValues(string(model.ReasonMalformedToken)).Inc()
		return denied(err), nil
	}
	adm, err := s.redemption.Redeem(ctx, tok, current)
	if err != nil {
		return denied(err), nil
	}
	return &model.ScanResult{Granted: true, Message: "Access Granted", Participant: adm}, nil
}

// Resume acknowledges the last result and re-arms the scanner.
func (s *ScanSession) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// SwitchEvent rebinds the session and remembers the choice.
func (s *ScanSession) SwitchEvent(ctx context.Context, eventID string) (*Selection, error) {
	sel, err := s.selector.Choose(ctx, s.Operator, eventID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.event = sel.Current
	s.mu.Unlock()
	return sel, nil
}

func denied(err error) *model.ScanResult {
	var d *model.DenialError
	if !errors.As(err, &d) {
		d = model.Deny(model.ReasonTransientStoreFailure, model.ErrTransientStoreFailure.Message, err)
	}
	return &model.ScanResult{Reason: d.Reason, Message: d.Message}
}

// ScanSessions tracks the open scan sessions of this process.
type ScanSessions struct {
	redemption *RedemptionService
	selector   *EventSelector
	window     time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*ScanSession
}

// NewScanSessions constructs a session registry. window is the debounce
// window given to every session.
func NewScanSessions(
	redemption *RedemptionService,
	selector *EventSelector,
	window time.Duration,
	logger *slog.Logger,
) *ScanSessions {
	return &ScanSessions{
		redemption: redemption,
		selector:   selector,
		window:     window,
		logger:     orDiscard(logger),
		now:        time.Now,
		sessions:   make(map[string]*ScanSession),
	}
}

// Start opens a session for operatorID bound to its selected event and
// discards any session the operator already had open, so each operator
// holds at most one. With no active event no session is created, the
// previous one is kept, and ErrNoActiveEvent is returned.
func (m *ScanSessions) Start(ctx context.Context, operatorID string) (*ScanSession, *Selection, error) {
	sel, err := m.selector.Select(ctx, operatorID)
	if err != nil {
		return nil, nil, err
	}
	s := &ScanSession{
		ID:         repository.NewID(),
		Operator:   operatorID,
		redemption: m.redemption,
		selector:   m.selector,
		metrics:    m.redemption.metrics,
		now:        m.now,
		event:      sel.Current,
		debouncer:  scan.NewDebouncer(m.window),
	}
	m.mu.Lock()
	var replaced []string
	for id, old := range m.sessions {
		if old.Operator == operatorID {
			delete(m.sessions, id)
			replaced = append(replaced, id)
		}
	}
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.redemption.metrics.sessions.Add(float64(1 - len(replaced)))
	for _, id := range replaced {
		m.logger.Info("scan session replaced", "component", "scan", "session_id", id, "operator", operatorID)
	}
	m.logger.Info(
		"scan session started",
		"component", "scan",
		"session_id", s.ID,
		"operator", operatorID,
		"event_id", sel.Current.ID,
	)
	return s, sel, nil
}

// Len returns the number of open sessions.
func (m *ScanSessions) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Get returns operatorID's session id.
func (m *ScanSessions) Get(id, operatorID string) (*ScanSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Operator != operatorID {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// End closes operatorID's session id.
func (m *ScanSessions) End(id, operatorID string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || s.Operator != operatorID {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	m.mu.Unlock()
	m.redemption.metrics.sessions.Dec()
	m.logger.Info("scan session ended", "component", "scan", "session_id", id, "operator", operatorID)
	return nil
}
