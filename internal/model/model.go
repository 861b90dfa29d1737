// Package model defines the core domain types for the check-in system.
package model

import "time"

// Event is a gathering that participants are admitted to.
type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Date      string    `json:"date"`
	Venue     string    `json:"venue"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// Participant is one roster entry scoped under its owning event.
// Once CheckedIn is true it is never reset.
type Participant struct {
	ID          string     `json:"id"`
	EventID     string     `json:"eventId"`
	Name        string     `json:"name"`
	Enrollment  string     `json:"enrollment"`
	Email       string     `json:"email"`
	CheckedIn   bool       `json:"checkedIn"`
	CheckedInAt *time.Time `json:"checkedInAt"`
}

// Token is the capability carried by a participant's QR code.
type Token struct {
	EventID       string `json:"eventId"`
	ParticipantID string `json:"participantId"`
	Signature     string `json:"signature"`
}

// CheckInStatus is the terminal state of a check-in transaction.
type CheckInStatus int

const (
	CheckInCommitted CheckInStatus = iota
	CheckInAlreadyDone
	CheckInNotFound
)

func (s CheckInStatus) String() string {
	switch s {
	case CheckInCommitted:
		return "committed"
	case CheckInAlreadyDone:
		return "already_checked_in"
	case CheckInNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// CheckInOutcome is returned by a store's check-in transaction.
// Participant holds the record as read inside the transaction; on commit
// CheckedIn and CheckedInAt reflect the new state.
type CheckInOutcome struct {
	Status      CheckInStatus
	Participant Participant
}

// Admission is the granted result of a redemption.
type Admission struct {
	EventID       string    `json:"eventId"`
	ParticipantID string    `json:"participantId"`
	Name          string    `json:"name"`
	Enrollment    string    `json:"enrollment"`
	Email         string    `json:"email"`
	CheckedInAt   time.Time `json:"checkedInAt"`
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Name     string `json:"name"`
	Date     string `json:"date"`
	Venue    string `json:"venue"`
	IsActive bool   `json:"isActive"`
}

// SetStatusRequest toggles an event between live and completed.
type SetStatusRequest struct {
	IsActive bool `json:"isActive"`
}

// ImportReport summarises a roster import.
type ImportReport struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// EventStats counts the roster of one event.
type EventStats struct {
	Total     int `json:"total"`
	CheckedIn int `json:"checkedIn"`
}

// ScanRequest carries text decoded from a camera frame.
type ScanRequest struct {
	Text string `json:"text"`
}

// SwitchEventRequest rebinds a scan session.
type SwitchEventRequest struct {
	EventID string `json:"eventId"`
}

// ScanResult is what the operator sees after a scan.
type ScanResult struct {
	Granted     bool         `json:"granted"`
	Suppressed  bool         `json:"suppressed,omitempty"`
	Reason      DenialReason `json:"reason,omitempty"`
	Message     string       `json:"message,omitempty"`
	Participant *Admission   `json:"participant,omitempty"`
}

// IssueSessionRequest asks for a bearer token for an operator. Roles is
// a comma separated list of roles or capabilities; TTL is a Go duration
// string and defaults to the configured session lifetime.
type IssueSessionRequest struct {
	Subject string `json:"subject"`
	Name    string `json:"name"`
	Roles   string `json:"roles"`
	TTL     string `json:"ttl"`
}

// IssuedSession is a freshly signed operator token.
type IssuedSession struct {
	Token        string    `json:"token"`
	Subject      string    `json:"subject"`
	Capabilities []string  `json:"capabilities"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
