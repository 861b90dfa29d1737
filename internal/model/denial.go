package model

import "fmt"

// DenialReason names why a scan did not grant entry.
type DenialReason string

const (
	ReasonMalformedToken        DenialReason = "malformed_token"
	ReasonWrongEvent            DenialReason = "wrong_event"
	ReasonInvalidSignature      DenialReason = "invalid_signature"
	ReasonParticipantNotFound   DenialReason = "participant_not_found"
	ReasonAlreadyCheckedIn      DenialReason = "already_checked_in"
	ReasonTransientStoreFailure DenialReason = "transient_store_failure"
)

// DenialError is returned for every redemption that does not grant entry.
// Two DenialErrors match under errors.Is when their reasons are equal.
type DenialError struct {
	Reason  DenialReason
	Message string
	Err     error
}

func (e *DenialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DenialError) Unwrap() error { return e.Err }

func (e *DenialError) Is(target error) bool {
	t, ok := target.(*DenialError)
	return ok && t.Reason == e.Reason
}

// Sentinels for errors.Is matching.
var (
	ErrMalformedToken        = &DenialError{Reason: ReasonMalformedToken, Message: "Invalid QR code"}
	ErrWrongEvent            = &DenialError{Reason: ReasonWrongEvent, Message: "QR invalid for this event"}
	ErrInvalidSignature      = &DenialError{Reason: ReasonInvalidSignature, Message: "QR signature is not valid"}
	ErrParticipantNotFound   = &DenialError{Reason: ReasonParticipantNotFound, Message: "Participant not found"}
	ErrAlreadyCheckedIn      = &DenialError{Reason: ReasonAlreadyCheckedIn, Message: "Already checked in!"}
	ErrTransientStoreFailure = &DenialError{Reason: ReasonTransientStoreFailure, Message: "Check-in store unavailable, please rescan"}
)

// Deny builds a DenialError for reason with a specific message.
func Deny(reason DenialReason, message string, err error) *DenialError {
	return &DenialError{Reason: reason, Message: message, Err: err}
}

// Terminal reports whether retrying the same scan can never succeed.
func (r DenialReason) Terminal() bool {
	return r != ReasonTransientStoreFailure
}
