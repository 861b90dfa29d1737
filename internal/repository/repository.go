// Package repository holds what the storage backends share. The backends
// themselves live in the postgres and sqlite subpackages.
package repository

import (
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// NewID returns a fresh identifier for an event or participant.
func NewID() string {
	return uuid.NewString()
}
