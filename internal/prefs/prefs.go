// Package prefs remembers small per-operator choices across sessions,
// currently which active event a scanner operator last redeemed against.
package prefs

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
)

const selectedEventPrefix = "selected_event/"

// Store is a badger-backed preference store.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens the store in dir. An empty dir keeps everything in memory.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open preference store: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close flushes and closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// SelectedEvent returns the event operatorID last chose, if any.
func (s *Store) SelectedEvent(operatorID string) (string, bool, error) {
	var eventID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(selectedEventPrefix + operatorID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			eventID = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read selected event: %w", err)
	}
	return eventID, true, nil
}

// SetSelectedEvent remembers eventID as operatorID's choice.
func (s *Store) SetSelectedEvent(operatorID, eventID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(selectedEventPrefix+operatorID), []byte(eventID))
	})
	if err != nil {
		return fmt.Errorf("save selected event: %w", err)
	}
	s.logger.Debug(
		"saved selected event",
		"component", "prefs",
		"operator", operatorID,
		"event_id", eventID,
	)
	return nil
}
