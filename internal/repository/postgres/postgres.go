// Package postgres implements the event and roster stores on PostgreSQL.
// It uses pgx directly (no ORM).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ISTE-SAL/InGress/internal/model"
	"github.com/ISTE-SAL/InGress/internal/repository"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventRepository handles persistence for events.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, name, date, venue, is_active, created_at`

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	if err := row.Scan(&e.ID, &e.Name, &e.Date, &e.Venue, &e.IsActive, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts a new event. The store assigns CreatedAt.
func (r *EventRepository) Create(ctx context.Context, event *model.Event) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO events (id, name, date, venue, is_active)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		event.ID, event.Name, event.Date, event.Venue, event.IsActive,
	).Scan(&event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *EventRepository) list(ctx context.Context, query string, args ...any) ([]model.Event, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// List returns all events, newest first.
func (r *EventRepository) List(ctx context.Context) ([]model.Event, error) {
	return r.list(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at DESC, id`)
}

// ListActive returns events accepting check-ins, oldest first.
func (r *EventRepository) ListActive(ctx context.Context) ([]model.Event, error) {
	return r.list(ctx,
		`SELECT `+eventColumns+` FROM events WHERE is_active ORDER BY created_at ASC, id`)
}

// GetByID returns a single event or repository.ErrNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// SetActive marks an event live or completed.
func (r *EventRepository) SetActive(ctx context.Context, id string, active bool) (*model.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx,
		`UPDATE events SET is_active = $2 WHERE id = $1 RETURNING `+eventColumns,
		id, active))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("set event status: %w", err)
	}
	return e, nil
}

// ParticipantRepository handles persistence for event rosters.
type ParticipantRepository struct {
	db         *pgxpool.Pool
	maxRetries uint64
}

// NewParticipantRepository constructs a ParticipantRepository.
func NewParticipantRepository(db *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{db: db, maxRetries: 3}
}

const participantColumns = `event_id, id, name, enrollment, email, checked_in, checked_in_at`

func scanParticipant(row pgx.Row) (*model.Participant, error) {
	var p model.Participant
	if err := row.Scan(&p.EventID, &p.ID, &p.Name, &p.Enrollment, &p.Email, &p.CheckedIn, &p.CheckedInAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Get returns one participant or repository.ErrNotFound.
func (r *ParticipantRepository) Get(ctx context.Context, eventID, participantID string) (*model.Participant, error) {
	p, err := scanParticipant(r.db.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE event_id = $1 AND id = $2`,
		eventID, participantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

// ListByEvent returns the roster in import order.
func (r *ParticipantRepository) ListByEvent(ctx context.Context, eventID string) ([]model.Participant, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+participantColumns+`
		 FROM participants
		 WHERE event_id = $1
		 ORDER BY created_at ASC, id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// InsertBatch bulk-inserts a roster in one transaction.
func (r *ParticipantRepository) InsertBatch(ctx context.Context, eventID string, participants []model.Participant) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, p := range participants {
		batch.Queue(
			`INSERT INTO participants (event_id, id, name, enrollment, email, checked_in, checked_in_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, FALSE, NULL, clock_timestamp())`,
			eventID, p.ID, p.Name, p.Enrollment, p.Email,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert participants: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// CheckIn performs the one-time check-in transition inside a transaction.
//
// The row is locked with SELECT … FOR UPDATE, so a racing transaction
// blocks until this one commits and then reads checked_in = true.
//
// The timestamp comes from the database clock. Serialization failures and
// deadlocks are retried with backoff; every other outcome is final.
func (r *ParticipantRepository) CheckIn(ctx context.Context, eventID, participantID string) (model.CheckInOutcome, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(20*time.Millisecond),
			backoff.WithMaxInterval(250*time.Millisecond),
		), r.maxRetries),
		ctx,
	)
	return backoff.RetryWithData(func() (model.CheckInOutcome, error) {
		out, err := r.checkInOnce(ctx, eventID, participantID)
		if err != nil && !isConflict(err) {
			return out, backoff.Permanent(err)
		}
		return out, err
	}, policy)
}

func (r *ParticipantRepository) checkInOnce(ctx context.Context, eventID, participantID string) (out model.CheckInOutcome, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return out, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil || out.Status != model.CheckInCommitted {
			_ = tx.Rollback(ctx)
		}
	}()

	p, err := scanParticipant(tx.QueryRow(ctx,
		`SELECT `+participantColumns+`
		 FROM participants
		 WHERE event_id = $1 AND id = $2
		 FOR UPDATE`,
		eventID, participantID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CheckInOutcome{Status: model.CheckInNotFound}, nil
		}
		return out, fmt.Errorf("lock participant row: %w", err)
	}
	if p.CheckedIn {
		return model.CheckInOutcome{Status: model.CheckInAlreadyDone, Participant: *p}, nil
	}

	var at time.Time
	err = tx.QueryRow(ctx,
		`UPDATE participants
		 SET checked_in = TRUE, checked_in_at = now()
		 WHERE event_id = $1 AND id = $2
		 RETURNING checked_in_at`,
		eventID, participantID,
	).Scan(&at)
	if err != nil {
		return out, fmt.Errorf("mark checked in: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return out, fmt.Errorf("commit transaction: %w", err)
	}

	p.CheckedIn = true
	p.CheckedInAt = &at
	return model.CheckInOutcome{Status: model.CheckInCommitted, Participant: *p}, nil
}

// isConflict reports whether err is a transient transaction conflict.
func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01":
		return true
	}
	return false
}
