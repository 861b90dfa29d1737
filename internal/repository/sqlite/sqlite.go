// Package sqlite implements the event and roster stores on an embedded
// SQLite database through gorm, for single-machine deployments and tests.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ISTE-SAL/InGress/internal/model"
	"github.com/ISTE-SAL/InGress/internal/repository"
	"gorm.io/gorm"
)

type eventRow struct {
	ID        string    `gorm:"primaryKey"`
	Name      string    `gorm:"not null"`
	Date      string    `gorm:"not null"`
	Venue     string    `gorm:"not null"`
	IsActive  bool      `gorm:"not null;index:idx_events_active,priority:1"`
	CreatedAt time.Time `gorm:"not null;index:idx_events_active,priority:2"`
}

func (eventRow) TableName() string { return "events" }

func (r eventRow) model() model.Event {
	return model.Event{
		ID:        r.ID,
		Name:      r.Name,
		Date:      r.Date,
		Venue:     r.Venue,
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt,
	}
}

type participantRow struct {
	EventID     string `gorm:"primaryKey"`
	ID          string `gorm:"primaryKey"`
	Seq         int64  `gorm:"not null;index"`
	Name        string `gorm:"not null"`
	Enrollment  string `gorm:"not null"`
	Email       string `gorm:"not null;default:''"`
	CheckedIn   bool   `gorm:"not null;default:false"`
	CheckedInAt *time.Time
}

func (participantRow) TableName() string { return "participants" }

func (r participantRow) model() model.Participant {
	return model.Participant{
		ID:          r.ID,
		EventID:     r.EventID,
		Name:        r.Name,
		Enrollment:  r.Enrollment,
		Email:       r.Email,
		CheckedIn:   r.CheckedIn,
		CheckedInAt: r.CheckedInAt,
	}
}

// Migrate creates the tables if missing.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&eventRow{}, &participantRow{}); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	return nil
}

// EventRepository handles persistence for events.
type EventRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db, now: time.Now}
}

// Create inserts a new event. The store assigns CreatedAt.
func (r *EventRepository) Create(ctx context.Context, event *model.Event) error {
	row := eventRow{
		ID:        event.ID,
		Name:      event.Name,
		Date:      event.Date,
		Venue:     event.Venue,
		IsActive:  event.IsActive,
		CreatedAt: r.now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	event.CreatedAt = row.CreatedAt
	return nil
}

func (r *EventRepository) find(ctx context.Context, q *gorm.DB) ([]model.Event, error) {
	var rows []eventRow
	if err := q.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	events := make([]model.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.model())
	}
	return events, nil
}

// List returns all events, newest first.
func (r *EventRepository) List(ctx context.Context) ([]model.Event, error) {
	return r.find(ctx, r.db.Order("created_at DESC").Order("id"))
}

// ListActive returns events accepting check-ins, oldest first.
func (r *EventRepository) ListActive(ctx context.Context) ([]model.Event, error) {
	return r.find(ctx, r.db.Where("is_active = ?", true).Order("created_at ASC").Order("id"))
}

// GetByID returns a single event or repository.ErrNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	var row eventRow
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	e := row.model()
	return &e, nil
}

// SetActive marks an event live or completed.
func (r *EventRepository) SetActive(ctx context.Context, id string, active bool) (*model.Event, error) {
	res := r.db.WithContext(ctx).Model(&eventRow{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return nil, fmt.Errorf("set event status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, repository.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// ParticipantRepository handles persistence for event rosters.
type ParticipantRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewParticipantRepository constructs a ParticipantRepository.
func NewParticipantRepository(db *gorm.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db, now: time.Now}
}

// Get returns one participant or repository.ErrNotFound.
func (r *ParticipantRepository) Get(ctx context.Context, eventID, participantID string) (*model.Participant, error) {
	var row participantRow
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND id = ?", eventID, participantID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get participant: %w", err)
	}
	p := row.model()
	return &p, nil
}

// ListByEvent returns the roster in import order.
func (r *ParticipantRepository) ListByEvent(ctx context.Context, eventID string) ([]model.Participant, error) {
	var rows []participantRow
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	out := make([]model.Participant, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

// InsertBatch bulk-inserts a roster in one transaction.
func (r *ParticipantRepository) InsertBatch(ctx context.Context, eventID string, participants []model.Participant) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last int64
		if err := tx.Model(&participantRow{}).
			Select("COALESCE(MAX(seq), 0)").
			Where("event_id = ?", eventID).
			Scan(&last).Error; err != nil {
			return fmt.Errorf("read roster sequence: %w", err)
		}
		rows := make([]participantRow, 0, len(participants))
		for i, p := range participants {
			rows = append(rows, participantRow{
				EventID:    eventID,
				ID:         p.ID,
				Seq:        last + int64(i) + 1,
				Name:       p.Name,
				Enrollment: p.Enrollment,
				Email:      p.Email,
			})
		}
		if err := tx.CreateInBatches(rows, 200).Error; err != nil {
			return fmt.Errorf("insert participants: %w", err)
		}
		return nil
	})
}

// CheckIn performs the one-time check-in transition inside a transaction.
// The write is conditional on checked_in still being false, so of any
// number of racing transactions exactly one sees a row affected.
func (r *ParticipantRepository) CheckIn(ctx context.Context, eventID, participantID string) (model.CheckInOutcome, error) {
	var out model.CheckInOutcome
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row participantRow
		err := tx.Where("event_id = ? AND id = ?", eventID, participantID).Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			out = model.CheckInOutcome{Status: model.CheckInNotFound}
			return nil
		}
		if err != nil {
			return fmt.Errorf("read participant: %w", err)
		}
		if row.CheckedIn {
			out = model.CheckInOutcome{Status: model.CheckInAlreadyDone, Participant: row.model()}
			return nil
		}

		at := r.now().UTC()
		res := tx.Model(&participantRow{}).
			Where("event_id = ? AND id = ? AND checked_in = ?", eventID, participantID, false).
			Updates(map[string]any{"checked_in": true, "checked_in_at": at})
		if res.Error != nil {
			return fmt.Errorf("mark checked in: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			out = model.CheckInOutcome{Status: model.CheckInAlreadyDone, Participant: row.model()}
			return nil
		}
		row.CheckedIn = true
		row.CheckedInAt = &at
		out = model.CheckInOutcome{Status: model.CheckInCommitted, Participant: row.model()}
		return nil
	})
	if err != nil {
		return model.CheckInOutcome{}, err
	}
	return out, nil
}
