package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ISTE-SAL/InGress/internal/database"
	"github.com/ISTE-SAL/InGress/internal/model"
	"github.com/ISTE-SAL/InGress/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite("")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { _ = database.CloseSQLite(db) })
	return db
}

func seed(t *testing.T, db *gorm.DB) (*EventRepository, *ParticipantRepository) {
	t.Helper()
	ctx := context.Background()
	events := NewEventRepository(db)
	participants := NewParticipantRepository(db)
	require.NoError(t, events.Create(ctx, &model.Event{ID: "E1", Name: "Tech Fest", Date: "2026-03-14", Venue: "Main Hall", IsActive: true}))
	require.NoError(t, participants.InsertBatch(ctx, "E1", []model.Participant{
		{ID: "P1", Name: "Asha", Enrollment: "21CS001", Email: "asha@example.com"},
		{ID: "P2", Name: "Ravi", Enrollment: "21CS002"},
	}))
	return events, participants
}

func TestEventLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	events := NewEventRepository(db)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	events.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Minute) }

	for _, e := range []model.Event{
		{ID: "A", Name: "A", Date: "2026-03-14", Venue: "V", IsActive: true},
		{ID: "B", Name: "B", Date: "2026-03-15", Venue: "V", IsActive: true},
		{ID: "C", Name: "C", Date: "2026-03-16", Venue: "V", IsActive: false},
	} {
		require.NoError(t, events.Create(ctx, &e))
	}

	active, err := events.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "A", active[0].ID)
	assert.Equal(t, "B", active[1].ID)

	all, err := events.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "C", all[0].ID)

	e, err := events.SetActive(ctx, "A", false)
	require.NoError(t, err)
	assert.False(t, e.IsActive)

	_, err = events.SetActive(ctx, "missing", true)
	assert.True(t, errors.Is(err, repository.ErrNotFound))
	_, err = events.GetByID(ctx, "missing")
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestRosterOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, participants := seed(t, db)
	require.NoError(t, participants.InsertBatch(ctx, "E1", []model.Participant{
		{ID: "A0", Name: "Kiran", Enrollment: "21CS003"},
	}))

	list, err := participants.ListByEvent(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"P1", "P2", "A0"}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.False(t, list[0].CheckedIn)
	assert.Nil(t, list[0].CheckedInAt)
}

func TestCheckInOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, participants := seed(t, db)
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	participants.now = func() time.Time { return at }

	out, err := participants.CheckIn(ctx, "E1", "P1")
	require.NoError(t, err)
	assert.Equal(t, model.CheckInCommitted, out.Status)
	assert.Equal(t, "Asha", out.Participant.Name)
	require.NotNil(t, out.Participant.CheckedInAt)
	assert.True(t, at.Equal(*out.Participant.CheckedInAt))

	stored, err := participants.Get(ctx, "E1", "P1")
	require.NoError(t, err)
	assert.True(t, stored.CheckedIn)
	require.NotNil(t, stored.CheckedInAt)
	assert.True(t, at.Equal(*stored.CheckedInAt))

	out, err = participants.CheckIn(ctx, "E1", "P1")
	require.NoError(t, err)
	assert.Equal(t, model.CheckInAlreadyDone, out.Status)

	out, err = participants.CheckIn(ctx, "E1", "nobody")
	require.NoError(t, err)
	assert.Equal(t, model.CheckInNotFound, out.Status)

	out, err = participants.CheckIn(ctx, "E2", "P1")
	require.NoError(t, err)
	assert.Equal(t, model.CheckInNotFound, out.Status)
}

func TestConcurrentCheckInHasOneWinner(t *testing.T) {
	db := newTestDB(t)
	_, participants := seed(t, db)

	const n = 25
	results := make([]model.CheckInStatus, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := participants.CheckIn(context.Background(), "E1", "P2")
			assert.NoError(t, err)
			results[i] = out.Status
		}()
	}
	wg.Wait()

	counts := map[model.CheckInStatus]int{}
	for _, s := range results {
		counts[s]++
	}
	assert.Equal(t, 1, counts[model.CheckInCommitted])
	assert.Equal(t, n-1, counts[model.CheckInAlreadyDone])
}
