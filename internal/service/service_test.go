package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ISTE-SAL/InGress/internal/database"
	"github.com/ISTE-SAL/InGress/internal/model"
	"github.com/ISTE-SAL/InGress/internal/prefs"
	"github.com/ISTE-SAL/InGress/internal/repository"
	"github.com/ISTE-SAL/InGress/internal/repository/sqlite"
	"github.com/ISTE-SAL/InGress/internal/token"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	events       *sqlite.EventRepository
	participants *sqlite.ParticipantRepository
	prefs        *prefs.Store
	codec        *token.Codec
}

func newFixture(t *testing.T, secret string) *fixture {
	t.Helper()
	db, err := database.OpenSQLite("")
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(db))
	t.Cleanup(func() { _ = database.CloseSQLite(db) })

	store, err := prefs.Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return &fixture{
		events:       sqlite.NewEventRepository(db),
		participants: sqlite.NewParticipantRepository(db),
		prefs:        store,
		codec:        token.NewCodec(secret),
	}
}

func (f *fixture) event(t *testing.T, id string, active bool) {
	t.Helper()
	require.NoError(t, f.events.Create(context.Background(), &model.Event{
		ID: id, Name: "Event " + id, Date: "2026-03-14", Venue: "Main Hall", IsActive: active,
	}))
}

func (f *fixture) roster(t *testing.T, eventID string, ps ...model.Participant) {
	t.Helper()
	require.NoError(t, f.participants.InsertBatch(context.Background(), eventID, ps))
}

func (f *fixture) token(t *testing.T, eventID, participantID string) model.Token {
	t.Helper()
	raw, err := f.codec.Encode(eventID, participantID)
	require.NoError(t, err)
	tok, err := f.codec.Decode(raw)
	require.NoError(t, err)
	return tok
}

var asha = model.Participant{ID: "P1", Name: "Asha", Enrollment: "21CS001", Email: "asha@example.com"}

func TestRedeemGrantsOnce(t *testing.T) {
	f := newFixture(t, "")
	f.event(t, "E1", true)
	f.roster(t, "E1", asha)
	svc := NewRedemptionService(f.participants, f.codec, nil, nil)
	ctx := context.Background()

	adm, err := svc.Redeem(ctx, f.token(t, "E1", "P1"), model.Event{ID: "E1"})
	require.NoError(t, err)
	assert.Equal(t, "Asha", adm.Name)
	assert.Equal(t, "21CS001", adm.Enrollment)
	assert.False(t, adm.CheckedInAt.IsZero())

	p, err := f.participants.Get(ctx, "E1", "P1")
	require.NoError(t, err)
	assert.True(t, p.CheckedIn)
	require.NotNil(t, p.CheckedInAt)

	_, err = svc.Redeem(ctx, f.token(t, "E1", "P1"), model.Event{ID: "E1"})
	require.ErrorIs(t, err, model.ErrAlreadyCheckedIn)
	var d *model.DenialError
	require.True(t, errors.As(err, &d))
	assert.Equal(t, "Already checked in! (Asha, 21CS001)", d.Message)

	again, err := f.participants.Get(ctx, "E1", "P1")
	require.NoError(t, err)
	assert.Equal(t, p.CheckedInAt.UnixNano(), again.CheckedInAt.UnixNano())
}

func TestRedeemParticipantNotFound(t *testing.T) {
	f := newFixture(t, "")
	f.event(t, "E1", true)
	f.roster(t, "E1", asha)
	svc := NewRedemptionService(f.participants, f.codec, nil, nil)

	_, err := svc.Redeem(context.Background(), f.token(t, "E1", "ZZZ"), model.Event{ID: "E1"})
	assert.ErrorIs(t, err, model.ErrParticipantNotFound)
}

type countingStore struct {
	RosterStore
	calls atomic.Int32
}

func (c *countingStore) Get(ctx context.Context, eventID, participantID string) (*model.Participant, error) {
	c.calls.Add(1)
	return c.RosterStore.Get(ctx, eventID, participantID)
}

func (c *countingStore) CheckIn(ctx context.Context, eventID, participantID string) (model.CheckInOutcome, error) {
	c.calls.Add(1)
	return c.RosterStore.CheckIn(ctx, eventID, participantID)
}

func TestRedeemWrongEventSkipsStore(t *testing.T) {
	f := newFixture(t, "")
	f.event(t, "E1", true)
	f.event(t, "E2", true)
	f.roster(t, "E1", asha)
	store := &countingStore{RosterStore: f.participants}
	svc := NewRedemptionService(store, f.codec, nil, nil)

	_, err := svc.Redeem(context.Background(), f.token(t, "E1", "P1"), model.Event{ID: "E2", Name: "Robotics Expo"})
	require.ErrorIs(t, err, model.ErrWrongEvent)
	assert.Equal(t, "QR invalid for this event: scanner is checking in to Robotics Expo", err.Error())
	assert.Zero(t, store.calls.Load())

	p, err := f.participants.Get(context.Background(), "E1", "P1")
	require.NoError(t, err)
	assert.False(t, p.CheckedIn)
}

func TestRedeemRejectsForgedSignature(t *testing.T) {
	f := newFixture(t, "s3cret")
	f.event(t, "E1", true)
	f.roster(t, "E1", asha)
	store := &countingStore{RosterStore: f.participants}
	svc := NewRedemptionService(store, f.codec, nil, nil)

	tok := f.token(t, "E1", "P1")
	tok.Signature = "valid"
	_, err := svc.Redeem(context.Background(), tok, model.Event{ID: "E1"})
	require.ErrorIs(t, err, model.ErrInvalidSignature)
	assert.Zero(t, store.calls.Load())

	_, err = svc.Redeem(context.Background(), f.token(t, "E1", "P1"), model.Event{ID: "E1"})
	assert.NoError(t, err)
}

type failingStore struct{ RosterStore }

func (failingStore) Get(context.Context, string, string) (*model.Participant, error) {
	return nil, errors.New("connection reset")
}

func TestRedeemTransientFailure(t *testing.T) {
	f := newFixture(t, "")
	svc := NewRedemptionService(failingStore{}, f.codec, nil, nil)

	_, err := svc.Redeem(context.Background(), model.Token{EventID: "E1", ParticipantID: "P1"}, model.Event{ID: "E1"})
	require.ErrorIs(t, err, model.ErrTransientStoreFailure)
	var d *model.DenialError
	require.True(t, errors.As(err, &d))
	assert.False(t, d.Reason.Terminal())
}

func TestRedeemConcurrentExactlyOnce(t *testing.T) {
	f := newFixture(t, "")
	f.event(t, "E1", true)
	f.roster(t, "E1", asha)
	svc := NewRedemptionService(f.participants, f.codec, nil, nil)
	tok := f.token(t, "E1", "P1")

	const n = 20
	var (
		wg       sync.WaitGroup
		granted  atomic.Int32
		already  atomic.Int32
		unwanted atomic.Int32
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Redeem(context.Background(), tok, model.Event{ID: "E1"})
			switch {
			case err == nil:
				granted.Add(1)
			case errors.Is(err, model.ErrAlreadyCheckedIn):
				already.Add(1)
			default:
				unwanted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, granted.Load())
	assert.EqualValues(t, n-1, already.Load())
	assert.Zero(t, unwanted.Load())
}

func TestSelector(t *testing.T) {
	ctx := context.Background()

	t.Run("no remembered choice", func(t *testing.T) {
		f := newFixture(t, "")
		f.event(t, "A", true)
		f.event(t, "B", true)
		sel, err := NewEventSelector(f.events, f.prefs, nil).Select(ctx, "op")
		require.NoError(t, err)
		assert.Equal(t, "A", sel.Current.ID)
		assert.Len(t, sel.Active, 2)
	})

	t.Run("remembered choice still active", func(t *testing.T) {
		f := newFixture(t, "")
		f.event(t, "A", true)
		f.event(t, "B", true)
		require.NoError(t, f.prefs.SetSelectedEvent("op", "B"))
		sel, err := NewEventSelector(f.events, f.prefs, nil).Select(ctx, "op")
		require.NoError(t, err)
		assert.Equal(t, "B", sel.Current.ID)
	})

	t.Run("remembered choice gone", func(t *testing.T) {
		f := newFixture(t, "")
		f.event(t, "A", true)
		f.event(t, "B", true)
		f.event(t, "C", false)
		require.NoError(t, f.prefs.SetSelectedEvent("op", "C"))
		sel, err := NewEventSelector(f.events, f.prefs, nil).Select(ctx, "op")
		require.NoError(t, err)
		assert.Equal(t, "A", sel.Current.ID)
	})

	t.Run("nothing active", func(t *testing.T) {
		f := newFixture(t, "")
		f.event(t, "C", false)
		_, err := NewEventSelector(f.events, f.prefs, nil).Select(ctx, "op")
		assert.ErrorIs(t, err, ErrNoActiveEvent)
	})

	t.Run("choose persists", func(t *testing.T) {
		f := newFixture(t, "")
		f.event(t, "A", true)
		f.event(t, "B", true)
		f.event(t, "C", false)
		selector := NewEventSelector(f.events, f.prefs, nil)

		_, err := selector.Choose(ctx, "op", "C")
		require.ErrorIs(t, err, ErrEventNotActive)

		sel, err := selector.Choose(ctx, "op", "B")
		require.NoError(t, err)
		assert.Equal(t, "B", sel.Current.ID)

		id, ok, err := f.prefs.SelectedEvent("op")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "B", id)
	})
}

func newSessions(f *fixture) *ScanSessions {
	redemption := NewRedemptionService(f.participants, f.codec, nil, nil)
	selector := NewEventSelector(f.events, f.prefs, nil)
	return NewScanSessions(redemption, selector, 3*time.Second, nil)
}

func TestScanSessionFlow(t *testing.T) {
	f := newFixture(t, "")
	f.event(t, "E1", true)
	f.roster(t, "E1", asha)
	sessions := newSessions(f)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return now }
	ctx := context.Background()

	s, sel, err := sessions.Start(ctx, "op")
	require.NoError(t, err)
	assert.Equal(t, "E1", sel.Current.ID)
	raw, err := f.codec.Encode("E1", "P1")
	require.NoError(t, err)

	res, err := s.Submit(ctx, raw)
	require.NoError(t, err)
	assert.True(t, res.Granted)
	require.NotNil(t, res.Participant)
	assert.Equal(t, "Asha", res.Participant.Name)
	assert.True(t, s.Paused())

	_, err = s.Submit(ctx, raw)
	require.ErrorIs(t, err, ErrSessionPaused)

	s.Resume()
	now = now.Add(time.Second)
	res, err = s.Submit(ctx, raw)
	require.NoError(t, err)
	assert.True(t, res.Suppressed)
	assert.False(t, s.Paused())

	now = now.Add(3 * time.Second)
	res, err = s.Submit(ctx, raw)
	require.NoError(t, err)
	assert.False(t, res.Granted)
	assert.Equal(t, model.ReasonAlreadyCheckedIn, res.Reason)
	assert.Equal(t, "Already checked in! (Asha, 21CS001)", res.Message)
}

func TestScanSessionMalformed(t *testing.T) {
	f := newFixture(t, "")
	f.event(t, "E1", true)
	sessions := newSessions(f)
	ctx := context.Background()

	s, _, err := sessions.Start(ctx, "op")
	require.NoError(t, err)
	res, err := s.Submit(ctx, "https://example.com/not-a-ticket")
	require.NoError(t, err)
	assert.False(t, res.Granted)
	assert.Equal(t, model.ReasonMalformedToken, res.Reason)
	assert.True(t, s.Paused())
}

func TestScanSessionSwitchEvent(t *testing.T) {
	f := newFixture(t, "")
	f.event(t, "A", true)
	f.event(t, "B", true)
	f.roster(t, "A", asha)
	sessions := newSessions(f)
	ctx := context.Background()

	s, _, err := sessions.Start(ctx, "op")
	require.NoError(t, err)
	_, err = s.SwitchEvent(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, "B", s.Event().ID)

	raw, err := f.codec.Encode("A", "P1")
	require.NoError(t, err)
	res, err := s.Submit(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, model.ReasonWrongEvent, res.Reason)

	// A new session resumes on the remembered event.
	again, sel, err := sessions.Start(ctx, "op")
	require.NoError(t, err)
	assert.Equal(t, "B", sel.Current.ID)
	assert.NotEqual(t, s.ID, again.ID)
}

func TestStartReplacesPreviousSession(t *testing.T) {
	f := newFixture(t, "")
	f.event(t, "E1", true)
	sessions := newSessions(f)
	ctx := context.Background()

	first, _, err := sessions.Start(ctx, "op")
	require.NoError(t, err)
	var last *ScanSession
	for range 1000 {
		last, _, err = sessions.Start(ctx, "op")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, sessions.Len())
	assert.EqualValues(t, 1, testutil.ToFloat64(sessions.redemption.metrics.sessions))

	_, err = sessions.Get(first.ID, "op")
	require.ErrorIs(t, err, ErrSessionNotFound)
	got, err := sessions.Get(last.ID, "op")
	require.NoError(t, err)
	assert.Same(t, last, got)

	_, _, err = sessions.Start(ctx, "door-2")
	require.NoError(t, err)
	assert.Equal(t, 2, sessions.Len())

	require.NoError(t, sessions.End(last.ID, "op"))
	assert.Equal(t, 1, sessions.Len())
	assert.EqualValues(t, 1, testutil.ToFloat64(sessions.redemption.metrics.sessions))
}

func TestScanSessionsOwnership(t *testing.T) {
	f := newFixture(t, "")
	sessions := newSessions(f)
	ctx := context.Background()

	_, _, err := sessions.Start(ctx, "op")
	require.ErrorIs(t, err, ErrNoActiveEvent)

	f.event(t, "E1", true)
	s, _, err := sessions.Start(ctx, "op")
	require.NoError(t, err)

	_, err = sessions.Get(s.ID, "intruder")
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.ErrorIs(t, sessions.End(s.ID, "intruder"), ErrSessionNotFound)

	got, err := sessions.Get(s.ID, "op")
	require.NoError(t, err)
	assert.Same(t, s, got)
	require.NoError(t, sessions.End(s.ID, "op"))
	_, err = sessions.Get(s.ID, "op")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCreateEventValidation(t *testing.T) {
	f := newFixture(t, "")
	svc := NewEventService(f.events, f.participants, f.codec, nil)
	ctx := context.Background()

	cases := map[string]model.CreateEventRequest{
		"missing name":  {Venue: "Hall", Date: "2026-03-14"},
		"missing venue": {Name: "Fest", Date: "2026-03-14"},
		"bad date":      {Name: "Fest", Venue: "Hall", Date: "14/03/2026"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateEvent(ctx, req)
			var v *ValidationError
			assert.ErrorAs(t, err, &v)
		})
	}

	e, err := svc.CreateEvent(ctx, model.CreateEventRequest{Name: " Fest ", Venue: "Hall", Date: "2026-03-14", IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, "Fest", e.Name)
	assert.NotEmpty(t, e.ID)

	got, err := svc.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	off, err := svc.SetEventActive(ctx, e.ID, false)
	require.NoError(t, err)
	assert.False(t, off.IsActive)
}

func TestImportAndExport(t *testing.T) {
	f := newFixture(t, "")
	f.event(t, "E1", true)
	svc := NewEventService(f.events, f.participants, f.codec, nil)
	redemption := NewRedemptionService(f.participants, f.codec, nil, nil)
	ctx := context.Background()

	sheet := "Student Name,Enrollment No,Email ID\nAsha,21CS001,ASHA@example.com\n,21CS009,\nRavi,21CS002,\n"
	report, err := svc.ImportRoster(ctx, "E1", strings.NewReader(sheet))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Imported)
	assert.Equal(t, 1, report.Skipped)

	_, err = svc.ImportRoster(ctx, "E1", strings.NewReader("a,b\n1,2\n"))
	assert.Error(t, err)
	_, err = svc.ImportRoster(ctx, "missing", strings.NewReader(sheet))
	assert.ErrorIs(t, err, repository.ErrNotFound)

	list, err := svc.ListParticipants(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "asha@example.com", list[0].Email)

	raw, p, err := svc.IssueToken(ctx, "E1", list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Asha", p.Name)
	tok, err := f.codec.Decode(raw)
	require.NoError(t, err)
	_, err = redemption.Redeem(ctx, tok, model.Event{ID: "E1"})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, model.EventStats{Total: 2, CheckedIn: 1}, *stats)

	var buf bytes.Buffer
	n, err := svc.ExportAttendance(ctx, "E1", &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Sr No.,Name,Enrollment,Email,Checked In At", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1,Asha,21CS001,asha@example.com,"))
}
