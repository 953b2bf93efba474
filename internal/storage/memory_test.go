package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/praxis-booking/internal/appointments"
	"github.com/wolfman30/praxis-booking/internal/events"
	"github.com/wolfman30/praxis-booking/internal/sessions"
	"github.com/wolfman30/praxis-booking/internal/steprecords"
	"github.com/wolfman30/praxis-booking/internal/wizard"
)

func newSession(now time.Time) *sessions.Session {
	return &sessions.Session{
		ID:           uuid.New(),
		PracticeID:   uuid.New(),
		RuleSetID:    uuid.New(),
		UserID:       "user-1",
		State:        wizard.PrivacyState{},
		CreatedAt:    now,
		LastModified: now,
		ExpiresAt:    now.Add(30 * time.Minute),
	}
}

func ownerOf(s *sessions.Session) steprecords.Owner {
	return steprecords.Owner{SessionID: s.ID, UserID: s.UserID, PracticeID: s.PracticeID, RuleSetID: s.RuleSetID}
}

func TestMemoryDiscardsFailedUnitOfWork(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	sess := newSession(now)

	require.NoError(t, m.InTx(ctx, func(ctx context.Context, r Repos) error {
		return r.Sessions.Insert(ctx, sess)
	}))

	boom := errors.New("boom")
	err := m.InTx(ctx, func(ctx context.Context, r Repos) error {
		if err := r.Sessions.UpdateState(ctx, sess.ID, wizard.LocationState{}, now, now.Add(time.Hour)); err != nil {
			return err
		}
		if _, err := r.Steps.Upsert(ctx, ownerOf(sess), steprecords.Record{
			Step:    wizard.StepPrivacy,
			Owner:   ownerOf(sess),
			Payload: wizard.Fields{wizard.FieldPrivacyAccepted: json.RawMessage(`true`)},
		}, now); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	snap := m.Snapshot()
	require.Len(t, snap.Sessions, 1)
	assert.Equal(t, wizard.StepPrivacy, snap.Sessions[0].Step())
	assert.Empty(t, snap.Records[wizard.StepPrivacy])
}

func TestMemorySerializesUnitsOfWork(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	start := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	sess := newSession(start)
	require.NoError(t, m.InTx(ctx, func(ctx context.Context, r Repos) error {
		return r.Sessions.Insert(ctx, sess)
	}))

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.InTx(ctx, func(ctx context.Context, r Repos) error {
				got, err := r.Sessions.Get(ctx, sess.ID)
				if err != nil {
					return err
				}
				time.Sleep(time.Millisecond)
				next := got.LastModified.Add(time.Minute)
				return r.Sessions.Touch(ctx, sess.ID, next, next.Add(30*time.Minute))
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var got *sessions.Session
	require.NoError(t, m.InTx(ctx, func(ctx context.Context, r Repos) error {
		var err error
		got, err = r.Sessions.Get(ctx, sess.ID)
		return err
	}))
	assert.Equal(t, start.Add(workers*time.Minute), got.LastModified)
}

func TestMemoryReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	sess := newSession(time.Now().UTC())
	require.NoError(t, m.InTx(ctx, func(ctx context.Context, r Repos) error {
		return r.Sessions.Insert(ctx, sess)
	}))
	sess.UserID = "mutated"

	require.NoError(t, m.InTx(ctx, func(ctx context.Context, r Repos) error {
		got, err := r.Sessions.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, "user-1", got.UserID)
		got.UserID = "again"
		return nil
	}))
	assert.Equal(t, "user-1", m.Snapshot().Sessions[0].UserID)
}

func TestMemorySessions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	live := newSession(now)
	old := newSession(now.Add(-2 * time.Hour))
	old.PracticeID, old.RuleSetID = live.PracticeID, live.RuleSetID
	old.ExpiresAt = now.Add(-time.Minute)

	require.NoError(t, m.InTx(ctx, func(ctx context.Context, r Repos) error {
		require.NoError(t, r.Sessions.Insert(ctx, live))
		require.NoError(t, r.Sessions.Insert(ctx, old))

		got, err := r.Sessions.FindActive(ctx, live.Scope(), now)
		require.NoError(t, err)
		assert.Equal(t, live.ID, got.ID)

		_, err = r.Sessions.FindActive(ctx, sessions.Scope{UserID: "other", PracticeID: live.PracticeID, RuleSetID: live.RuleSetID}, now)
		assert.ErrorIs(t, err, sessions.ErrNotFound)

		n, err := r.Sessions.DeleteExpiredForScope(ctx, live.Scope(), now)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		deleted, err := r.Sessions.Delete(ctx, old.ID)
		require.NoError(t, err)
		assert.False(t, deleted)

		err = r.Sessions.UpdateState(ctx, live.ID, wizard.PatientStatusState{}, now, now)
		assert.ErrorIs(t, err, wizard.ErrInvariant)
		return nil
	}))
}

func TestMemoryStepRecords(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	sess := newSession(now)
	rec := steprecords.Record{
		Step:    wizard.StepPrivacy,
		Owner:   ownerOf(sess),
		Payload: wizard.Fields{wizard.FieldPrivacyAccepted: json.RawMessage(`true`)},
	}

	require.NoError(t, m.InTx(ctx, func(ctx context.Context, r Repos) error {
		require.NoError(t, r.Sessions.Insert(ctx, sess))
		first, err := r.Steps.Upsert(ctx, ownerOf(sess), rec, now)
		require.NoError(t, err)
		second, err := r.Steps.Upsert(ctx, ownerOf(sess), rec, now.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, first.CreatedAt, second.CreatedAt)
		assert.Equal(t, now.Add(time.Minute), second.LastModified)

		other := ownerOf(sess)
		other.UserID = "intruder"
		_, err = r.Steps.Upsert(ctx, other, steprecords.Record{Step: wizard.StepPrivacy, Owner: other, Payload: rec.Payload}, now)
		assert.ErrorIs(t, err, steprecords.ErrInvalidOwnership)

		_, err = r.Steps.Get(ctx, wizard.StepLocation, sess.ID)
		assert.ErrorIs(t, err, steprecords.ErrNotFound)

		_, err = r.Sessions.Delete(ctx, sess.ID)
		require.NoError(t, err)
		n, err := r.Steps.PurgeOrphans(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		return nil
	}))
}

func TestMemoryAppointmentsAndOutbox(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	start := time.Date(2026, 11, 3, 9, 30, 0, 0, time.UTC)
	doctor := uuid.New()

	require.NoError(t, m.InTx(ctx, func(ctx context.Context, r Repos) error {
		a := &appointments.Appointment{PractitionerID: doctor, StartsAt: start, EndsAt: start.Add(15 * time.Minute)}
		require.NoError(t, r.Appointments.Insert(ctx, a))
		err := r.Appointments.Insert(ctx, &appointments.Appointment{PractitionerID: doctor, StartsAt: start})
		assert.ErrorIs(t, err, appointments.ErrSlotTaken)

		_, err = r.Outbox.Append(ctx, "booking_session:1", "", events.AppointmentBookedV1{AppointmentID: a.ID.String()})
		return err
	}))

	pending, err := m.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, events.TypeAppointmentBooked, pending[0].Type)

	ok, err := m.MarkDelivered(ctx, pending[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)
	pending, err = m.FetchPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
