package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxStoreFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := NewOutboxStore(mock)
	sessionID := uuid.New()
	eventID := uuid.New()
	at := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(eventID, SessionAggregate(sessionID), TypeAppointmentBooked, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	env, err := store.Append(context.Background(), SessionAggregate(sessionID), "req-1",
		AppointmentBookedV1{SessionID: sessionID.String()}, WithEventID(eventID), WithTimestamp(at))
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if env.EventID != eventID || env.TimestampMicros != at.UnixMicro() || env.CorrelationID != "req-1" {
		t.Fatalf("unexpected envelope: %#v", env)
	}

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"id", "aggregate", "event_type", "payload", "created_at"}).
		AddRow(eventID, SessionAggregate(sessionID), TypeAppointmentBooked, []byte(`{"foo":"bar"}`), now)
	mock.ExpectQuery("SELECT id").WithArgs(int32(10)).WillReturnRows(rows)

	entries, err := store.FetchPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch pending failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != eventID {
		t.Fatalf("unexpected entries: %#v", entries)
	}

	mock.ExpectExec("UPDATE outbox").WithArgs(eventID).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.MarkDelivered(context.Background(), eventID)
	if err != nil {
		t.Fatalf("mark delivered failed: %v", err)
	}
	if !ok {
		t.Fatal("expected mark delivered to report success")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNewEnvelopeValidation(t *testing.T) {
	_, err := NewEnvelope(" ", "", AppointmentBookedV1{})
	assert.ErrorIs(t, err, errMissingAggregate)
	_, err = NewEnvelope("agg", "", nil)
	assert.ErrorIs(t, err, errNilEvent)

	env, err := NewEnvelope("agg", "", AppointmentBookedV1{AppointmentID: "a-1"})
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "a-1", payload["appointment_id"])
	assert.Equal(t, TypeAppointmentBooked, env.EventType)
}

type memorySource struct {
	entries   []OutboxEntry
	delivered map[uuid.UUID]bool
}

func (m *memorySource) FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error) {
	var out []OutboxEntry
	for _, e := range m.entries {
		if !m.delivered[e.ID] && int32(len(out)) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memorySource) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	if m.delivered[id] {
		return false, nil
	}
	m.delivered[id] = true
	return true, nil
}

func TestDelivererPublishesToRedisStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	first, second := uuid.New(), uuid.New()
	src := &memorySource{
		entries: []OutboxEntry{
			{ID: first, Aggregate: "booking_session:1", Type: TypeAppointmentBooked, Payload: json.RawMessage(`{"n":1}`)},
			{ID: second, Aggregate: "booking_session:2", Type: TypeAppointmentBooked, Payload: json.RawMessage(`{"n":2}`)},
		},
		delivered: map[uuid.UUID]bool{},
	}
	d := NewDeliverer(src, NewStreamPublisher(client, "booking.events", 1000), nil).WithBatchSize(10)

	ctx := context.Background()
	require.Equal(t, 2, d.Drain(ctx))
	require.Equal(t, 0, d.Drain(ctx))

	msgs, err := client.XRange(ctx, "booking.events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, first.String(), msgs[0].Values["event_id"])
	assert.Equal(t, `{"n":2}`, msgs[1].Values["envelope"])
}

func TestDelivererLeavesFailedEntriesPending(t *testing.T) {
	// Nothing listens on port 1, so every XADD fails.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer client.Close()

	id := uuid.New()
	src := &memorySource{entries: []OutboxEntry{{ID: id, Type: TypeAppointmentBooked}}, delivered: map[uuid.UUID]bool{}}
	d := NewDeliverer(src, NewStreamPublisher(client, "booking.events", 0), nil)

	assert.Equal(t, 0, d.Drain(context.Background()))
	assert.False(t, src.delivered[id])
}
