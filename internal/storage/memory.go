package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/praxis-booking/internal/appointments"
	"github.com/wolfman30/praxis-booking/internal/events"
	"github.com/wolfman30/praxis-booking/internal/sessions"
	"github.com/wolfman30/praxis-booking/internal/steprecords"
	"github.com/wolfman30/praxis-booking/internal/wizard"
)

// Memory is an in-process Transactor for tests and local runs. A unit of work
// operates on a copy of the data that replaces the original only when fn
// succeeds, so failed transitions leave nothing behind. Units of work are
// serialized.
type Memory struct {
	mu   sync.Mutex
	data *memData
}

func NewMemory() *Memory {
	return &Memory{data: newMemData()}
}

type slotKey struct {
	practitioner uuid.UUID
	start        int64
}

type outboxRow struct {
	entry     events.OutboxEntry
	delivered bool
}

type memData struct {
	sessions     map[uuid.UUID]*sessions.Session
	records      map[wizard.Step]map[uuid.UUID]*steprecords.Record
	appointments map[uuid.UUID]*appointments.Appointment
	slots        map[slotKey]uuid.UUID
	outbox       []outboxRow
}

func newMemData() *memData {
	return &memData{
		sessions:     map[uuid.UUID]*sessions.Session{},
		records:      map[wizard.Step]map[uuid.UUID]*steprecords.Record{},
		appointments: map[uuid.UUID]*appointments.Appointment{},
		slots:        map[slotKey]uuid.UUID{},
	}
}

func (d *memData) clone() *memData {
	out := newMemData()
	for id, s := range d.sessions {
		out.sessions[id] = s.Clone()
	}
	for step, rows := range d.records {
		cp := make(map[uuid.UUID]*steprecords.Record, len(rows))
		for id, rec := range rows {
			cp[id] = rec.Clone()
		}
		out.records[step] = cp
	}
	for id, a := range d.appointments {
		a := *a
		out.appointments[id] = &a
	}
	for k, v := range d.slots {
		out.slots[k] = v
	}
	out.outbox = append(out.outbox, d.outbox...)
	return out
}

// InTx holds the store lock for the whole of fn, including any slot engine
// call the booking step makes, so one slow call stalls every other session.
// That is fine for tests and local runs; production uses Postgres.
func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.data.clone()
	if err := fn(ctx, work.repos()); err != nil {
		return err
	}
	m.data = work
	return nil
}

func (d *memData) repos() Repos {
	return Repos{
		Sessions:     memSessions{d},
		Steps:        memSteps{d},
		Appointments: memAppointments{d},
		Outbox:       memOutbox{d},
	}
}

// FetchPending implements events.Source so the deliverer can drain the
// in-memory outbox.
func (m *Memory) FetchPending(ctx context.Context, limit int32) ([]events.OutboxEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []events.OutboxEntry
	for _, row := range m.data.outbox {
		if row.delivered {
			continue
		}
		if int32(len(out)) >= limit {
			break
		}
		out = append(out, row.entry)
	}
	return out, nil
}

func (m *Memory) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.data.outbox {
		if m.data.outbox[i].entry.ID == id && !m.data.outbox[i].delivered {
			m.data.outbox[i].delivered = true
			return true, nil
		}
	}
	return false, nil
}

type memSessions struct{ d *memData }

func (r memSessions) Insert(ctx context.Context, sess *sessions.Session) error {
	if err := wizard.Validate(sess.State); err != nil {
		return fmt.Errorf("sessions: insert: %w", err)
	}
	if _, ok := r.d.sessions[sess.ID]; ok {
		return fmt.Errorf("sessions: insert: duplicate id %s", sess.ID)
	}
	r.d.sessions[sess.ID] = sess.Clone()
	return nil
}

func (r memSessions) Get(ctx context.Context, id uuid.UUID) (*sessions.Session, error) {
	s, ok := r.d.sessions[id]
	if !ok {
		return nil, fmt.Errorf("sessions: get: %w", sessions.ErrNotFound)
	}
	return s.Clone(), nil
}

func (r memSessions) GetForUpdate(ctx context.Context, id uuid.UUID) (*sessions.Session, error) {
	return r.Get(ctx, id)
}

func (r memSessions) FindActive(ctx context.Context, scope sessions.Scope, now time.Time) (*sessions.Session, error) {
	var best *sessions.Session
	for _, s := range r.d.sessions {
		if s.Scope() != scope || s.Expired(now) {
			continue
		}
		if best == nil || s.LastModified.After(best.LastModified) {
			best = s
		}
	}
	if best == nil {
		return nil, fmt.Errorf("sessions: find active: %w", sessions.ErrNotFound)
	}
	return best.Clone(), nil
}

func (r memSessions) UpdateState(ctx context.Context, id uuid.UUID, state wizard.State, now, expiresAt time.Time) error {
	if err := wizard.Validate(state); err != nil {
		return fmt.Errorf("sessions: update state: %w", err)
	}
	s, ok := r.d.sessions[id]
	if !ok {
		return fmt.Errorf("sessions: update state: %w", sessions.ErrNotFound)
	}
	s.State = state
	s.LastModified = now
	s.ExpiresAt = expiresAt
	return nil
}

func (r memSessions) Touch(ctx context.Context, id uuid.UUID, now, expiresAt time.Time) error {
	s, ok := r.d.sessions[id]
	if !ok {
		return fmt.Errorf("sessions: touch: %w", sessions.ErrNotFound)
	}
	s.LastModified = now
	s.ExpiresAt = expiresAt
	return nil
}

func (r memSessions) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	if _, ok := r.d.sessions[id]; !ok {
		return false, nil
	}
	delete(r.d.sessions, id)
	return true, nil
}

func (r memSessions) DeleteExpiredForScope(ctx context.Context, scope sessions.Scope, now time.Time) (int64, error) {
	var n int64
	for id, s := range r.d.sessions {
		if s.Scope() == scope && s.Expired(now) {
			delete(r.d.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r memSessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for id, s := range r.d.sessions {
		if s.Expired(now) {
			delete(r.d.sessions, id)
			n++
		}
	}
	return n, nil
}

type memSteps struct{ d *memData }

func (r memSteps) Upsert(ctx context.Context, owner steprecords.Owner, rec steprecords.Record, now time.Time) (*steprecords.Record, error) {
	if err := steprecords.Validate(owner, rec); err != nil {
		return nil, fmt.Errorf("steprecords: upsert %s: %w", rec.Step, err)
	}
	if _, err := steprecords.TableName(rec.Step); err != nil {
		return nil, err
	}
	// Round-trip the payload the way a jsonb column would.
	raw, err := json.Marshal(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("steprecords: upsert %s: %w", rec.Step, err)
	}
	stored := rec.Clone()
	stored.Payload = nil
	if err := json.Unmarshal(raw, &stored.Payload); err != nil {
		return nil, fmt.Errorf("steprecords: upsert %s: %w", rec.Step, err)
	}

	rows := r.d.records[rec.Step]
	if rows == nil {
		rows = map[uuid.UUID]*steprecords.Record{}
		r.d.records[rec.Step] = rows
	}
	stored.CreatedAt = now
	if existing, ok := rows[rec.SessionID]; ok {
		if existing.Owner != rec.Owner {
			return nil, fmt.Errorf("steprecords: upsert %s: %w", rec.Step, steprecords.ErrInvalidOwnership)
		}
		stored.CreatedAt = existing.CreatedAt
	}
	stored.LastModified = now
	rows[rec.SessionID] = stored
	return stored.Clone(), nil
}

func (r memSteps) Get(ctx context.Context, step wizard.Step, sessionID uuid.UUID) (*steprecords.Record, error) {
	if _, err := steprecords.TableName(step); err != nil {
		return nil, err
	}
	rec, ok := r.d.records[step][sessionID]
	if !ok {
		return nil, steprecords.ErrNotFound
	}
	return rec.Clone(), nil
}

func (r memSteps) PurgeOrphans(ctx context.Context) (int64, error) {
	var n int64
	for _, rows := range r.d.records {
		for id := range rows {
			if _, ok := r.d.sessions[id]; !ok {
				delete(rows, id)
				n++
			}
		}
	}
	return n, nil
}

type memAppointments struct{ d *memData }

func (r memAppointments) Insert(ctx context.Context, a *appointments.Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = appointments.StatusBooked
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	key := slotKey{practitioner: a.PractitionerID, start: a.StartsAt.UnixNano()}
	if _, taken := r.d.slots[key]; taken {
		return fmt.Errorf("appointments: insert: %w", appointments.ErrSlotTaken)
	}
	cp := *a
	r.d.appointments[a.ID] = &cp
	r.d.slots[key] = a.ID
	return nil
}

func (r memAppointments) Get(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error) {
	a, ok := r.d.appointments[id]
	if !ok {
		return nil, appointments.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

type memOutbox struct{ d *memData }

func (r memOutbox) Append(ctx context.Context, aggregate, correlationID string, evt events.CanonicalEvent, opts ...events.EnvelopeOption) (events.Envelope, error) {
	env, err := events.NewEnvelope(aggregate, correlationID, evt, opts...)
	if err != nil {
		return events.Envelope{}, err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return events.Envelope{}, fmt.Errorf("events: marshal envelope: %w", err)
	}
	r.d.outbox = append(r.d.outbox, outboxRow{entry: events.OutboxEntry{
		ID:        env.EventID,
		Aggregate: env.Aggregate,
		Type:      env.EventType,
		Payload:   data,
		CreatedAt: time.UnixMicro(env.TimestampMicros).UTC(),
	}})
	return env, nil
}

// Snapshot is a read-only view of the memory store used by tests.
type Snapshot struct {
	Sessions     []*sessions.Session
	Records      map[wizard.Step][]*steprecords.Record
	Appointments []*appointments.Appointment
	Outbox       []events.OutboxEntry
}

// Snapshot copies the committed data.
func (m *Memory) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.data.clone()

	out := Snapshot{Records: map[wizard.Step][]*steprecords.Record{}}
	for _, s := range d.sessions {
		out.Sessions = append(out.Sessions, s)
	}
	sort.Slice(out.Sessions, func(i, j int) bool { return out.Sessions[i].CreatedAt.Before(out.Sessions[j].CreatedAt) })
	for step, rows := range d.records {
		for _, rec := range rows {
			out.Records[step] = append(out.Records[step], rec)
		}
	}
	for _, a := range d.appointments {
		out.Appointments = append(out.Appointments, a)
	}
	for _, row := range d.outbox {
		out.Outbox = append(out.Outbox, row.entry)
	}
	return out
}
