// Package booking runs the patient booking wizard: it moves a session from step
// to step, persists what was entered at each step and rebuilds earlier states
// when the patient goes back.
package booking

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/praxis-booking/internal/observability/metrics"
	"github.com/wolfman30/praxis-booking/internal/refdata"
	"github.com/wolfman30/praxis-booking/internal/sessions"
	"github.com/wolfman30/praxis-booking/internal/slots"
	"github.com/wolfman30/praxis-booking/internal/steprecords"
	"github.com/wolfman30/praxis-booking/internal/storage"
	"github.com/wolfman30/praxis-booking/internal/wizard"
	"github.com/wolfman30/praxis-booking/pkg/logging"
)

var bookingTracer = otel.Tracer("praxis.internal.booking")

const (
	defaultSessionTTL = 30 * time.Minute
	maxSlotRange      = 31 * 24 * time.Hour
)

// Service is the booking wizard engine.
type Service struct {
	tx      storage.Transactor
	catalog refdata.Catalog
	finder  slots.Finder
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
	ttl     time.Duration
	now     func() time.Time
}

// NewService constructs the engine.
func NewService(tx storage.Transactor, catalog refdata.Catalog, finder slots.Finder, logger *logging.Logger) *Service {
	if tx == nil {
		panic("booking: transactor required")
	}
	if catalog == nil {
		panic("booking: reference catalog required")
	}
	if finder == nil {
		panic("booking: slot finder required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		tx:      tx,
		catalog: catalog,
		finder:  finder,
		logger:  logger,
		ttl:     defaultSessionTTL,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithSessionTTL sets how long a session lives after its last transition.
func (s *Service) WithSessionTTL(ttl time.Duration) *Service {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) WithMetrics(m *metrics.BookingMetrics) *Service {
	s.metrics = m
	return s
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := bookingTracer.Start(ctx, name)
	span.SetAttributes(attrs...)
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// CreateSession starts a wizard for userID in the practice and rule set, or
// returns the user's live session for that scope with its expiry extended.
// Expired sessions for the scope are removed on the way.
func (s *Service) CreateSession(ctx context.Context, userID string, practiceID, ruleSetID uuid.UUID) (id uuid.UUID, err error) {
	ctx, span := startSpan(ctx, "booking.create_session",
		attribute.String("praxis.practice_id", practiceID.String()),
		attribute.String("praxis.rule_set_id", ruleSetID.String()),
	)
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return uuid.Nil, ErrUnauthenticated
	}
	if practiceID == uuid.Nil || ruleSetID == uuid.Nil {
		return uuid.Nil, validation("practiceId and ruleSetId are required")
	}
	if err := refdata.Require(ctx, s.catalog, refdata.KindRuleSet, practiceID, ruleSetID); err != nil {
		return uuid.Nil, fmt.Errorf("booking: create session: %w", classify(err))
	}

	scope := sessions.Scope{UserID: userID, PracticeID: practiceID, RuleSetID: ruleSetID}
	now := s.now()
	expiresAt := now.Add(s.ttl)
	reused := false

	err = s.tx.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		purged, err := r.Sessions.DeleteExpiredForScope(ctx, scope, now)
		if err != nil {
			return err
		}
		if purged > 0 {
			s.logger.Debug("expired sessions removed", "user_id", userID, "practice_id", practiceID, "count", purged)
		}

		active, err := r.Sessions.FindActive(ctx, scope, now)
		switch {
		case err == nil:
			reused = true
			id = active.ID
			return r.Sessions.Touch(ctx, active.ID, now, expiresAt)
		case !errors.Is(err, sessions.ErrNotFound):
			return err
		}

		sess := &sessions.Session{
			ID:           uuid.New(),
			PracticeID:   practiceID,
			RuleSetID:    ruleSetID,
			UserID:       userID,
			State:        wizard.PrivacyState{},
			CreatedAt:    now,
			LastModified: now,
			ExpiresAt:    expiresAt,
		}
		id = sess.ID
		return r.Sessions.Insert(ctx, sess)
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("booking: create session: %w", err)
	}

	s.metrics.ObserveSessionCreated(reused)
	span.SetAttributes(attribute.String("praxis.session_id", id.String()))
	s.logger.Info("booking session ready", "session_id", id, "user_id", userID, "reused", reused)
	return id, nil
}

// GetSession returns the session when it exists, has not expired and belongs to
// userID. Any other case yields nil without an error.
func (s *Service) GetSession(ctx context.Context, userID string, sessionID uuid.UUID) (*sessions.Session, error) {
	ctx, span := startSpan(ctx, "booking.get_session", attribute.String("praxis.session_id", sessionID.String()))
	defer span.End()

	var out *sessions.Session
	err := s.tx.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		sess, err := r.Sessions.Get(ctx, sessionID)
		if errors.Is(err, sessions.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if sess.OwnedBy(userID) && !sess.Expired(s.now()) {
			out = sess
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("booking: get session: %w", err)
	}
	return out, nil
}

// GetActiveSessionForUser returns the user's live session for the scope, or nil.
func (s *Service) GetActiveSessionForUser(ctx context.Context, userID string, practiceID, ruleSetID uuid.UUID) (*sessions.Session, error) {
	ctx, span := startSpan(ctx, "booking.get_active_session",
		attribute.String("praxis.practice_id", practiceID.String()),
		attribute.String("praxis.rule_set_id", ruleSetID.String()),
	)
	defer span.End()

	if userID == "" {
		return nil, nil
	}
	var out *sessions.Session
	scope := sessions.Scope{UserID: userID, PracticeID: practiceID, RuleSetID: ruleSetID}
	err := s.tx.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		sess, err := r.Sessions.FindActive(ctx, scope, s.now())
		if errors.Is(err, sessions.ErrNotFound) {
			return nil
		}
		out = sess
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("booking: get active session: %w", err)
	}
	return out, nil
}

// RemoveSession deletes the caller's session. Removing a session that no longer
// exists is a no-op.
func (s *Service) RemoveSession(ctx context.Context, userID string, sessionID uuid.UUID) (err error) {
	ctx, span := startSpan(ctx, "booking.remove_session", attribute.String("praxis.session_id", sessionID.String()))
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return ErrUnauthenticated
	}
	removed := false
	err = s.tx.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		sess, err := r.Sessions.GetForUpdate(ctx, sessionID)
		if errors.Is(err, sessions.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !sess.OwnedBy(userID) {
			return ErrAccessDenied
		}
		removed, err = r.Sessions.Delete(ctx, sessionID)
		return err
	})
	if err != nil {
		return fmt.Errorf("booking: remove session: %w", err)
	}
	if removed {
		s.logger.Info("booking session removed", "session_id", sessionID, "user_id", userID)
	}
	return nil
}

// lockSession loads the session for a mutation and checks it may be changed by
// userID at now.
func lockSession(ctx context.Context, r storage.Repos, userID string, sessionID uuid.UUID, now time.Time) (*sessions.Session, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	sess, err := r.Sessions.GetForUpdate(ctx, sessionID)
	if errors.Is(err, sessions.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if !sess.OwnedBy(userID) {
		return nil, ErrAccessDenied
	}
	if sess.Expired(now) {
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// computeFunc builds the next state from the locked session. extra holds record
// fields that do not carry into the state, such as the privacy consent itself.
type computeFunc func(ctx context.Context, r storage.Repos, sess *sessions.Session, now time.Time) (next wizard.State, extra wizard.Fields, err error)

// advance runs one forward transition as a single unit of work: lock and check
// the session, compute the next state, upsert the record of the step being left
// and replace the session state.
func (s *Service) advance(ctx context.Context, op, userID string, sessionID uuid.UUID, from []wizard.Step, compute computeFunc) (next wizard.State, err error) {
	ctx, span := startSpan(ctx, "booking."+op,
		attribute.String("praxis.session_id", sessionID.String()),
		attribute.String("praxis.operation", op),
	)
	started := time.Now()
	defer func() {
		s.metrics.ObserveTransition(op, outcome(err), time.Since(started).Seconds())
		endSpan(span, err)
	}()

	now := s.now()
	var left wizard.Step
	err = s.tx.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		sess, err := lockSession(ctx, r, userID, sessionID, now)
		if err != nil {
			return err
		}
		left = sess.Step()
		if !slices.Contains(from, left) {
			return &StepError{Expected: from, Actual: left}
		}

		state, extra, err := compute(ctx, r, sess, now)
		if err != nil {
			return err
		}
		payload, err := wizard.Encode(state)
		if err != nil {
			return err
		}
		payload = payload.Merge(extra)

		recordStep, ok := wizard.RecordStepFor(left)
		if !ok {
			return fmt.Errorf("%w: step %s owns no record", ErrInvariantViolation, left)
		}
		if err := wizard.CheckRecord(recordStep, payload); err != nil {
			return err
		}
		owner := steprecords.Owner{
			SessionID:  sess.ID,
			UserID:     sess.UserID,
			PracticeID: sess.PracticeID,
			RuleSetID:  sess.RuleSetID,
		}
		rec := steprecords.Record{Step: recordStep, Owner: owner, Payload: payload}
		if _, err := r.Steps.Upsert(ctx, owner, rec, now); err != nil {
			return err
		}
		if err := r.Sessions.UpdateState(ctx, sess.ID, state, now, now.Add(s.ttl)); err != nil {
			return err
		}
		next = state
		return nil
	})
	if err != nil {
		err = classify(err)
		if errors.Is(err, ErrInvariantViolation) {
			s.logger.Error("booking transition rejected", "operation", op, "session_id", sessionID, "step", left, "error", err)
		}
		return nil, fmt.Errorf("booking: %s: %w", op, err)
	}

	span.SetAttributes(attribute.String("praxis.step", string(next.Step())))
	s.logger.Debug("booking transition", "operation", op, "session_id", sessionID, "from", left, "to", next.Step())
	return next, nil
}

// GoBack moves the session to the step before its current one and returns that
// step. The earlier state is rebuilt from the current one and pre-filled from
// the earlier step's record.
func (s *Service) GoBack(ctx context.Context, userID string, sessionID uuid.UUID) (prev wizard.Step, err error) {
	ctx, span := startSpan(ctx, "booking.go_back", attribute.String("praxis.session_id", sessionID.String()))
	var from wizard.Step
	defer func() {
		s.metrics.ObserveBack(string(from), outcome(err))
		endSpan(span, err)
	}()

	now := s.now()
	var restored wizard.Restored
	err = s.tx.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		sess, err := lockSession(ctx, r, userID, sessionID, now)
		if err != nil {
			return err
		}
		from = sess.Step()

		target, err := wizard.Predecessor(sess.State)
		if err != nil {
			return err
		}

		var snapshot wizard.Fields
		if recordStep, ok := wizard.RecordStepFor(target); ok {
			rec, err := r.Steps.Get(ctx, recordStep, sess.ID)
			switch {
			case err == nil:
				snapshot = rec.Payload
			case !errors.Is(err, steprecords.ErrNotFound):
				return err
			}
		}

		restored, err = wizard.Reconstruct(target, sess.State, snapshot)
		if err != nil {
			return err
		}
		return r.Sessions.UpdateState(ctx, sess.ID, restored.State, now, now.Add(s.ttl))
	})
	if err != nil {
		return "", fmt.Errorf("booking: go back: %w", classify(err))
	}

	prev = restored.State.Step()
	if restored.SnapshotStale {
		s.logger.Warn("stale step record ignored", "session_id", sessionID, "step", prev)
	}
	span.SetAttributes(
		attribute.String("praxis.step", string(prev)),
		attribute.Bool("praxis.snapshot_used", restored.SnapshotUsed),
	)
	s.logger.Debug("booking back navigation", "session_id", sessionID, "from", from, "to", prev)
	return prev, nil
}

// CalendarSlots lists the available slots in [from, to) for a session at a
// calendar-selection step.
func (s *Service) CalendarSlots(ctx context.Context, userID string, sessionID uuid.UUID, from, to time.Time) (out []slots.Candidate, err error) {
	ctx, span := startSpan(ctx, "booking.calendar_slots", attribute.String("praxis.session_id", sessionID.String()))
	defer func() { endSpan(span, err) }()

	var sess *sessions.Session
	err = s.tx.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		if userID == "" {
			return ErrUnauthenticated
		}
		got, err := r.Sessions.Get(ctx, sessionID)
		if errors.Is(err, sessions.ErrNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		if !got.OwnedBy(userID) {
			return ErrAccessDenied
		}
		if got.Expired(s.now()) {
			return ErrSessionExpired
		}
		sess = got
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("booking: calendar slots: %w", err)
	}

	if !to.After(from) {
		return nil, fmt.Errorf("booking: calendar slots: %w", validation("to must be after from"))
	}
	if to.Sub(from) > maxSlotRange {
		return nil, fmt.Errorf("booking: calendar slots: %w", validation("date range longer than %s", maxSlotRange))
	}

	q, err := slotQuery(sess, from, to)
	if err != nil {
		return nil, fmt.Errorf("booking: calendar slots: %w", err)
	}
	cands, err := s.finder.Find(ctx, q)
	if err != nil {
		s.metrics.ObserveSlotQuery("error")
		s.logger.Error("slot query failed", "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("booking: calendar slots: %w", err)
	}
	s.metrics.ObserveSlotQuery("ok")
	return slots.Available(cands), nil
}

// slotQuery builds the finder query for a session at a calendar step.
func slotQuery(sess *sessions.Session, from, to time.Time) (slots.Query, error) {
	q := slots.Query{
		PracticeID: sess.PracticeID,
		RuleSetID:  sess.RuleSetID,
		From:       from.UTC(),
		To:         to.UTC(),
	}
	switch st := sess.State.(type) {
	case wizard.NewCalendarSelectionState:
		q.LocationID = st.LocationID
		q.AppointmentTypeID = st.AppointmentTypeID
		q.Patient = newPatientContext(st.Coverage, st.PersonalData)
	case wizard.ExistingCalendarSelectionState:
		q.LocationID = st.LocationID
		q.AppointmentTypeID = st.AppointmentTypeID
		q.Patient = existingPatientContext(st.ExistingPatient, st.PersonalData)
	default:
		return slots.Query{}, &StepError{
			Expected: []wizard.Step{wizard.StepNewCalendarSelection, wizard.StepExistingCalendarSelection},
			Actual:   sess.Step(),
		}
	}
	return q, nil
}

func newPatientContext(c wizard.Coverage, p wizard.PersonalData) slots.PatientContext {
	over40 := c.IsOver40
	pc := slots.PatientContext{
		PatientStatus: string(wizard.PatientNew),
		InsuranceType: string(c.InsuranceType),
		IsOver40:      &over40,
		DateOfBirth:   p.DateOfBirth,
	}
	if c.HzvStatus != nil {
		pc.HzvStatus = string(*c.HzvStatus)
	}
	if c.PkvInsuranceType != nil {
		pc.PkvInsuranceType = string(*c.PkvInsuranceType)
	}
	if c.BeihilfeStatus != nil {
		pc.BeihilfeStatus = string(*c.BeihilfeStatus)
	}
	return pc
}

func existingPatientContext(e wizard.ExistingPatient, p wizard.PersonalData) slots.PatientContext {
	practitioner := e.PractitionerID
	return slots.PatientContext{
		PatientStatus:  string(wizard.PatientExisting),
		DateOfBirth:    p.DateOfBirth,
		PractitionerID: &practitioner,
	}
}

// outcome is the metrics label for err.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrSessionExpired):
		return "expired"
	case errors.Is(err, ErrInvalidStep):
		return "invalid_step"
	case errors.Is(err, ErrBackNotAllowed):
		return "back_not_allowed"
	case errors.Is(err, ErrInvariantViolation):
		return "invariant_violation"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "reference_not_found"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	}
	return "error"
}
