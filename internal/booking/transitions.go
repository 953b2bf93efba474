package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/praxis-booking/internal/appointments"
	"github.com/wolfman30/praxis-booking/internal/events"
	"github.com/wolfman30/praxis-booking/internal/refdata"
	"github.com/wolfman30/praxis-booking/internal/sessions"
	"github.com/wolfman30/praxis-booking/internal/slots"
	"github.com/wolfman30/praxis-booking/internal/storage"
	"github.com/wolfman30/praxis-booking/internal/wizard"
)

func steps(s ...wizard.Step) []wizard.Step { return s }

// unexpectedState is returned when the stored variant does not match the step
// the transition was admitted for.
func unexpectedState(st wizard.State) error {
	return fmt.Errorf("%w: unexpected state %T", ErrInvariantViolation, st)
}

// AcceptPrivacy records the privacy consent and moves to location selection.
func (s *Service) AcceptPrivacy(ctx context.Context, userID string, sessionID uuid.UUID, accepted bool) error {
	_, err := s.advance(ctx, "accept_privacy", userID, sessionID, steps(wizard.StepPrivacy),
		func(ctx context.Context, r storage.Repos, sess *sessions.Session, now time.Time) (wizard.State, wizard.Fields, error) {
			if !accepted {
				return nil, nil, validation("privacy policy must be accepted")
			}
			extra := wizard.Fields{}
			if err := extra.Set(wizard.FieldPrivacyAccepted, true); err != nil {
				return nil, nil, err
			}
			return wizard.LocationState{}, extra, nil
		})
	return err
}

// SelectLocation sets the practice location.
func (s *Service) SelectLocation(ctx context.Context, userID string, sessionID, locationID uuid.UUID) error {
	_, err := s.advance(ctx, "select_location", userID, sessionID, steps(wizard.StepLocation),
		func(ctx context.Context, r storage.Repos, sess *sessions.Session, now time.Time) (wizard.State, wizard.Fields, error) {
			if locationID == uuid.Nil {
				return nil, nil, validation("locationId is required")
			}
			if err := refdata.Require(ctx, s.catalog, refdata.KindLocation, sess.PracticeID, locationID); err != nil {
				return nil, nil, err
			}
			return wizard.PatientStatusState{LocationID: locationID}, nil, nil
		})
	return err
}

// SelectPatientStatus picks the new-patient or existing-patient branch.
func (s *Service) SelectPatientStatus(ctx context.Context, userID string, sessionID uuid.UUID, status wizard.PatientStatus) error {
	_, err := s.advance(ctx, "select_patient_status", userID, sessionID, steps(wizard.StepPatientStatus),
		func(ctx context.Context, r storage.Repos, sess *sessions.Session, now time.Time) (wizard.State, wizard.Fields, error) {
			cur, ok := sess.State.(wizard.PatientStatusState)
			if !ok {
				return nil, nil, unexpectedState(sess.State)
			}
			extra := wizard.Fields{}
			if err := extra.Set(wizard.FieldPatientStatus, status); err != nil {
				return nil, nil, err
			}
			switch status {
			case wizard.PatientNew:
				return wizard.NewAgeCheckState{LocationID: cur.LocationID}, extra, nil
			case wizard.PatientExisting:
				return wizard.ExistingDoctorSelectionState{LocationID: cur.LocationID}, extra, nil
			}
			return nil, nil, validation("unknown patient status %q", status)
		})
	return err
}

// ConfirmAgeCheck records whether the new patient is over 40.
func (s *Service) ConfirmAgeCheck(ctx context.Context, userID string, sessionID uuid.UUID, isOver40 bool) error {
	_, err := s.advance(ctx, "confirm_age_check", userID, sessionID, steps(wizard.StepNewAgeCheck),
		func(ctx context.Context, r storage.Repos, sess *sessions.Session, now time.Time) (wizard.State, wizard.Fields, error) {
			cur, ok := sess.State.(wizard.NewAgeCheckState)
			if !ok {
				return nil, nil, unexpectedState(sess.State)
			}
			return wizard.NewInsuranceTypeState{LocationID: cur.LocationID, IsOver40: isOver40}, nil, nil
		})
	return err
}

// SelectInsuranceType branches into the statutory or private insurance details.
func (s *Service) SelectInsuranceType(ctx context.Context, userID string, sessionID uuid.UUID, t wizard.InsuranceType) error {
	_, err := s.advance(ctx, "select_insurance_type", userID, sessionID, steps(wizard.StepNewInsuranceType),
		func(ctx context.Context, r storage.Repos, sess *sessions.Session, now time.Time) (wizard.State, wizard.Fields, error) {
			cur, ok := sess.State.(wizard.NewInsuranceTypeState)
			if !ok {
				return nil, nil, unexpectedState(sess.State)
			}
			insured := wizard.Insured{LocationID: cur.LocationID, IsOver40: cur.IsOver40, InsuranceType: t}
			switch t {
			case wizard.InsuranceGKV:
				return wizard.NewGKVDetailsState{Insured: insured}, nil, nil
			case wizard.InsurancePKV:
				return wizard.NewPVSConsentState{Insured: insured}, nil, nil
			}
			return nil, nil, validation("unknown insurance type %q", t)
		})
	return err
}

// ConfirmGKVDetails records the GP-centred care status of a statutory patient.
func (s *Service) ConfirmGKVDetails(ctx context.Context, userID string, sessionID uuid.UUID, hzv wizard.HzvStatus) error {
	_, err := s.advance(ctx, "confirm_gkv_details", userID, sessionID,
		steps(wizard.StepNewGKVDetails, wizard.StepNewGKVDetailsComplete),
		func(ctx context.Context, r storage.Repos, sess *sessions.Session, now time.Time) (wizard.State, wizard.Fields, error) {
			var insured wizard.Insured
			switch cur := sess.State.(type) {
			case wizard.NewGKVDetailsState:
				insured = cur.Insured
			case wizard.NewGKVDetailsCompleteState:
				insured = cur.Insured
			default:
				return nil, nil, unexpectedState(sess.State)
			}
			if !hzv.Valid() {
				return nil, nil, validation("unknown hzv status %q", hzv)
			}
			return wizard.NewAppointmentTypeState{Coverage: wizard.Coverage{Insured: insured, HzvStatus: &hzv}}, nil, nil
		})
	return err
}

// AcceptPVSConsent records the private billing consent.
func (s *Service) AcceptPVSConsent(ctx context.Context, userID string, sessionID uuid.UUID, consent bool) error {
	_, err := s.advance(ctx, "accept_pvs_consent", userID, sessionID, steps(wizard.StepNewPVSConsent),
		func(ctx context.Context, r storage.Repos, sess *sessions.Session, now time.Time) (wizard.State, wizard.Fields, error) {
			cur, ok := sess.State.(wizard.NewPVSConsentState)
			if !ok {
				return nil, nil, unexpectedState(sess.State)
			}
			if !consent {
				return nil, nil, validation("pvs consent must be given")
			}
			return wizard.NewPKVDetailsState{Insured: cur.Insured, PvsConsent: true}, nil, nil
		})
	return err
}

// ConfirmPKVDetails records the optional private insurance details. Unset
// details stay unset.
func (s *Service) ConfirmPKVDetails(ctx context.Context, userID string, sessionID uuid.UUID, details wizard.PKVDetails) error {
	_, err := s.advance(ctx, "confirm_pkv_details", userID, sessionID,
		steps(wizard.StepNewPKVDetails, wizard.StepNewPKVDetailsComplete),
		func(ctx context.Context, r storage.Repos, sess *sessions.Session, now time.Time) (wizard.State, wizard.Fields, error) {
			var insured wizard.Insured
			switch cur := sess.State.(type) {
			case wizard.NewPKVDetailsState:
				insured = cur.Insured
			case wizard.NewPKVDetailsCompleteState:
				insured = cur.Insured
			default:
				return nil, nil, unexpectedState(sess.State)
			}
			details = normalizePKVDetails(details)
			if err := validatePKVDetails(details); err != nil {
				return nil, nil, err
			}
			consent := true
			return wizard.NewAppointmentTypeState{Coverage: wizard.Coverage{
				Insured:    insured,
				PvsConsent: &consent,
				PKVDetails: details,
			}}, nil, nil
		})
	return err
}

func normalizePKVDetails(d wizard.PKVDetails) wizard.PKVDetails {
	if d.PkvTariff != nil {
		tariff := strings.TrimSpace(*d.PkvTariff)
		d.PkvTariff = &tariff
	}
	return d
}

func validatePKVDetails(d wizard.PKVDetails) error {
	if d.PkvTariff != nil {
		if err := wizard.ValidatePKVTariff(*d.PkvTariff); err != nil {
			return err
		}
	}
	if d.PkvInsuranceType != nil && !d.PkvInsuranceType.Valid() {
		return validation("unknown pkv insurance type %q", *d.PkvInsuranceType)
	}
	if d.BeihilfeStatus != nil && !d.BeihilfeStatus.Valid() {
		return validation("unknown beihilfe status %q", *d.BeihilfeStatus)
	}
	return nil
}

// SelectNewAppointmentType picks an appointment type of the session's rule set.
func (s *Service) SelectNewAppointmentType(ctx context.Context, userID string, sessionID, appointmentTypeID uuid.UUID) error {
	_, err := s.advance(ctx, "select_new_appointment_type", userID, sessionID, steps(wizard.StepNewAppointmentType),
		func(ctx context.Context, r storage.Repos, sess *sessions.Session, now time.Time) (wizard.State, wizard.Fields, error) {
			cur, ok := sess.State.(wizard.NewAppointmentTypeState)
			if !ok {
				return nil, nil, unexpectedState(sess.State)
			}
			if err := s.requireAppointmentType(ctx, sess, appointmentTypeID); err != nil {
				return nil, nil, err
			}
			return wizard.NewDataInputState{Coverage: cur.Coverage, AppointmentTypeID: appointmentTypeID}, nil, nil
		})
	return err
}

func (s *Service) requireAppointmentType(ctx context.Context, sess *sessions.Session, id uuid.UUID) error {
	if id == uuid.Nil {
		return validation("appointmentTypeId is required")
	}
	return refdata.Require(ctx, s.catalog, refdata.KindAppointmentType, sess.RuleSetID, id)
}

// SubmitNewPersonalData records the new patient's details.
func (s *Service) SubmitNewPersonalData(ctx context.Context, userID string, sessionID uuid.UUID, details wizard.PatientDetails) error {
	_, err := s.advance(ctx, "submit_new_personal_data", userID, sessionID,
		steps(wizard.StepNewDataInput, wizard.StepNewDataInputComplete),
		func(ctx context.Context, r storage.Repos, sess *sessions.Session, now time.Time) (wizard.State, wizard.Fields, error) {
			var (
				coverage          wizard.Coverage
				appointmentTypeID uuid.UUID
			)
			switch cur := sess.State.(type) {
			case wizard.NewDataInputState:
				coverage, appointmentTypeID = cur.Coverage, cur.AppointmentTypeID
			case wizard.NewDataInputCompleteState:
				coverage, appointmentTypeID = cur.Coverage, cur.AppointmentTypeID
			default:
				return nil, nil, unexpectedState(sess.State)
			}
			details.PersonalData = normalizePersonal(details.PersonalData)
			if err := validatePatientDetails(details, now); err != nil {
				return nil, nil, err
			}
			return wizard.NewCalendarSelectionState{
				Coverage:          coverage,
				AppointmentTypeID: appointmentTypeID,
				PatientDetails:    details,
			}, nil, nil
		})
	return err
}

func validatePatientDetails(d wizard.PatientDetails, now time.Time) error {
	if err := d.PersonalData.Validate(now); err != nil {
		return err
	}
	if d.MedicalHistory != nil {
		if err := wizard.ValidateMedicalHistory(*d.MedicalHistory); err != nil {
			return err
		}
	}
	if d.EmergencyContact != nil {
		if err := d.EmergencyContact.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func normalizePersonal(p wizard.PersonalData) wizard.PersonalData {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Email = strings.TrimSpace(p.Email)
	return p
}

// SelectNewCalendarSlot books the chosen slot for a new patient and returns the
// appointment id.
func (s *Service) SelectNewCalendarSlot(ctx context.Context, userID string, sessionID uuid.UUID, slot wizard.Slot) (uuid.UUID, error) {
	next, err := s.advance(ctx, "select_new_calendar_slot", userID, sessionID, steps(wizard.StepNewCalendarSelection),
		func(ctx context.Context, r storage.Repos, sess *sessions.Session, now time.Time) (wizard.State, wizard.Fields, error) {
			cur, ok := sess.State.(wizard.NewCalendarSelectionState)
			if !ok {
				return nil, nil, unexpectedState(sess.State)
			}
			slot = normalizeSlot(slot)
			appt := &appointments.Appointment{
				LocationID:        cur.LocationID,
				AppointmentTypeID: cur.AppointmentTypeID,
				PatientStatus:     string(wizard.PatientNew),
				InsuranceType:     string(cur.InsuranceType),
			}
			withPersonal(appt, cur.PersonalData)
			id, err := s.book(ctx, r, sess, now, slot, appt)
			if err != nil {
				return nil, nil, err
			}
			return wizard.NewConfirmationState{
				Coverage:          cur.Coverage,
				AppointmentTypeID: cur.AppointmentTypeID,
				PatientDetails:    cur.PatientDetails,
				Booking:           wizard.Booking{SelectedSlot: slot, AppointmentID: id},
			}, nil, nil
		})
	if err != nil {
		return uuid.Nil, err
	}
	done := next.(wizard.NewConfirmationState)
	s.booked(sessionID, done.Booking)
	return done.AppointmentID, nil
}

// SelectDoctor picks the existing patient's practitioner at the chosen location.
func (s *Service) SelectDoctor(ctx context.Context, userID string, sessionID, practitionerID uuid.UUID) error {
	_, err := s.advance(ctx, "select_doctor", userID, sessionID, steps(wizard.StepExistingDoctorSelection),
		func(ctx context.Context, r storage.Repos, sess *sessions.Session, now time.Time) (wizard.State, wizard.Fields, error) {
			cur, ok := sess.State.(wizard.ExistingDoctorSelectionState)
			if !ok {
				return nil, nil, unexpectedState(sess.State)
			}
			if practitionerID == uuid.Nil {
				return nil, nil, validation("practitionerId is required")
			}
			if err := refdata.Require(ctx, s.catalog, refdata.KindPractitioner, cur.LocationID, practitionerID); err != nil {
				return nil, nil, err
			}
			return wizard.ExistingAppointmentTypeState{ExistingPatient: wizard.ExistingPatient{
				LocationID:     cur.LocationID,
				PractitionerID: practitionerID,
			}}, nil, nil
		})
	return err
}

// SelectExistingAppointmentType picks the appointment type for an existing
// patient.
func (s *Service) SelectExistingAppointmentType(ctx context.Context, userID string, sessionID, appointmentTypeID uuid.UUID) error {
	_, err := s.advance(ctx, "select_existing_appointment_type", userID, sessionID, steps(wizard.StepExistingAppointmentType),
		func(ctx context.Context, r storage.Repos, sess *sessions.Session, now time.Time) (wizard.State, wizard.Fields, error) {
			cur, ok := sess.State.(wizard.ExistingAppointmentTypeState)
			if !ok {
				return nil, nil, unexpectedState(sess.State)
			}
			if err := s.requireAppointmentType(ctx, sess, appointmentTypeID); err != nil {
				return nil, nil, err
			}
			return wizard.ExistingDataInputState{ExistingPatient: cur.ExistingPatient, AppointmentTypeID: appointmentTypeID}, nil, nil
		})
	return err
}

// SubmitExistingPersonalData records the existing patient's contact details.
func (s *Service) SubmitExistingPersonalData(ctx context.Context, userID string, sessionID uuid.UUID, personal wizard.PersonalData) error {
	_, err := s.advance(ctx, "submit_existing_personal_data", userID, sessionID,
		steps(wizard.StepExistingDataInput, wizard.StepExistingDataInputComplete),
		func(ctx context.Context, r storage.Repos, sess *sessions.Session, now time.Time) (wizard.State, wizard.Fields, error) {
			var (
				patient           wizard.ExistingPatient
				appointmentTypeID uuid.UUID
			)
			switch cur := sess.State.(type) {
			case wizard.ExistingDataInputState:
				patient, appointmentTypeID = cur.ExistingPatient, cur.AppointmentTypeID
			case wizard.ExistingDataInputCompleteState:
				patient, appointmentTypeID = cur.ExistingPatient, cur.AppointmentTypeID
			default:
				return nil, nil, unexpectedState(sess.State)
			}
			personal = normalizePersonal(personal)
			if err := personal.Validate(now); err != nil {
				return nil, nil, err
			}
			return wizard.ExistingCalendarSelectionState{
				ExistingPatient:   patient,
				AppointmentTypeID: appointmentTypeID,
				PersonalData:      personal,
			}, nil, nil
		})
	return err
}

// SelectExistingCalendarSlot books the chosen slot with the patient's own
// practitioner and returns the appointment id.
func (s *Service) SelectExistingCalendarSlot(ctx context.Context, userID string, sessionID uuid.UUID, slot wizard.Slot) (uuid.UUID, error) {
	next, err := s.advance(ctx, "select_existing_calendar_slot", userID, sessionID, steps(wizard.StepExistingCalendarSelection),
		func(ctx context.Context, r storage.Repos, sess *sessions.Session, now time.Time) (wizard.State, wizard.Fields, error) {
			cur, ok := sess.State.(wizard.ExistingCalendarSelectionState)
			if !ok {
				return nil, nil, unexpectedState(sess.State)
			}
			slot = normalizeSlot(slot)
			if slot.PractitionerID != cur.PractitionerID {
				return nil, nil, validation("slot belongs to another practitioner")
			}
			appt := &appointments.Appointment{
				LocationID:        cur.LocationID,
				AppointmentTypeID: cur.AppointmentTypeID,
				PatientStatus:     string(wizard.PatientExisting),
			}
			withPersonal(appt, cur.PersonalData)
			id, err := s.book(ctx, r, sess, now, slot, appt)
			if err != nil {
				return nil, nil, err
			}
			return wizard.ExistingConfirmationState{
				ExistingPatient:   cur.ExistingPatient,
				AppointmentTypeID: cur.AppointmentTypeID,
				PersonalData:      cur.PersonalData,
				Booking:           wizard.Booking{SelectedSlot: slot, AppointmentID: id},
			}, nil, nil
		})
	if err != nil {
		return uuid.Nil, err
	}
	done := next.(wizard.ExistingConfirmationState)
	s.booked(sessionID, done.Booking)
	return done.AppointmentID, nil
}

func withPersonal(a *appointments.Appointment, p wizard.PersonalData) {
	a.FirstName = p.FirstName
	a.LastName = p.LastName
	a.DateOfBirth = p.DateOfBirth
	a.Phone = p.Phone
	a.Email = p.Email
}

func (s *Service) booked(sessionID uuid.UUID, b wizard.Booking) {
	s.metrics.ObserveAppointmentBooked()
	s.logger.Info("appointment booked",
		"appointment_id", b.AppointmentID,
		"session_id", sessionID,
		"practitioner_id", b.SelectedSlot.PractitionerID,
		"starts_at", b.SelectedSlot.Start,
	)
}

func normalizeSlot(s wizard.Slot) wizard.Slot {
	s.Start = s.Start.UTC()
	s.End = s.End.UTC()
	return s
}

// book checks the slot is still offered, stores the appointment and queues the
// booked event, all in the caller's unit of work. appt carries the
// branch-specific fields; identity, scope and times are filled in here.
func (s *Service) book(ctx context.Context, r storage.Repos, sess *sessions.Session, now time.Time, slot wizard.Slot, appt *appointments.Appointment) (uuid.UUID, error) {
	if err := slot.Validate(); err != nil {
		return uuid.Nil, err
	}
	if err := refdata.Require(ctx, s.catalog, refdata.KindPractitioner, appt.LocationID, slot.PractitionerID); err != nil {
		return uuid.Nil, err
	}

	q, err := slotQuery(sess, slot.Start, slot.End)
	if err != nil {
		return uuid.Nil, err
	}
	cands, err := s.finder.Find(ctx, q)
	if err != nil {
		s.metrics.ObserveSlotQuery("error")
		return uuid.Nil, fmt.Errorf("verify slot: %w", err)
	}
	s.metrics.ObserveSlotQuery("ok")
	if !slots.Offers(cands, slot.PractitionerID, slot.Start, slot.End) {
		return uuid.Nil, ErrSlotUnavailable
	}

	appt.ID = uuid.New()
	appt.SessionID = sess.ID
	appt.PracticeID = sess.PracticeID
	appt.RuleSetID = sess.RuleSetID
	appt.UserID = sess.UserID
	appt.PractitionerID = slot.PractitionerID
	appt.StartsAt = slot.Start
	appt.EndsAt = slot.End
	appt.Status = appointments.StatusBooked
	appt.CreatedAt = now
	if err := r.Appointments.Insert(ctx, appt); err != nil {
		if errors.Is(err, appointments.ErrSlotTaken) {
			return uuid.Nil, ErrSlotUnavailable
		}
		return uuid.Nil, err
	}

	evt := events.AppointmentBookedV1{
		AppointmentID:     appt.ID.String(),
		SessionID:         sess.ID.String(),
		PracticeID:        sess.PracticeID.String(),
		RuleSetID:         sess.RuleSetID.String(),
		UserID:            sess.UserID,
		LocationID:        appt.LocationID.String(),
		AppointmentTypeID: appt.AppointmentTypeID.String(),
		PractitionerID:    appt.PractitionerID.String(),
		PatientStatus:     appt.PatientStatus,
		InsuranceType:     appt.InsuranceType,
		StartsAt:          appt.StartsAt,
		EndsAt:            appt.EndsAt,
		BookedAt:          now,
	}
	if _, err := r.Outbox.Append(ctx, events.SessionAggregate(sess.ID), sess.ID.String(), evt, events.WithTimestamp(now)); err != nil {
		return uuid.Nil, err
	}
	return appt.ID, nil
}
