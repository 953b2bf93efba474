package wizard

import (
	"time"

	"github.com/google/uuid"
)

var (
	testLocation        = uuid.MustParse("7d0f7c5e-0b7e-4a53-9a55-0e4c3c3f0a01")
	testAppointmentType = uuid.MustParse("7d0f7c5e-0b7e-4a53-9a55-0e4c3c3f0a02")
	testPractitioner    = uuid.MustParse("7d0f7c5e-0b7e-4a53-9a55-0e4c3c3f0a03")
	testAppointment     = uuid.MustParse("7d0f7c5e-0b7e-4a53-9a55-0e4c3c3f0a04")
)

func ptr[T any](v T) *T { return &v }

func testPersonal() PersonalData {
	return PersonalData{
		FirstName:   "Erika",
		LastName:    "Mustermann",
		DateOfBirth: "1979-04-12",
		Phone:       "+49 30 1234567",
		Email:       "erika@example.org",
	}
}

func testSlot() Slot {
	start := time.Date(2026, 11, 3, 9, 30, 0, 0, time.UTC)
	return Slot{PractitionerID: testPractitioner, Start: start, End: start.Add(15 * time.Minute)}
}

func gkvInsured() Insured {
	return Insured{LocationID: testLocation, IsOver40: true, InsuranceType: InsuranceGKV}
}

func pkvInsured() Insured {
	return Insured{LocationID: testLocation, IsOver40: false, InsuranceType: InsurancePKV}
}

func gkvCoverage() Coverage {
	return Coverage{Insured: gkvInsured(), HzvStatus: ptr(HzvEnrolled)}
}

func pkvCoverage() Coverage {
	return Coverage{
		Insured:    pkvInsured(),
		PvsConsent: ptr(true),
		PKVDetails: fullPKV(),
	}
}

func fullPKV() PKVDetails {
	return PKVDetails{
		PkvTariff:        ptr("standard"),
		PkvInsuranceType: ptr(PKVFull),
		BeihilfeStatus:   ptr(BeihilfeEligible),
	}
}

func fullDetails() PatientDetails {
	return PatientDetails{
		PersonalData:     testPersonal(),
		MedicalHistory:   ptr("asthma"),
		EmergencyContact: &EmergencyContact{Name: "Max Mustermann", Phone: "+49 30 7654321", Relationship: "spouse"},
	}
}

func existingPatient() ExistingPatient {
	return ExistingPatient{LocationID: testLocation, PractitionerID: testPractitioner}
}

func booking() Booking {
	return Booking{SelectedSlot: testSlot(), AppointmentID: testAppointment}
}

// sampleStates returns fully populated states for every step. Steps whose
// allowed fields depend on the insurance branch get one sample per branch.
func sampleStates() map[Step][]State {
	return map[Step][]State{
		StepPrivacy:               {PrivacyState{}},
		StepLocation:              {LocationState{}},
		StepPatientStatus:         {PatientStatusState{LocationID: testLocation}},
		StepNewAgeCheck:           {NewAgeCheckState{LocationID: testLocation}},
		StepNewInsuranceType:      {NewInsuranceTypeState{LocationID: testLocation, IsOver40: true}},
		StepNewGKVDetails:         {NewGKVDetailsState{Insured: gkvInsured()}},
		StepNewGKVDetailsComplete: {NewGKVDetailsCompleteState{Insured: gkvInsured(), HzvStatus: HzvNotEnrolled}},
		StepNewPVSConsent:         {NewPVSConsentState{Insured: pkvInsured()}},
		StepNewPKVDetails:         {NewPKVDetailsState{Insured: pkvInsured(), PvsConsent: true}},
		StepNewPKVDetailsComplete: {NewPKVDetailsCompleteState{Insured: pkvInsured(), PvsConsent: true, PKVDetails: fullPKV()}},
		StepNewAppointmentType: {
			NewAppointmentTypeState{Coverage: gkvCoverage()},
			NewAppointmentTypeState{Coverage: pkvCoverage()},
		},
		StepNewDataInput: {
			NewDataInputState{Coverage: gkvCoverage(), AppointmentTypeID: testAppointmentType},
			NewDataInputState{Coverage: pkvCoverage(), AppointmentTypeID: testAppointmentType},
		},
		StepNewDataInputComplete: {
			NewDataInputCompleteState{Coverage: gkvCoverage(), AppointmentTypeID: testAppointmentType, PatientDetails: fullDetails()},
			NewDataInputCompleteState{Coverage: pkvCoverage(), AppointmentTypeID: testAppointmentType, PatientDetails: fullDetails()},
		},
		StepNewCalendarSelection: {
			NewCalendarSelectionState{Coverage: gkvCoverage(), AppointmentTypeID: testAppointmentType, PatientDetails: fullDetails()},
			NewCalendarSelectionState{Coverage: pkvCoverage(), AppointmentTypeID: testAppointmentType, PatientDetails: fullDetails()},
		},
		StepNewConfirmation: {
			NewConfirmationState{Coverage: gkvCoverage(), AppointmentTypeID: testAppointmentType, PatientDetails: fullDetails(), Booking: booking()},
			NewConfirmationState{Coverage: pkvCoverage(), AppointmentTypeID: testAppointmentType, PatientDetails: fullDetails(), Booking: booking()},
		},
		StepExistingDoctorSelection: {ExistingDoctorSelectionState{LocationID: testLocation}},
		StepExistingAppointmentType: {ExistingAppointmentTypeState{ExistingPatient: existingPatient()}},
		StepExistingDataInput: {
			ExistingDataInputState{ExistingPatient: existingPatient(), AppointmentTypeID: testAppointmentType},
		},
		StepExistingDataInputComplete: {
			ExistingDataInputCompleteState{ExistingPatient: existingPatient(), AppointmentTypeID: testAppointmentType, PersonalData: testPersonal()},
		},
		StepExistingCalendarSelection: {
			ExistingCalendarSelectionState{ExistingPatient: existingPatient(), AppointmentTypeID: testAppointmentType, PersonalData: testPersonal()},
		},
		StepExistingConfirmation: {
			ExistingConfirmationState{ExistingPatient: existingPatient(), AppointmentTypeID: testAppointmentType, PersonalData: testPersonal(), Booking: booking()},
		},
	}
}
