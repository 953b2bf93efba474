package wizard

import "fmt"

// Schema is the registry entry for one step.
type Schema struct {
	Step Step
	// State is the ordered allow-list of fields carried in the session state.
	State []FieldSpec
	// RecordStep is the step whose per-step record holds the data entered at
	// this step. "-complete" steps share the record of their plain step;
	// confirmation steps have none.
	RecordStep Step
	// Record is the ordered allow-list of the per-step record payload. It is
	// only set on steps that own a record (RecordStep == Step).
	Record []FieldSpec
}

var (
	newBase      = req(FieldLocationID, FieldIsOver40)
	insuredBase  = join(newBase, req(FieldInsuranceType))
	gkvComplete  = join(insuredBase, req(FieldHzvStatus))
	pkvConsented = join(insuredBase, req(FieldPvsConsent))
	pkvComplete  = join(pkvConsented, opt(FieldPkvTariff, FieldPkvInsuranceType, FieldBeihilfeStatus))

	// The appointment-type state merges both insurance branches; which of the
	// optional coverage fields may appear is checked by the variant itself.
	coverage = join(insuredBase, opt(
		FieldHzvStatus,
		FieldPvsConsent,
		FieldPkvTariff,
		FieldPkvInsuranceType,
		FieldBeihilfeStatus,
	))
	newTyped     = join(coverage, req(FieldAppointmentTypeID))
	newDetailed  = join(newTyped, req(FieldPersonalData), opt(FieldMedicalHistory, FieldEmergencyContact))
	newBooked    = join(newDetailed, req(FieldSelectedSlot, FieldAppointmentID))
	existingDoc  = join(req(FieldLocationID), req(FieldPractitionerID))
	existingType = join(existingDoc, req(FieldAppointmentTypeID))
	existingData = join(existingType, req(FieldPersonalData))
	existingDone = join(existingData, req(FieldSelectedSlot, FieldAppointmentID))
)

var registry = map[Step]Schema{
	StepPrivacy: {
		State:  nil,
		Record: req(FieldPrivacyAccepted),
	},
	StepLocation: {
		State:  nil,
		Record: req(FieldLocationID),
	},
	StepPatientStatus: {
		State:  req(FieldLocationID),
		Record: join(req(FieldLocationID), req(FieldPatientStatus)),
	},

	StepNewAgeCheck: {
		State:  req(FieldLocationID),
		Record: newBase,
	},
	StepNewInsuranceType: {
		State:  newBase,
		Record: insuredBase,
	},
	StepNewGKVDetails: {
		State:  insuredBase,
		Record: gkvComplete,
	},
	StepNewGKVDetailsComplete: {
		State:      gkvComplete,
		RecordStep: StepNewGKVDetails,
	},
	StepNewPVSConsent: {
		State:  insuredBase,
		Record: pkvConsented,
	},
	StepNewPKVDetails: {
		State:  pkvConsented,
		Record: pkvComplete,
	},
	StepNewPKVDetailsComplete: {
		State:      pkvComplete,
		RecordStep: StepNewPKVDetails,
	},
	StepNewAppointmentType: {
		State:  coverage,
		Record: newTyped,
	},
	StepNewDataInput: {
		State:  newTyped,
		Record: newDetailed,
	},
	StepNewDataInputComplete: {
		State:      newDetailed,
		RecordStep: StepNewDataInput,
	},
	StepNewCalendarSelection: {
		State:  newDetailed,
		Record: newBooked,
	},
	StepNewConfirmation: {
		State: newBooked,
	},

	StepExistingDoctorSelection: {
		State:  req(FieldLocationID),
		Record: existingDoc,
	},
	StepExistingAppointmentType: {
		State:  existingDoc,
		Record: existingType,
	},
	StepExistingDataInput: {
		State:  existingType,
		Record: existingData,
	},
	StepExistingDataInputComplete: {
		State:      existingData,
		RecordStep: StepExistingDataInput,
	},
	StepExistingCalendarSelection: {
		State:  existingData,
		Record: existingDone,
	},
	StepExistingConfirmation: {
		State: existingDone,
	},
}

func init() {
	for step, schema := range registry {
		schema.Step = step
		if schema.Record != nil {
			schema.RecordStep = step
		}
		registry[step] = schema
	}
	for _, step := range allSteps {
		schema, ok := registry[step]
		if !ok {
			panic(fmt.Sprintf("wizard: step %s missing from registry", step))
		}
		if schema.RecordStep != "" && schema.RecordStep != step {
			owner, ok := registry[schema.RecordStep]
			if !ok || owner.Record == nil {
				panic(fmt.Sprintf("wizard: step %s shares record of %s which owns none", step, schema.RecordStep))
			}
		}
	}
	if len(registry) != len(allSteps) {
		panic("wizard: registry has steps not listed in allSteps")
	}
}

// SchemaFor returns the registry entry for step.
func SchemaFor(step Step) (Schema, bool) {
	s, ok := registry[step]
	return s, ok
}

// StateFields returns the state allow-list of step.
func StateFields(step Step) []FieldSpec {
	return registry[step].State
}

// RecordFields returns the record allow-list of step. It is empty for steps that
// do not own a record.
func RecordFields(step Step) []FieldSpec {
	return registry[step].Record
}

// RecordStepFor returns the step whose per-step record holds step's data.
func RecordStepFor(step Step) (Step, bool) {
	s := registry[step].RecordStep
	return s, s != ""
}

// RecordSteps lists every step that owns a per-step record, in wizard order.
func RecordSteps() []Step {
	var out []Step
	for _, step := range allSteps {
		if registry[step].Record != nil {
			out = append(out, step)
		}
	}
	return out
}

func allows(specs []FieldSpec, name Field) bool {
	for _, spec := range specs {
		if spec.Name == name {
			return true
		}
	}
	return false
}

// FilterState drops every field not on step's state allow-list.
func FilterState(step Step, fields Fields) Fields {
	specs := StateFields(step)
	out := make(Fields, len(fields))
	for k, v := range fields {
		if allows(specs, k) {
			out[k] = v
		}
	}
	return out
}

// CheckState asserts that fields is exactly a legal state payload for step:
// nothing outside the allow-list and every required field present.
func CheckState(step Step, fields Fields) error {
	if !step.Valid() {
		return invariant(step, "", "unknown step")
	}
	return check(step, StateFields(step), fields)
}

// CheckRecord asserts that fields is exactly a legal record payload for step.
func CheckRecord(step Step, fields Fields) error {
	schema, ok := registry[step]
	if !ok || schema.Record == nil {
		return invariant(step, "", "step owns no record")
	}
	return check(step, schema.Record, fields)
}

func check(step Step, specs []FieldSpec, fields Fields) error {
	for _, k := range fields.Keys() {
		if !allows(specs, k) {
			return invariant(step, k, "field not allowed")
		}
	}
	for _, spec := range specs {
		if spec.Required && !fields.Has(spec.Name) {
			return invariant(step, spec.Name, "required field missing")
		}
	}
	return nil
}
