package wizard

import (
	"encoding/json"
	"reflect"
	"sort"
)

// Field is the JSON name of a value carried in a step state or step record.
type Field string

const (
	FieldPrivacyAccepted   Field = "privacyAccepted"
	FieldLocationID        Field = "locationId"
	FieldPatientStatus     Field = "patientStatus"
	FieldIsOver40          Field = "isOver40"
	FieldInsuranceType     Field = "insuranceType"
	FieldHzvStatus         Field = "hzvStatus"
	FieldPvsConsent        Field = "pvsConsent"
	FieldPkvTariff         Field = "pkvTariff"
	FieldPkvInsuranceType  Field = "pkvInsuranceType"
	FieldBeihilfeStatus    Field = "beihilfeStatus"
	FieldAppointmentTypeID Field = "appointmentTypeId"
	FieldPersonalData      Field = "personalData"
	FieldMedicalHistory    Field = "medicalHistory"
	FieldEmergencyContact  Field = "emergencyContact"
	FieldPractitionerID    Field = "practitionerId"
	FieldSelectedSlot      Field = "selectedSlot"
	FieldAppointmentID     Field = "appointmentId"
)

// stepKey is the discriminator key of an encoded state. It is never a Field.
const stepKey = "step"

// Fields is the untyped form of a state or record payload: raw JSON values keyed
// by field name. Reconstruction and allow-list filtering work on this form.
type Fields map[Field]json.RawMessage

// Has reports whether f is present.
func (f Fields) Has(name Field) bool {
	_, ok := f[name]
	return ok
}

// Keys returns the present field names sorted.
func (f Fields) Keys() []Field {
	keys := make([]Field, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Set marshals v into the field.
func (f Fields) Set(name Field, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f[name] = raw
	return nil
}

// Merge returns a copy of f with every field of other copied in.
func (f Fields) Merge(other Fields) Fields {
	out := f.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// sameValue compares two raw JSON values semantically. Postgres jsonb rewrites
// spacing and key order, so a byte comparison is not enough.
func sameValue(a, b json.RawMessage) bool {
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}

// FieldSpec declares one allowed field and whether it must be present.
type FieldSpec struct {
	Name     Field
	Required bool
}

func req(names ...Field) []FieldSpec {
	out := make([]FieldSpec, 0, len(names))
	for _, n := range names {
		out = append(out, FieldSpec{Name: n, Required: true})
	}
	return out
}

func opt(names ...Field) []FieldSpec {
	out := make([]FieldSpec, 0, len(names))
	for _, n := range names {
		out = append(out, FieldSpec{Name: n})
	}
	return out
}

// join concatenates spec lists, keeping order and the first declaration of a
// repeated field.
func join(parts ...[]FieldSpec) []FieldSpec {
	seen := make(map[Field]struct{})
	var out []FieldSpec
	for _, part := range parts {
		for _, spec := range part {
			if _, ok := seen[spec.Name]; ok {
				continue
			}
			seen[spec.Name] = struct{}{}
			out = append(out, spec)
		}
	}
	return out
}
