package wizard

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconstructEveryReversibleSample(t *testing.T) {
	for step, states := range sampleStates() {
		if !CanGoBack(step) {
			continue
		}
		for _, s := range states {
			prev, err := Predecessor(s)
			require.NoError(t, err, step)

			out, err := Reconstruct(prev, s, nil)
			require.NoError(t, err, step)
			assert.Equal(t, prev, out.State.Step())
			assert.False(t, out.SnapshotUsed)
			assert.False(t, out.SnapshotStale)

			// Every field the predecessor allows and the current state carries is
			// preserved unchanged.
			cur, err := Encode(s)
			require.NoError(t, err)
			got, err := Encode(out.State)
			require.NoError(t, err)
			for k, v := range got {
				require.True(t, sameValue(cur[k], v), "%s: field %s changed", step, k)
			}
		}
	}
}

func TestReconstructKeepsPKVTariff(t *testing.T) {
	cur := NewAppointmentTypeState{Coverage: Coverage{
		Insured:    pkvInsured(),
		PvsConsent: ptr(true),
		PKVDetails: PKVDetails{PkvTariff: ptr("standard")},
	}}
	prev, err := Predecessor(cur)
	require.NoError(t, err)
	require.Equal(t, StepNewPKVDetailsComplete, prev)

	out, err := Reconstruct(prev, cur, nil)
	require.NoError(t, err)
	got, ok := out.State.(NewPKVDetailsCompleteState)
	require.True(t, ok)
	require.NotNil(t, got.PkvTariff)
	assert.Equal(t, "standard", *got.PkvTariff)
	assert.Nil(t, got.PkvInsuranceType)
	assert.True(t, got.PvsConsent)
}

func TestReconstructDropsLaterFields(t *testing.T) {
	cur := sampleStates()[StepNewCalendarSelection][0]
	snapshot, err := Encode(cur)
	require.NoError(t, err)
	require.NoError(t, snapshot.Set(FieldSelectedSlot, testSlot()))

	out, err := Reconstruct(StepNewDataInputComplete, cur, snapshot)
	require.NoError(t, err)
	fields, err := Encode(out.State)
	require.NoError(t, err)
	assert.False(t, fields.Has(FieldSelectedSlot))
	assert.False(t, out.SnapshotStale)
}

func TestReconstructFillsFromSnapshot(t *testing.T) {
	cur := NewAppointmentTypeState{Coverage: Coverage{Insured: pkvInsured(), PvsConsent: ptr(true)}}

	// jsonb reorders object keys and drops spacing; the record still agrees.
	snapshot := Fields{
		FieldLocationID:        json.RawMessage(`"` + testLocation.String() + `"`),
		FieldIsOver40:          json.RawMessage(`false`),
		FieldInsuranceType:     json.RawMessage(`"pkv"`),
		FieldPvsConsent:        json.RawMessage(`true`),
		FieldBeihilfeStatus:    json.RawMessage(`"eligible"`),
		FieldAppointmentTypeID: json.RawMessage(`"` + testAppointmentType.String() + `"`),
	}

	out, err := Reconstruct(StepNewPKVDetailsComplete, cur, snapshot)
	require.NoError(t, err)
	assert.True(t, out.SnapshotUsed)
	got := out.State.(NewPKVDetailsCompleteState)
	require.NotNil(t, got.BeihilfeStatus)
	assert.Equal(t, BeihilfeEligible, *got.BeihilfeStatus)
}

func TestReconstructIgnoresStaleSnapshot(t *testing.T) {
	cur := NewDataInputState{Coverage: gkvCoverage(), AppointmentTypeID: testAppointmentType}

	// Written while the patient was on the pkv branch.
	stale, err := Encode(NewDataInputState{Coverage: pkvCoverage(), AppointmentTypeID: testAppointmentType})
	require.NoError(t, err)

	out, err := Reconstruct(StepNewAppointmentType, cur, stale)
	require.NoError(t, err)
	assert.True(t, out.SnapshotStale)
	assert.False(t, out.SnapshotUsed)
	got := out.State.(NewAppointmentTypeState)
	assert.Equal(t, InsuranceGKV, got.InsuranceType)
	assert.Nil(t, got.PvsConsent)
}

func TestMinimalRequiresAncestorFields(t *testing.T) {
	fields, err := Encode(NewGKVDetailsState{Insured: gkvInsured()})
	require.NoError(t, err)

	_, err = Minimal(StepNewGKVDetailsComplete, fields)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvariant)
	var inv *InvariantError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, FieldHzvStatus, inv.Field)

	_, err = Minimal(Step("unknown"), fields)
	assert.ErrorIs(t, err, ErrInvariant)
}
