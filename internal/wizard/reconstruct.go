package wizard

// Restored is the outcome of rebuilding a predecessor state.
type Restored struct {
	State State
	// SnapshotUsed is set when the predecessor's per-step record contributed
	// fields to State.
	SnapshotUsed bool
	// SnapshotStale is set when a record existed but disagreed with the current
	// state (it was written on another branch) and was ignored.
	SnapshotStale bool
}

// Minimal builds the smallest legal field set for target from the fields of the
// current state. Required fields must already be present; optional fields are
// copied only when set. Nothing is fabricated.
func Minimal(target Step, current Fields) (Fields, error) {
	if !target.Valid() {
		return nil, invariant(target, "", "unknown step")
	}
	out := Fields{}
	for _, spec := range StateFields(target) {
		v, ok := current[spec.Name]
		if !ok {
			if spec.Required {
				return nil, invariant(target, spec.Name, "required field missing from current state")
			}
			continue
		}
		out[spec.Name] = v
	}
	return out, nil
}

// Reconstruct rebuilds the state at target from current, pre-filling it from the
// target's per-step record when one exists. snapshot may be nil.
//
// The snapshot only fills in fields: any field it shares with the minimal state
// must agree, otherwise the snapshot belongs to an abandoned branch and is
// dropped. The result is filtered through target's allow-list, so fields of
// later steps never carry back.
func Reconstruct(target Step, current State, snapshot Fields) (Restored, error) {
	fields, err := Encode(current)
	if err != nil {
		return Restored{}, err
	}
	minimal, err := Minimal(target, fields)
	if err != nil {
		return Restored{}, err
	}

	var out Restored
	if len(snapshot) > 0 {
		if agrees(minimal, snapshot) {
			merged := FilterState(target, snapshot.Merge(minimal))
			if s, err := Decode(target, merged); err == nil {
				out.State = s
				out.SnapshotUsed = len(merged) > len(minimal)
				return out, nil
			}
		}
		out.SnapshotStale = true
	}

	s, err := Decode(target, minimal)
	if err != nil {
		return Restored{}, err
	}
	out.State = s
	return out, nil
}

func agrees(base, snapshot Fields) bool {
	for k, v := range base {
		other, ok := snapshot[k]
		if !ok {
			continue
		}
		if !sameValue(v, other) {
			return false
		}
	}
	return true
}
