package wizard

import "fmt"

// Node is the navigation-graph entry for one step.
type Node struct {
	Step      Step
	CanGoBack bool
	// Prev is the static predecessor, used when Resolve is nil.
	Prev Step
	// Resolve picks the predecessor from the current state for steps whose
	// history depends on a branch choice.
	Resolve func(State) (Step, error)
}

var graph = map[Step]Node{
	StepPrivacy:       {},
	StepLocation:      {CanGoBack: true, Prev: StepPrivacy},
	StepPatientStatus: {CanGoBack: true, Prev: StepLocation},

	StepNewAgeCheck:           {CanGoBack: true, Prev: StepPatientStatus},
	StepNewInsuranceType:      {CanGoBack: true, Prev: StepNewAgeCheck},
	StepNewGKVDetails:         {CanGoBack: true, Prev: StepNewInsuranceType},
	StepNewGKVDetailsComplete: {CanGoBack: true, Prev: StepNewInsuranceType},
	StepNewPVSConsent:         {CanGoBack: true, Prev: StepNewInsuranceType},
	StepNewPKVDetails:         {CanGoBack: true, Prev: StepNewPVSConsent},
	StepNewPKVDetailsComplete: {CanGoBack: true, Prev: StepNewPVSConsent},
	StepNewAppointmentType:    {CanGoBack: true, Resolve: appointmentTypePredecessor},
	StepNewDataInput:          {CanGoBack: true, Prev: StepNewAppointmentType},
	StepNewDataInputComplete:  {CanGoBack: true, Prev: StepNewAppointmentType},
	StepNewCalendarSelection:  {CanGoBack: true, Prev: StepNewDataInputComplete},
	StepNewConfirmation:       {},

	// Once a doctor is chosen the existing-patient branch only moves forward.
	StepExistingDoctorSelection:   {CanGoBack: true, Prev: StepPatientStatus},
	StepExistingAppointmentType:   {},
	StepExistingDataInput:         {},
	StepExistingDataInputComplete: {},
	StepExistingCalendarSelection: {},
	StepExistingConfirmation:      {},
}

func appointmentTypePredecessor(s State) (Step, error) {
	cur, ok := s.(NewAppointmentTypeState)
	if !ok {
		return "", invariant(StepNewAppointmentType, "", "state is %s", s.Step())
	}
	switch cur.InsuranceType {
	case InsuranceGKV:
		return StepNewGKVDetailsComplete, nil
	case InsurancePKV:
		return StepNewPKVDetailsComplete, nil
	}
	return "", invariant(StepNewAppointmentType, FieldInsuranceType, "unknown insurance type %q", cur.InsuranceType)
}

func init() {
	for step, node := range graph {
		node.Step = step
		graph[step] = node
	}
	for _, step := range allSteps {
		node, ok := graph[step]
		if !ok {
			panic(fmt.Sprintf("wizard: step %s missing from navigation graph", step))
		}
		if !node.CanGoBack {
			continue
		}
		if node.Resolve == nil && node.Prev == "" {
			panic(fmt.Sprintf("wizard: step %s can go back but has no predecessor", step))
		}
		if node.Prev != "" {
			if _, ok := graph[node.Prev]; !ok {
				panic(fmt.Sprintf("wizard: step %s has unknown predecessor %s", step, node.Prev))
			}
		}
	}
}

// NodeFor returns the navigation node of step.
func NodeFor(step Step) (Node, bool) {
	n, ok := graph[step]
	return n, ok
}

// Predecessor resolves the step that back navigation from s leads to.
func Predecessor(s State) (Step, error) {
	node, ok := graph[s.Step()]
	if !ok {
		return "", invariant(s.Step(), "", "unknown step")
	}
	if !node.CanGoBack {
		return "", &BackNotAllowedError{Step: s.Step()}
	}
	if node.Resolve != nil {
		return node.Resolve(s)
	}
	return node.Prev, nil
}

// CanGoBack reports whether back navigation is possible from step.
func CanGoBack(step Step) bool {
	return graph[step].CanGoBack
}
