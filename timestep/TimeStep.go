// Package timestep implements timesteps of the controller-environment
// interaction
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StepType denotes the type of step that a TimeStep can be, either  first
// environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// TimeStep packages together a single timestep in an environment. The
// State is the full (Markovian) state used for dynamics fitting and
// trajectory optimization, while the Observation is what the global
// policy sees.
type TimeStep struct {
	stepType    StepType
	State       mat.Vector
	Observation mat.Vector
	Number      int
}

// New returns a new TimeStep
func New(t StepType, state, obs mat.Vector, n int) TimeStep {
	return TimeStep{t, state, obs, n}
}

// First returns whether a TimeStep is the first in an environment
func (t *TimeStep) First() bool {
	return t.stepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t *TimeStep) Mid() bool {
	return t.stepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment
func (t *TimeStep) Last() bool {
	return t.stepType == Last
}

// Type returns the type of step
func (t *TimeStep) Type() StepType {
	return t.stepType
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Step Number:  %v  |  State: %v"

	return fmt.Sprintf(str, t.stepType, t.Number, mat.Formatted(t.State.T()))
}
