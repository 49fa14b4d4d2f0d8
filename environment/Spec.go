package environment

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r1"
)

// Spec describes the dimensions of the state, action, and observation
// of an environment together with the bounds on each action dimension
type Spec struct {
	StateDim       int
	ActionDim      int
	ObservationDim int

	// ActionBounds has one interval per action dimension. A nil
	// ActionBounds means the actions are unbounded.
	ActionBounds []r1.Interval
}

// NewSpec returns a new Spec
func NewSpec(dX, dU, dO int, bounds []r1.Interval) Spec {
	if bounds != nil && len(bounds) != dU {
		panic(fmt.Sprintf("newSpec: expected %d action bounds, got %d", dU,
			len(bounds)))
	}
	return Spec{
		StateDim:       dX,
		ActionDim:      dU,
		ObservationDim: dO,
		ActionBounds:   bounds,
	}
}

// Bounded returns whether the actions are bounded
func (s Spec) Bounded() bool {
	return s.ActionBounds != nil
}
