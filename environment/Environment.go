// Package environment defines the environment collaborator that
// executes actions and returns states and observations, along with
// the starters that define its conditions and a Sampler that records
// fixed-horizon rollouts.
package environment

import (
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gogps/timestep"
)

// Starter produces the initial state of each condition of an
// environment
type Starter interface {
	// Start returns an initial state for condition m
	Start(m int) *mat.VecDense

	// Conditions returns the number of conditions
	Conditions() int
}

// Environment is a simulated or physical system that can be reset into
// one of a fixed number of conditions and then stepped with actions.
// Costs are never computed by the environment.
//
// Environments are not safe for concurrent use.
type Environment interface {
	Starter

	// Spec returns the dimensions and action bounds of the environment
	Spec() Spec

	// Reset places the environment into the initial state of
	// condition m and returns the first timestep
	Reset(m int) (timestep.TimeStep, error)

	// Step applies an action and returns the resulting timestep
	Step(action *mat.VecDense) (timestep.TimeStep, error)
}
