// Package policy implements time-varying linear Gaussian controllers
// and their initialization
package policy

import "gonum.org/v1/gonum/mat"

// Policy selects actions at each timestep of a rollout. Both local
// controllers, which act on the state, and the global policy, which
// acts on the observation, implement Policy.
type Policy interface {
	// Act returns the action at timestep t given the state x and
	// observation obs. The noise vector, drawn from a standard normal
	// distribution with the dimension of the action, perturbs the
	// action according to the policy's covariance. If noise is nil,
	// the mean action is returned.
	Act(t int, x, obs, noise mat.Vector) *mat.VecDense
}
