// Package gpserr implements the errors reported by the policy search
// optimizer.
//
// Three kinds of error are distinguished. An InsufficientDataError is
// fatal and aborts a run. A NumericalInstabilityError is fatal for the
// iteration of a single condition, and the orchestrator may choose to
// retain that condition's previous controller. A
// TrustRegionSearchExhaustedError is a soft failure: the result that
// accompanies it is still usable.
package gpserr

import (
	"errors"
	"fmt"
)

// NoCondition is used as the Condition of an error which is not
// associated with any single condition
const NoCondition = -1

// NoTimestep is used as the Timestep of an error which is not
// associated with any single timestep
const NoTimestep = -1

// InsufficientDataError reports that there are no usable samples for
// some computation and no prior which could stand in for them
type InsufficientDataError struct {
	Op        string
	Condition int
	Timestep  int
}

// Error satisfies the error interface
func (e *InsufficientDataError) Error() string {
	msg := e.Op + ": insufficient data"
	if e.Condition != NoCondition {
		msg += fmt.Sprintf(" for condition %d", e.Condition)
	}
	if e.Timestep != NoTimestep {
		msg += fmt.Sprintf(" at timestep %d", e.Timestep)
	}
	return msg
}

// NewInsufficientData returns a new InsufficientDataError
func NewInsufficientData(op string, condition, timestep int) error {
	return &InsufficientDataError{Op: op, Condition: condition,
		Timestep: timestep}
}

// NumericalInstabilityError reports that a covariance could not be made
// positive definite or that a computation produced non-finite values
type NumericalInstabilityError struct {
	Op        string
	Condition int
	Err       error
}

// Error satisfies the error interface
func (e *NumericalInstabilityError) Error() string {
	msg := e.Op + ": numerical instability"
	if e.Condition != NoCondition {
		msg += fmt.Sprintf(" in condition %d", e.Condition)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *NumericalInstabilityError) Unwrap() error {
	return e.Err
}

// NewNumericalInstability returns a new NumericalInstabilityError
func NewNumericalInstability(op string, condition int, err error) error {
	return &NumericalInstabilityError{Op: op, Condition: condition, Err: err}
}

// TrustRegionSearchExhaustedError reports that the search for the
// Lagrange multiplier of the trust region constraint ran out of
// iterations before the KL divergence matched its bound. KL and Eta
// describe the result which was used instead.
type TrustRegionSearchExhaustedError struct {
	Condition int
	KL        float64
	Bound     float64
	Eta       float64
}

// Error satisfies the error interface
func (e *TrustRegionSearchExhaustedError) Error() string {
	return fmt.Sprintf("trust region search exhausted for condition %d: "+
		"kl %.4g, bound %.4g, eta %.4g", e.Condition, e.KL, e.Bound, e.Eta)
}

// IsInsufficientData returns whether or not an error reports that
// there was insufficient data
func IsInsufficientData(err error) bool {
	var target *InsufficientDataError
	return errors.As(err, &target)
}

// IsNumericalInstability returns whether or not an error reports a
// numerical instability
func IsNumericalInstability(err error) bool {
	var target *NumericalInstabilityError
	return errors.As(err, &target)
}

// IsSearchExhausted returns whether or not an error reports that the
// trust region search was exhausted
func IsSearchExhausted(err error) bool {
	var target *TrustRegionSearchExhaustedError
	return errors.As(err, &target)
}
