// Package stepsize adapts the per-condition trust region step
// multiplier from the ratio of actual to predicted cost improvement
package stepsize

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/gogps/policy"
	"github.com/samuelfneumann/gogps/trajopt"
	"github.com/samuelfneumann/gogps/utils/floatutils"
	"gonum.org/v1/gonum/floats"
)

const (
	// Bounds on the factor by which the step multiplier may change in
	// a single adjustment
	minChange = 0.1
	maxChange = 5.0
)

// Mode determines how the actual cost improvement is measured
type Mode string

const (
	// Laplace measures the actual improvement as the change in expected
	// cost under the fitted dynamics
	Laplace Mode = "laplace"

	// MonteCarlo measures the actual improvement from the costs of the
	// sampled rollouts
	MonteCarlo Mode = "monte_carlo"
)

// Validate returns an error if the mode is unknown
func (m Mode) Validate() error {
	switch m {
	case Laplace, MonteCarlo:
		return nil
	}
	return fmt.Errorf("validate: unknown step adjustment mode %q", m)
}

// Config configures a Controller
type Config struct {
	MinStepMult float64 `yaml:"min_step_mult"`
	MaxStepMult float64 `yaml:"max_step_mult"`
	Mode        Mode    `yaml:"mode"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		MinStepMult: 0.05,
		MaxStepMult: 3.0,
		Mode:        Laplace,
	}
}

// Validate returns an error describing whether or not the
// configuration is valid
func (c Config) Validate() error {
	if c.MinStepMult <= 0 {
		return fmt.Errorf("validate: min_step_mult must be positive")
	}
	if c.MaxStepMult < c.MinStepMult {
		return fmt.Errorf("validate: max_step_mult %v less than "+
			"min_step_mult %v", c.MaxStepMult, c.MinStepMult)
	}
	return c.Mode.Validate()
}

// Controller adapts trust region step multipliers
type Controller struct {
	config Config
}

// New returns a new Controller
func New(config Config) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}
	return &Controller{config: config}, nil
}

// Config returns the configuration of the Controller
func (c *Controller) Config() Config {
	return c.config
}

// Clamp returns the step multiplier clipped to the configured bounds
func (c *Controller) Clamp(mult float64) float64 {
	return floatutils.Clip(mult, c.config.MinStepMult, c.config.MaxStepMult)
}

// Adjust returns the new step multiplier given the current one and the
// predicted and actual cost improvements. The change factor is
//
//	predicted / (2 (predicted - actual))
//
// clipped to [0.1, 5]. Whenever the actual improvement meets or exceeds
// the predicted one, the model was conservative and the multiplier
// grows by the largest factor.
func (c *Controller) Adjust(current, predicted, actual float64) float64 {
	change := maxChange
	if diff := predicted - actual; diff > 0 {
		change = predicted / (2 * diff)
	}
	if math.IsNaN(change) {
		change = minChange
	}
	change = floatutils.Clip(change, minChange, maxChange)
	return c.Clamp(change * current)
}

// Estimate is an estimate of the improvement in cost of an iteration
type Estimate struct {
	// PreviousCost is the expected cost of the previous controller
	// under the previous dynamics
	PreviousCost float64

	// Predicted is the improvement predicted by the previous dynamics
	Predicted float64

	// Actual is the improvement measured under the current dynamics or
	// from the sampled costs
	Actual float64
}

// EstimateLaplace estimates the cost improvement of moving from the
// previous controller to the current one. The prediction uses the
// previous dynamics and cost for both controllers, and the actual
// improvement evaluates the current controller under the current
// dynamics and cost.
func EstimateLaplace(prev, cur *policy.LinearGaussian, prevInfo,
	curInfo *trajopt.Info) Estimate {
	prevCost := floats.Sum(trajopt.ExpectedCost(prev, prevInfo))
	predictedCost := floats.Sum(trajopt.ExpectedCost(cur, prevInfo))
	actualCost := floats.Sum(trajopt.ExpectedCost(cur, curInfo))

	return Estimate{
		PreviousCost: prevCost,
		Predicted:    prevCost - predictedCost,
		Actual:       prevCost - actualCost,
	}
}

// EstimateMonteCarlo estimates the cost improvement of moving from the
// previous controller to the current one, taking the actual
// improvement as the change in mean total cost of the sampled
// rollouts of each controller
func EstimateMonteCarlo(prev, cur *policy.LinearGaussian, prevInfo *trajopt.Info,
	prevCosts, curCosts []float64) Estimate {
	if len(prevCosts) == 0 || len(curCosts) == 0 {
		panic("estimateMonteCarlo: no sample costs")
	}
	prevCost := floats.Sum(trajopt.ExpectedCost(prev, prevInfo))
	predictedCost := floats.Sum(trajopt.ExpectedCost(cur, prevInfo))

	prevSampled := floats.Sum(prevCosts) / float64(len(prevCosts))
	curSampled := floats.Sum(curCosts) / float64(len(curCosts))

	return Estimate{
		PreviousCost: prevCost,
		Predicted:    prevCost - predictedCost,
		Actual:       prevSampled - curSampled,
	}
}
