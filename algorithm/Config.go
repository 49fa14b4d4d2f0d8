package algorithm

import (
	"fmt"

	"github.com/samuelfneumann/gogps/cost"
	"github.com/samuelfneumann/gogps/dynamics"
	"github.com/samuelfneumann/gogps/policy"
	"github.com/samuelfneumann/gogps/policyopt"
	"github.com/samuelfneumann/gogps/stepsize"
	"github.com/samuelfneumann/gogps/trajopt"
)

// Constraint is the controller that the trust region of trajectory
// optimization is centred on
type Constraint string

const (
	// Previous constrains each new controller to stay close to the
	// controller that generated the condition's rollouts
	Previous Constraint = "previous"

	// PolicyConstraint constrains each new controller to stay close to
	// a linearization of the global policy along the condition's
	// rollouts
	PolicyConstraint Constraint = "policy"
)

// SampleReuse selects which rollouts the dynamics are fit to
type SampleReuse string

const (
	// Current fits dynamics to the rollouts of the current iteration
	Current SampleReuse = "current"

	// AllRetained fits dynamics to every rollout retained in the
	// condition's sample buffer
	AllRetained SampleReuse = "all_retained"
)

// OnInstability selects what happens when a condition's dynamics fit
// or trajectory optimization is numerically unstable
type OnInstability string

const (
	// Abort stops the run
	Abort OnInstability = "abort"

	// Retain keeps the condition's previous controller for the
	// iteration and continues
	Retain OnInstability = "retain"
)

// Config configures the iterations of guided policy search and each of
// its components
type Config struct {
	Iterations int `yaml:"iterations"`

	// T is the horizon of every rollout
	T int `yaml:"horizon"`

	// NumSamples is the number of rollouts per condition per iteration
	NumSamples int `yaml:"num_samples"`

	// KLStep is the base per-timestep KL divergence allowed by the
	// trust region
	KLStep     float64 `yaml:"kl_step"`
	MaxEntTraj float64 `yaml:"max_ent_traj"`
	InitialEta float64 `yaml:"initial_eta"`

	// InitialStateVar is the smallest variance of each dimension of
	// the initial state estimate
	InitialStateVar float64 `yaml:"initial_state_var"`

	Constraint      Constraint    `yaml:"constraint"`
	DynamicsSamples SampleReuse   `yaml:"dynamics_samples"`
	OnInstability   OnInstability `yaml:"on_numerical_instability"`

	// MaxRetainedSamples bounds the rollouts retained per condition
	// when dynamics are fit to all retained rollouts
	MaxRetainedSamples int `yaml:"max_retained_samples"`

	Seed uint64 `yaml:"seed"`

	StepSize    stepsize.Config       `yaml:"step_size"`
	Dynamics    dynamics.Config       `yaml:"dynamics"`
	TrajOpt     trajopt.Config        `yaml:"traj_opt"`
	Cost        cost.Config           `yaml:"cost"`
	Init        policy.InitConfig     `yaml:"init"`
	PolicyOpt   policyopt.Config      `yaml:"policy_opt"`
	PolicyPrior policyopt.PriorConfig `yaml:"policy_prior"`
}

// DefaultConfig returns the default configuration. The cost has no
// terms and must be filled in for the system being controlled.
func DefaultConfig() Config {
	return Config{
		Iterations:         10,
		T:                  100,
		NumSamples:         5,
		KLStep:             1.0,
		MaxEntTraj:         0.0,
		InitialEta:         1.0,
		InitialStateVar:    1e-6,
		Constraint:         Previous,
		DynamicsSamples:    Current,
		OnInstability:      Abort,
		MaxRetainedSamples: 20,
		Seed:               0,
		StepSize:           stepsize.DefaultConfig(),
		Dynamics:           dynamics.DefaultConfig(),
		TrajOpt:            trajopt.DefaultConfig(),
		Init:               policy.DefaultInitConfig(),
		PolicyOpt:          policyopt.DefaultConfig(),
		PolicyPrior:        policyopt.DefaultPriorConfig(),
	}
}

// Validate returns an error describing whether or not the
// configuration is valid. Validation of the cost and initial
// controllers depends on the environment and happens in New.
func (c Config) Validate() error {
	if c.Iterations < 1 {
		return fmt.Errorf("validate: iterations must be positive")
	}
	if c.T < 2 {
		return fmt.Errorf("validate: horizon must be at least 2")
	}
	if c.NumSamples < 1 {
		return fmt.Errorf("validate: num_samples must be positive")
	}
	if !(c.KLStep > 0) {
		return fmt.Errorf("validate: kl_step must be positive")
	}
	if c.MaxEntTraj < 0 {
		return fmt.Errorf("validate: max_ent_traj must be non-negative")
	}
	if !(c.InitialEta > 0) {
		return fmt.Errorf("validate: initial_eta must be positive")
	}
	if !(c.InitialStateVar > 0) {
		return fmt.Errorf("validate: initial_state_var must be positive")
	}

	switch c.Constraint {
	case Previous, PolicyConstraint:
	default:
		return fmt.Errorf("validate: unknown constraint %q", c.Constraint)
	}
	switch c.DynamicsSamples {
	case Current:
	case AllRetained:
		if c.MaxRetainedSamples < c.NumSamples {
			return fmt.Errorf("validate: max_retained_samples must be at "+
				"least num_samples (%d)", c.NumSamples)
		}
	default:
		return fmt.Errorf("validate: unknown dynamics_samples %q",
			c.DynamicsSamples)
	}
	switch c.OnInstability {
	case Abort, Retain:
	default:
		return fmt.Errorf("validate: unknown on_numerical_instability %q",
			c.OnInstability)
	}

	if err := c.StepSize.Validate(); err != nil {
		return fmt.Errorf("validate: step_size: %w", err)
	}
	if err := c.Dynamics.Validate(); err != nil {
		return fmt.Errorf("validate: dynamics: %w", err)
	}
	if err := c.TrajOpt.Validate(); err != nil {
		return fmt.Errorf("validate: traj_opt: %w", err)
	}
	if err := c.PolicyOpt.Validate(); err != nil {
		return fmt.Errorf("validate: policy_opt: %w", err)
	}
	if c.Constraint == PolicyConstraint {
		if err := c.PolicyPrior.Validate(); err != nil {
			return fmt.Errorf("validate: policy_prior: %w", err)
		}
	}
	return nil
}
