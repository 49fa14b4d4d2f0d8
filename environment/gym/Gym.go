//go:build gym
// +build gym

// Package gym runs rollouts in OpenAI Gym environments through GoGym.
//
// Gym environments cannot be reset into a chosen state, so each
// condition is identified with a seed: resetting into condition m
// reseeds the environment with the m-th seed before resetting it,
// which reproduces the same initial state for every rollout of the
// condition. Gym does not expose the simulator state, so the state and
// the observation are both the Gym observation.
//
// This is made possible through the Go bindings for OpenAI Gym,
// found at https://github.com/samuelfneumann/GoGym.
package gym

import (
	"fmt"

	"github.com/samuelfneumann/gogym"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/samuelfneumann/gogps/environment"
	"github.com/samuelfneumann/gogps/timestep"
)

// Config configures a Gym environment
type Config struct {
	Name  string `yaml:"name"`
	Seeds []int  `yaml:"seeds"`
}

// Validate checks that a name and at least one condition are given
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("validate: environment name must be given")
	}
	if len(c.Seeds) == 0 {
		return fmt.Errorf("validate: at least one condition seed is " +
			"required")
	}
	return nil
}

// Env implements the environment.Environment interface using GoGym
type Env struct {
	gogym.Environment

	seeds []int
	spec  environment.Spec
	n     int
}

// New returns a new Env with the given configuration. The name must
// be a legal name from the OpenAI Gym suite with a continuous action
// space.
func New(c Config) (*Env, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}

	goGymEnv, err := gogym.Make(c.Name)
	if err != nil {
		return nil, fmt.Errorf("new: could not create environment: %w", err)
	}

	spec, err := specOf(goGymEnv)
	if err != nil {
		goGymEnv.Close()
		return nil, fmt.Errorf("new: %w", err)
	}

	return &Env{
		Environment: goGymEnv,
		seeds:       append([]int(nil), c.Seeds...),
		spec:        spec,
	}, nil
}

// Spec implements the environment.Environment interface
func (g *Env) Spec() environment.Spec {
	return g.spec
}

// Conditions implements the environment.Starter interface
func (g *Env) Conditions() int {
	return len(g.seeds)
}

// Start implements the environment.Starter interface by resetting the
// environment into condition m
func (g *Env) Start(m int) *mat.VecDense {
	step, err := g.Reset(m)
	if err != nil {
		panic(fmt.Sprintf("start: %v", err))
	}
	return mat.VecDenseCopyOf(step.State)
}

// Reset implements the environment.Environment interface
func (g *Env) Reset(m int) (timestep.TimeStep, error) {
	if m < 0 || m >= len(g.seeds) {
		return timestep.TimeStep{}, fmt.Errorf("reset: no such condition %d",
			m)
	}

	g.Environment.Seed(g.seeds[m])
	obs, err := g.Environment.Reset()
	if err != nil {
		return timestep.TimeStep{}, fmt.Errorf("reset: could not reset "+
			"environment: %w", err)
	}

	g.n = 0
	state := mat.VecDenseCopyOf(obs)
	return timestep.New(timestep.First, state, state, g.n), nil
}

// Step implements the environment.Environment interface. Gym's reward
// and termination signals are ignored since rollouts have a fixed
// horizon and costs are computed outside of the environment.
func (g *Env) Step(action *mat.VecDense) (timestep.TimeStep, error) {
	obs, _, _, err := g.Environment.Step(action)
	if err != nil {
		return timestep.TimeStep{}, fmt.Errorf("step: could not step "+
			"GoGym environment: %w", err)
	}

	g.n++
	state := mat.VecDenseCopyOf(obs)
	return timestep.New(timestep.Mid, state, state, g.n), nil
}

// Close performs resource cleanup after the environment is no longer
// needed
func (g *Env) Close() error {
	g.Environment.Close()
	return nil
}

func specOf(env gogym.Environment) (environment.Spec, error) {
	obsSpace := env.ObservationSpace()
	if _, ok := obsSpace.(*gogym.BoxSpace); !ok {
		return environment.Spec{}, fmt.Errorf("specOf: observation space " +
			"must be a BoxSpace")
	}
	dO := obsSpace.Low()[0].Len()

	actSpace := env.ActionSpace()
	if _, ok := actSpace.(*gogym.BoxSpace); !ok {
		return environment.Spec{}, fmt.Errorf("specOf: action space must " +
			"be a BoxSpace")
	}
	low, high := actSpace.Low()[0], actSpace.High()[0]
	bounds := make([]r1.Interval, low.Len())
	for i := range bounds {
		bounds[i] = r1.Interval{Min: low.AtVec(i), Max: high.AtVec(i)}
	}

	return environment.NewSpec(dO, len(bounds), dO, bounds), nil
}
