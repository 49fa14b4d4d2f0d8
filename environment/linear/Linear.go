// Package linear implements an environment with linear dynamics
// x' = A x + B u + w, where w is optional Gaussian process noise. The
// observation is the state.
package linear

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/samuelfneumann/gogps/environment"
	"github.com/samuelfneumann/gogps/timestep"
)

// Config configures a linear environment
type Config struct {
	A [][]float64 `yaml:"a"`
	B [][]float64 `yaml:"b"`

	// X0 holds the initial state of each condition
	X0 [][]float64 `yaml:"x0"`

	X0StdDev    float64 `yaml:"x0_std"`
	NoiseStdDev float64 `yaml:"noise_std"`
}

// DefaultConfig returns the one dimensional integrator x' = x + u
// with a single condition starting at x = 1
func DefaultConfig() Config {
	return Config{
		A:  [][]float64{{1}},
		B:  [][]float64{{1}},
		X0: [][]float64{{1}},
	}
}

// Validate checks the dimensions of the configuration
func (c Config) Validate() error {
	if len(c.A) == 0 {
		return fmt.Errorf("validate: A must be non-empty")
	}
	dX := len(c.A)
	for i := range c.A {
		if len(c.A[i]) != dX {
			return fmt.Errorf("validate: A must be square, row %d has "+
				"%d columns", i, len(c.A[i]))
		}
	}
	if len(c.B) != dX || len(c.B[0]) == 0 {
		return fmt.Errorf("validate: B must have %d non-empty rows", dX)
	}
	for i := range c.B {
		if len(c.B[i]) != len(c.B[0]) {
			return fmt.Errorf("validate: B row %d has %d columns, "+
				"expected %d", i, len(c.B[i]), len(c.B[0]))
		}
	}
	if len(c.X0) == 0 {
		return fmt.Errorf("validate: at least one initial state is required")
	}
	for m := range c.X0 {
		if len(c.X0[m]) != dX {
			return fmt.Errorf("validate: initial state %d has dimension "+
				"%d, expected %d", m, len(c.X0[m]), dX)
		}
	}
	if c.X0StdDev < 0 || c.NoiseStdDev < 0 {
		return fmt.Errorf("validate: standard deviations must be " +
			"non-negative")
	}
	return nil
}

// Linear is an environment with linear dynamics
type Linear struct {
	*environment.GaussianStarter
	a, b *mat.Dense

	noiseStdDev float64
	noise       distuv.Normal

	state *mat.VecDense
	n     int
}

// New returns a new linear environment
func New(c Config, seed uint64) (*Linear, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}

	starter, err := environment.NewGaussianStarter(c.X0, c.X0StdDev, seed)
	if err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}

	return &Linear{
		GaussianStarter: starter,
		a:               dense(c.A),
		b:               dense(c.B),
		noiseStdDev:     c.NoiseStdDev,
		noise: distuv.Normal{
			Mu:    0,
			Sigma: 1,
			Src:   rand.NewSource(seed + 1),
		},
	}, nil
}

// Spec implements the environment.Environment interface
func (l *Linear) Spec() environment.Spec {
	dX, dU := l.b.Dims()
	return environment.NewSpec(dX, dU, dX, nil)
}

// Reset implements the environment.Environment interface
func (l *Linear) Reset(m int) (timestep.TimeStep, error) {
	if m < 0 || m >= l.Conditions() {
		return timestep.TimeStep{}, fmt.Errorf("reset: no such condition %d",
			m)
	}
	l.state = l.Start(m)
	l.n = 0
	return timestep.New(timestep.First, l.state, l.state, l.n), nil
}

// Step implements the environment.Environment interface
func (l *Linear) Step(action *mat.VecDense) (timestep.TimeStep, error) {
	if l.state == nil {
		return timestep.TimeStep{}, fmt.Errorf("step: environment must " +
			"be reset before stepping")
	}
	_, dU := l.b.Dims()
	if action.Len() != dU {
		return timestep.TimeStep{}, fmt.Errorf("step: expected action of "+
			"dimension %d, got %d", dU, action.Len())
	}

	next := mat.NewVecDense(l.state.Len(), nil)
	next.MulVec(l.a, l.state)
	var bu mat.VecDense
	bu.MulVec(l.b, action)
	next.AddVec(next, &bu)
	if l.noiseStdDev > 0 {
		for i := 0; i < next.Len(); i++ {
			next.SetVec(i, next.AtVec(i)+l.noiseStdDev*l.noise.Rand())
		}
	}

	l.state = next
	l.n++
	return timestep.New(timestep.Mid, next, next, l.n), nil
}

func dense(rows [][]float64) *mat.Dense {
	out := mat.NewDense(len(rows), len(rows[0]), nil)
	for i := range rows {
		out.SetRow(i, rows[i])
	}
	return out
}
