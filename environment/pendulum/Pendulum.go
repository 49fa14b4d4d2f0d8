// Package pendulum implements the classic control pendulum swing-up
// system as a rollout environment.
//
// A pendulum is attached to a fixed base, and the single action is the
// torque applied at the base. The state consists of the angle of the
// pendulum from the positive y-axis and its angular velocity. The
// angle is not wrapped so that the dynamics stay smooth in the state.
// The observation is (cos θ, sin θ, θ̇), which is what a global
// policy sees.
package pendulum

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/samuelfneumann/gogps/environment"
	"github.com/samuelfneumann/gogps/timestep"
	"github.com/samuelfneumann/gogps/utils/floatutils"
)

// default physical constants
const (
	SpeedBound  float64 = 8.0 // +/- Speed bounds
	TorqueBound float64 = 2.0 // +/- Torque bounds

	StateDims       int = 2
	ActionDims      int = 1
	ObservationDims int = 3
)

// Config configures the physics and conditions of the pendulum
type Config struct {
	Dt      float64 `yaml:"dt"`
	Gravity float64 `yaml:"gravity"`
	Mass    float64 `yaml:"mass"`
	Length  float64 `yaml:"length"`

	// X0 holds the initial (θ, θ̇) of each condition
	X0       [][]float64 `yaml:"x0"`
	X0StdDev float64     `yaml:"x0_std"`
}

// DefaultConfig returns the standard pendulum hanging straight down
func DefaultConfig() Config {
	return Config{
		Dt:      0.05,
		Gravity: 9.8,
		Mass:    1.0,
		Length:  1.0,
		X0:      [][]float64{{math.Pi, 0}},
	}
}

// Validate checks that the configuration is physically meaningful
func (c Config) Validate() error {
	if c.Dt <= 0 || c.Mass <= 0 || c.Length <= 0 {
		return fmt.Errorf("validate: dt, mass, and length must be positive")
	}
	if len(c.X0) == 0 {
		return fmt.Errorf("validate: at least one initial state is required")
	}
	for m := range c.X0 {
		if len(c.X0[m]) != StateDims {
			return fmt.Errorf("validate: initial state %d has dimension "+
				"%d, expected %d", m, len(c.X0[m]), StateDims)
		}
		if math.Abs(c.X0[m][1]) > SpeedBound {
			return fmt.Errorf("validate: initial speed %v of condition "+
				"%d outside of [%v, %v]", c.X0[m][1], m, -SpeedBound,
				SpeedBound)
		}
	}
	if c.X0StdDev < 0 {
		return fmt.Errorf("validate: standard deviation must be " +
			"non-negative")
	}
	return nil
}

// Pendulum implements the environment.Environment interface
type Pendulum struct {
	*environment.GaussianStarter
	dt           float64
	gravity      float64
	mass         float64
	length       float64
	speedBounds  r1.Interval
	torqueBounds r1.Interval

	state *mat.VecDense
	n     int
}

// New returns a new Pendulum
func New(c Config, seed uint64) (*Pendulum, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}
	starter, err := environment.NewGaussianStarter(c.X0, c.X0StdDev, seed)
	if err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}

	return &Pendulum{
		GaussianStarter: starter,
		dt:              c.Dt,
		gravity:         c.Gravity,
		mass:            c.Mass,
		length:          c.Length,
		speedBounds:     r1.Interval{Min: -SpeedBound, Max: SpeedBound},
		torqueBounds:    r1.Interval{Min: -TorqueBound, Max: TorqueBound},
	}, nil
}

// Spec implements the environment.Environment interface
func (p *Pendulum) Spec() environment.Spec {
	return environment.NewSpec(StateDims, ActionDims, ObservationDims,
		[]r1.Interval{p.torqueBounds})
}

// Reset implements the environment.Environment interface
func (p *Pendulum) Reset(m int) (timestep.TimeStep, error) {
	if m < 0 || m >= p.Conditions() {
		return timestep.TimeStep{}, fmt.Errorf("reset: no such condition %d",
			m)
	}
	state := p.Start(m)
	state.SetVec(1, floatutils.ClipInterval(state.AtVec(1), p.speedBounds))

	p.state = state
	p.n = 0
	return timestep.New(timestep.First, state, observe(state), p.n), nil
}

// Step implements the environment.Environment interface. The torque is
// clipped to the torque bounds.
func (p *Pendulum) Step(action *mat.VecDense) (timestep.TimeStep, error) {
	if p.state == nil {
		return timestep.TimeStep{}, fmt.Errorf("step: environment must " +
			"be reset before stepping")
	}
	if action.Len() != ActionDims {
		return timestep.TimeStep{}, fmt.Errorf("step: expected action of "+
			"dimension %d, got %d", ActionDims, action.Len())
	}

	p.state = p.nextState(p.state, action.AtVec(0))
	p.n++
	return timestep.New(timestep.Mid, p.state, observe(p.state), p.n), nil
}

// nextState computes the next state of the pendulum given the current
// state and the torque applied to the fixed base
func (p *Pendulum) nextState(state mat.Vector,
	torque float64) *mat.VecDense {
	th, thdot := state.AtVec(0), state.AtVec(1)
	torque = floatutils.ClipInterval(torque, p.torqueBounds)

	newthdot := thdot + (-3*p.gravity/(2*p.length)*math.Sin(th+math.Pi)+
		3.0/(p.mass*math.Pow(p.length, 2))*torque)*p.dt
	newthdot = floatutils.ClipInterval(newthdot, p.speedBounds)
	newth := th + newthdot*p.dt

	return mat.NewVecDense(StateDims, []float64{newth, newthdot})
}

func observe(state mat.Vector) *mat.VecDense {
	th, thdot := state.AtVec(0), state.AtVec(1)
	return mat.NewVecDense(ObservationDims, []float64{math.Cos(th),
		math.Sin(th), thdot})
}

func (p *Pendulum) String() string {
	if p.state == nil {
		return "Pendulum"
	}
	return fmt.Sprintf("Pendulum  |  theta: %v  |  theta dot: %v",
		p.state.AtVec(0), p.state.AtVec(1))
}
