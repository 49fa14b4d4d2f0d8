// Package sample implements rollouts of a controller in an environment
// and bounded buffers of rollouts
package sample

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/samuelfneumann/gogps/timestep"
	"gonum.org/v1/gonum/mat"
)

// Sample is a single rollout of fixed horizon T for one condition. The
// states, actions, and observations are stored as T x dX, T x dU, and
// T x dO matrices. A Sample is immutable once recorded.
type Sample struct {
	id        uuid.UUID
	condition int
	x         *mat.Dense
	u         *mat.Dense
	obs       *mat.Dense
}

// New returns a new Sample. The matrices are copied.
func New(condition int, x, u, obs mat.Matrix) (*Sample, error) {
	tx, _ := x.Dims()
	tu, _ := u.Dims()
	to, _ := obs.Dims()
	if tx != tu || tx != to {
		return nil, fmt.Errorf("new: states, actions, and observations "+
			"must have the same number of timesteps, have %d, %d, %d",
			tx, tu, to)
	}
	if tx == 0 {
		return nil, fmt.Errorf("new: sample must have at least one timestep")
	}

	return &Sample{
		id:        uuid.New(),
		condition: condition,
		x:         mat.DenseCopyOf(x),
		u:         mat.DenseCopyOf(u),
		obs:       mat.DenseCopyOf(obs),
	}, nil
}

// FromTimeSteps constructs a Sample from a sequence of timesteps and
// the actions taken at each of them
func FromTimeSteps(condition int, steps []timestep.TimeStep,
	actions []mat.Vector) (*Sample, error) {
	if len(steps) != len(actions) {
		return nil, fmt.Errorf("fromTimeSteps: %d timesteps but %d actions",
			len(steps), len(actions))
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("fromTimeSteps: no timesteps")
	}

	T := len(steps)
	dX := steps[0].State.Len()
	dO := steps[0].Observation.Len()
	dU := actions[0].Len()

	x := mat.NewDense(T, dX, nil)
	u := mat.NewDense(T, dU, nil)
	obs := mat.NewDense(T, dO, nil)
	for t := range steps {
		for i := 0; i < dX; i++ {
			x.Set(t, i, steps[t].State.AtVec(i))
		}
		for i := 0; i < dO; i++ {
			obs.Set(t, i, steps[t].Observation.AtVec(i))
		}
		for i := 0; i < dU; i++ {
			u.Set(t, i, actions[t].AtVec(i))
		}
	}

	return &Sample{
		id:        uuid.New(),
		condition: condition,
		x:         x,
		u:         u,
		obs:       obs,
	}, nil
}

// ID returns the unique identifier of the sample
func (s *Sample) ID() uuid.UUID { return s.id }

// Condition returns the condition that the sample was recorded in
func (s *Sample) Condition() int { return s.condition }

// T returns the horizon of the sample
func (s *Sample) T() int {
	r, _ := s.x.Dims()
	return r
}

// DimX returns the dimension of the state
func (s *Sample) DimX() int {
	_, c := s.x.Dims()
	return c
}

// DimU returns the dimension of the action
func (s *Sample) DimU() int {
	_, c := s.u.Dims()
	return c
}

// DimO returns the dimension of the observation
func (s *Sample) DimO() int {
	_, c := s.obs.Dims()
	return c
}

// X returns the T x dX states. The returned matrix must not be
// modified.
func (s *Sample) X() mat.Matrix { return s.x }

// U returns the T x dU actions. The returned matrix must not be
// modified.
func (s *Sample) U() mat.Matrix { return s.u }

// Obs returns the T x dO observations. The returned matrix must not be
// modified.
func (s *Sample) Obs() mat.Matrix { return s.obs }

// State returns a copy of the state at timestep t
func (s *Sample) State(t int) *mat.VecDense {
	return mat.VecDenseCopyOf(s.x.RowView(t))
}

// Action returns a copy of the action at timestep t
func (s *Sample) Action(t int) *mat.VecDense {
	return mat.VecDenseCopyOf(s.u.RowView(t))
}

// Observation returns a copy of the observation at timestep t
func (s *Sample) Observation(t int) *mat.VecDense {
	return mat.VecDenseCopyOf(s.obs.RowView(t))
}

func (s *Sample) String() string {
	return fmt.Sprintf("Sample | ID: %v  |  Condition: %d  |  T: %d",
		s.id, s.condition, s.T())
}
