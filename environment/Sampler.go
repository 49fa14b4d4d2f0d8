package environment

import (
	"context"
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/samuelfneumann/gogps/policy"
	"github.com/samuelfneumann/gogps/sample"
	"github.com/samuelfneumann/gogps/timestep"
	"github.com/samuelfneumann/gogps/utils/floatutils"
)

// Sampler records fixed-horizon rollouts of a policy in an
// environment. Actions outside of the environment's action bounds are
// clipped before being applied, and the clipped action is recorded.
type Sampler struct {
	env   Environment
	noisy bool
	noise distuv.Normal
}

// NewSampler returns a new Sampler. If noisy is false, rollouts use
// the mean action of the policy.
func NewSampler(env Environment, noisy bool, seed uint64) *Sampler {
	return &Sampler{
		env:   env,
		noisy: noisy,
		noise: distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(seed)},
	}
}

// Environment returns the environment that rollouts are recorded in
func (s *Sampler) Environment() Environment {
	return s.env
}

// Rollout runs pol for T timesteps in condition m and returns the
// recorded sample
func (s *Sampler) Rollout(ctx context.Context, m int, pol policy.Policy,
	T int) (*sample.Sample, error) {
	if T <= 0 {
		return nil, fmt.Errorf("rollout: horizon must be positive, got %d",
			T)
	}
	spec := s.env.Spec()

	step, err := s.env.Reset(m)
	if err != nil {
		return nil, fmt.Errorf("rollout: could not reset condition %d: %w",
			m, err)
	}

	steps := make([]timestep.TimeStep, T)
	actions := make([]mat.Vector, T)
	for t := 0; t < T; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		steps[t] = step

		var noise mat.Vector
		if s.noisy {
			n := mat.NewVecDense(spec.ActionDim, nil)
			for i := 0; i < spec.ActionDim; i++ {
				n.SetVec(i, s.noise.Rand())
			}
			noise = n
		}
		action := pol.Act(t, step.State, step.Observation, noise)
		if spec.Bounded() {
			for i := 0; i < action.Len(); i++ {
				action.SetVec(i, floatutils.ClipInterval(action.AtVec(i),
					spec.ActionBounds[i]))
			}
		}
		actions[t] = action

		if t == T-1 {
			break
		}
		step, err = s.env.Step(action)
		if err != nil {
			return nil, fmt.Errorf("rollout: could not step condition %d "+
				"at timestep %d: %w", m, t, err)
		}
	}

	return sample.FromTimeSteps(m, steps, actions)
}

// Rollouts records n rollouts of pol in condition m
func (s *Sampler) Rollouts(ctx context.Context, m int, pol policy.Policy,
	T, n int) (sample.List, error) {
	out := make(sample.List, 0, n)
	for i := 0; i < n; i++ {
		smp, err := s.Rollout(ctx, m, pol, T)
		if err != nil {
			return nil, err
		}
		out = append(out, smp)
	}
	return out, nil
}
