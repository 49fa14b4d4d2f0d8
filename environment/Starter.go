package environment

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

// GaussianStarter starts each condition at a fixed initial state,
// perturbed by independent Gaussian noise with standard deviation
// StdDev. With StdDev == 0 the starting states are deterministic.
type GaussianStarter struct {
	x0     []*mat.VecDense
	stdDev float64
	noise  distuv.Normal
}

// NewGaussianStarter returns a new GaussianStarter with one condition
// per initial state in x0
func NewGaussianStarter(x0 [][]float64, stdDev float64,
	seed uint64) (*GaussianStarter, error) {
	if len(x0) == 0 {
		return nil, fmt.Errorf("newGaussianStarter: no conditions")
	}
	if stdDev < 0 {
		return nil, fmt.Errorf("newGaussianStarter: standard deviation "+
			"must be non-negative, got %v", stdDev)
	}

	states := make([]*mat.VecDense, len(x0))
	for m := range x0 {
		if len(x0[m]) != len(x0[0]) {
			return nil, fmt.Errorf("newGaussianStarter: condition %d has "+
				"dimension %d, condition 0 has dimension %d", m,
				len(x0[m]), len(x0[0]))
		}
		states[m] = mat.NewVecDense(len(x0[m]), append([]float64(nil),
			x0[m]...))
	}

	return &GaussianStarter{
		x0:     states,
		stdDev: stdDev,
		noise: distuv.Normal{
			Mu:    0,
			Sigma: 1,
			Src:   rand.NewSource(seed),
		},
	}, nil
}

// Start implements the Starter interface
func (g *GaussianStarter) Start(m int) *mat.VecDense {
	x := mat.VecDenseCopyOf(g.x0[m])
	if g.stdDev == 0 {
		return x
	}
	for i := 0; i < x.Len(); i++ {
		x.SetVec(i, x.AtVec(i)+g.stdDev*g.noise.Rand())
	}
	return x
}

// Conditions implements the Starter interface
func (g *GaussianStarter) Conditions() int {
	return len(g.x0)
}

// UniformStarter starts each condition uniformly at random within a
// box of initial states
type UniformStarter struct {
	features int
	rand     []*distmv.Uniform
}

// NewUniformStarter returns a new UniformStarter with one condition
// per set of bounds
func NewUniformStarter(bounds [][]r1.Interval,
	seed uint64) (*UniformStarter, error) {
	if len(bounds) == 0 {
		return nil, fmt.Errorf("newUniformStarter: no conditions")
	}

	source := rand.NewSource(seed)
	dists := make([]*distmv.Uniform, len(bounds))
	for m := range bounds {
		if len(bounds[m]) != len(bounds[0]) {
			return nil, fmt.Errorf("newUniformStarter: condition %d has "+
				"dimension %d, condition 0 has dimension %d", m,
				len(bounds[m]), len(bounds[0]))
		}
		dists[m] = distmv.NewUniform(bounds[m], source)
	}

	return &UniformStarter{len(bounds[0]), dists}, nil
}

// Start implements the Starter interface
func (u *UniformStarter) Start(m int) *mat.VecDense {
	return mat.NewVecDense(u.features, u.rand[m].Rand(nil))
}

// Conditions implements the Starter interface
func (u *UniformStarter) Conditions() int {
	return len(u.rand)
}
