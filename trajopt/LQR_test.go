package trajopt

import (
	"math"
	"testing"

	"github.com/samuelfneumann/gogps/cost"
	"github.com/samuelfneumann/gogps/dynamics"
	"github.com/samuelfneumann/gogps/gpserr"
	"github.com/samuelfneumann/gogps/policy"
	"github.com/samuelfneumann/gogps/utils/floatutils"
	"github.com/samuelfneumann/gogps/utils/matutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// integrator returns the Info of the scalar system x' = x + u with cost
// 0.5 (q x² + r u²) and a deterministic initial state x0
func integrator(T int, q, r, x0 float64) *Info {
	dyn := dynamics.NewLinearGaussian(T, 1, 1, 0)
	for t := 0; t < T-1; t++ {
		dyn.Fm[t].Set(0, 0, 1)
		dyn.Fm[t].Set(0, 1, 1)
	}
	c := cost.NewExpansion(T, 1, 1)
	for t := 0; t < T; t++ {
		c.Cm[t].SetSym(0, 0, q)
		c.Cm[t].SetSym(1, 1, r)
	}
	return &Info{
		Dynamics: dyn,
		Cost:     c,
		X0Mu:     mat.NewVecDense(1, []float64{x0}),
		X0Sigma:  mat.NewSymDense(1, nil),
	}
}

// constant returns a controller with the same gain, bias, and variance
// at every timestep
func constant(t *testing.T, T, dX, dU int, gain, bias, variance float64) *policy.LinearGaussian {
	K := make([]*mat.Dense, T)
	k := make([]*mat.VecDense, T)
	covar := make([]*mat.SymDense, T)
	for i := 0; i < T; i++ {
		K[i] = mat.NewDense(dU, dX, nil)
		for r := 0; r < dU; r++ {
			for c := 0; c < dX; c++ {
				K[i].Set(r, c, gain)
			}
		}
		k[i] = mat.NewVecDense(dU, floatutils.Fill(dU, bias))
		covar[i] = matutils.EyeSym(dU, variance)
	}
	ctrl, err := policy.NewLinearGaussian(K, k, covar, 1e-10)
	require.NoError(t, err)
	return ctrl
}

func TestForwardExpectedCost(t *testing.T) {
	const T = 6
	info := integrator(T, 1, 1, 1)
	ctrl := constant(t, T, 1, 1, 0, 0, 1)

	mu, sigma := Forward(ctrl, info)
	costs := ExpectedCost(ctrl, info)
	for i := 0; i < T; i++ {
		// The state keeps its mean and accumulates unit action noise
		assert.InDelta(t, 1.0, mu[i].AtVec(0), 1e-12)
		assert.InDelta(t, float64(i), sigma[i].At(0, 0), 1e-12)
		assert.InDelta(t, 1.0, sigma[i].At(1, 1), 1e-12)
		assert.InDelta(t, 0.5*(1+float64(i)+1), costs[i], 1e-12)
	}
}

func TestKL(t *testing.T) {
	const T = 4
	info := integrator(T, 1, 1, 1)

	ctrl := constant(t, T, 1, 1, -0.5, 0.1, 0.7)
	assert.InDelta(t, 0.0, TotalKL(ctrl, ctrl, info), 1e-10)

	// Shifted mean
	shifted := constant(t, T, 1, 1, 0, 1, 1)
	zero := constant(t, T, 1, 1, 0, 0, 1)
	assert.InDelta(t, 0.5*T, TotalKL(shifted, zero, info), 1e-10)

	// Scaled variance
	wide := constant(t, T, 1, 1, 0, 0, 2)
	want := 0.5 * (2 - 1 - math.Log(2))
	mu, sigma := Forward(wide, info)
	for _, kl := range KL(mu, sigma, wide, zero) {
		assert.InDelta(t, want, kl, 1e-10)
	}
}

func TestUpdateInactiveConstraintRecoversLQR(t *testing.T) {
	const T = 10
	info := integrator(T, 1, 1, 1)
	lqr, err := New(DefaultConfig())
	require.NoError(t, err)

	res, err := lqr.Update(Problem{
		Info:   info,
		Target: constant(t, T, 1, 1, 0, 0, 1),
		Eta:    1,
		KLStep: 100,
		MaxEnt: 1,
	})
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, DefaultConfig().MinEta, res.Eta)
	assert.LessOrEqual(t, res.KL, res.Bound)

	// Discrete Riccati recursion for the unconstrained problem
	V := 0.0
	for i := T - 1; i >= 0; i-- {
		Qxx, Quu, Qux := 1+V, 1+V, V
		if i == T-1 {
			Qxx, Quu, Qux = 1, 1, 0
		}
		K := -Qux / Quu
		assert.InDelta(t, K, res.Controller.K[i].At(0, 0), 1e-4, "timestep %d", i)
		assert.InDelta(t, 1/Quu, res.Controller.Covar[i].At(0, 0), 1e-4,
			"timestep %d", i)
		V = Qxx + Qux*K
	}
}

func randomProblem(rng *rand.Rand, T, dX, dU int) *Info {
	dXU := dX + dU
	dyn := dynamics.NewLinearGaussian(T, dX, dU, 1e-4)
	for t := 0; t < T-1; t++ {
		for i := 0; i < dX; i++ {
			for j := 0; j < dXU; j++ {
				v := 0.3 * rng.NormFloat64()
				if i == j {
					v += 1
				}
				dyn.Fm[t].Set(i, j, v)
			}
			dyn.Fv[t].SetVec(i, 0.1*rng.NormFloat64())
		}
	}

	c := cost.NewExpansion(T, dX, dU)
	for t := 0; t < T; t++ {
		a := mat.NewDense(dXU, dXU, nil)
		for i := 0; i < dXU; i++ {
			for j := 0; j < dXU; j++ {
				a.Set(i, j, rng.NormFloat64())
			}
			c.Cv[t].SetVec(i, rng.NormFloat64())
		}
		c.Cm[t].SymOuterK(1, a)
		matutils.AddDiag(c.Cm[t], 0.1)
	}

	x0 := mat.NewVecDense(dX, nil)
	for i := 0; i < dX; i++ {
		x0.SetVec(i, rng.NormFloat64())
	}
	return &Info{
		Dynamics: dyn,
		Cost:     c,
		X0Mu:     x0,
		X0Sigma:  matutils.EyeSym(dX, 0.01),
	}
}

func TestUpdateRespectsTrustRegion(t *testing.T) {
	const T, dX, dU = 8, 3, 2
	config := DefaultConfig()
	lqr, err := New(config)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 10; trial++ {
		info := randomProblem(rng, T, dX, dU)
		target := constant(t, T, dX, dU, 0, 0, 1)
		klStep := 0.05 * float64(trial+1)

		res, err := lqr.Update(Problem{
			Condition: trial,
			Info:      info,
			Target:    target,
			Eta:       1,
			KLStep:    klStep,
		})
		if err != nil {
			require.True(t, gpserr.IsSearchExhausted(err), "trial %d: %v",
				trial, err)
		}
		require.NotNil(t, res)

		bound := klStep * T
		assert.Equal(t, bound, res.Bound)
		assert.LessOrEqual(t, res.KL, bound*(1+config.Tolerance)+1e-9,
			"trial %d", trial)
		assert.InDelta(t, res.KL, TotalKL(res.Controller, target, info), 1e-9)

		for i := 0; i < T; i++ {
			assert.Greater(t, matutils.MinEigen(res.Controller.Covar[i]), 0.0)
		}
	}
}

func TestUpdateExhaustedReturnsFeasible(t *testing.T) {
	const T = 5
	config := DefaultConfig()
	config.MaxIterations = 2
	config.Tolerance = 1e-12
	lqr, err := New(config)
	require.NoError(t, err)

	info := integrator(T, 1, 1, 3)
	res, err := lqr.Update(Problem{
		Condition: 4,
		Info:      info,
		Target:    constant(t, T, 1, 1, 0, 0, 1),
		Eta:       1,
		KLStep:    0.01,
	})
	require.Error(t, err)
	assert.True(t, gpserr.IsSearchExhausted(err))
	require.NotNil(t, res)
	assert.LessOrEqual(t, res.KL, res.Bound)

	var exhausted *gpserr.TrustRegionSearchExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Condition)
	assert.Equal(t, res.Eta, exhausted.Eta)
}

func TestBackwardIncreasesEtaUntilPositiveDefinite(t *testing.T) {
	const T = 3
	info := integrator(T, 1, -1, 0)
	p := Problem{
		Info:   info,
		Target: constant(t, T, 1, 1, 0, 0, 1),
	}

	lqr, err := New(DefaultConfig())
	require.NoError(t, err)
	ctrl, eta, err := lqr.Backward(p, 0.5)
	require.NoError(t, err)
	require.NotNil(t, ctrl)
	assert.Greater(t, eta, 1.0)

	config := DefaultConfig()
	config.MaxEta = 0.9
	lqr, err = New(config)
	require.NoError(t, err)
	_, _, err = lqr.Backward(p, 0.5)
	require.Error(t, err)
	assert.True(t, gpserr.IsNumericalInstability(err))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	c := DefaultConfig()
	c.MinEta = c.MaxEta
	assert.Error(t, c.Validate())

	c = DefaultConfig()
	c.MaxIterations = 0
	assert.Error(t, c.Validate())

	_, err := New(c)
	assert.Error(t, err)
}
