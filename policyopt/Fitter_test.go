package policyopt_test

import (
	"math"
	"testing"

	"github.com/samuelfneumann/gogps/gpserr"
	"github.com/samuelfneumann/gogps/policy"
	"github.com/samuelfneumann/gogps/policyopt"
	"github.com/samuelfneumann/gogps/policyopt/linear"
	"github.com/samuelfneumann/gogps/sample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

const (
	gain     = -0.5
	bias     = 0.1
	variance = 0.25
)

// controller returns a scalar controller u = gain x + bias with the
// given variance at every timestep
func controller(t *testing.T, T int) *policy.LinearGaussian {
	K := make([]*mat.Dense, T)
	k := make([]*mat.VecDense, T)
	covar := make([]*mat.SymDense, T)
	for i := 0; i < T; i++ {
		K[i] = mat.NewDense(1, 1, []float64{gain})
		k[i] = mat.NewVecDense(1, []float64{bias})
		covar[i] = mat.NewSymDense(1, []float64{variance})
	}
	ctrl, err := policy.NewLinearGaussian(K, k, covar, 1e-10)
	require.NoError(t, err)
	return ctrl
}

// rollouts returns N rollouts of scalar states observed directly, with
// actions drawn from ctrl
func rollouts(t *testing.T, rng *rand.Rand, condition, N int,
	ctrl *policy.LinearGaussian) sample.List {
	T := ctrl.T()
	out := make(sample.List, N)
	for n := range out {
		x := mat.NewDense(T, 1, nil)
		u := mat.NewDense(T, 1, nil)
		x.Set(0, 0, rng.NormFloat64())
		for i := 0; i < T; i++ {
			noise := mat.NewVecDense(1, []float64{rng.NormFloat64()})
			act := ctrl.Act(i, x.RowView(i), nil, noise)
			u.Set(i, 0, act.AtVec(0))
			if i < T-1 {
				x.Set(i+1, 0, x.At(i, 0)+act.AtVec(0)+0.1*rng.NormFloat64())
			}
		}
		s, err := sample.New(condition, x, u, x)
		require.NoError(t, err)
		out[n] = s
	}
	return out
}

func linearFitter(t *testing.T, config policyopt.Config) *policyopt.Fitter {
	backend, err := linear.New(linear.DefaultConfig())
	require.NoError(t, err)
	f, err := policyopt.NewFitter(config, backend)
	require.NoError(t, err)
	return f
}

func TestExamplesTargetsAndVariance(t *testing.T) {
	const T = 6
	rng := rand.New(rand.NewSource(3))
	ctrl := controller(t, T)
	targets := []policyopt.Target{
		{Condition: 0, Controller: ctrl, Samples: rollouts(t, rng, 0, 3, ctrl)},
		{Condition: 1, Controller: ctrl, Samples: rollouts(t, rng, 1, 2, ctrl)},
	}

	config := policyopt.DefaultConfig()
	config.LikelihoodWeighting = false
	f := linearFitter(t, config)

	ex, v, err := f.Examples(targets)
	require.NoError(t, err)
	require.Equal(t, 5*T, ex.Len())
	for i := 0; i < ex.Len(); i++ {
		x := ex.Obs.At(i, 0)
		assert.InDelta(t, gain*x+bias, ex.Mean.At(i, 0), 1e-12)
		assert.InDelta(t, 1.0, ex.Weight[i], 1e-12)
		assert.InDelta(t, 1/variance, ex.Precision[i].At(0, 0), 1e-9)
	}
	require.Len(t, v, 1)
	assert.InDelta(t, variance, v[0], 1e-9)

	// Entropy regularization shrinks the precision average
	config.EntReg = 1
	f = linearFitter(t, config)
	_, v, err = f.Examples(targets)
	require.NoError(t, err)
	assert.InDelta(t, 1/(1/variance+2), v[0], 1e-9)
}

func TestExamplesWithoutSamples(t *testing.T) {
	f := linearFitter(t, policyopt.DefaultConfig())
	_, _, err := f.Examples([]policyopt.Target{{Controller: controller(t, 3)}})
	require.Error(t, err)
	assert.True(t, gpserr.IsInsufficientData(err))
}

func TestLikelihoodWeighting(t *testing.T) {
	const T = 4
	ctrl := controller(t, T)

	x := mat.NewDense(T, 1, nil)
	mean := mat.NewDense(T, 1, nil)
	noisy := mat.NewDense(T, 1, nil)
	for i := 0; i < T; i++ {
		mean.Set(i, 0, bias)
		noisy.Set(i, 0, bias+1)
	}
	likely, err := sample.New(0, x, mean, x)
	require.NoError(t, err)
	unlikely, err := sample.New(0, x, noisy, x)
	require.NoError(t, err)

	f := linearFitter(t, policyopt.DefaultConfig())
	ex, _, err := f.Examples([]policyopt.Target{{
		Controller: ctrl,
		Generating: ctrl,
		Samples:    sample.List{likely, unlikely},
	}})
	require.NoError(t, err)
	assert.Greater(t, ex.Weight[0], ex.Weight[T])
}

func TestFitRecoversLinearController(t *testing.T) {
	const T = 8
	rng := rand.New(rand.NewSource(5))
	ctrl := controller(t, T)
	f := linearFitter(t, policyopt.DefaultConfig())
	assert.Nil(t, f.Policy())

	pol, err := f.Fit([]policyopt.Target{{
		Controller: ctrl,
		Generating: ctrl,
		Samples:    rollouts(t, rng, 0, 5, ctrl),
	}})
	require.NoError(t, err)
	assert.Same(t, pol, f.Policy())

	for _, x := range []float64{-2, 0, 1.5} {
		mu, covar := pol.Predict(mat.NewVecDense(1, []float64{x}))
		assert.InDelta(t, gain*x+bias, mu.AtVec(0), 1e-4)
		assert.Greater(t, covar.At(0, 0), 0.0)
	}

	noisy := pol.Act(0, nil, mat.NewVecDense(1, []float64{1}),
		mat.NewVecDense(1, []float64{2}))
	mean := pol.Act(0, nil, mat.NewVecDense(1, []float64{1}), nil)
	assert.InDelta(t, mean.AtVec(0)+2*math.Sqrt(pol.Variance()[0]),
		noisy.AtVec(0), 1e-9)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, policyopt.DefaultConfig().Validate())

	c := policyopt.DefaultConfig()
	c.Backend = "caffe"
	assert.Error(t, c.Validate())

	c = policyopt.DefaultConfig()
	c.InitPolWt = 0
	assert.Error(t, c.Validate())

	_, err := policyopt.NewFitter(policyopt.DefaultConfig(), nil)
	assert.Error(t, err)
}
