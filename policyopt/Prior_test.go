package policyopt_test

import (
	"testing"

	"github.com/samuelfneumann/gogps/policyopt"
	"github.com/samuelfneumann/gogps/utils/matutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestPriorLinearizesGlobalPolicy(t *testing.T) {
	const T = 10
	rng := rand.New(rand.NewSource(11))
	ctrl := controller(t, T)
	samples := rollouts(t, rng, 0, 8, ctrl)

	f := linearFitter(t, policyopt.DefaultConfig())
	pol, err := f.Fit([]policyopt.Target{{Controller: ctrl, Samples: samples}})
	require.NoError(t, err)

	config := policyopt.DefaultPriorConfig()
	config.MinSamplesPerCluster = 20
	prior, err := policyopt.NewPriorGMM(config, 1)
	require.NoError(t, err)
	require.NoError(t, prior.Update(samples.X(), samples.Obs(), pol))
	assert.Equal(t, samples.Len(), prior.Rollouts())
	assert.LessOrEqual(t, prior.Mixture().K(), config.MaxClusters)

	lin, err := prior.Linearize(0, samples.X(), samples.Obs(), pol, 1e-8)
	require.NoError(t, err)
	require.Equal(t, T, lin.T())
	for i := 1; i < T; i++ {
		assert.InDelta(t, gain, lin.K[i].At(0, 0), 0.05, "timestep %d", i)
		assert.InDelta(t, bias, lin.Bias[i].AtVec(0), 0.05, "timestep %d", i)
	}
	for i := 0; i < T; i++ {
		assert.GreaterOrEqual(t, lin.Covar[i].At(0, 0),
			pol.Covar().At(0, 0)-1e-9)
		assert.Greater(t, matutils.MinEigen(lin.Covar[i]), 0.0)
	}
}

func TestPriorSampleModes(t *testing.T) {
	const T = 5
	rng := rand.New(rand.NewSource(13))
	ctrl := controller(t, T)
	f := linearFitter(t, policyopt.DefaultConfig())
	first := rollouts(t, rng, 0, 4, ctrl)
	pol, err := f.Fit([]policyopt.Target{{Controller: ctrl, Samples: first}})
	require.NoError(t, err)

	config := policyopt.DefaultPriorConfig()
	config.MaxSamples = 6
	config.Mode = policyopt.Add
	add, err := policyopt.NewPriorGMM(config, 1)
	require.NoError(t, err)
	config.Mode = policyopt.Replace
	replace, err := policyopt.NewPriorGMM(config, 1)
	require.NoError(t, err)

	second := rollouts(t, rng, 0, 4, ctrl)
	require.NoError(t, add.Update(first.X(), first.Obs(), pol))
	require.NoError(t, add.Update(second.X(), second.Obs(), pol))
	assert.Equal(t, 6, add.Rollouts())

	require.NoError(t, replace.Update(first.X(), first.Obs(), pol))
	require.NoError(t, replace.Update(second.X(), second.Obs(), pol))
	assert.Equal(t, 4, replace.Rollouts())
}

func TestPriorConfigValidate(t *testing.T) {
	assert.NoError(t, policyopt.DefaultPriorConfig().Validate())
	assert.Equal(t, policyopt.Replace, policyopt.DefaultPriorConfig().Mode)

	c := policyopt.DefaultPriorConfig()
	c.Mode = "merge"
	assert.Error(t, c.Validate())

	c = policyopt.DefaultPriorConfig()
	c.MaxSamples = 0
	_, err := policyopt.NewPriorGMM(c, 0)
	assert.Error(t, err)
}
