package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelfneumann/gogps/algorithm"
	"github.com/samuelfneumann/gogps/config"
	"github.com/samuelfneumann/gogps/experiment/tracker"
	"github.com/samuelfneumann/gogps/policyopt"
	"github.com/samuelfneumann/gogps/policyopt/solver"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, config.Default().Validate())
}

func TestDefaultRoundTrip(t *testing.T) {
	data, err := config.Default().YAML()
	require.NoError(t, err)

	c, err := config.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Algorithm, c.Algorithm)
	assert.Equal(t, config.Default().Environment, c.Environment)
}

func TestParseOverridesDefaults(t *testing.T) {
	data := []byte(`
algorithm:
  iterations: 2
  horizon: 6
  num_samples: 4
  kl_step: 2.5
  constraint: policy
  on_numerical_instability: retain
  step_size:
    min_step_mult: 0.1
    max_step_mult: 5
    mode: monte_carlo
  policy_opt:
    backend: network
    iterations: 100
environment:
  type: pendulum
  pendulum:
    x0: [[3.14, 0], [1.57, 0]]
backend:
  network:
    hidden: [8]
    activations: [tanh]
    solver:
      type: rmsprop
      config:
        step_size: 0.01
checkpoint:
  dir: out
  every: 5
`)
	c, err := config.Parse(data)
	require.NoError(t, err)

	assert.Equal(t, 2, c.Algorithm.Iterations)
	assert.Equal(t, 6, c.Algorithm.T)
	assert.Equal(t, 2.5, c.Algorithm.KLStep)
	assert.Equal(t, algorithm.PolicyConstraint, c.Algorithm.Constraint)
	assert.Equal(t, algorithm.Retain, c.Algorithm.OnInstability)
	assert.Equal(t, policyopt.NetworkBackend, c.Algorithm.PolicyOpt.Backend)
	assert.Equal(t, config.Pendulum, c.Environment.Type)
	assert.Len(t, c.Environment.Pendulum.X0, 2)
	assert.Equal(t, 0.05, c.Environment.Pendulum.Dt, "default kept")
	assert.Equal(t, []int{8}, c.Backend.Network.Hidden)
	assert.Equal(t, solver.RMSProp, c.Backend.Network.Solver.Type)
	assert.Equal(t, 5, c.Checkpoint.Every)

	// Unspecified sections keep their defaults
	assert.Equal(t, config.Default().Algorithm.Dynamics, c.Algorithm.Dynamics)
}

func TestParseRejects(t *testing.T) {
	for name, data := range map[string]string{
		"unknown field":       "algorithm:\n  iterationz: 3\n",
		"bad constraint":      "algorithm:\n  constraint: mirror\n",
		"bad environment":     "environment:\n  type: cartpole\n",
		"checkpoint no dir":   "checkpoint:\n  dir: \"\"\n  every: 2\n",
		"negative kl_step":    "algorithm:\n  kl_step: -1\n",
		"bad linear dynamics": "environment:\n  linear:\n    a: [[1, 2]]\n",
	} {
		_, err := config.Parse([]byte(data))
		assert.Error(t, err, name)
	}
}

func TestLoadAndRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
algorithm:
  iterations: 2
  horizon: 5
checkpoint:
  dir: ` + filepath.Join(dir, "checkpoints") + `
  every: 1
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	c, err := config.Load(path)
	require.NoError(t, err)

	alg, _, err := c.NewAlgorithm()
	require.NoError(t, err)
	require.NoError(t, alg.Run(context.Background()))
	require.NoError(t, alg.Save())
	assert.Equal(t, 2, alg.Iteration())

	runs, err := os.ReadDir(filepath.Join(dir, "checkpoints"))
	require.NoError(t, err)
	require.Len(t, runs, 1)
	snaps, err := os.ReadDir(filepath.Join(dir, "checkpoints",
		runs[0].Name()))
	require.NoError(t, err)
	assert.Len(t, snaps, 3)

	costs, err := tracker.LoadData(filepath.Join(dir, "checkpoints",
		runs[0].Name(), "costs.gob"))
	require.NoError(t, err)
	assert.Len(t, costs, 2)

	_, err = config.Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestGymRequiresTag(t *testing.T) {
	c := config.Default()
	c.Environment.Type = config.Gym
	c.Environment.Gym = config.GymConfig{Name: "Pendulum-v0", Seeds: []int{1}}
	require.NoError(t, c.Validate())

	if _, err := c.NewEnvironment(); err == nil {
		t.Skip("built with the gym tag")
	}
}
