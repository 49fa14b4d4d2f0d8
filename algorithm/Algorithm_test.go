package algorithm

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelfneumann/gogps/cost"
	"github.com/samuelfneumann/gogps/dynamics"
	"github.com/samuelfneumann/gogps/environment/linear"
	"github.com/samuelfneumann/gogps/experiment/checkpointer"
	"github.com/samuelfneumann/gogps/experiment/tracker"
	"github.com/samuelfneumann/gogps/gpserr"
	"github.com/samuelfneumann/gogps/policyopt"
	policylinear "github.com/samuelfneumann/gogps/policyopt/linear"
)

// integratorConfig returns a configuration for the scalar system
// x' = x + u with cost 0.5 (q x² + r u²) at every timestep
func integratorConfig(T int, q, r float64) Config {
	c := DefaultConfig()
	c.Iterations = 3
	c.T = T
	c.NumSamples = 5
	c.KLStep = 100
	c.MaxEntTraj = 1
	c.Dynamics = dynamics.DefaultConfig()
	c.Dynamics.Type = dynamics.LRType
	c.Dynamics.Regularization = 1e-12
	c.PolicyOpt.Backend = policyopt.LinearBackend
	c.Cost = cost.Config{
		Type: cost.SumType,
		Costs: []cost.Config{
			{Type: cost.ActionType, Wu: []float64{r}},
			{Type: cost.StateType, Wp: []float64{q}, Target: []float64{0},
				L2: 1},
		},
		Weights: []float64{1, 1},
	}
	return c
}

func integratorEnv(t *testing.T, conditions int) *linear.Linear {
	c := linear.DefaultConfig()
	c.X0 = nil
	for m := 0; m < conditions; m++ {
		c.X0 = append(c.X0, []float64{1 + float64(m)})
	}
	c.X0StdDev = 0.5
	env, err := linear.New(c, 7)
	require.NoError(t, err)
	return env
}

func linearBackend(t *testing.T) policyopt.Backend {
	b, err := policylinear.New(policylinear.DefaultConfig())
	require.NoError(t, err)
	return b
}

// riccati returns the optimal gains of the scalar integrator
func riccati(T int, q, r float64) []float64 {
	K := make([]float64, T)
	P := q
	for t := T - 2; t >= 0; t-- {
		K[t] = -P / (r + P)
		P = q + P - P*P/(r+P)
	}
	return K
}

func TestRunConvergesToLQR(t *testing.T) {
	const T = 10
	config := integratorConfig(T, 1, 1)
	alg, err := New(config, integratorEnv(t, 2), linearBackend(t), nil)
	require.NoError(t, err)

	require.NoError(t, alg.Run(context.Background()))
	assert.Equal(t, Done, alg.State())
	assert.Equal(t, config.Iterations, alg.Iteration())

	want := riccati(T, 1, 1)
	for m, ctrl := range alg.Controllers() {
		require.Equal(t, T, ctrl.T())
		for i := 0; i < T; i++ {
			assert.InDelta(t, want[i], ctrl.K[i].At(0, 0), 1e-3,
				"condition %d timestep %d", m, i)
		}
	}
	assert.NotNil(t, alg.Policy())
	for _, mult := range alg.StepMultipliers() {
		assert.GreaterOrEqual(t, mult, config.StepSize.MinStepMult)
		assert.LessOrEqual(t, mult, config.StepSize.MaxStepMult)
	}
}

func TestStepFollowsStateMachine(t *testing.T) {
	config := integratorConfig(5, 1, 1)
	config.Iterations = 2
	alg, err := New(config, integratorEnv(t, 1), linearBackend(t), nil)
	require.NoError(t, err)
	costs := tracker.NewCost("")
	alg.Register(costs)

	want := []State{
		Sample, FitDynamics, OptimizeTrajectories, FitPolicy, AdaptStep,
		Sample, FitDynamics, OptimizeTrajectories, FitPolicy, AdaptStep,
		Done, Done,
	}
	for i, state := range want {
		next, err := alg.Step(context.Background())
		require.NoError(t, err)
		require.Equal(t, state, next, "step %d", i)
	}
	require.Len(t, costs.Data(), 2)
	assert.Less(t, costs.Data()[1][0], costs.Data()[0][0])
}

func TestStepMultipliersStayWithinBounds(t *testing.T) {
	config := integratorConfig(5, 1, 1)
	config.Iterations = 2
	config.StepSize.MinStepMult = 2
	config.StepSize.MaxStepMult = 3
	alg, err := New(config, integratorEnv(t, 2), linearBackend(t), nil)
	require.NoError(t, err)

	for _, mult := range alg.StepMultipliers() {
		assert.Equal(t, 2.0, mult)
	}
	for alg.State() != Done {
		state, err := alg.Step(context.Background())
		require.NoError(t, err)
		for m, mult := range alg.StepMultipliers() {
			assert.GreaterOrEqual(t, mult, 2.0, "condition %d in %v", m, state)
			assert.LessOrEqual(t, mult, 3.0, "condition %d in %v", m, state)
		}
	}
}

func TestPolicyConstraintRuns(t *testing.T) {
	const T = 8
	config := integratorConfig(T, 1, 1)
	config.Constraint = PolicyConstraint
	config.KLStep = 0.5
	config.Dynamics = dynamics.DefaultConfig()
	config.DynamicsSamples = AllRetained
	config.MaxRetainedSamples = 10

	alg, err := New(config, integratorEnv(t, 2), linearBackend(t), nil)
	require.NoError(t, err)
	require.NoError(t, alg.Run(context.Background()))

	for _, ctrl := range alg.Controllers() {
		for i := 0; i < T; i++ {
			assert.False(t, math.IsNaN(ctrl.K[i].At(0, 0)))
			assert.Greater(t, ctrl.Covar[i].At(0, 0), 0.0)
		}
	}
	for _, eta := range alg.Etas() {
		assert.GreaterOrEqual(t, eta, config.TrajOpt.MinEta)
	}
}

func TestNumericalInstability(t *testing.T) {
	config := integratorConfig(5, 1, -1)
	config.Iterations = 2
	config.MaxEntTraj = 0
	config.TrajOpt.MaxEta = 1e-6

	config.OnInstability = Abort
	alg, err := New(config, integratorEnv(t, 1), linearBackend(t), nil)
	require.NoError(t, err)
	err = alg.Run(context.Background())
	require.Error(t, err)
	assert.True(t, gpserr.IsNumericalInstability(err))
	assert.Equal(t, OptimizeTrajectories, alg.State())

	// A failed run stays failed
	_, again := alg.Step(context.Background())
	assert.Equal(t, err, again)

	config.OnInstability = Retain
	alg, err = New(config, integratorEnv(t, 1), linearBackend(t), nil)
	require.NoError(t, err)
	_, err = alg.Step(context.Background())
	require.NoError(t, err)
	initial := alg.Controllers()[0]

	require.NoError(t, alg.Run(context.Background()))
	assert.Same(t, initial, alg.Controllers()[0])
}

func TestCheckpoints(t *testing.T) {
	config := integratorConfig(5, 1, 1)
	config.Iterations = 2
	config.Dynamics = dynamics.DefaultConfig()

	dir := t.TempDir()
	filename := checkpointer.IterationFilename(dir, "snapshot", ".gob")
	ck, err := checkpointer.NewNStep(1, filename)
	require.NoError(t, err)

	alg, err := New(config, integratorEnv(t, 1), linearBackend(t), ck)
	require.NoError(t, err)
	require.NoError(t, alg.Run(context.Background()))

	var snap Snapshot
	require.NoError(t, checkpointer.Load(filename(1), &snap))
	assert.Equal(t, 1, snap.Iteration)
	assert.Equal(t, alg.Etas(), snap.Eta)
	assert.Equal(t, alg.StepMultipliers(), snap.StepMult)
	require.Len(t, snap.Controllers, 1)
	assert.Equal(t, alg.Controllers()[0].Params(), snap.Controllers[0])
	assert.NotNil(t, snap.DynamicsPrior)
	assert.Nil(t, snap.PolicyPrior)
	require.NotNil(t, snap.Policy)
	assert.Equal(t, alg.Policy().Variance(), snap.PolicyVariance)
}

func TestNewValidates(t *testing.T) {
	env := integratorEnv(t, 1)

	config := integratorConfig(5, 1, 1)
	config.Cost.Costs[0].Wu = []float64{1, 1}
	_, err := New(config, env, linearBackend(t), nil)
	assert.Error(t, err)

	config = integratorConfig(1, 1, 1)
	assert.Error(t, config.Validate())

	config = integratorConfig(5, 1, 1)
	config.Constraint = "mirror"
	_, err = New(config, env, linearBackend(t), nil)
	assert.Error(t, err)

	config = integratorConfig(5, 1, 1)
	config.DynamicsSamples = AllRetained
	config.MaxRetainedSamples = 1
	assert.Error(t, config.Validate())

	_, err = New(integratorConfig(5, 1, 1), env, nil, nil)
	assert.Error(t, err)
}
