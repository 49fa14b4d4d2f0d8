package pendulum_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gogps/environment/pendulum"
)

func TestPendulumStep(t *testing.T) {
	c := pendulum.DefaultConfig()
	c.X0 = [][]float64{{math.Pi / 2, 0}}
	env, err := pendulum.New(c, 1)
	require.NoError(t, err)

	step, err := env.Reset(0)
	require.NoError(t, err)
	assert.True(t, step.First())
	assert.InDelta(t, 0, step.Observation.AtVec(0), 1e-12)
	assert.InDelta(t, 1, step.Observation.AtVec(1), 1e-12)

	// Horizontal pendulum with no torque accelerates under gravity
	next, err := env.Step(mat.NewVecDense(1, []float64{0}))
	require.NoError(t, err)
	thdot := -3 * c.Gravity / (2 * c.Length) * math.Sin(math.Pi/2+math.Pi) *
		c.Dt
	assert.InDelta(t, thdot, next.State.AtVec(1), 1e-12)
	assert.InDelta(t, math.Pi/2+thdot*c.Dt, next.State.AtVec(0), 1e-12)
	assert.Equal(t, 1, next.Number)
	assert.InDelta(t, next.State.AtVec(1), next.Observation.AtVec(2), 1e-12)
}

func TestPendulumClipsSpeedAndTorque(t *testing.T) {
	c := pendulum.DefaultConfig()
	c.X0 = [][]float64{{0, pendulum.SpeedBound}}
	env, err := pendulum.New(c, 1)
	require.NoError(t, err)

	_, err = env.Reset(0)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		step, err := env.Step(mat.NewVecDense(1, []float64{1e3}))
		require.NoError(t, err)
		assert.LessOrEqual(t, step.State.AtVec(1), pendulum.SpeedBound)
	}

	_, err = env.Step(mat.NewVecDense(2, nil))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	c := pendulum.DefaultConfig()
	require.NoError(t, c.Validate())

	c.X0 = [][]float64{{0, 2 * pendulum.SpeedBound}}
	assert.Error(t, c.Validate())

	c = pendulum.DefaultConfig()
	c.Dt = 0
	assert.Error(t, c.Validate())

	_, err := pendulum.New(c, 1)
	assert.Error(t, err)
}
