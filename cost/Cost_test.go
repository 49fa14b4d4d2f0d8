package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

const tol = 1e-9

func randomTrajectory(rng *rand.Rand, T, dX, dU int) (*mat.Dense, *mat.Dense) {
	x := mat.NewDense(T, dX, nil)
	u := mat.NewDense(T, dU, nil)
	x.Apply(func(i, j int, v float64) float64 { return rng.NormFloat64() }, x)
	u.Apply(func(i, j int, v float64) float64 { return rng.NormFloat64() }, u)
	return x, u
}

func assertDerivativesEqual(t *testing.T, want, got *Derivatives) {
	require.Equal(t, want.T(), got.T())
	assert.InDeltaSlice(t, want.L, got.L, tol)
	assert.True(t, mat.EqualApprox(want.Lx, got.Lx, tol))
	assert.True(t, mat.EqualApprox(want.Lu, got.Lu, tol))
	for i := 0; i < want.T(); i++ {
		assert.True(t, mat.EqualApprox(want.Lxx[i], got.Lxx[i], tol))
		assert.True(t, mat.EqualApprox(want.Luu[i], got.Luu[i], tol))
		assert.True(t, mat.EqualApprox(want.Lux[i], got.Lux[i], tol))
	}
}

func TestSumIsWeightedSumOfCosts(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	T, dX, dU := 6, 3, 2

	action := NewAction([]float64{1, 0.5}, Constant)
	state := NewState([]float64{1, 2, 0}, []float64{0.5, -1, 0}, 0.1, 10,
		1e-5, Linear, 1)
	final := NewState([]float64{1, 1, 1}, []float64{0, 0, 0}, 1, 0, 1e-5,
		FinalOnly, 10)

	weightSets := [][]float64{
		{1, 1, 1},
		{1000, 1000, 1000},
		{0, 2.5, 0},
		{0, 0, 0},
		{0.3, 0, 7},
	}

	for trial := 0; trial < 5; trial++ {
		x, u := randomTrajectory(rng, T, dX, dU)
		for _, weights := range weightSets {
			sum := NewSum([]Cost{action, state, final}, weights)
			got := sum.Eval(x, u)

			want := NewDerivatives(T, dX, dU)
			want.AddScaled(weights[0], action.Eval(x, u))
			want.AddScaled(weights[1], state.Eval(x, u))
			want.AddScaled(weights[2], final.Eval(x, u))

			assertDerivativesEqual(t, want, got)
		}
	}
}

func TestZeroWeightSumIsZero(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	x, u := randomTrajectory(rng, 4, 2, 1)
	sum := NewSum([]Cost{NewAction([]float64{3}, Constant)}, []float64{0})

	d := sum.Eval(x, u)
	assert.Equal(t, 0.0, d.Total())
}

func TestActionCost(t *testing.T) {
	x := mat.NewDense(2, 1, nil)
	u := mat.NewDense(2, 2, []float64{1, 2, -1, 0})
	d := NewAction([]float64{2, 4}, Constant).Eval(x, u)

	assert.InDeltaSlice(t, []float64{0.5*2*1 + 0.5*4*4, 0.5 * 2 * 1}, d.L, tol)
	assert.InDelta(t, 8.0, d.Lu.At(0, 1), tol)
	assert.InDelta(t, 4.0, d.Luu[1].At(1, 1), tol)
	assert.InDelta(t, 0.0, d.Luu[1].At(0, 1), tol)
}

func TestStateCostDerivativesMatchFiniteDifferences(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	dX := 3
	w := []float64{1.5, 0.7, 2}
	l1, l2, alpha := 0.4, 2.0, 1e-2
	const h = 1e-5

	for trial := 0; trial < 10; trial++ {
		d := make([]float64, dX)
		for i := range d {
			d[i] = rng.NormFloat64()
		}
		_, grad, hess := evalL1L2(w, d, l1, l2, alpha)

		for i := 0; i < dX; i++ {
			plus := append([]float64(nil), d...)
			minus := append([]float64(nil), d...)
			plus[i] += h
			minus[i] -= h
			lp, gp, _ := evalL1L2(w, plus, l1, l2, alpha)
			lm, gm, _ := evalL1L2(w, minus, l1, l2, alpha)

			assert.InDelta(t, (lp-lm)/(2*h), grad[i], 1e-6)
			for j := 0; j < dX; j++ {
				assert.InDelta(t, (gp[j]-gm[j])/(2*h), hess.At(i, j), 1e-5)
			}
		}
	}
}

func TestRampMultipliers(t *testing.T) {
	assert.InDeltaSlice(t, []float64{1, 1, 1, 1}, Constant.Multipliers(4, 1), tol)
	assert.InDeltaSlice(t, []float64{0.25, 0.5, 0.75, 1},
		Linear.Multipliers(4, 1), tol)
	assert.InDeltaSlice(t, []float64{0.0625, 0.25, 0.5625, 1},
		Quadratic.Multipliers(4, 1), tol)
	assert.InDeltaSlice(t, []float64{0, 0, 0, 10}, FinalOnly.Multipliers(4, 10), tol)
	assert.Error(t, Ramp("cubic").Validate())
}

func TestExpansionReproducesCostAtTrajectory(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	T, dX, dU := 5, 2, 2
	c := NewSum([]Cost{
		NewAction([]float64{1, 2}, Constant),
		NewState([]float64{1, 1}, []float64{1, -1}, 0.5, 1, 1e-3, Quadratic, 1),
	}, []float64{1, 3})

	x, u := randomTrajectory(rng, T, dX, dU)
	d := c.Eval(x, u)
	e := Expand(x, u, d)

	for i := 0; i < T; i++ {
		y := mat.NewVecDense(dX+dU, nil)
		for j := 0; j < dX; j++ {
			y.SetVec(j, x.At(i, j))
		}
		for j := 0; j < dU; j++ {
			y.SetVec(dX+j, u.At(i, j))
		}

		var cmy mat.VecDense
		cmy.MulVec(e.Cm[i], y)
		value := e.Cc[i] + mat.Dot(y, e.Cv[i]) + 0.5*mat.Dot(y, &cmy)
		assert.InDelta(t, d.L[i], value, 1e-8)

		// Gradient at the trajectory point is the original gradient
		var grad mat.VecDense
		grad.AddVec(e.Cv[i], &cmy)
		for j := 0; j < dX; j++ {
			assert.InDelta(t, d.Lx.At(i, j), grad.AtVec(j), 1e-8)
		}
	}

	mean := Mean([]*Expansion{e, e})
	assert.InDeltaSlice(t, e.Cc, mean.Cc, 1e-12)
}

func TestNewFromConfig(t *testing.T) {
	c := Config{
		Type: SumType,
		Costs: []Config{
			{Type: ActionType, Wu: []float64{1}},
			{Type: StateType, Wp: []float64{1, 1}, Target: []float64{0, 0},
				L2: 1},
		},
		Weights: []float64{1, 1},
	}
	fn, err := New(c, 2, 1)
	require.NoError(t, err)
	assert.IsType(t, &Sum{}, fn)

	c.Costs[0].Wu = []float64{1, 2}
	_, err = New(c, 2, 1)
	assert.Error(t, err)

	_, err = New(Config{Type: "fk"}, 2, 1)
	assert.Error(t, err)
}
