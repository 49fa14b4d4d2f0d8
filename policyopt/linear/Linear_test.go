package linear

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/samuelfneumann/gogps/gpserr"
	"github.com/samuelfneumann/gogps/policyopt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

var trueW = mat.NewDense(2, 4, []float64{
	1, -2, 0.5, 0.3,
	0, 0.7, -1, -0.2,
})

func examples(rng *rand.Rand, N int, constant bool) *policyopt.Examples {
	obs := mat.NewDense(N, 3, nil)
	mean := mat.NewDense(N, 2, nil)
	prc := make([]*mat.SymDense, N)
	wt := make([]float64, N)
	for i := 0; i < N; i++ {
		o := mat.NewVecDense(3, nil)
		if !constant {
			for j := 0; j < 3; j++ {
				o.SetVec(j, rng.NormFloat64())
			}
		}
		obs.SetRow(i, o.RawVector().Data)

		var u mat.VecDense
		u.MulVec(trueW.Slice(0, 2, 0, 3), o)
		u.AddVec(&u, trueW.ColView(3))
		mean.SetRow(i, u.RawVector().Data)

		// Correlated precisions of varying scale
		s := 0.5 + rng.Float64()
		prc[i] = mat.NewSymDense(2, []float64{2 * s, 0.5 * s, 0.5 * s, s})
		wt[i] = s
	}
	return &policyopt.Examples{Obs: obs, Mean: mean, Precision: prc, Weight: wt}
}

func TestFitRecoversAffinePolicy(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	b, err := New(Config{Regularization: 1e-10})
	require.NoError(t, err)

	handle, err := b.Fit(examples(rng, 50, false), 1)
	require.NoError(t, err)
	h := handle.(*Handle)
	assert.True(t, mat.EqualApprox(trueW, h.W, 1e-6), "fitted\n%v",
		mat.Formatted(h.W))

	o := mat.NewVecDense(3, []float64{1, 2, 3})
	var want mat.VecDense
	want.MulVec(trueW.Slice(0, 2, 0, 3), o)
	want.AddVec(&want, trueW.ColView(3))
	assert.True(t, mat.EqualApprox(&want, h.Predict(o), 1e-6))
}

func TestFitDegenerate(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	b, err := New(Config{Regularization: 0})
	require.NoError(t, err)

	_, err = b.Fit(examples(rng, 10, true), 1)
	require.Error(t, err)
	assert.True(t, gpserr.IsNumericalInstability(err))

	// Ridge regularization makes the problem well posed
	b, err = New(DefaultConfig())
	require.NoError(t, err)
	_, err = b.Fit(examples(rng, 10, true), 1)
	assert.NoError(t, err)
}

func TestHandleGob(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	b, err := New(DefaultConfig())
	require.NoError(t, err)
	handle, err := b.Fit(examples(rng, 20, false), 1)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(&handle))
	var decoded policyopt.Handle
	require.NoError(t, gob.NewDecoder(&buf).Decode(&decoded))
	assert.True(t, mat.Equal(handle.(*Handle).W, decoded.(*Handle).W))
}
