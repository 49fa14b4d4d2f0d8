package matutils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestClipEigen(t *testing.T) {
	s := mat.NewSymDense(2, []float64{1, 0, 0, -2})

	clipped, changed, err := ClipEigen(s, 0.5)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.InDelta(t, 0.5, MinEigen(clipped), 1e-12)
	assert.InDelta(t, 1.0, clipped.At(0, 0), 1e-12)

	_, changed, err = ClipEigen(EyeSym(3, 2), 0.5)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestCholesky(t *testing.T) {
	pd := mat.NewSymDense(2, []float64{4, 1, 1, 3})
	chol, sym, inflated, err := Cholesky(pd, 1e-6)
	require.NoError(t, err)
	assert.False(t, inflated)
	assert.True(t, mat.EqualApprox(sym, pd, 1e-12))

	inv, err := InverseSym(chol)
	require.NoError(t, err)
	var prod mat.Dense
	prod.Mul(pd, inv)
	assert.True(t, mat.EqualApprox(&prod, Eye(2, 1), 1e-10))

	l := LowerTri(chol)
	var llt mat.Dense
	llt.Mul(l, l.T())
	assert.True(t, mat.EqualApprox(&llt, pd, 1e-10))

	indefinite := mat.NewSymDense(2, []float64{1, 2, 2, 1})
	_, sym, inflated, err = Cholesky(indefinite, 1e-3)
	require.NoError(t, err)
	assert.True(t, inflated)
	assert.Greater(t, MinEigen(sym), 0.0)

	_, _, _, err = Cholesky(mat.NewSymDense(1, []float64{math.NaN()}), 1e-6)
	assert.Error(t, err)
}

func TestBlocks(t *testing.T) {
	a := mat.NewDense(3, 3, []float64{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	})

	assert.Equal(t, []float64{5, 6, 8, 9}, Block(a, 1, 3, 1, 3).RawMatrix().Data)

	dst := mat.NewDense(3, 3, nil)
	SetBlock(dst, 1, 1, mat.NewDense(2, 2, []float64{1, 1, 1, 1}))
	assert.Equal(t, 0.0, dst.At(0, 0))
	assert.Equal(t, 1.0, dst.At(2, 2))

	sym := Sym(a)
	assert.Equal(t, 3.0, sym.At(0, 1))
	assert.Equal(t, []float64{5, 7, 7, 9}, mat.DenseCopyOf(SymBlock(sym, 1, 3)).RawMatrix().Data)

	assert.Equal(t, []float64{4, 5, 6}, Row(a, 1).RawVector().Data)
}

func TestVectors(t *testing.T) {
	v := Concat(mat.NewVecDense(2, []float64{1, 2}), mat.NewVecDense(1, []float64{3}))
	assert.Equal(t, []float64{1, 2, 3}, v.RawVector().Data)
	assert.Equal(t, []float64{2, 3}, SubVec(v, 1, 3).RawVector().Data)

	s := EyeSym(2, 1)
	AddDiag(s, 2)
	assert.Equal(t, 3.0, MinDiag(s))
	assert.True(t, Finite(s))
}
