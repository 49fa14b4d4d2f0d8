// Package matutils implements utility function for working with mat.Matrix
// structs
package matutils

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Format formats a matrix for printing
func Format(X mat.Matrix) string {
	fa := mat.Formatted(X, mat.Prefix(""), mat.Squeeze())
	return fmt.Sprintf("%v", fa)
}

// Eye returns an n x n identity matrix scaled by scale
func Eye(n int, scale float64) *mat.Dense {
	eye := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		eye.Set(i, i, scale)
	}
	return eye
}

// EyeSym returns an n x n identity matrix scaled by scale as a
// *mat.SymDense
func EyeSym(n int, scale float64) *mat.SymDense {
	eye := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		eye.SetSym(i, i, scale)
	}
	return eye
}

// Sym returns the symmetric part 0.5 * (a + aᵀ) of a square matrix
func Sym(a mat.Matrix) *mat.SymDense {
	r, c := a.Dims()
	if r != c {
		panic(fmt.Sprintf("sym: matrix must be square, have (%v, %v)", r, c))
	}
	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			s.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
	return s
}

// Block returns a copy of the block a[i0:i1, j0:j1]
func Block(a mat.Matrix, i0, i1, j0, j1 int) *mat.Dense {
	b := mat.NewDense(i1-i0, j1-j0, nil)
	for i := i0; i < i1; i++ {
		for j := j0; j < j1; j++ {
			b.Set(i-i0, j-j0, a.At(i, j))
		}
	}
	return b
}

// SymBlock returns a copy of the diagonal block a[i0:i1, i0:i1] of a
// symmetric matrix
func SymBlock(a mat.Symmetric, i0, i1 int) *mat.SymDense {
	b := mat.NewSymDense(i1-i0, nil)
	for i := i0; i < i1; i++ {
		for j := i; j < i1; j++ {
			b.SetSym(i-i0, j-i0, a.At(i, j))
		}
	}
	return b
}

// SetBlock copies src into dst with the top left corner of src placed
// at (i, j)
func SetBlock(dst *mat.Dense, i, j int, src mat.Matrix) {
	r, c := src.Dims()
	for m := 0; m < r; m++ {
		for n := 0; n < c; n++ {
			dst.Set(i+m, j+n, src.At(m, n))
		}
	}
}

// SubVec returns a copy of v[i0:i1]
func SubVec(v mat.Vector, i0, i1 int) *mat.VecDense {
	out := mat.NewVecDense(i1-i0, nil)
	for i := i0; i < i1; i++ {
		out.SetVec(i-i0, v.AtVec(i))
	}
	return out
}

// Row returns a copy of row i of a matrix
func Row(a mat.Matrix, i int) *mat.VecDense {
	_, c := a.Dims()
	out := mat.NewVecDense(c, nil)
	for j := 0; j < c; j++ {
		out.SetVec(j, a.At(i, j))
	}
	return out
}

// Concat concatenates vectors into a single new vector
func Concat(vecs ...mat.Vector) *mat.VecDense {
	n := 0
	for _, v := range vecs {
		n += v.Len()
	}
	out := mat.NewVecDense(n, nil)
	pos := 0
	for _, v := range vecs {
		for i := 0; i < v.Len(); i++ {
			out.SetVec(pos, v.AtVec(i))
			pos++
		}
	}
	return out
}

// AddDiag adds value to each diagonal element of s in place
func AddDiag(s *mat.SymDense, value float64) {
	n, _ := s.Dims()
	for i := 0; i < n; i++ {
		s.SetSym(i, i, s.At(i, i)+value)
	}
}

// Finite returns whether all elements of a are finite
func Finite(a mat.Matrix) bool {
	r, c := a.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := a.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// MinEigen returns the smallest eigenvalue of a symmetric matrix. If the
// eigendecomposition fails, NaN is returned.
func MinEigen(s mat.Symmetric) float64 {
	var eig mat.EigenSym
	if ok := eig.Factorize(s, false); !ok {
		return math.NaN()
	}
	values := eig.Values(nil)
	min := math.Inf(1)
	for _, v := range values {
		if v < min {
			min = v
		}
	}
	return min
}

// ClipEigen projects a symmetric matrix onto the set of symmetric
// matrices with all eigenvalues at least minEig. The returned bool
// reports whether any eigenvalue was changed.
func ClipEigen(s mat.Symmetric, minEig float64) (*mat.SymDense, bool, error) {
	n, _ := s.Dims()
	var eig mat.EigenSym
	if ok := eig.Factorize(s, true); !ok {
		return nil, false, fmt.Errorf("clipEigen: eigendecomposition failed")
	}
	values := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	clipped := false
	for i, v := range values {
		if v < minEig || math.IsNaN(v) {
			values[i] = minEig
			clipped = true
		}
	}
	if !clipped {
		out := mat.NewSymDense(n, nil)
		out.CopySym(s)
		return out, false, nil
	}

	// Reconstruct V diag(λ) Vᵀ
	scaled := mat.DenseCopyOf(&vecs)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			scaled.Set(i, j, scaled.At(i, j)*values[j])
		}
	}
	var rebuilt mat.Dense
	rebuilt.Mul(scaled, vecs.T())
	return Sym(&rebuilt), true, nil
}

// Cholesky factorizes a symmetric matrix, inflating it if needed so
// that the factorization succeeds with all eigenvalues at least
// minEig. The possibly inflated matrix is returned along with its
// factorization. The returned bool reports whether the matrix was
// inflated.
func Cholesky(s mat.Symmetric, minEig float64) (*mat.Cholesky, *mat.SymDense,
	bool, error) {
	if !Finite(s) {
		return nil, nil, false, fmt.Errorf("cholesky: non-finite matrix")
	}
	n, _ := s.Dims()
	sym := mat.NewSymDense(n, nil)
	sym.CopySym(s)

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); ok && MinDiag(sym) > 0 {
		return &chol, sym, false, nil
	}

	clipped, _, err := ClipEigen(sym, minEig)
	if err != nil {
		return nil, nil, false, fmt.Errorf("cholesky: %w", err)
	}

	// Eigenvalue reconstruction may leave tiny negative rounding errors,
	// so keep adding a growing ridge until the factorization succeeds
	ridge := minEig
	for attempt := 0; attempt < 20; attempt++ {
		if ok := chol.Factorize(clipped); ok {
			return &chol, clipped, true, nil
		}
		AddDiag(clipped, ridge)
		ridge *= 10
	}
	return nil, nil, false, fmt.Errorf("cholesky: matrix could not be made " +
		"positive definite")
}

// MinDiag returns the smallest diagonal element of a square matrix
func MinDiag(a mat.Matrix) float64 {
	n, _ := a.Dims()
	min := math.Inf(1)
	for i := 0; i < n; i++ {
		if v := a.At(i, i); v < min {
			min = v
		}
	}
	return min
}

// InverseSym returns the inverse of a symmetric positive definite
// matrix given its Cholesky factorization
func InverseSym(chol *mat.Cholesky) (*mat.SymDense, error) {
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// LowerTri returns the lower triangular Cholesky factor L, where
// A = L Lᵀ
func LowerTri(chol *mat.Cholesky) *mat.TriDense {
	var l mat.TriDense
	chol.LTo(&l)
	return &l
}
