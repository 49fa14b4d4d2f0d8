package sample

import "gonum.org/v1/gonum/mat"

// List is an ordered collection of samples, oldest first
type List []*Sample

// Len returns the number of samples in the list
func (l List) Len() int { return len(l) }

// X returns the states of each sample, each a T x dX matrix
func (l List) X() []mat.Matrix {
	out := make([]mat.Matrix, len(l))
	for i := range l {
		out[i] = l[i].x
	}
	return out
}

// U returns the actions of each sample, each a T x dU matrix
func (l List) U() []mat.Matrix {
	out := make([]mat.Matrix, len(l))
	for i := range l {
		out[i] = l[i].u
	}
	return out
}

// Obs returns the observations of each sample, each a T x dO matrix
func (l List) Obs() []mat.Matrix {
	out := make([]mat.Matrix, len(l))
	for i := range l {
		out[i] = l[i].obs
	}
	return out
}

// Condition returns the samples of the list recorded in condition m
func (l List) Condition(m int) List {
	var out List
	for _, s := range l {
		if s.condition == m {
			out = append(out, s)
		}
	}
	return out
}

// Last returns the n most recent samples of the list
func (l List) Last(n int) List {
	if n >= len(l) {
		return l
	}
	return l[len(l)-n:]
}
