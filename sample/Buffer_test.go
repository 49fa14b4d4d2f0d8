package sample

import (
	"testing"

	"github.com/samuelfneumann/gogps/timestep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newSample(t *testing.T, condition int, value float64) *Sample {
	x := mat.NewDense(3, 2, nil)
	x.Apply(func(i, j int, v float64) float64 { return value }, x)
	u := mat.NewDense(3, 1, nil)
	s, err := New(condition, x, u, x)
	require.NoError(t, err)
	return s
}

func TestBufferEvictsOldestFirst(t *testing.T) {
	buf := NewBuffer(3)
	assert.Equal(t, 0, buf.Len())

	var added []*Sample
	for i := 0; i < 5; i++ {
		s := newSample(t, 0, float64(i))
		added = append(added, s)
		buf.Add(s)
		assert.LessOrEqual(t, buf.Len(), buf.Capacity())
	}

	all := buf.All()
	require.Len(t, all, 3)
	assert.Equal(t, added[2:], []*Sample(all))

	buf.Clear()
	assert.Equal(t, 0, buf.Len())
	assert.Empty(t, buf.All())
}

func TestListHelpers(t *testing.T) {
	l := List{newSample(t, 0, 1), newSample(t, 1, 2), newSample(t, 0, 3)}

	c0 := l.Condition(0)
	require.Len(t, c0, 2)
	assert.Equal(t, 3.0, c0[1].X().At(0, 0))
	assert.Len(t, l.Last(2), 2)
	assert.Len(t, l.Last(10), 3)
	assert.Len(t, l.X(), 3)
}

func TestNewValidatesHorizon(t *testing.T) {
	_, err := New(0, mat.NewDense(3, 1, nil), mat.NewDense(2, 1, nil),
		mat.NewDense(3, 1, nil))
	assert.Error(t, err)
}

func TestFromTimeSteps(t *testing.T) {
	steps := []timestep.TimeStep{
		timestep.New(timestep.First, mat.NewVecDense(2, []float64{1, 2}),
			mat.NewVecDense(1, []float64{3}), 0),
		timestep.New(timestep.Last, mat.NewVecDense(2, []float64{4, 5}),
			mat.NewVecDense(1, []float64{6}), 1),
	}
	actions := []mat.Vector{
		mat.NewVecDense(1, []float64{-1}),
		mat.NewVecDense(1, []float64{-2}),
	}

	s, err := FromTimeSteps(4, steps, actions)
	require.NoError(t, err)
	assert.Equal(t, 2, s.T())
	assert.Equal(t, 2, s.DimX())
	assert.Equal(t, 1, s.DimU())
	assert.Equal(t, 1, s.DimO())
	assert.Equal(t, 4, s.Condition())
	assert.Equal(t, 5.0, s.State(1).AtVec(1))
	assert.Equal(t, -2.0, s.Action(1).AtVec(0))
	assert.Equal(t, 6.0, s.Observation(1).AtVec(0))
}
