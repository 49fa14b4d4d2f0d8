package tracker_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelfneumann/gogps/experiment/tracker"
)

func TestCostSavesPerIteration(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "costs.gob")
	var tr tracker.Tracker = tracker.NewCost(filename)

	tr.Track(0, []float64{3, 4})
	tr.Track(1, []float64{1, 2})
	require.NoError(t, tr.Save())

	data, err := tracker.LoadData(filename)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{3, 4}, {1, 2}}, data)

	_, err = tracker.LoadData(filepath.Join(t.TempDir(), "missing.gob"))
	assert.Error(t, err)
}
