package checkpointer_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelfneumann/gogps/experiment/checkpointer"
)

type state struct {
	Iteration int
	Eta       []float64
}

func TestNStepCheckpointsEveryN(t *testing.T) {
	dir, err := checkpointer.RunDir(t.TempDir())
	require.NoError(t, err)

	filename := checkpointer.IterationFilename(dir, "state", ".gob")
	ck, err := checkpointer.NewNStep(2, filename)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, ck.Checkpoint(i, state{i, []float64{float64(i)}}))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	var loaded state
	require.NoError(t, checkpointer.Load(filename(3), &loaded))
	assert.Equal(t, state{3, []float64{3}}, loaded)
	assert.Equal(t, filepath.Join(dir, "state_00003.gob"), filename(3))

	assert.Error(t, checkpointer.Load(filename(0), &loaded))
}

func TestNewNStepValidatesInterval(t *testing.T) {
	_, err := checkpointer.NewNStep(0, nil)
	assert.Error(t, err)
}
