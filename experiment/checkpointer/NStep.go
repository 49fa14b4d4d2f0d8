package checkpointer

import "fmt"

// nStep implements checkpointing every N iterations
type nStep struct {
	interval int

	// filename returns the name of the file to save the checkpoint of
	// an iteration in. See IterationFilename.
	filename func(int) string
}

// NewNStep returns a checkpointer that checkpoints after every n
// iterations
func NewNStep(n int, filename func(int) string) (Checkpointer, error) {
	if n < 1 {
		return nil, fmt.Errorf("newNStep: interval must be positive, got %d",
			n)
	}
	return &nStep{
		interval: n,
		filename: filename,
	}, nil
}

// Checkpoint saves object if the iteration count is a multiple of the
// interval. Iterations are counted from zero, so the object is saved
// after iterations n-1, 2n-1, ...
func (n *nStep) Checkpoint(iteration int, object interface{}) error {
	if (iteration+1)%n.interval == 0 {
		return Save(n.filename(iteration), object)
	}
	return nil
}
