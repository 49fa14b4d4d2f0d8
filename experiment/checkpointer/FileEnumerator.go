package checkpointer

import (
	"fmt"
	"path/filepath"
)

// IterationFilename returns a function which names the checkpoint file
// of an iteration within dir, e.g. dir/name_00012.gob
func IterationFilename(dir, name, extension string) func(int) string {
	return func(iteration int) string {
		return filepath.Join(dir, fmt.Sprintf("%v_%05d%v", name, iteration,
			extension))
	}
}
