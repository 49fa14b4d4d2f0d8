// Package checkpointer persists the state of a run to disk with
// encoding/gob so that controllers, mixtures, and the global policy
// can be inspected or reloaded after the run
package checkpointer

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Checkpointer checkpoints objects at the end of an iteration
type Checkpointer interface {
	Checkpoint(iteration int, object interface{}) error
}

// RunDir creates and returns a new directory under root named by a
// fresh run identifier
func RunDir(root string) (string, error) {
	dir := filepath.Join(root, uuid.New().String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("runDir: could not create run directory: %w",
			err)
	}
	return dir, nil
}

// Save gob-encodes object to filename
func Save(filename string, object interface{}) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("save: could not create file: %w", err)
	}

	enc := gob.NewEncoder(file)
	if err := enc.Encode(object); err != nil {
		file.Close()
		return fmt.Errorf("save: could not encode object: %w", err)
	}
	return file.Close()
}

// Load gob-decodes the contents of filename into object, which must be
// a pointer
func Load(filename string, object interface{}) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("load: could not open file: %w", err)
	}
	defer file.Close()

	dec := gob.NewDecoder(file)
	if err := dec.Decode(object); err != nil {
		return fmt.Errorf("load: could not decode object: %w", err)
	}
	return nil
}
