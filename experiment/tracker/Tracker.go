// Package tracker implements Trackers, which record data at the end of
// every iteration of a run and save it to disk after the run
package tracker

import (
	"encoding/gob"
	"fmt"
	"os"
)

// Tracker keeps track of run data and saves the data after the run has
// finished
type Tracker interface {
	// Track records the mean rollout cost of each condition after an
	// iteration
	Track(iteration int, costs []float64)
	Save() error
}

// LoadData loads and returns the data saved by a Tracker
func LoadData(filename string) ([][]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("loadData: could not open data file: %w", err)
	}
	defer file.Close()

	dec := gob.NewDecoder(file)
	var data [][]float64
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("loadData: could not decode data: %w", err)
	}
	return data, nil
}
