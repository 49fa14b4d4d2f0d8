package tracker

import (
	"encoding/gob"
	"fmt"
	"os"
)

// Cost tracks and saves the mean rollout cost of each condition at
// every iteration. The saved data is indexed by iteration, then by
// condition.
type Cost struct {
	costs    [][]float64
	filename string
}

// NewCost returns a new Cost tracker that saves to filename
func NewCost(filename string) *Cost {
	return &Cost{filename: filename}
}

// Track implements the Tracker interface
func (c *Cost) Track(iteration int, costs []float64) {
	for len(c.costs) <= iteration {
		c.costs = append(c.costs, nil)
	}
	c.costs[iteration] = append([]float64(nil), costs...)
}

// Data returns the tracked costs
func (c *Cost) Data() [][]float64 {
	return c.costs
}

// Save implements the Tracker interface
func (c *Cost) Save() error {
	file, err := os.Create(c.filename)
	if err != nil {
		return fmt.Errorf("save: could not create file: %w", err)
	}

	enc := gob.NewEncoder(file)
	if err := enc.Encode(c.costs); err != nil {
		file.Close()
		return fmt.Errorf("save: could not encode data: %w", err)
	}
	return file.Close()
}
