// Package network implements a training backend that fits a neural
// network global policy with Gorgonia
package network

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/samuelfneumann/gogps/gpserr"
	"github.com/samuelfneumann/gogps/policyopt"
	"github.com/samuelfneumann/gogps/policyopt/solver"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Config configures a Backend
type Config struct {
	Hidden      []int          `yaml:"hidden"`
	Activations []Activation   `yaml:"activations"`
	BatchSize   int            `yaml:"batch_size"`
	Init        InitConfig     `yaml:"init"`
	Solver      *solver.Solver `yaml:"solver"`
	Seed        uint64         `yaml:"seed"`
}

// DefaultConfig returns the default configuration: two hidden layers
// of 40 ReLU units trained by Adam
func DefaultConfig() Config {
	return Config{
		Hidden:      []int{40, 40},
		Activations: []Activation{ReLU, ReLU},
		BatchSize:   25,
		Init:        InitConfig{Type: GlorotU, Gain: 1},
		Solver:      solver.Default(),
	}
}

// Validate returns an error describing whether or not the
// configuration is valid
func (c Config) Validate() error {
	if len(c.Hidden) != len(c.Activations) {
		return fmt.Errorf("validate: %d hidden layers but %d activations",
			len(c.Hidden), len(c.Activations))
	}
	for i, h := range c.Hidden {
		if h < 1 {
			return fmt.Errorf("validate: hidden layer %d has no units", i)
		}
		if err := c.Activations[i].Validate(); err != nil {
			return err
		}
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("validate: batch_size must be positive")
	}
	if c.Solver == nil {
		return fmt.Errorf("validate: no solver")
	}
	return c.Init.Validate()
}

// Backend trains an MLP on weighted examples. The squared error of
// each action dimension is weighted by the corresponding diagonal
// entry of the example's precision.
type Backend struct {
	config Config
	rng    *rand.Rand

	net     *mlp
	vm      G.VM
	targets *G.Node
	prc     *G.Node
	lossVal G.Value
}

// New returns a new network Backend
func New(config Config) (*Backend, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}
	return &Backend{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}, nil
}

// build creates the training network and its loss
func (b *Backend) build(dO, dU int) error {
	net, err := newMLP(G.NewGraph(), dO, b.config.BatchSize, dU,
		b.config.Hidden, b.config.Activations, b.config.Init.Create())
	if err != nil {
		return fmt.Errorf("build: %v", err)
	}

	targets := G.NewMatrix(net.g, tensor.Float64,
		G.WithShape(net.prediction.Shape()...), G.WithName("targets"),
		G.WithInit(G.Zeroes()))
	prc := G.NewMatrix(net.g, tensor.Float64,
		G.WithShape(net.prediction.Shape()...), G.WithName("precision"),
		G.WithInit(G.Zeroes()))

	loss := G.Must(G.Sub(net.prediction, targets))
	loss = G.Must(G.Square(loss))
	loss = G.Must(G.HadamardProd(loss, prc))
	loss = G.Must(G.Mean(loss))
	G.Read(loss, &b.lossVal)

	if _, err := G.Grad(loss, net.learnables()...); err != nil {
		return fmt.Errorf("build: could not compute gradient: %v", err)
	}

	b.net = net
	b.targets = targets
	b.prc = prc
	b.vm = G.NewTapeMachine(net.g, G.BindDualValues(net.learnables()...))
	return nil
}

// Fit implements the policyopt.Backend interface. Training continues
// from the weights of the previous fit.
func (b *Backend) Fit(ex *policyopt.Examples, iterations int) (
	policyopt.Handle, error) {
	if err := ex.Validate(); err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	N := ex.Len()
	if N == 0 {
		return nil, gpserr.NewInsufficientData("fit", gpserr.NoCondition,
			gpserr.NoTimestep)
	}
	dO, dU := ex.Dims()
	if b.net == nil {
		if err := b.build(dO, dU); err != nil {
			return nil, fmt.Errorf("fit: %w", err)
		}
	} else if b.net.features != dO || b.net.outputs != dU {
		return nil, fmt.Errorf("fit: examples have dimensions (%d, %d), "+
			"network has (%d, %d)", dO, dU, b.net.features, b.net.outputs)
	}

	B := b.config.BatchSize
	for i := 0; i < iterations; i++ {
		obs := make([]float64, 0, B*dO)
		targets := make([]float64, 0, B*dU)
		prc := make([]float64, 0, B*dU)
		for j := 0; j < B; j++ {
			n := b.rng.Intn(N)
			obs = append(obs, ex.Obs.RawRowView(n)...)
			targets = append(targets, ex.Mean.RawRowView(n)...)
			for k := 0; k < dU; k++ {
				prc = append(prc, ex.Precision[n].At(k, k))
			}
		}

		if err := b.step(obs, targets, prc); err != nil {
			return nil, fmt.Errorf("fit: iteration %d: %w", i, err)
		}
		if i%500 == 0 || i == iterations-1 {
			logrus.Debugf("policy fit iteration %d: loss %v", i, b.lossVal)
		}
	}

	pred, err := b.net.cloneWithBatch(1)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	return newHandle(pred), nil
}

// step takes a single gradient step on a batch
func (b *Backend) step(obs, targets, prc []float64) error {
	defer b.vm.Reset()
	shape := b.targets.Shape()

	if err := b.net.setInput(obs); err != nil {
		return err
	}
	if err := G.Let(b.targets, tensor.New(tensor.WithBacking(targets),
		tensor.WithShape(shape...))); err != nil {
		return err
	}
	if err := G.Let(b.prc, tensor.New(tensor.WithBacking(prc),
		tensor.WithShape(shape...))); err != nil {
		return err
	}
	if err := b.vm.RunAll(); err != nil {
		return err
	}
	return b.config.Solver.Step(b.net.model())
}

// Handle is a fitted MLP policy. It is safe for concurrent use.
type Handle struct {
	mu  sync.Mutex
	net *mlp
	vm  G.VM
}

func newHandle(net *mlp) *Handle {
	return &Handle{net: net, vm: G.NewTapeMachine(net.g)}
}

// Predict implements the policyopt.Handle interface
func (h *Handle) Predict(obs mat.Vector) *mat.VecDense {
	h.mu.Lock()
	defer h.mu.Unlock()

	input := make([]float64, obs.Len())
	for i := range input {
		input[i] = obs.AtVec(i)
	}
	if err := h.net.setInput(input); err != nil {
		panic(fmt.Sprintf("predict: %v", err))
	}
	if err := h.vm.RunAll(); err != nil {
		panic(fmt.Sprintf("predict: %v", err))
	}
	out := h.net.output()
	h.vm.Reset()
	return mat.NewVecDense(len(out), out)
}

// GobEncode implements the gob.GobEncoder interface
func (h *Handle) GobEncode() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(h.net); err != nil {
		return nil, fmt.Errorf("gobEncode: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (h *Handle) GobDecode(in []byte) error {
	net := &mlp{}
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(net); err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}
	h.net = net
	h.vm = G.NewTapeMachine(net.g)
	return nil
}

func init() {
	gob.Register(&Handle{})
}
