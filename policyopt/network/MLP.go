package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	act     Activation
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	x, err := G.Mul(x, f.weights)
	if err != nil {
		return nil, err
	}

	// Broadcast the bias weights to all samples along the batch
	// dimension
	x, err = G.BroadcastAdd(x, f.bias, nil, []byte{0})
	if err != nil {
		return nil, err
	}
	return f.act.fwd(x)
}

// mlp is a multi-layered perceptron with a linear output layer
type mlp struct {
	g          *G.ExprGraph
	layers     []*fcLayer
	input      *G.Node
	prediction *G.Node
	predVal    G.Value

	features    int
	outputs     int
	batch       int
	hidden      []int
	activations []Activation
}

// newMLP creates an MLP on the graph g taking batches of batch inputs
// with features features. Hidden layer i has hidden[i] units and
// activation activations[i]. A final linear layer with outputs units is
// always added.
func newMLP(g *G.ExprGraph, features, batch, outputs int, hidden []int,
	activations []Activation, init G.InitWFn) (*mlp, error) {
	if len(hidden) != len(activations) {
		return nil, fmt.Errorf("newMLP: invalid number of activations"+
			"\n\twant(%d)\n\thave(%d)", len(hidden), len(activations))
	}

	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	sizes := append(append([]int(nil), hidden...), outputs)
	acts := append(append([]Activation(nil), activations...), Identity)

	layers := make([]*fcLayer, len(sizes))
	in := features
	for i, out := range sizes {
		layers[i] = &fcLayer{
			weights: G.NewMatrix(g, tensor.Float64, G.WithShape(in, out),
				G.WithName(fmt.Sprintf("L%dW", i)), G.WithInit(init)),
			bias: G.NewMatrix(g, tensor.Float64, G.WithShape(1, out),
				G.WithName(fmt.Sprintf("L%dB", i)), G.WithInit(G.Zeroes())),
			act: acts[i],
		}
		in = out
	}

	net := &mlp{
		g:           g,
		layers:      layers,
		input:       input,
		features:    features,
		outputs:     outputs,
		batch:       batch,
		hidden:      append([]int(nil), hidden...),
		activations: append([]Activation(nil), activations...),
	}

	pred := input
	var err error
	for i, l := range layers {
		if pred, err = l.fwd(pred); err != nil {
			return nil, fmt.Errorf("newMLP: could not compute forward pass "+
				"of layer %v: %v", i, err)
		}
	}
	net.prediction = pred
	G.Read(net.prediction, &net.predVal)

	return net, nil
}

// cloneWithBatch returns a copy of the MLP on a new graph taking
// batches of batch inputs
func (m *mlp) cloneWithBatch(batch int) (*mlp, error) {
	net, err := newMLP(G.NewGraph(), m.features, batch, m.outputs, m.hidden,
		m.activations, G.Zeroes())
	if err != nil {
		return nil, fmt.Errorf("cloneWithBatch: %v", err)
	}
	if err := net.set(m); err != nil {
		return nil, fmt.Errorf("cloneWithBatch: %v", err)
	}
	return net, nil
}

// set copies the weights of source into the MLP
func (m *mlp) set(source *mlp) error {
	src := source.learnables()
	for i, dst := range m.learnables() {
		value := src[i].Value().(*tensor.Dense).Clone().(*tensor.Dense)
		if err := G.Let(dst, value); err != nil {
			return fmt.Errorf("set: %v", err)
		}
	}
	return nil
}

// setInput sets the value of the input node before running the forward
// pass
func (m *mlp) setInput(input []float64) error {
	if len(input) != m.features*m.batch {
		panic(fmt.Sprintf("setInput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", m.features*m.batch, len(input)))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(m.input.Shape()...),
	)
	return G.Let(m.input, inputTensor)
}

// learnables returns the learnable nodes of the MLP
func (m *mlp) learnables() G.Nodes {
	nodes := make(G.Nodes, 0, 2*len(m.layers))
	for _, l := range m.layers {
		nodes = append(nodes, l.weights, l.bias)
	}
	return nodes
}

// model returns the learnable nodes with their gradients
func (m *mlp) model() []G.ValueGrad {
	learnables := m.learnables()
	model := make([]G.ValueGrad, len(learnables))
	for i, node := range learnables {
		model[i] = node
	}
	return model
}

// output returns a copy of the output of the last forward pass
func (m *mlp) output() []float64 {
	return append([]float64(nil), m.predVal.Data().([]float64)...)
}

// GobEncode implements the gob.GobEncoder interface
func (m *mlp) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	for _, v := range []interface{}{m.features, m.outputs, m.batch,
		m.hidden, m.activations} {
		if err := enc.Encode(v); err != nil {
			return nil, fmt.Errorf("gobEncode: could not encode "+
				"architecture: %v", err)
		}
	}
	for i, node := range m.learnables() {
		data := node.Value().Data().([]float64)
		if err := enc.Encode(data); err != nil {
			return nil, fmt.Errorf("gobEncode: could not encode weights "+
				"%d: %v", i, err)
		}
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (m *mlp) GobDecode(in []byte) error {
	dec := gob.NewDecoder(bytes.NewReader(in))

	var features, outputs, batch int
	var hidden []int
	var activations []Activation
	for _, v := range []interface{}{&features, &outputs, &batch, &hidden,
		&activations} {
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("gobDecode: could not decode architecture: %v",
				err)
		}
	}

	net, err := newMLP(G.NewGraph(), features, batch, outputs, hidden,
		activations, G.Zeroes())
	if err != nil {
		return fmt.Errorf("gobDecode: could not construct MLP: %v", err)
	}

	for i, node := range net.learnables() {
		var data []float64
		if err := dec.Decode(&data); err != nil {
			return fmt.Errorf("gobDecode: could not decode weights %d: %v",
				i, err)
		}
		value := tensor.New(tensor.WithBacking(data),
			tensor.WithShape(node.Shape()...))
		if err := G.Let(node, value); err != nil {
			return fmt.Errorf("gobDecode: could not set weights %d: %v",
				i, err)
		}
	}

	*m = *net
	return nil
}
