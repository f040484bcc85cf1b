package refine

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/swdee/go-mcmot/tracker"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// GraphConv is a graph convolution layer computing adj · (x · W) + B
type GraphConv struct {
	// W is the in x out weight matrix
	W *mat.Dense
	// B is the optional bias of length out
	B []float64
}

// NewGraphConv returns a layer mapping in features to out features with
// weights and bias drawn uniformly from ±1/sqrt(out)
func NewGraphConv(in, out int, src rand.Source) *GraphConv {

	stdv := 1 / math.Sqrt(float64(out))
	dist := distuv.Uniform{Min: -stdv, Max: stdv, Src: src}

	w := make([]float64, in*out)

	for i := range w {
		w[i] = dist.Rand()
	}

	b := make([]float64, out)

	for i := range b {
		b[i] = dist.Rand()
	}

	return &GraphConv{
		W: mat.NewDense(in, out, w),
		B: b,
	}
}

// Forward applies the layer to node features x (n x in) over adjacency adj
func (gc *GraphConv) Forward(x mat.Matrix, adj *tracker.SparseAdjacency) (*mat.Dense, error) {

	_, xc := x.Dims()
	wr, wc := gc.W.Dims()

	if xc != wr {
		return nil, fmt.Errorf("layer expects %d input features, got %d", wr, xc)
	}

	if gc.B != nil && len(gc.B) != wc {
		return nil, fmt.Errorf("bias length %d does not match %d output features", len(gc.B), wc)
	}

	var support mat.Dense
	support.Mul(x, gc.W)

	out, err := adj.MulDense(&support)

	if err != nil {
		return nil, err
	}

	if gc.B != nil {
		rows, _ := out.Dims()

		for i := 0; i < rows; i++ {
			floats.Add(out.RawRowView(i), gc.B)
		}
	}

	return out, nil
}

// GCN is a graph convolutional network run in inference mode.  Hidden layers
// use ReLU activation and the output is a row wise log-softmax.
type GCN struct {
	Layers []*GraphConv
}

// NewGCN returns a two layer GCN of nfeat -> nhid -> nclass with weights
// seeded deterministically from seed
func NewGCN(nfeat, nhid, nclass int, seed uint64) *GCN {

	src := rand.NewPCG(seed, seed)

	return &GCN{
		Layers: []*GraphConv{
			NewGraphConv(nfeat, nhid, src),
			NewGraphConv(nhid, nclass, src),
		},
	}
}

// Infer implements tracker.Refiner
func (g *GCN) Infer(features *mat.Dense, adj *tracker.SparseAdjacency) (mat.Matrix, error) {

	if len(g.Layers) == 0 {
		return nil, fmt.Errorf("gcn has no layers")
	}

	var h mat.Matrix = features

	for i, layer := range g.Layers {

		out, err := layer.Forward(h, adj)

		if err != nil {
			return nil, fmt.Errorf("gcn layer %d: %w", i, err)
		}

		if i < len(g.Layers)-1 {
			out.Apply(relu, out)
		}

		h = out
	}

	out := h.(*mat.Dense)
	rows, _ := out.Dims()

	for i := 0; i < rows; i++ {
		logSoftmax(out.RawRowView(i))
	}

	return out, nil
}

func relu(_, _ int, v float64) float64 {
	return math.Max(0, v)
}

// logSoftmax replaces row with its log-softmax in place
func logSoftmax(row []float64) {
	floats.AddConst(-floats.LogSumExp(row), row)
}
