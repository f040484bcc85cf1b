package tracker

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Refiner is a graph refinement model run in inference mode over the
// association graph.  Its output is returned to the caller unmodified.
type Refiner interface {
	Infer(features *mat.Dense, adj *SparseAdjacency) (mat.Matrix, error)
}

// SparseAdjacency is an N x N adjacency matrix in coordinate (COO) form.
// Entry k is the value Values[k] at (Rows[k], Cols[k]), absent entries are 0.
type SparseAdjacency struct {
	// N is the number of nodes, the matrix is N x N
	N      int
	Rows   []int
	Cols   []int
	Values []float64
}

// NNZ returns the number of stored entries
func (s *SparseAdjacency) NNZ() int {
	return len(s.Values)
}

// Dense expands the adjacency into a dense N x N matrix
func (s *SparseAdjacency) Dense() *mat.Dense {

	d := mat.NewDense(s.N, s.N, nil)

	for k, v := range s.Values {
		d.Set(s.Rows[k], s.Cols[k], d.At(s.Rows[k], s.Cols[k])+v)
	}

	return d
}

// MulDense returns the product adj · x, where x has N rows
func (s *SparseAdjacency) MulDense(x mat.Matrix) (*mat.Dense, error) {

	r, c := x.Dims()

	if r != s.N {
		return nil, fmt.Errorf("adjacency is %dx%d, matrix has %d rows", s.N, s.N, r)
	}

	out := mat.NewDense(s.N, c, nil)
	col := make([]float64, c)

	for k, v := range s.Values {
		mat.Row(col, s.Cols[k], x)
		floats.AddScaled(out.RawRowView(s.Rows[k]), v, col)
	}

	return out, nil
}

// Export returns the stacked embeddings of all nodes in node id order as an
// n x d matrix and the symmetric adjacency of the association graph, with
// weight 1 per direction of each edge.  Entries are ordered by row then
// column.  Neither result shares memory with the tracker.
func (gt *GraphTracker) Export() (*mat.Dense, *SparseAdjacency, error) {

	if gt.graph.Nodes() == 0 {
		return nil, nil, ErrEmptyGraph
	}

	adj := &SparseAdjacency{
		N:      gt.graph.Nodes(),
		Rows:   make([]int, 0, 2*gt.graph.Edges()),
		Cols:   make([]int, 0, 2*gt.graph.Edges()),
		Values: make([]float64, 0, 2*gt.graph.Edges()),
	}

	for id := int64(0); id < int64(adj.N); id++ {
		for _, nb := range gt.graph.Neighbors(id) {
			adj.Rows = append(adj.Rows, int(id))
			adj.Cols = append(adj.Cols, int(nb))
			adj.Values = append(adj.Values, 1)
		}
	}

	return gt.store.Matrix(), adj, nil
}

// GraphInfer exports the association graph and runs the refinement model
// over it
func (gt *GraphTracker) GraphInfer(r Refiner) (mat.Matrix, error) {

	features, adj, err := gt.Export()

	if err != nil {
		return nil, err
	}

	out, err := r.Infer(features, adj)

	if err != nil {
		return nil, fmt.Errorf("graph refinement failed: %w", err)
	}

	return out, nil
}
