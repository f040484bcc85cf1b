package tracker

import (
	"github.com/swdee/go-mcmot/postprocess/reid"
	"gonum.org/v1/gonum/mat"
)

// EmbeddingStore is an append-only arena of detection embeddings.  Position i
// holds the embedding of node id i.
type EmbeddingStore struct {
	// data holds all embeddings back to back in row-major order
	data []float64
	// norms caches the L2 norm of each stored embedding
	norms []float64
	// dim is the established dimensionality, 0 until the first append
	dim int
}

// NewEmbeddingStore returns an empty store
func NewEmbeddingStore() *EmbeddingStore {
	return &EmbeddingStore{}
}

// Len returns the number of stored embeddings
func (s *EmbeddingStore) Len() int {
	return len(s.norms)
}

// Dim returns the established embedding dimensionality, or 0 when the store
// is empty
func (s *EmbeddingStore) Dim() int {
	return s.dim
}

// At returns a read only view of the embedding for node id
func (s *EmbeddingStore) At(id int64) []float64 {
	off := int(id) * s.dim
	return s.data[off : off+s.dim : off+s.dim]
}

// Norm returns the cached L2 norm of the embedding for node id
func (s *EmbeddingStore) Norm(id int64) float64 {
	return s.norms[id]
}

// Validate checks every embedding in the batch against the store's
// dimensionality.  For an empty store the first embedding of the batch sets
// the expected dimensionality, which must be non zero.
func (s *EmbeddingStore) Validate(batch [][]float32) error {

	expected := s.dim

	if expected == 0 && len(batch) > 0 {
		expected = len(batch[0])

		if expected == 0 {
			return &DimensionMismatchError{Index: 0, Expected: 1, Actual: 0}
		}
	}

	for i, vec := range batch {
		if len(vec) != expected {
			return &DimensionMismatchError{Index: i, Expected: expected, Actual: len(vec)}
		}
	}

	return nil
}

// append copies vec into the store and returns its position.  Callers must
// have run Validate first.
func (s *EmbeddingStore) append(vec []float32) int64 {

	if s.dim == 0 {
		s.dim = len(vec)
	}

	for _, v := range vec {
		s.data = append(s.data, float64(v))
	}

	s.norms = append(s.norms, reid.L2Norm(vec))

	return int64(len(s.norms) - 1)
}

// view returns an n x d matrix sharing the store's backing memory, or nil for
// an empty store
func (s *EmbeddingStore) view() *mat.Dense {

	if s.Len() == 0 {
		return nil
	}

	n := s.Len()

	return mat.NewDense(n, s.dim, s.data[:n*s.dim:n*s.dim])
}

// Matrix returns a copy of all embeddings stacked in node id order as an
// n x d matrix, or nil for an empty store
func (s *EmbeddingStore) Matrix() *mat.Dense {

	v := s.view()

	if v == nil {
		return nil
	}

	return mat.DenseCopyOf(v)
}

// normsView returns the cached norms, read only
func (s *EmbeddingStore) normsView() []float64 {
	return s.norms
}
