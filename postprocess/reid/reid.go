package reid

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/x448/float16"
	"gonum.org/v1/gonum/mat"
)

// f16LookupTable holds every float16 bit pattern converted to float32
var f16LookupTable [65536]float32

func init() {
	// precompute float16 lookup table for faster conversion to float32
	for i := range f16LookupTable {
		f16LookupTable[i] = float16.Frombits(uint16(i)).Float32()
	}
}

// Float16ToFloat32 converts a slice of raw IEEE 754 half precision values, as
// output by models running with a float16 output tensor, into float32
func Float16ToFloat32(bits []uint16) []float32 {

	out := make([]float32, len(bits))

	for i, b := range bits {
		out[i] = f16LookupTable[b]
	}

	return out
}

// DequantizeAndL2Normalize converts a quantized int8 vector "q" into a float32
// vector using scale "s" and zero-point "z", then normalizes the result to
// unit length.
//
// If the resulting vector has zero magnitude the unnormalized dequantized
// vector is returned.
func DequantizeAndL2Normalize(q []int8, s float32, z int32) []float32 {

	x := make([]float32, len(q))

	for i, v := range q {
		x[i] = float32(int32(v)-z) * s
	}

	return normalizeInPlace(x)
}

// DequantizeFloat16AndL2Normalize converts a float16 embedding to float32 and
// normalizes it to unit length
func DequantizeFloat16AndL2Normalize(bits []uint16) []float32 {
	return normalizeInPlace(Float16ToFloat32(bits))
}

// L2Norm returns the Euclidean length of v, accumulated in float64
func L2Norm(v []float32) float64 {

	var sum float64

	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	return math.Sqrt(sum)
}

// NormalizeVec returns a unit length copy of v. A zero magnitude vector is
// returned as an unchanged copy.
func NormalizeVec(v []float32) []float32 {

	out := make([]float32, len(v))
	copy(out, v)

	return normalizeInPlace(out)
}

func normalizeInPlace(x []float32) []float32 {

	norm := L2Norm(x)

	if norm == 0 {
		// avoid /0
		return x
	}

	for i := range x {
		x[i] = float32(float64(x[i]) / norm)
	}

	return x
}

// CosineSimilarity returns the cosine of the angle between vectors a and b in
// the range [-1,1]. Assumes len(a)==len(b). If either vector has zero
// magnitude the similarity is 0.
func CosineSimilarity(a, b []float32) float64 {

	var dot float64

	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}

	na, nb := L2Norm(a), L2Norm(b)

	if na == 0 || nb == 0 {
		return 0
	}

	return dot / (na * nb)
}

// CosineDistance returns 1 - cosine similarity, in [0,2]
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}

// CrossSimilarity computes the full cosine similarity matrix between the rows
// of a (m x d) and the rows of b (n x d), returning an m x n matrix where
// element (i,j) is cos(a_i, b_j). aNorms and bNorms hold the precomputed L2
// norms of each row. Entries involving a zero norm row are 0.
func CrossSimilarity(a, b mat.Matrix, aNorms, bNorms []float64) *mat.Dense {

	m, _ := a.Dims()
	n, _ := b.Dims()

	sim := mat.NewDense(m, n, nil)
	sim.Mul(a, b.T())

	for i := 0; i < m; i++ {

		row := sim.RawRowView(i)

		for j := range row {

			denom := aNorms[i] * bNorms[j]

			if denom == 0 {
				row[j] = 0
				continue
			}

			row[j] /= denom
		}
	}

	return sim
}

// FingerprintHash takes a vector of values and returns a hex-encoded SHA-256
// hash of its little-endian binary representation. It is used to compare
// model outputs across runs.
func FingerprintHash(values []float64) (string, error) {

	buf := new(bytes.Buffer)

	for _, v := range values {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return "", err
		}
	}

	sum := sha256.Sum256(buf.Bytes())

	return hex.EncodeToString(sum[:]), nil
}
