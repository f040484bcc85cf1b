package extractor

import (
	"fmt"

	"github.com/swdee/go-mcmot/postprocess/reid"
)

// Float16Network is an embedding network that leaves its output tensor as
// raw IEEE 754 half precision values, one row per input
type Float16Network[T any] interface {
	InferFloat16(batch []T) ([][]uint16, error)
}

// Int8Network is an embedding network with a quantized int8 output tensor,
// one row per input
type Int8Network[T any] interface {
	InferInt8(batch []T) ([][]int8, error)
}

// Float16Model adapts a Float16Network to Model by decoding its output
type Float16Model[T any] struct {
	Network Float16Network[T]
}

// Infer implements Model
func (m Float16Model[T]) Infer(batch []T) ([][]float32, error) {

	raw, err := m.Network.InferFloat16(batch)

	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(raw))

	for i, bits := range raw {
		out[i] = reid.DequantizeFloat16AndL2Normalize(bits)
	}

	return out, nil
}

// Int8Model adapts an Int8Network to Model by dequantizing its output with
// the tensor's scale and zero point
type Int8Model[T any] struct {
	Network   Int8Network[T]
	Scale     float32
	ZeroPoint int32
}

// Infer implements Model
func (m Int8Model[T]) Infer(batch []T) ([][]float32, error) {

	if m.Scale == 0 {
		return nil, fmt.Errorf("int8 output tensor has zero scale")
	}

	raw, err := m.Network.InferInt8(batch)

	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(raw))

	for i, q := range raw {
		out[i] = reid.DequantizeAndL2Normalize(q, m.Scale, m.ZeroPoint)
	}

	return out, nil
}
