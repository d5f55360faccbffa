// Package reid provides vector helpers for working with appearance
// embedding features produced by a Re-Identification network.
package reid

import (
	"math"

	"github.com/x448/float16"
)

// NormalizeVec normalizes the input float32 slice to unit length and returns
// a new slice. If the input vector has zero magnitude, it returns the
// original slice unchanged.
func NormalizeVec(v []float32) []float32 {

	norm := float32(0.0)

	for _, x := range v {
		norm += x * x
	}

	if norm == 0 {
		return v // avoid division by zero
	}

	norm = float32(math.Sqrt(float64(norm)))

	out := make([]float32, len(v))

	for i, x := range v {
		out[i] = x / norm
	}

	return out
}

// CosineSimilarity returns the cosine of the angle between vectors a and b.
// Assumes len(a)==len(b) and that both vectors are L2-normalized, in which
// case this is just their dot product.
func CosineSimilarity(a, b []float32) float32 {

	var dot float32

	for i := range a {
		dot += a[i] * b[i]
	}

	return dot
}

// CosineDistance returns 1 - cosine similarity.  For L2-normalized vectors
// this is in [0,2] and small values mean "very similar".
func CosineDistance(a, b []float32) float32 {
	return 1 - CosineSimilarity(a, b)
}

// EuclideanDistance returns the L2 distance between two vectors.  Lower
// means "more similar" when the features are L2-normalized.
func EuclideanDistance(a, b []float32) float32 {

	var sum float32

	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}

	return float32(math.Sqrt(float64(sum)))
}

// Float16ToVec converts a raw float16 embedding buffer, as emitted by
// half-precision ReID models, into a float32 vector.  Each element of the
// input holds the IEEE 754 binary16 bit pattern of one component.
func Float16ToVec(buf []uint16) []float32 {

	out := make([]float32, len(buf))

	for i, bits := range buf {
		out[i] = float16.Frombits(bits).Float32()
	}

	return out
}
