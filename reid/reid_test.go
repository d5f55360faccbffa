package reid

import (
	"math"
	"testing"

	"github.com/x448/float16"
)

func almostEqual(a, b, tolerance float32) bool {
	return float32(math.Abs(float64(a)-float64(b))) <= tolerance
}

func TestNormalizeVec(t *testing.T) {

	v := NormalizeVec([]float32{3, 4})

	if !almostEqual(v[0], 0.6, 1e-5) || !almostEqual(v[1], 0.8, 1e-5) {
		t.Errorf("normalized vector = %v, want [0.6 0.8]", v)
	}

	// zero vector is returned unchanged
	z := NormalizeVec([]float32{0, 0})

	if z[0] != 0 || z[1] != 0 {
		t.Errorf("zero vector changed: %v", z)
	}
}

func TestCosineDistance(t *testing.T) {

	a := NormalizeVec([]float32{1, 0})
	b := NormalizeVec([]float32{0, 1})

	if d := CosineDistance(a, a); !almostEqual(d, 0, 1e-5) {
		t.Errorf("self distance = %f, want 0", d)
	}

	if d := CosineDistance(a, b); !almostEqual(d, 1, 1e-5) {
		t.Errorf("orthogonal distance = %f, want 1", d)
	}

	c := NormalizeVec([]float32{-1, 0})

	if d := CosineDistance(a, c); !almostEqual(d, 2, 1e-5) {
		t.Errorf("opposite distance = %f, want 2", d)
	}
}

func TestEuclideanDistance(t *testing.T) {

	a := []float32{1, 2, 3}
	b := []float32{4, 6, 3}

	if d := EuclideanDistance(a, b); !almostEqual(d, 5, 1e-5) {
		t.Errorf("distance = %f, want 5", d)
	}

	if d := EuclideanDistance(a, a); d != 0 {
		t.Errorf("self distance = %f, want 0", d)
	}
}

func TestFloat16ToVec(t *testing.T) {

	want := []float32{0.5, -1.25, 2.0}
	buf := make([]uint16, len(want))

	for i, v := range want {
		buf[i] = float16.Fromfloat32(v).Bits()
	}

	got := Float16ToVec(buf)

	if len(got) != len(want) {
		t.Fatalf("length %d, want %d", len(got), len(want))
	}

	for i := range want {
		if !almostEqual(got[i], want[i], 1e-3) {
			t.Errorf("component %d = %f, want %f", i, got[i], want[i])
		}
	}
}
