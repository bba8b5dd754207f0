package tensor

import (
	"math"
	"testing"
)

func TestSoftmaxSumsToOne(t *testing.T) {
	t.Parallel()

	x := []float32{1, 2, 3, -4, 1000}
	Softmax(x)
	var sum float64
	for _, v := range x {
		if v < 0 || v > 1 {
			t.Fatalf("probability out of range: %v", v)
		}
		sum += float64(v)
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Fatalf("sum = %v, want 1", sum)
	}
	if Argmax(x) != 4 {
		t.Fatalf("largest input should dominate, got argmax %d", Argmax(x))
	}
}

func TestRMSNormUnitWeight(t *testing.T) {
	t.Parallel()

	src := []float32{3, 4}
	w := []float32{1, 1}
	dst := make([]float32, 2)
	RMSNorm(dst, src, w, 0)

	// rms = sqrt((9+16)/2)
	rms := math.Sqrt(12.5)
	if math.Abs(float64(dst[0])-3/rms) > 1e-6 || math.Abs(float64(dst[1])-4/rms) > 1e-6 {
		t.Fatalf("unexpected output %v", dst)
	}
}

func TestRMSNormInPlace(t *testing.T) {
	t.Parallel()

	x := []float32{1, -1, 1, -1}
	RMSNorm(x, x, []float32{2, 2, 2, 2}, 0)
	for i, v := range x {
		want := float32(2)
		if i%2 == 1 {
			want = -2
		}
		if math.Abs(float64(v-want)) > 1e-6 {
			t.Fatalf("x[%d] = %v, want %v", i, v, want)
		}
	}
}

func TestArgmaxTiesLowestIndex(t *testing.T) {
	t.Parallel()

	if got := Argmax([]float32{0.5, 2, 2, 1}); got != 1 {
		t.Fatalf("Argmax = %d, want 1", got)
	}
}

func TestActivations(t *testing.T) {
	t.Parallel()

	x := []float32{-2, 0, 3}
	Relu(x)
	if x[0] != 0 || x[1] != 0 || x[2] != 3 {
		t.Fatalf("Relu = %v", x)
	}

	if v := GeluTanh(0); v != 0 {
		t.Fatalf("GeluTanh(0) = %v", v)
	}
	if v := Gelu(0); v != 0 {
		t.Fatalf("Gelu(0) = %v", v)
	}
	// Both forms agree closely for moderate inputs.
	for _, in := range []float32{-1.5, -0.3, 0.7, 2.2} {
		if d := math.Abs(float64(GeluTanh(in) - Gelu(in))); d > 1e-3 {
			t.Fatalf("gelu forms diverge at %v by %v", in, d)
		}
	}
}

func TestDotUnrolledTail(t *testing.T) {
	t.Parallel()

	a := []float32{1, 2, 3, 4, 5, 6, 7}
	b := []float32{1, 1, 1, 1, 1, 1, 1}
	if got := Dot(a, b); got != 28 {
		t.Fatalf("Dot = %v, want 28", got)
	}
}

func TestNewMatFromDataChecksLength(t *testing.T) {
	t.Parallel()

	if _, err := NewMatFromData(2, 3, make([]float32, 5)); err == nil {
		t.Fatal("expected length mismatch error")
	}
	m, err := NewMatFromData(2, 3, []float32{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("NewMatFromData: %v", err)
	}
	if row := m.Row(1); row[0] != 4 || row[2] != 6 {
		t.Fatalf("Row(1) = %v", row)
	}
}
