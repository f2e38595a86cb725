package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/detloss/internal/parallel"
	"github.com/born-ml/detloss/internal/tensor"
)

func TestBinaryOps(t *testing.T) {
	backend := New()
	a := rawF32(t, []float32{1, 2, 3, 4}, 2, 2)
	b := rawF32(t, []float32{4, 3, 2, 1}, 2, 2)

	tests := []struct {
		name string
		op   func(a, b *tensor.RawTensor) *tensor.RawTensor
		want []float32
	}{
		{"add", backend.Add, []float32{5, 5, 5, 5}},
		{"sub", backend.Sub, []float32{-3, -1, 1, 3}},
		{"mul", backend.Mul, []float32{4, 6, 6, 4}},
		{"div", backend.Div, []float32{0.25, 2.0 / 3.0, 1.5, 4}},
		{"minimum", backend.Minimum, []float32{1, 2, 2, 1}},
		{"maximum", backend.Maximum, []float32{4, 3, 3, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.op(a, b)
			assert.Equal(t, tensor.Shape{2, 2}, got.Shape())
			assert.InDeltaSlice(t, tt.want, got.AsFloat32(), 1e-6)
		})
	}
}

func TestBinaryOps_Broadcast(t *testing.T) {
	backend := New()

	t.Run("column plus row", func(t *testing.T) {
		col := rawF32(t, []float32{10, 20, 30}, 3, 1)
		row := rawF32(t, []float32{1, 2}, 2)
		got := backend.Add(col, row)
		assert.Equal(t, tensor.Shape{3, 2}, got.Shape())
		assert.Equal(t, []float32{11, 12, 21, 22, 31, 32}, got.AsFloat32())
	})

	t.Run("scalar tensor", func(t *testing.T) {
		x := rawF32(t, []float32{1, 2, 3}, 3)
		s := rawF32(t, []float32{2}) // 0-d
		assert.Equal(t, []float32{2, 4, 6}, backend.Mul(x, s).AsFloat32())
		assert.Equal(t, []float32{2, 1, 2.0 / 3.0}, backend.Div(s, x).AsFloat32())
	})

	t.Run("middle axis", func(t *testing.T) {
		x := rawF32(t, []float32{1, 2, 3, 4, 5, 6, 7, 8}, 2, 2, 2)
		m := rawF32(t, []float32{1, 0, 0, 1}, 2, 1, 2)
		assert.Equal(t, []float32{1, 0, 3, 0, 0, 6, 0, 8}, backend.Mul(x, m).AsFloat32())
	})

	t.Run("incompatible", func(t *testing.T) {
		assert.Panics(t, func() {
			backend.Add(rawF32(t, make([]float32, 6), 2, 3), rawF32(t, make([]float32, 4), 2, 2))
		})
	})
}

func TestBinaryOps_Int32(t *testing.T) {
	backend := New()
	a := rawI32(t, []int32{7, -3, 5}, 3)
	b := rawI32(t, []int32{2, 2, 2}, 3)

	assert.Equal(t, []int32{9, -1, 7}, backend.Add(a, b).AsInt32())
	assert.Equal(t, []int32{3, -1, 2}, backend.Div(a, b).AsInt32())
	assert.Equal(t, []int32{2, -3, 2}, backend.Minimum(a, b).AsInt32())
}

func TestBinaryOps_DTypeMismatch(t *testing.T) {
	backend := New()
	assert.PanicsWithValue(t, "add: dtype mismatch float32 vs int32", func() {
		backend.Add(rawF32(t, []float32{1}, 1), rawI32(t, []int32{1}, 1))
	})
}

func TestBinaryOps_ParallelMatchesSequential(t *testing.T) {
	n := 10_000
	a := make([]float32, n)
	b := make([]float32, 100)
	for i := range a {
		a[i] = float32(i%97) * 0.5
	}
	for i := range b {
		b[i] = float32(i) - 50
	}
	ra := rawF32(t, a, 100, 100)
	rb := rawF32(t, b, 100)

	par := New(WithParallel(parallel.Config{Enabled: true, NumWorkers: 8, MinChunkSize: 16}))
	seq := New(WithParallel(parallel.Sequential()))

	require.Equal(t, seq.Mul(ra, rb).AsFloat32(), par.Mul(ra, rb).AsFloat32())
	require.Equal(t, seq.Sub(ra, rb).AsFloat32(), par.Sub(ra, rb).AsFloat32())
}

func TestScalarOps(t *testing.T) {
	backend := New()
	x := rawF32(t, []float32{1, 2, 4}, 3)

	assert.Equal(t, []float32{3, 4, 6}, backend.AddScalar(x, float32(2)).AsFloat32())
	assert.Equal(t, []float32{0, 1, 3}, backend.SubScalar(x, float32(1)).AsFloat32())
	assert.Equal(t, []float32{0.5, 1, 2}, backend.MulScalar(x, float32(0.5)).AsFloat32())
	assert.Equal(t, []float32{0.25, 0.5, 1}, backend.DivScalar(x, 4).AsFloat32())

	ids := rawI32(t, []int32{-2, -1, 3}, 3)
	assert.Equal(t, []int32{0, 1, 5}, backend.AddScalar(ids, int32(2)).AsInt32())

	assert.Panics(t, func() { backend.AddScalar(x, "1") })
}
