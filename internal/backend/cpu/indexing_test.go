package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/detloss/internal/tensor"
)

func TestWhere(t *testing.T) {
	backend := New()

	t.Run("same shape", func(t *testing.T) {
		cond := rawBool(t, []bool{true, false, true}, 3)
		x := rawF32(t, []float32{1, 2, 3}, 3)
		y := rawF32(t, []float32{-1, -2, -3}, 3)
		assert.Equal(t, []float32{1, -2, 3}, backend.Where(cond, x, y).AsFloat32())
	})

	t.Run("broadcast condition and scalar", func(t *testing.T) {
		cond := rawBool(t, []bool{true, false}, 2, 1)
		x := rawF32(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
		zero := rawF32(t, []float32{0})
		got := backend.Where(cond, x, zero)
		assert.Equal(t, tensor.Shape{2, 3}, got.Shape())
		assert.Equal(t, []float32{1, 2, 3, 0, 0, 0}, got.AsFloat32())
	})

	t.Run("non-bool condition", func(t *testing.T) {
		assert.Panics(t, func() {
			backend.Where(rawF32(t, []float32{1}, 1), rawF32(t, []float32{1}, 1), rawF32(t, []float32{1}, 1))
		})
	})
}

func TestIndexSelect(t *testing.T) {
	backend := New()
	x := rawF32(t, []float32{
		0, 1, 2, 3,
		10, 11, 12, 13,
		20, 21, 22, 23,
	}, 3, 4)

	rows := backend.IndexSelect(x, 0, rawI32(t, []int32{2, 0, 2}, 3))
	assert.Equal(t, tensor.Shape{3, 4}, rows.Shape())
	assert.Equal(t, []float32{20, 21, 22, 23, 0, 1, 2, 3, 20, 21, 22, 23}, rows.AsFloat32())

	cols := backend.IndexSelect(x, 1, rawI32(t, []int32{3}, 1))
	assert.Equal(t, tensor.Shape{3, 1}, cols.Shape())
	assert.Equal(t, []float32{3, 13, 23}, cols.AsFloat32())

	assert.Panics(t, func() { backend.IndexSelect(x, 0, rawI32(t, []int32{3}, 1)) })
}

func TestComparisons(t *testing.T) {
	backend := New()
	a := rawF32(t, []float32{1, 2, 3}, 3)
	b := rawF32(t, []float32{2}, 1)

	assert.Equal(t, []bool{false, false, true}, backend.Greater(a, b).AsBool())
	assert.Equal(t, []bool{false, true, false}, backend.Equal(a, b).AsBool())
	assert.Equal(t, []bool{true, false, true}, backend.NotEqual(a, b).AsBool())

	ids := rawI32(t, []int32{-2, -1, 0}, 3)
	ignore := rawI32(t, []int32{-2}, 1)
	keep := backend.NotEqual(ids, ignore)
	assert.Equal(t, []bool{false, true, true}, keep.AsBool())

	both := backend.And(keep, rawBool(t, []bool{true, true, false}, 3))
	assert.Equal(t, []bool{false, true, false}, both.AsBool())
	assert.Equal(t, []bool{true, false, true}, backend.Not(both).AsBool())
}

func TestCast(t *testing.T) {
	backend := New()

	mask := rawBool(t, []bool{true, false}, 2)
	assert.Equal(t, []float32{1, 0}, backend.Cast(mask, tensor.Float32).AsFloat32())
	assert.Equal(t, []int32{1, 0}, backend.Cast(mask, tensor.Int32).AsInt32())

	ids := rawI32(t, []int32{-1, 3}, 2)
	assert.Equal(t, []float32{-1, 3}, backend.Cast(ids, tensor.Float32).AsFloat32())
	assert.Equal(t, []bool{true, true}, backend.Cast(ids, tensor.Bool).AsBool())
}
