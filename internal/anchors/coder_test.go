package anchors_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/detloss/internal/anchors"
	"github.com/born-ml/detloss/internal/backend/cpu"
	"github.com/born-ml/detloss/internal/tensor"
)

func TestCoder_DecodeZeroOffsetsIsAnchor(t *testing.T) {
	backend := cpu.New()
	coder := anchors.NewCoder[*cpu.CPUBackend]()

	a := tensor.MustFromSlice([]float32{
		0, 0, 10, 20,
		5, 5, 7, 9,
	}, tensor.Shape{2, 4}, backend)
	offsets := tensor.Zeros[float32](tensor.Shape{2, 4}, backend)

	boxes := coder.Decode(offsets, a)
	assert.Equal(t, tensor.Shape{2, 4}, boxes.Shape())
	assert.InDeltaSlice(t, a.Data(), boxes.Data(), 1e-6)
}

func TestCoder_DecodeShiftAndScale(t *testing.T) {
	backend := cpu.New()
	coder := anchors.NewCoder[*cpu.CPUBackend]()

	// Anchor centered at (5, 10) with h=10, w=20.
	a := tensor.MustFromSlice([]float32{0, 0, 10, 20}, tensor.Shape{1, 4}, backend)
	// Shift center by half a height down, double the width.
	offsets := tensor.MustFromSlice([]float32{0.5, 0, 0, 0.6931472}, tensor.Shape{1, 4}, backend)

	boxes := coder.Decode(offsets, a)
	assert.InDeltaSlice(t, []float32{5, -10, 15, 30}, boxes.Data(), 1e-4)
}

func TestCoder_RowMatchesTensor(t *testing.T) {
	backend := cpu.New()
	coder := anchors.NewCoder[*cpu.CPUBackend]()

	anchor := [4]float32{2, 3, 8, 7}
	offset := [4]float32{0.1, -0.2, 0.3, -0.4}

	boxes := coder.Decode(
		tensor.MustFromSlice(offset[:], tensor.Shape{1, 4}, backend),
		tensor.MustFromSlice(anchor[:], tensor.Shape{1, 4}, backend),
	)
	row := coder.DecodeRow(offset, anchor)
	assert.InDeltaSlice(t, boxes.Data(), row[:], 1e-5)
}

func TestCoder_EncodeRowInvertsDecodeRow(t *testing.T) {
	coder := anchors.NewCoder[*cpu.CPUBackend]()

	anchor := [4]float32{10, 10, 50, 30}
	box := [4]float32{12, 8, 40, 35}

	offset := coder.EncodeRow(box, anchor)
	got := coder.DecodeRow(offset, anchor)
	assert.InDeltaSlice(t, box[:], got[:], 1e-4)
}
