package synth_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/detloss/internal/anchors"
	"github.com/born-ml/detloss/internal/backend/cpu"
	"github.com/born-ml/detloss/internal/detection"
	"github.com/born-ml/detloss/internal/synth"
	"github.com/born-ml/detloss/internal/tensor"
)

func smallConfig() synth.Config {
	a := anchors.DefaultConfig()
	a.MinLevel, a.MaxLevel = 3, 5
	a.ImageSize = [2]int{64, 64}
	return synth.Config{
		Anchors:       a,
		NumClasses:    4,
		BatchSize:     2,
		BoxesPerImage: 3,
		OutputNoise:   0.1,
	}
}

func TestNewBatch_Shapes(t *testing.T) {
	cfg := smallConfig()
	batch, err := synth.NewBatch(cfg, rand.New(rand.NewPCG(1, 2)), cpu.New())
	require.NoError(t, err)

	require.Len(t, batch.Levels, 3)
	assert.Equal(t, tensor.Shape{cfg.Anchors.NumAnchors(), 4}, batch.Anchors.Shape())
	assert.Equal(t, tensor.Shape{2}, batch.NumPositives.Shape())

	// Level 3 of a 64x64 image is 8x8 with 9 anchors per location.
	lv := batch.Levels[0]
	assert.Equal(t, tensor.Shape{2, 8, 8, 36}, lv.ClsOutputs.Shape())
	assert.Equal(t, tensor.Shape{2, 8, 8, 36}, lv.BoxOutputs.Shape())
	assert.Equal(t, tensor.Shape{2, 8, 8, 9}, lv.ClsTargets.Shape())
	assert.Equal(t, tensor.Shape{2, 8, 8, 36}, lv.BoxTargets.Shape())
}

func TestNewBatch_TargetsConsistent(t *testing.T) {
	cfg := smallConfig()
	batch, err := synth.NewBatch(cfg, rand.New(rand.NewPCG(3, 4)), cpu.New())
	require.NoError(t, err)

	var positives float32
	for _, lv := range batch.Levels {
		ids := lv.ClsTargets.Data()
		boxes := lv.BoxTargets.Data()
		for i, id := range ids {
			row := boxes[4*i : 4*i+4]
			if id >= 0 {
				positives++
				assert.Less(t, id, int32(cfg.NumClasses))
				assert.NotEqual(t, []float32{0, 0, 0, 0}, row)
			} else {
				assert.Contains(t, []int32{detection.Background, detection.Ignore}, id)
				assert.Equal(t, []float32{0, 0, 0, 0}, row)
			}
		}
	}
	assert.Equal(t, positives, batch.NumPositives.Sum().Item())
}

func TestNewBatch_ChannelsFirst(t *testing.T) {
	cfg := smallConfig()
	cfg.ChannelsFirst = true
	batch, err := synth.NewBatch(cfg, rand.New(rand.NewPCG(1, 2)), cpu.New())
	require.NoError(t, err)

	assert.Equal(t, tensor.Shape{2, 36, 8, 8}, batch.Levels[0].ClsOutputs.Shape())
	assert.Equal(t, tensor.Shape{2, 8, 8, 9}, batch.Levels[0].ClsTargets.Shape())
}

func TestNewBatch_InvalidConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.BatchSize = 0
	_, err := synth.NewBatch(cfg, rand.New(rand.NewPCG(1, 2)), cpu.New())
	require.Error(t, err)
}
