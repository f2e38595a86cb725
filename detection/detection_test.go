package detection_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/detloss/backend/cpu"
	"github.com/born-ml/detloss/detection"
	"github.com/born-ml/detloss/tensor"
)

func TestPublicAPI(t *testing.T) {
	backend := cpu.New()

	anchorCfg := detection.DefaultAnchorConfig()
	anchorCfg.MinLevel, anchorCfg.MaxLevel = 3, 3
	anchorCfg.NumScales = 1
	anchorCfg.AspectRatios = [][2]float32{{1, 1}}
	anchorCfg.ImageSize = [2]int{16, 16}

	anchorBoxes, err := detection.GenerateAnchors(anchorCfg, backend)
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{4, 4}, anchorBoxes.Shape())

	cfg := detection.DefaultConfig()
	cfg.NumClasses = 2
	loss, err := detection.New(cfg, anchorBoxes, backend)
	require.NoError(t, err)

	logits, err := tensor.FromSlice(make([]float32, 8), tensor.Shape{1, 2, 2, 2}, backend)
	require.NoError(t, err)
	ids, err := tensor.FromSlice([]int32{0, detection.Background, detection.Ignore, 1}, tensor.Shape{1, 2, 2, 1}, backend)
	require.NoError(t, err)
	targets := tensor.Zeros[float32](tensor.Shape{1, 2, 2, 4}, backend)
	targets.Set(0.1, 0, 0, 0, 0)

	res, err := loss.Forward([]detection.Level[*cpu.Backend]{{
		ClsOutputs: logits,
		BoxOutputs: tensor.Zeros[float32](tensor.Shape{1, 2, 2, 4}, backend),
		ClsTargets: ids,
		BoxTargets: targets,
	}}, tensor.Full[float32](tensor.Shape{1}, 2, backend))
	require.NoError(t, err)

	assert.Greater(t, res.Cls.Item(), float32(0))
	assert.Greater(t, res.Box.Item(), float32(0))
	assert.InDelta(t, res.Cls.Item()+50*res.Box.Item(), res.Total.Item(), 1e-4)

	_, err = detection.ParseBoxLossType("bogus")
	assert.ErrorIs(t, err, detection.ErrUnknownBoxLossType)
}
