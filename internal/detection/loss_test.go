package detection_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/detloss/internal/anchors"
	"github.com/born-ml/detloss/internal/autodiff"
	"github.com/born-ml/detloss/internal/backend/cpu"
	"github.com/born-ml/detloss/internal/detection"
	"github.com/born-ml/detloss/internal/parallel"
	"github.com/born-ml/detloss/internal/synth"
	"github.com/born-ml/detloss/internal/tensor"
)

type cpuBackend = *cpu.CPUBackend

type adBackend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

// levelSpec describes a channels-last level with flat data.
type levelSpec struct {
	h, w, a, c int
	logits     []float32
	ids        []int32
	boxOut     []float32
	boxTgt     []float32
}

func makeLevel[B tensor.Backend](backend B, s levelSpec) detection.Level[B] {
	return detection.Level[B]{
		ClsOutputs: tensor.MustFromSlice(s.logits, tensor.Shape{1, s.h, s.w, s.a * s.c}, backend),
		BoxOutputs: tensor.MustFromSlice(s.boxOut, tensor.Shape{1, s.h, s.w, s.a * 4}, backend),
		ClsTargets: tensor.MustFromSlice(s.ids, tensor.Shape{1, s.h, s.w, s.a}, backend),
		BoxTargets: tensor.MustFromSlice(s.boxTgt, tensor.Shape{1, s.h, s.w, s.a * 4}, backend),
	}
}

func testConfig(numClasses int) detection.Config {
	cfg := detection.DefaultConfig()
	cfg.NumClasses = numClasses
	return cfg
}

func newLoss(t *testing.T, cfg detection.Config, anchorBoxes *tensor.Tensor[float32, cpuBackend]) *detection.Loss[cpuBackend] {
	t.Helper()
	loss, err := detection.New(cfg, anchorBoxes, cpu.New(), detection.WithLog(logs.NewTestingLog(t)))
	require.NoError(t, err)
	return loss
}

func positives(backend cpuBackend, counts ...float32) *tensor.Tensor[float32, cpuBackend] {
	return tensor.MustFromSlice(counts, tensor.Shape{len(counts)}, backend)
}

func TestLoss_UncertainBackground(t *testing.T) {
	// One anchor, logits 0 for both classes, background target: every class
	// is a negative at p_t = 0.5 and there is no box target.
	want := float32(2 * 0.75 * math.Pow(0.5, 1.5) * math.Ln2)

	for _, legacy := range []bool{false, true} {
		for _, compiled := range []bool{false, true} {
			backend := cpu.New()
			cfg := testConfig(2)
			cfg.LegacyFocal = legacy
			cfg.UseCompiledPath = compiled
			loss := newLoss(t, cfg, boxes(backend, [4]float32{0, 0, 10, 10}))

			level := makeLevel(backend, levelSpec{
				h: 1, w: 1, a: 1, c: 2,
				logits: []float32{0, 0},
				ids:    []int32{detection.Background},
				boxOut: []float32{0.3, 0.1, 0, 0},
				boxTgt: []float32{0, 0, 0, 0},
			})

			res, err := loss.Forward([]detection.Level[cpuBackend]{level}, positives(backend, 0))
			require.NoError(t, err)
			assert.InDelta(t, want, res.Cls.Item(), 1e-6, "legacy=%v compiled=%v", legacy, compiled)
			assert.Equal(t, float32(0), res.Box.Item())
			assert.InDelta(t, want, res.Total.Item(), 1e-6)
		}
	}
}

func TestLoss_PerfectBoxIsZero(t *testing.T) {
	for _, compiled := range []bool{false, true} {
		backend := cpu.New()
		cfg := testConfig(3)
		cfg.BoxLossType = detection.BoxLossIoU
		cfg.UseCompiledPath = compiled
		loss := newLoss(t, cfg, boxes(backend, [4]float32{0, 0, 10, 10}))

		offsets := []float32{0.5, 0.5, 0, 0}
		level := makeLevel(backend, levelSpec{
			h: 1, w: 1, a: 1, c: 3,
			logits: []float32{1, -2, 0.5},
			ids:    []int32{0},
			boxOut: offsets,
			boxTgt: offsets,
		})

		res, err := loss.Forward([]detection.Level[cpuBackend]{level}, positives(backend, 1))
		require.NoError(t, err)
		assert.Equal(t, float32(0), res.Box.Item(), "compiled=%v", compiled)
		assert.Equal(t, res.Cls.Item(), res.Total.Item())
	}
}

func TestLoss_ZeroRegressionWithValidFlag(t *testing.T) {
	backend := cpu.New()
	cfg := testConfig(1)
	cfg.BoxLossType = detection.BoxLossIoU
	loss := newLoss(t, cfg, boxes(backend, [4]float32{0, 0, 10, 10}))

	level := makeLevel(backend, levelSpec{
		h: 1, w: 1, a: 1, c: 1,
		logits: []float32{0},
		ids:    []int32{0},
		boxOut: []float32{0.2, 0, 0, 0},
		boxTgt: []float32{0, 0, 0, 0},
	})
	level.BoxValid = tensor.MustFromSlice([]bool{true}, tensor.Shape{1, 1, 1, 1}, backend)

	res, err := loss.Forward([]detection.Level[cpuBackend]{level}, positives(backend, 1))
	require.NoError(t, err)
	assert.InDelta(t, 1-8.0/12, res.Box.Item(), 1e-5)
}

func TestLoss_NormalizerCountsPositivesPlusOne(t *testing.T) {
	backend := cpu.New()
	loss := newLoss(t, testConfig(2), boxes(backend, [4]float32{0, 0, 10, 10}))
	level := makeLevel(backend, levelSpec{
		h: 1, w: 1, a: 1, c: 2,
		logits: []float32{0.3, -0.7},
		ids:    []int32{1},
		boxOut: []float32{0, 0, 0, 0},
		boxTgt: []float32{0.1, 0, 0, 0},
	})
	levels := []detection.Level[cpuBackend]{level}

	none, err := loss.Forward(levels, positives(backend, 0))
	require.NoError(t, err)
	assert.False(t, math.IsInf(float64(none.Total.Item()), 0))
	assert.False(t, math.IsNaN(float64(none.Total.Item())))

	three, err := loss.Forward(levels, positives(backend, 3))
	require.NoError(t, err)
	assert.InDelta(t, none.Cls.Item()/4, three.Cls.Item(), 1e-6)
	// The IoU box loss is a mean over valid rows, not divided by the normalizer.
	assert.Equal(t, none.Box.Item(), three.Box.Item())
}

func TestLoss_IgnoredLocationsContributeNothing(t *testing.T) {
	backend := cpu.New()
	loss := newLoss(t, testConfig(2), boxes(backend, [4]float32{0, 0, 10, 10}, [4]float32{0, 10, 10, 20}))

	forward := func(ignoredLogits []float32) float32 {
		level := makeLevel(backend, levelSpec{
			h: 1, w: 2, a: 1, c: 2,
			logits: append([]float32{0.4, -1.2}, ignoredLogits...),
			ids:    []int32{1, detection.Ignore},
			boxOut: make([]float32, 8),
			boxTgt: make([]float32, 8),
		})
		res, err := loss.Forward([]detection.Level[cpuBackend]{level}, positives(backend, 1))
		require.NoError(t, err)
		return res.Cls.Item()
	}

	base := forward([]float32{0, 0})
	assert.Equal(t, base, forward([]float32{50, -50}))
	assert.Equal(t, base, forward([]float32{-3, 7}))

	level := makeLevel(backend, levelSpec{
		h: 1, w: 2, a: 1, c: 2,
		logits: []float32{9, -9, 4, 4},
		ids:    []int32{detection.Ignore, detection.Ignore},
		boxOut: make([]float32, 8),
		boxTgt: make([]float32, 8),
	})
	res, err := loss.Forward([]detection.Level[cpuBackend]{level}, positives(backend, 0))
	require.NoError(t, err)
	assert.Equal(t, float32(0), res.Cls.Item())
}

func TestLoss_BoxWeightScalesOnlyBoxTerm(t *testing.T) {
	backend := cpu.New()
	anchorBoxes := boxes(backend, [4]float32{0, 0, 10, 10})
	level := makeLevel(backend, levelSpec{
		h: 1, w: 1, a: 1, c: 2,
		logits: []float32{0.3, -0.7},
		ids:    []int32{0},
		boxOut: []float32{0.1, -0.1, 0.2, 0},
		boxTgt: []float32{0.3, 0.1, 0, -0.2},
	})
	levels := []detection.Level[cpuBackend]{level}

	cfg := testConfig(2)
	base, err := newLoss(t, cfg, anchorBoxes).Forward(levels, positives(backend, 1))
	require.NoError(t, err)

	cfg.BoxLossWeight *= 3
	scaled, err := newLoss(t, cfg, anchorBoxes).Forward(levels, positives(backend, 1))
	require.NoError(t, err)

	assert.Equal(t, base.Cls.Item(), scaled.Cls.Item())
	assert.Equal(t, base.Box.Item(), scaled.Box.Item())
	assert.Greater(t, base.Box.Item(), float32(0))
	assert.InDelta(t, base.Cls.Item()+150*base.Box.Item(), scaled.Total.Item(), 1e-4)
}

func synthConfig() synth.Config {
	a := anchors.DefaultConfig()
	a.MinLevel, a.MaxLevel = 3, 5
	a.ImageSize = [2]int{64, 64}
	return synth.Config{
		Anchors:       a,
		NumClasses:    5,
		BatchSize:     3,
		BoxesPerImage: 4,
		OutputNoise:   0.2,
	}
}

func TestLoss_CompiledPathMatchesEager(t *testing.T) {
	backend := cpu.New()
	batch, err := synth.NewBatch(synthConfig(), rand.New(rand.NewPCG(7, 11)), backend)
	require.NoError(t, err)

	types := []detection.BoxLossType{
		detection.BoxLossIoU, detection.BoxLossGIoU, detection.BoxLossDIoU, detection.BoxLossEIoU, detection.BoxLossHuber,
	}
	for _, kind := range types {
		for _, legacy := range []bool{false, true} {
			cfg := testConfig(5)
			cfg.BoxLossType = kind
			cfg.LegacyFocal = legacy
			cfg.LabelSmoothing = 0.1
			cfg.NumLevels = 3

			eager := newLoss(t, cfg, batch.Anchors)
			want, err := eager.Forward(batch.Levels, batch.NumPositives)
			require.NoError(t, err)

			cfg.UseCompiledPath = true
			compiled, err := detection.New(cfg, batch.Anchors, backend,
				detection.WithParallel(parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 16}))
			require.NoError(t, err)
			require.Equal(t, "compiled", compiled.Path())
			got, err := compiled.Forward(batch.Levels, batch.NumPositives)
			require.NoError(t, err)

			assert.InEpsilon(t, want.Cls.Item(), got.Cls.Item(), 1e-4, "%s legacy=%v", kind, legacy)
			assert.InDelta(t, want.Box.Item(), got.Box.Item(), float64(1e-4*(1+want.Box.Item())), "%s legacy=%v", kind, legacy)
			assert.InDelta(t, want.Total.Item(), got.Total.Item(), float64(1e-4*(1+want.Total.Item())), "%s legacy=%v", kind, legacy)
		}
	}
}

func TestLoss_ChannelsFirstMatchesChannelsLast(t *testing.T) {
	backend := cpu.New()
	sc := synthConfig()
	last, err := synth.NewBatch(sc, rand.New(rand.NewPCG(5, 6)), backend)
	require.NoError(t, err)
	sc.ChannelsFirst = true
	first, err := synth.NewBatch(sc, rand.New(rand.NewPCG(5, 6)), backend)
	require.NoError(t, err)

	for _, compiled := range []bool{false, true} {
		cfg := testConfig(5)
		cfg.UseCompiledPath = compiled
		want, err := newLoss(t, cfg, last.Anchors).Forward(last.Levels, last.NumPositives)
		require.NoError(t, err)

		cfg.ChannelsFirst = true
		got, err := newLoss(t, cfg, first.Anchors).Forward(first.Levels, first.NumPositives)
		require.NoError(t, err)

		assert.InDelta(t, want.Total.Item(), got.Total.Item(), float64(1e-5*(1+want.Total.Item())))
		assert.InDelta(t, want.Cls.Item(), got.Cls.Item(), float64(1e-5*(1+want.Cls.Item())))
		assert.InDelta(t, want.Box.Item(), got.Box.Item(), 1e-5)
	}
}

func TestLoss_HuberBoxLoss(t *testing.T) {
	for _, compiled := range []bool{false, true} {
		backend := cpu.New()
		cfg := testConfig(1)
		cfg.BoxLossType = detection.BoxLossHuber
		cfg.UseCompiledPath = compiled
		loss := newLoss(t, cfg, boxes(backend, [4]float32{0, 0, 10, 10}, [4]float32{0, 10, 10, 20}))

		level := makeLevel(backend, levelSpec{
			h: 1, w: 2, a: 1, c: 1,
			logits: []float32{0, 0},
			ids:    []int32{0, detection.Background},
			boxOut: []float32{0.2, 0, 0, 0, 3, 3, 3, 3},
			boxTgt: []float32{0.1, 0.05, 0, 0, 0, 0, 0, 0},
		})
		res, err := loss.Forward([]detection.Level[cpuBackend]{level}, positives(backend, 1))
		require.NoError(t, err)

		// Normalizer 2.
		want := float32(0.5*0.01+0.5*0.0025) / (2 * 4)
		assert.InDelta(t, want, res.Box.Item(), 1e-7, "compiled=%v", compiled)
	}
}

func TestLoss_GradientsMatchFiniteDifferences(t *testing.T) {
	backend := autodiff.New(cpu.New())
	cfg := testConfig(2)
	cfg.BoxLossWeight = 1

	anchorBoxes := tensor.MustFromSlice([]float32{
		0, 0, 10, 10,
		0, 10, 10, 20,
	}, tensor.Shape{2, 4}, backend)
	loss, err := detection.New(cfg, anchorBoxes, backend)
	require.NoError(t, err)

	level := makeLevel(backend, levelSpec{
		h: 1, w: 2, a: 1, c: 2,
		logits: []float32{0.5, -1, 2, 0.3},
		ids:    []int32{1, detection.Background},
		boxOut: []float32{0.05, -0.05, 0.1, 0, 0.2, 0.1, -0.1, 0.3},
		boxTgt: []float32{0.3, -0.2, 0.2, -0.1, 0, 0, 0, 0},
	})
	levels := []detection.Level[adBackend]{level}
	numPositives := tensor.MustFromSlice([]float32{1}, tensor.Shape{1}, backend)

	tape := backend.Tape()
	tape.StartRecording()
	require.Equal(t, "eager", loss.Path())
	res, err := loss.Forward(levels, numPositives)
	require.NoError(t, err)
	grads := autodiff.Backward(res.Total, backend)
	tape.StopRecording()

	total := func() float32 {
		r, err := loss.Forward(levels, numPositives)
		require.NoError(t, err)
		return r.Total.Item()
	}

	for name, x := range map[string]*tensor.Tensor[float32, adBackend]{
		"class outputs": level.ClsOutputs,
		"box outputs":   level.BoxOutputs,
	} {
		analytic, ok := grads[x.Raw()]
		require.True(t, ok, "no gradient for %s", name)
		numeric := autodiff.NumericGradient(total, x.Data(), 1e-2)
		for i, want := range numeric {
			got := analytic.AsFloat32()[i]
			assert.InDelta(t, want, got, 2e-2*(1+math.Abs(float64(want))), "%s[%d]", name, i)
		}
	}

	// The second box row has no target and gets no gradient.
	boxGrad := grads[level.BoxOutputs.Raw()].AsFloat32()
	assert.Equal(t, []float32{0, 0, 0, 0}, boxGrad[4:8])
}

func TestLoss_Path(t *testing.T) {
	anchorRows := tensor.MustFromSlice([]float32{0, 0, 1, 1}, tensor.Shape{1, 4}, cpu.New())

	cfg := testConfig(1)
	assert.Equal(t, "eager", newLoss(t, cfg, anchorRows).Path())

	cfg.UseCompiledPath = true
	assert.Equal(t, "compiled", newLoss(t, cfg, anchorRows).Path())

	loss, err := detection.New(cfg, anchorRows, cpu.New(),
		detection.WithDecoder[cpuBackend](tensorOnlyDecoder{}),
		detection.WithLog(logs.NewTestingLog(t)))
	require.NoError(t, err)
	assert.Equal(t, "eager", loss.Path())

	backend := autodiff.New(cpu.New())
	adAnchors := tensor.MustFromSlice([]float32{0, 0, 1, 1}, tensor.Shape{1, 4}, backend)
	adLoss, err := detection.New(cfg, adAnchors, backend, detection.WithLog(logs.NewTestingLog(t)))
	require.NoError(t, err)
	assert.Equal(t, "compiled", adLoss.Path())
	backend.Tape().StartRecording()
	assert.Equal(t, "eager", adLoss.Path())
	backend.Tape().StopRecording()
	assert.Equal(t, "compiled", adLoss.Path())
}

// tensorOnlyDecoder decodes tensors but not single rows.
type tensorOnlyDecoder struct{}

func (tensorOnlyDecoder) Decode(offsets, anchorBoxes cpuTensor) cpuTensor {
	return coder.Decode(offsets, anchorBoxes)
}

func TestNew_Errors(t *testing.T) {
	backend := cpu.New()
	anchorRows := boxes(backend, [4]float32{0, 0, 1, 1})

	cfg := testConfig(1)
	cfg.BoxLossType = "ciou"
	_, err := detection.New(cfg, anchorRows, backend)
	require.ErrorIs(t, err, detection.ErrUnknownBoxLossType)

	cfg = testConfig(0)
	_, err = detection.New(cfg, anchorRows, backend)
	require.ErrorIs(t, err, detection.ErrInvalidConfig)

	_, err = detection.New(testConfig(1), nil, backend)
	require.ErrorIs(t, err, detection.ErrShapeMismatch)

	_, err = detection.New(testConfig(1), tensor.Zeros[float32](tensor.Shape{3, 2}, backend), backend)
	require.ErrorIs(t, err, detection.ErrShapeMismatch)

	_, err = detection.New(testConfig(1), anchorRows, backend,
		detection.WithDecoder[adBackend](anchors.NewCoder[adBackend]()))
	require.ErrorIs(t, err, detection.ErrInvalidConfig)
}

func TestForward_ShapeErrors(t *testing.T) {
	backend := cpu.New()
	anchorRows := boxes(backend, [4]float32{0, 0, 10, 10}, [4]float32{0, 10, 10, 20})

	good := func() detection.Level[cpuBackend] {
		return makeLevel(backend, levelSpec{
			h: 1, w: 2, a: 1, c: 2,
			logits: make([]float32, 4),
			ids:    []int32{0, -1},
			boxOut: make([]float32, 8),
			boxTgt: make([]float32, 8),
		})
	}

	tests := []struct {
		name   string
		cfg    func(*detection.Config)
		levels func() []detection.Level[cpuBackend]
		npos   *tensor.Tensor[float32, cpuBackend]
	}{
		{
			name:   "no levels",
			levels: func() []detection.Level[cpuBackend] { return nil },
		},
		{
			name:   "level count differs from config",
			cfg:    func(c *detection.Config) { c.NumLevels = 2 },
			levels: func() []detection.Level[cpuBackend] { return []detection.Level[cpuBackend]{good()} },
		},
		{
			name: "nil class targets",
			levels: func() []detection.Level[cpuBackend] {
				l := good()
				l.ClsTargets = nil
				return []detection.Level[cpuBackend]{l}
			},
		},
		{
			name: "class channels do not match classes",
			levels: func() []detection.Level[cpuBackend] {
				l := good()
				l.ClsOutputs = tensor.Zeros[float32](tensor.Shape{1, 1, 2, 3}, backend)
				return []detection.Level[cpuBackend]{l}
			},
		},
		{
			name: "box outputs not four per anchor",
			levels: func() []detection.Level[cpuBackend] {
				l := good()
				l.BoxOutputs = tensor.Zeros[float32](tensor.Shape{1, 1, 2, 3}, backend)
				return []detection.Level[cpuBackend]{l}
			},
		},
		{
			name: "box valid shape",
			levels: func() []detection.Level[cpuBackend] {
				l := good()
				l.BoxValid = tensor.Zeros[bool](tensor.Shape{1, 2}, backend)
				return []detection.Level[cpuBackend]{l}
			},
		},
		{
			name: "class id beyond num classes",
			levels: func() []detection.Level[cpuBackend] {
				l := good()
				l.ClsTargets = tensor.MustFromSlice([]int32{7, -1}, tensor.Shape{1, 1, 2, 1}, backend)
				return []detection.Level[cpuBackend]{l}
			},
		},
		{
			name: "class id below ignore",
			levels: func() []detection.Level[cpuBackend] {
				l := good()
				l.ClsTargets = tensor.MustFromSlice([]int32{0, -3}, tensor.Shape{1, 1, 2, 1}, backend)
				return []detection.Level[cpuBackend]{l}
			},
		},
		{
			name: "anchor count differs",
			levels: func() []detection.Level[cpuBackend] {
				return []detection.Level[cpuBackend]{good(), good()}
			},
		},
		{
			name:   "num positives not per image",
			levels: func() []detection.Level[cpuBackend] { return []detection.Level[cpuBackend]{good()} },
			npos:   positives(backend, 1, 2),
		},
		{
			name: "channels-first layout expected",
			cfg:  func(c *detection.Config) { c.ChannelsFirst = true },
			levels: func() []detection.Level[cpuBackend] {
				l := good()
				l.ClsOutputs = tensor.Zeros[float32](tensor.Shape{1, 2, 2, 2}, backend)
				return []detection.Level[cpuBackend]{l}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(2)
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			npos := tt.npos
			if npos == nil {
				npos = positives(backend, 1)
			}
			_, err := newLoss(t, cfg, anchorRows).Forward(tt.levels(), npos)
			require.ErrorIs(t, err, detection.ErrShapeMismatch)
		})
	}
}
