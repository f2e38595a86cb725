package detection_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/detloss/internal/detection"
)

func TestDefaultConfig(t *testing.T) {
	cfg := detection.DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, float32(0.25), cfg.Alpha)
	assert.Equal(t, float32(1.5), cfg.Gamma)
	assert.Equal(t, float32(0.1), cfg.Delta)
	assert.Equal(t, float32(50), cfg.BoxLossWeight)
	assert.Equal(t, detection.BoxLossGIoU, cfg.BoxLossType)
	assert.False(t, cfg.LegacyFocal)
	assert.False(t, cfg.UseCompiledPath)

	focal := cfg.Focal()
	assert.Equal(t, cfg.Alpha, focal.Alpha)
	assert.Equal(t, cfg.Gamma, focal.Gamma)
}

func TestParseBoxLossType(t *testing.T) {
	for in, want := range map[string]detection.BoxLossType{
		"iou":    detection.BoxLossIoU,
		"GIoU":   detection.BoxLossGIoU,
		" diou ": detection.BoxLossDIoU,
		"EIOU":   detection.BoxLossEIoU,
		"huber":  detection.BoxLossHuber,
	} {
		got, err := detection.ParseBoxLossType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := detection.ParseBoxLossType("ciou")
	require.ErrorIs(t, err, detection.ErrUnknownBoxLossType)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*detection.Config)
		want   error
	}{
		{"unknown box loss", func(c *detection.Config) { c.BoxLossType = "l1" }, detection.ErrUnknownBoxLossType},
		{"empty box loss", func(c *detection.Config) { c.BoxLossType = "" }, detection.ErrUnknownBoxLossType},
		{"no classes", func(c *detection.Config) { c.NumClasses = 0 }, detection.ErrInvalidConfig},
		{"alpha above one", func(c *detection.Config) { c.Alpha = 1.5 }, detection.ErrInvalidConfig},
		{"negative alpha", func(c *detection.Config) { c.Alpha = -0.1 }, detection.ErrInvalidConfig},
		{"negative gamma", func(c *detection.Config) { c.Gamma = -1 }, detection.ErrInvalidConfig},
		{"negative box weight", func(c *detection.Config) { c.BoxLossWeight = -1 }, detection.ErrInvalidConfig},
		{"smoothing of one", func(c *detection.Config) { c.LabelSmoothing = 1 }, detection.ErrInvalidConfig},
		{"huber without delta", func(c *detection.Config) {
			c.BoxLossType = detection.BoxLossHuber
			c.Delta = 0
		}, detection.ErrInvalidConfig},
		{"negative levels", func(c *detection.Config) { c.NumLevels = -1 }, detection.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := detection.DefaultConfig()
			tt.modify(&cfg)
			require.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}

	edges := detection.DefaultConfig()
	edges.Alpha = 1
	edges.Gamma = 0
	edges.BoxLossWeight = 0
	edges.LabelSmoothing = 0.99
	assert.NoError(t, edges.Validate())
}

func TestParseConfig(t *testing.T) {
	cfg, err := detection.ParseConfig([]byte(`
num_classes: 20
gamma: 2
box_loss_type: DIoU
legacy_focal: true
use_compiled_path: true
num_levels: 5
`))
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.NumClasses)
	assert.Equal(t, float32(2), cfg.Gamma)
	assert.Equal(t, detection.BoxLossDIoU, cfg.BoxLossType)
	assert.True(t, cfg.LegacyFocal)
	assert.True(t, cfg.UseCompiledPath)
	assert.Equal(t, 5, cfg.NumLevels)
	// Missing keys keep their defaults.
	assert.Equal(t, float32(0.25), cfg.Alpha)
	assert.Equal(t, float32(50), cfg.BoxLossWeight)
}

func TestParseConfig_Errors(t *testing.T) {
	_, err := detection.ParseConfig([]byte("box_loss_type: ciou\n"))
	require.ErrorIs(t, err, detection.ErrUnknownBoxLossType)

	_, err = detection.ParseConfig([]byte("alpha: 2\n"))
	require.ErrorIs(t, err, detection.ErrInvalidConfig)

	_, err = detection.ParseConfig([]byte("gamma: [1, 2]\n"))
	require.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loss.yaml")
	require.NoError(t, os.WriteFile(path, []byte("num_classes: 3\nbox_loss_type: eiou\n"), 0o600))

	cfg, err := detection.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.NumClasses)
	assert.Equal(t, detection.BoxLossEIoU, cfg.BoxLossType)

	_, err = detection.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
