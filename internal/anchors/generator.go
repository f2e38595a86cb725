package anchors

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"

	"github.com/born-ml/detloss/internal/tensor"
)

// ErrInvalidConfig is returned for anchor configurations that cannot
// produce anchors.
var ErrInvalidConfig = errors.New("invalid anchor config")

// Config describes a multi-level EfficientDet anchor layout.
type Config struct {
	MinLevel     int          `yaml:"min_level"`
	MaxLevel     int          `yaml:"max_level"`
	NumScales    int          `yaml:"num_scales"`
	AspectRatios [][2]float32 `yaml:"aspect_ratios"` // (x, y) multipliers
	AnchorScale  float32      `yaml:"anchor_scale"`
	ImageSize    [2]int       `yaml:"image_size"` // (height, width) in pixels
}

// DefaultConfig returns the EfficientDet-D0 layout: levels 3..7, three
// octave scales, three aspect ratios, anchor scale 4, 512x512 images.
func DefaultConfig() Config {
	return Config{
		MinLevel:     3,
		MaxLevel:     7,
		NumScales:    3,
		AspectRatios: [][2]float32{{1, 1}, {1.4, 0.7}, {0.7, 1.4}},
		AnchorScale:  4,
		ImageSize:    [2]int{512, 512},
	}
}

// LevelShape is the feature map size of one pyramid level.
type LevelShape struct {
	Level  int
	Height int
	Width  int
}

// Validate checks that the configuration produces at least one anchor.
func (c Config) Validate() error {
	switch {
	case c.MinLevel < 0 || c.MaxLevel < c.MinLevel:
		return fmt.Errorf("%w: levels %d..%d", ErrInvalidConfig, c.MinLevel, c.MaxLevel)
	case c.NumScales < 1:
		return fmt.Errorf("%w: num_scales %d", ErrInvalidConfig, c.NumScales)
	case len(c.AspectRatios) == 0:
		return fmt.Errorf("%w: no aspect ratios", ErrInvalidConfig)
	case c.AnchorScale <= 0:
		return fmt.Errorf("%w: anchor_scale %g", ErrInvalidConfig, c.AnchorScale)
	}
	for _, level := range c.Levels() {
		if level.Height == 0 || level.Width == 0 {
			return fmt.Errorf("%w: image %v too small for level %d", ErrInvalidConfig, c.ImageSize, level.Level)
		}
	}
	return nil
}

// NumLevels returns the number of pyramid levels.
func (c Config) NumLevels() int {
	return c.MaxLevel - c.MinLevel + 1
}

// AnchorsPerLocation returns NumScales × len(AspectRatios).
func (c Config) AnchorsPerLocation() int {
	return c.NumScales * len(c.AspectRatios)
}

// Levels returns the feature map size of every level, lowest level first.
func (c Config) Levels() []LevelShape {
	levels := make([]LevelShape, 0, c.NumLevels())
	for level := c.MinLevel; level <= c.MaxLevel; level++ {
		stride := 1 << level
		levels = append(levels, LevelShape{
			Level:  level,
			Height: numCenters(c.ImageSize[0], stride),
			Width:  numCenters(c.ImageSize[1], stride),
		})
	}
	return levels
}

// NumAnchors returns the total anchor count over all levels.
func (c Config) NumAnchors() int {
	n := 0
	for _, level := range c.Levels() {
		n += level.Height * level.Width
	}
	return n * c.AnchorsPerLocation()
}

// Generate builds the [NumAnchors, 4] anchor tensor.
//
// Anchors are ordered by level, then location (row-major), then octave
// scale, then aspect ratio, which matches how per-level head outputs of
// shape [H, W, A*4] flatten to rows of four.
func Generate[B tensor.Backend](cfg Config, backend B) (*tensor.Tensor[float32, B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	boxes := make([]float32, 0, cfg.NumAnchors()*4)
	for _, level := range cfg.Levels() {
		stride := float32(int(1) << level.Level)
		for row := range level.Height {
			yc := stride/2 + float32(row)*stride
			for col := range level.Width {
				xc := stride/2 + float32(col)*stride
				for octave := range cfg.NumScales {
					base := cfg.AnchorScale * stride * math32.Pow(2, float32(octave)/float32(cfg.NumScales))
					for _, aspect := range cfg.AspectRatios {
						halfX := base * aspect[0] / 2
						halfY := base * aspect[1] / 2
						boxes = append(boxes, yc-halfY, xc-halfX, yc+halfY, xc+halfX)
					}
				}
			}
		}
	}
	return tensor.FromSlice(boxes, tensor.Shape{len(boxes) / 4, 4}, backend)
}

// numCenters counts the anchor centers stride/2, stride/2+stride, ... that
// lie inside [0, size).
func numCenters(size, stride int) int {
	if 2*size <= stride {
		return 0
	}
	return (2*size - stride + 2*stride - 1) / (2 * stride)
}
